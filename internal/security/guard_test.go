package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestGuard(config GuardConfig) (*Guard, *AttemptTracker, *RateLimiter) {
	limiter := NewRateLimiter(nil)
	attempts := NewAttemptTracker()

	return NewGuard(config, limiter, attempts, nil), attempts, limiter
}

func TestGuard_ValidCredential(t *testing.T) {
	guard, attempts, limiter := newTestGuard(GuardConfig{
		Enabled: true,
		APIKey:  "secret",
	})
	defer limiter.Stop()

	assert.Equal(t, OutcomeOK, guard.Verify(context.Background(), "secret", "10.0.0.1"))
	assert.Zero(t, attempts.FailedCount("10.0.0.1"))
}

func TestGuard_BadCredential(t *testing.T) {
	guard, attempts, limiter := newTestGuard(GuardConfig{
		Enabled: true,
		APIKey:  "secret",
	})
	defer limiter.Stop()

	outcome := guard.Verify(context.Background(), "wrong", "10.0.0.1")
	assert.Equal(t, OutcomeBadCredential, outcome)
	assert.False(t, outcome.Allowed())
	assert.Equal(t, 1, attempts.FailedCount("10.0.0.1"))
}

func TestGuard_Disabled(t *testing.T) {
	guard, _, limiter := newTestGuard(GuardConfig{
		Enabled: false,
		APIKey:  "secret",
	})
	defer limiter.Stop()

	// A correct credential is still rejected when checking is off.
	assert.Equal(t, OutcomeDisabled, guard.Verify(context.Background(), "secret", "10.0.0.1"))
}

func TestGuard_BanLifecycle(t *testing.T) {
	guard, attempts, limiter := newTestGuard(GuardConfig{
		Enabled:         true,
		APIKey:          "secret",
		MaxAuthAttempts: 5,
		BanDuration:     time.Hour,
	})
	defer limiter.Stop()

	for range 5 {
		assert.Equal(t, OutcomeBadCredential, guard.Verify(context.Background(), "wrong", "attacker"))
	}

	// The 6th attempt is rejected as banned even with the right key.
	assert.Equal(t, OutcomeBanned, guard.Verify(context.Background(), "secret", "attacker"))
	assert.True(t, attempts.IsBanned("attacker"))

	// Other sources are unaffected.
	assert.Equal(t, OutcomeOK, guard.Verify(context.Background(), "secret", "10.0.0.9"))
}

func TestGuard_BanExpires(t *testing.T) {
	guard, attempts, limiter := newTestGuard(GuardConfig{
		Enabled:         true,
		APIKey:          "secret",
		MaxAuthAttempts: 2,
		BanDuration:     10 * time.Millisecond,
	})
	defer limiter.Stop()

	guard.Verify(context.Background(), "wrong", "src")
	guard.Verify(context.Background(), "wrong", "src")
	assert.True(t, attempts.IsBanned("src"))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, attempts.IsBanned("src"))
	assert.Equal(t, OutcomeOK, guard.Verify(context.Background(), "secret", "src"))
	assert.Zero(t, attempts.FailedCount("src"))
}

func TestGuard_ZeroMaxAttemptsDisablesBans(t *testing.T) {
	guard, attempts, limiter := newTestGuard(GuardConfig{
		Enabled:         true,
		APIKey:          "secret",
		MaxAuthAttempts: 0,
		BanDuration:     time.Hour,
	})
	defer limiter.Stop()

	for range 20 {
		guard.Verify(context.Background(), "wrong", "src")
	}
	assert.False(t, attempts.IsBanned("src"))
}

func TestGuard_RateLimited(t *testing.T) {
	guard, _, limiter := newTestGuard(GuardConfig{
		Enabled:          true,
		APIKey:           "secret",
		RateLimitEnabled: true,
		AuthPerMinute:    3,
	})
	defer limiter.Stop()

	for range 3 {
		guard.Verify(context.Background(), "wrong", "src")
	}

	// Bucket empty: rejected before the credential is even compared.
	assert.Equal(t, OutcomeRateLimited, guard.Verify(context.Background(), "secret", "src"))
}

func TestGuard_BanCheckConsumesNoToken(t *testing.T) {
	guard, _, limiter := newTestGuard(GuardConfig{
		Enabled:          true,
		APIKey:           "secret",
		MaxAuthAttempts:  1,
		BanDuration:      time.Hour,
		RateLimitEnabled: true,
		AuthPerMinute:    10,
	})
	defer limiter.Stop()

	guard.Verify(context.Background(), "wrong", "src") // consumes 1, triggers ban

	for range 50 {
		assert.Equal(t, OutcomeBanned, guard.Verify(context.Background(), "secret", "src"))
	}

	// Only the single pre-ban attempt consumed a token.
	bucket := limiter.getBucket(CategoryAuth+":src", 10)
	bucket.mutex.Lock()
	tokens := bucket.tokens
	bucket.mutex.Unlock()
	assert.GreaterOrEqual(t, tokens, 9.0)
}
