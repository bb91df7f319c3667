package security

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/wardenhq/warden/internal/logging"
)

// Outcome is the result of one credential check. Every rejection class
// is distinct so callers can audit why a request was denied even though
// all of them ultimately deny access.
type Outcome int

const (
	// OutcomeOK means the credential matched.
	OutcomeOK Outcome = iota
	// OutcomeBadCredential means the credential did not match.
	OutcomeBadCredential
	// OutcomeBanned means the source is temporarily banned; the check
	// consumed no rate-limit token.
	OutcomeBanned
	// OutcomeRateLimited means the authentication bucket was empty.
	OutcomeRateLimited
	// OutcomeDisabled means credential checking is switched off but an
	// attempt was made anyway.
	OutcomeDisabled
)

// Allowed reports whether the outcome grants access.
func (o Outcome) Allowed() bool {
	return o == OutcomeOK
}

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeBadCredential:
		return "bad_credential"
	case OutcomeBanned:
		return "banned"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeDisabled:
		return "auth_disabled"
	default:
		return "unknown"
	}
}

// GuardConfig holds the credential policy for a Guard.
type GuardConfig struct {
	Enabled          bool
	APIKey           string
	MaxAuthAttempts  int // 0 disables temporary bans
	BanDuration      time.Duration
	RateLimitEnabled bool
	AuthPerMinute    int
}

// Guard validates presented credentials, consulting the attempt tracker
// and the rate limiter. It is the single writer of attempt records.
type Guard struct {
	config   GuardConfig
	limiter  *RateLimiter
	attempts *AttemptTracker
	logger   logging.Logger
}

// NewGuard creates a credential guard over the given limiter and
// tracker.
func NewGuard(config GuardConfig, limiter *RateLimiter, attempts *AttemptTracker, logger logging.Logger) *Guard {
	return &Guard{
		config:   config,
		limiter:  limiter,
		attempts: attempts,
		logger:   logger,
	}
}

// Verify checks a presented credential for a source. The ban check runs
// before rate limiting so a banned probe never consumes a token, and
// the comparison itself is constant-time.
func (g *Guard) Verify(ctx context.Context, credential, source string) Outcome {
	if !g.config.Enabled {
		logging.LogSecurityEvent(g.logger, ctx, nil, "auth_attempt_while_disabled", source, CategoryAuth)
		return OutcomeDisabled
	}

	if g.attempts.IsBanned(source) {
		logging.LogSecurityEvent(g.logger, ctx, nil, "auth_rejected_banned", source, CategoryAuth)
		return OutcomeBanned
	}

	if g.config.RateLimitEnabled {
		key := CategoryAuth + ":" + source
		if !g.limiter.Allow(key, g.config.AuthPerMinute, PerMinute(g.config.AuthPerMinute)) {
			logging.LogSecurityEvent(g.logger, ctx, nil, "auth_rate_limited", source, CategoryAuth)
			return OutcomeRateLimited
		}
	}

	if subtle.ConstantTimeCompare([]byte(credential), []byte(g.config.APIKey)) == 1 {
		g.attempts.RecordSuccess(source)
		if g.logger != nil {
			g.logger.Info(ctx, "authentication succeeded", "source", source)
		}
		return OutcomeOK
	}

	banned := g.attempts.RecordFailure(source, g.config.MaxAuthAttempts, g.config.BanDuration)
	if banned {
		logging.LogSecurityEvent(g.logger, ctx, nil, "source_banned", source, CategoryAuth)
	} else {
		logging.LogSecurityEvent(g.logger, ctx, nil, "auth_failed", source, CategoryAuth)
	}

	return OutcomeBadCredential
}
