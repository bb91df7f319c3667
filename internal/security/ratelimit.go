// Package security implements the trust layer in front of the protocol
// dispatcher: token-bucket rate limiting, failed-attempt tracking with
// temporary bans, credential validation, time-boxed sessions, and the
// command allow-list.
package security

import (
	"context"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/logging"
)

// Rate limit category names used as bucket key prefixes.
const (
	CategoryAuth     = "authentication"
	CategoryCommands = "commands"
	CategoryRequests = "requests"
)

// RateLimiter implements token bucket rate limiting keyed by an
// arbitrary string, usually "category:source". Capacity and refill rate
// are supplied by the caller per call, so no category-specific logic
// lives here.
type RateLimiter struct {
	buckets     map[string]*tokenBucket
	bucketMutex sync.RWMutex
	logger      logging.Logger
	cleaner     *time.Ticker
	stopCleaner chan struct{}
	stopOnce    sync.Once
}

// tokenBucket tracks the available tokens for one key. Tokens only ever
// increase via elapsed-time refill and decrease by exactly 1 per
// consumed call; 0 <= tokens <= capacity holds throughout.
type tokenBucket struct {
	mutex      sync.Mutex
	tokens     float64
	capacity   float64
	lastRefill time.Time
	lastAccess time.Time
}

// NewRateLimiter creates a new rate limiter and starts its idle-bucket
// cleanup goroutine. Call Stop when done.
func NewRateLimiter(logger logging.Logger) *RateLimiter {
	rl := &RateLimiter{
		buckets:     make(map[string]*tokenBucket),
		logger:      logger,
		stopCleaner: make(chan struct{}),
	}

	rl.cleaner = time.NewTicker(5 * time.Minute)
	go rl.runCleanup()

	return rl
}

// Allow attempts to consume one token from the bucket for key. The
// bucket is created at full capacity on first use. Refill and consume
// are atomic per key.
func (rl *RateLimiter) Allow(key string, capacity int, refillPerSecond float64) bool {
	bucket := rl.getBucket(key, capacity)
	allowed := bucket.consume(capacity, refillPerSecond)

	if !allowed && rl.logger != nil {
		rl.logger.Debug(context.Background(), "rate limit exceeded", "key", key)
	}

	return allowed
}

// PerMinute converts a per-minute capacity into a per-second refill
// rate for Allow.
func PerMinute(n int) float64 {
	return float64(n) / 60.0
}

func (rl *RateLimiter) getBucket(key string, capacity int) *tokenBucket {
	rl.bucketMutex.RLock()
	bucket, exists := rl.buckets[key]
	rl.bucketMutex.RUnlock()

	if exists {
		return bucket
	}

	rl.bucketMutex.Lock()
	defer rl.bucketMutex.Unlock()

	// Double-check after acquiring the write lock.
	if bucket, exists := rl.buckets[key]; exists {
		return bucket
	}

	now := time.Now()
	bucket = &tokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		lastRefill: now,
		lastAccess: now,
	}
	rl.buckets[key] = bucket

	return bucket
}

// consume refills based on elapsed wall-clock time, then attempts to
// subtract one token. The subtraction is committed only when at least
// one token is available; otherwise only the refill takes effect.
func (tb *tokenBucket) consume(capacity int, refillPerSecond float64) bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	now := time.Now()
	tb.capacity = float64(capacity)
	tb.refill(now, refillPerSecond)
	tb.lastAccess = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}

	return false
}

func (tb *tokenBucket) refill(now time.Time, refillPerSecond float64) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed * refillPerSecond
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// ActiveBuckets returns the number of live buckets, for diagnostics.
func (rl *RateLimiter) ActiveBuckets() int {
	rl.bucketMutex.RLock()
	defer rl.bucketMutex.RUnlock()
	return len(rl.buckets)
}

func (rl *RateLimiter) runCleanup() {
	for {
		select {
		case <-rl.cleaner.C:
			rl.removeIdleBuckets()
		case <-rl.stopCleaner:
			rl.cleaner.Stop()
			return
		}
	}
}

// removeIdleBuckets drops buckets not touched for 10 minutes; an idle
// bucket would be recreated at full capacity anyway.
func (rl *RateLimiter) removeIdleBuckets() {
	rl.bucketMutex.Lock()
	defer rl.bucketMutex.Unlock()

	now := time.Now()
	const expiry = 10 * time.Minute

	for key, bucket := range rl.buckets {
		bucket.mutex.Lock()
		idle := now.Sub(bucket.lastAccess) > expiry
		bucket.mutex.Unlock()
		if idle {
			delete(rl.buckets, key)
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleaner)
	})
}
