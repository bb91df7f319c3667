package security

import (
	"sync"
	"time"
)

// AttemptTracker counts failed authentication attempts per source and
// applies temporary bans once a configurable threshold is crossed.
// Records are mutated only through the Guard.
type AttemptTracker struct {
	mutex   sync.Mutex
	records map[string]*attemptRecord
}

type attemptRecord struct {
	failedCount int
	lastAttempt time.Time
	banUntil    time.Time
}

// NewAttemptTracker creates an empty tracker.
func NewAttemptTracker() *AttemptTracker {
	return &AttemptTracker{
		records: make(map[string]*attemptRecord),
	}
}

// IsBanned reports whether the source is currently banned.
func (at *AttemptTracker) IsBanned(source string) bool {
	at.mutex.Lock()
	defer at.mutex.Unlock()

	record, exists := at.records[source]
	if !exists {
		return false
	}

	return time.Now().Before(record.banUntil)
}

// RecordFailure increments the source's failed-attempt count. When the
// count reaches maxAttempts (0 disables banning) the source is banned
// for banDuration. Returns true when this failure triggered a ban.
func (at *AttemptTracker) RecordFailure(source string, maxAttempts int, banDuration time.Duration) bool {
	at.mutex.Lock()
	defer at.mutex.Unlock()

	record := at.record(source)
	record.failedCount++
	record.lastAttempt = time.Now()

	if maxAttempts > 0 && record.failedCount >= maxAttempts {
		record.banUntil = time.Now().Add(banDuration)
		return true
	}

	return false
}

// RecordSuccess resets the source's failed-attempt count to zero.
func (at *AttemptTracker) RecordSuccess(source string) {
	at.mutex.Lock()
	defer at.mutex.Unlock()

	record := at.record(source)
	record.failedCount = 0
	record.lastAttempt = time.Now()
}

// FailedCount returns the current failed-attempt count for a source.
func (at *AttemptTracker) FailedCount(source string) int {
	at.mutex.Lock()
	defer at.mutex.Unlock()

	record, exists := at.records[source]
	if !exists {
		return 0
	}

	return record.failedCount
}

func (at *AttemptTracker) record(source string) *attemptRecord {
	record, exists := at.records[source]
	if !exists {
		record = &attemptRecord{lastAttempt: time.Now()}
		at.records[source] = record
	}

	return record
}
