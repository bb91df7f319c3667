package host

import (
	"strings"
	"sync"
	"time"
)

// DefaultLogBufferSize holds roughly a few minutes of console output.
const DefaultLogBufferSize = 500

// LogEntry is one captured host log line.
type LogEntry struct {
	At      time.Time `json:"at"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// LogBuffer keeps the most recent host log lines in a fixed-size ring.
// Safe for concurrent use.
type LogBuffer struct {
	mutex   sync.RWMutex
	entries []LogEntry
	next    int
	filled  bool
}

// NewLogBuffer creates a ring holding up to size entries; a
// non-positive size falls back to DefaultLogBufferSize.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = DefaultLogBufferSize
	}

	return &LogBuffer{entries: make([]LogEntry, size)}
}

// Append records one line, evicting the oldest when full.
func (lb *LogBuffer) Append(level, message string) {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	lb.entries[lb.next] = LogEntry{At: time.Now(), Level: level, Message: message}
	lb.next++
	if lb.next == len(lb.entries) {
		lb.next = 0
		lb.filled = true
	}
}

// Recent returns up to limit entries, oldest first, filtered by level
// (exact, case-insensitive) and substring when non-empty. limit <= 0
// means everything retained.
func (lb *LogBuffer) Recent(limit int, level, contains string) []LogEntry {
	lb.mutex.RLock()
	defer lb.mutex.RUnlock()

	ordered := make([]LogEntry, 0, len(lb.entries))
	if lb.filled {
		ordered = append(ordered, lb.entries[lb.next:]...)
	}
	ordered = append(ordered, lb.entries[:lb.next]...)

	matched := ordered[:0]
	for _, entry := range ordered {
		if level != "" && !strings.EqualFold(entry.Level, level) {
			continue
		}
		if contains != "" && !strings.Contains(strings.ToLower(entry.Message), strings.ToLower(contains)) {
			continue
		}
		matched = append(matched, entry)
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	// Copy so callers never alias the ring's backing array.
	out := make([]LogEntry, len(matched))
	copy(out, matched)

	return out
}

// Len reports how many entries are retained.
func (lb *LogBuffer) Len() int {
	lb.mutex.RLock()
	defer lb.mutex.RUnlock()

	if lb.filled {
		return len(lb.entries)
	}
	return lb.next
}
