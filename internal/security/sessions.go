package security

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/internal/logging"
)

// Session is server-held proof that a caller previously authenticated.
type Session struct {
	ID           string
	Source       string
	CreatedAt    time.Time
	LastActivity time.Time
}

// SessionStore manages time-boxed sessions keyed by an opaque token.
// A background sweep removes sessions idle longer than the configured
// timeout; a timeout of zero disables the sweep entirely.
type SessionStore struct {
	mutex         sync.Mutex
	sessions      map[string]*Session
	timeout       time.Duration
	sweepInterval time.Duration
	logger        logging.Logger
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewSessionStore creates a session store. Start must be called to run
// the sweeper.
func NewSessionStore(timeout time.Duration, logger logging.Logger) *SessionStore {
	return &SessionStore{
		sessions:      make(map[string]*Session),
		timeout:       timeout,
		sweepInterval: time.Minute,
		logger:        logger,
		stop:          make(chan struct{}),
	}
}

// Create generates a new session for a source and returns its id.
func (ss *SessionStore) Create(source string) string {
	session := &Session{
		ID:           uuid.NewString(),
		Source:       source,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}

	ss.mutex.Lock()
	ss.sessions[session.ID] = session
	ss.mutex.Unlock()

	if ss.logger != nil {
		ss.logger.Info(context.Background(), "session created",
			"session_id", session.ID, "source", source)
	}

	return session.ID
}

// Validate reports whether a session with the given id exists and, if
// so, bumps its last-activity timestamp. Concurrent calls on the same
// id are last-write-wins on the timestamp.
func (ss *SessionStore) Validate(id string) bool {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()

	session, exists := ss.sessions[id]
	if !exists {
		return false
	}

	now := time.Now()
	if now.After(session.LastActivity) {
		session.LastActivity = now
	}

	return true
}

// End removes a session unconditionally. Ending an unknown id is a
// no-op.
func (ss *SessionStore) End(id string) {
	ss.mutex.Lock()
	session, existed := ss.sessions[id]
	delete(ss.sessions, id)
	ss.mutex.Unlock()

	if existed && ss.logger != nil {
		ss.logger.Info(context.Background(), "session ended",
			"session_id", id, "source", session.Source)
	}
}

// Count returns the number of live sessions.
func (ss *SessionStore) Count() int {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	return len(ss.sessions)
}

// Start launches the periodic sweep. It returns immediately when the
// timeout is zero, meaning sessions never expire.
func (ss *SessionStore) Start(ctx context.Context) {
	if ss.timeout <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(ss.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ss.stop:
				return
			case <-ticker.C:
				ss.sweep()
			}
		}
	}()
}

// Stop halts the sweeper.
func (ss *SessionStore) Stop() {
	ss.stopOnce.Do(func() {
		close(ss.stop)
	})
}

func (ss *SessionStore) sweep() {
	now := time.Now()

	ss.mutex.Lock()
	var expired []*Session
	for id, session := range ss.sessions {
		if now.Sub(session.LastActivity) > ss.timeout {
			delete(ss.sessions, id)
			expired = append(expired, session)
		}
	}
	ss.mutex.Unlock()

	for _, session := range expired {
		if ss.logger != nil {
			ss.logger.Info(context.Background(), "session expired",
				"session_id", session.ID, "source", session.Source)
		}
	}
}
