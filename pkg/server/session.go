package server

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cs706/saber/pkg/logging"
	"github.com/cs706/saber/pkg/saber"
)

// Session is one logical client identity spanning reconnects. The id is
// assigned on the initial connect and echoed back by the client on every
// reconnect.
type Session struct {
	ID        uint64
	TimeoutMs uint32
	// AuthIDs are the identities ACL checks run against. Every session
	// carries world:anyone.
	AuthIDs []saber.ID

	mu       sync.Mutex
	lastSeen time.Time
	connID   string
	expiring bool
}

// markExpiring returns true the first time it is called, so a session's
// KillSession transaction is proposed exactly once.
func (s *Session) markExpiring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiring {
		return false
	}
	s.expiring = true
	return true
}

// Touch records liveness. Any frame from the client counts.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// Attach binds the session to its current connection.
func (s *Session) Attach(connID string, now time.Time) {
	s.mu.Lock()
	s.connID = connID
	s.lastSeen = now
	s.mu.Unlock()
}

// ConnID returns the connection currently serving the session, or "".
func (s *Session) ConnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

func (s *Session) expiredAt(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen) > time.Duration(s.TimeoutMs)*time.Millisecond
}

// SessionRegistry tracks every live session and their liveness deadlines.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[uint64]*Session
	counter  uint16

	minTimeoutMs uint32
	maxTimeoutMs uint32

	log *logrus.Entry
}

func NewSessionRegistry(minTimeoutMs, maxTimeoutMs uint32) *SessionRegistry {
	return &SessionRegistry{
		sessions:     map[uint64]*Session{},
		minTimeoutMs: minTimeoutMs,
		maxTimeoutMs: maxTimeoutMs,
		log:          logging.NewLogger("sessions"),
	}
}

// Create assigns a fresh session id and clamps the requested timeout into the
// server's bounds. Ids combine the wall clock with a counter so they stay
// unique across restarts.
func (r *SessionRegistry) Create(requestedTimeoutMs uint32, connID string) *Session {
	timeout := requestedTimeoutMs
	if timeout < r.minTimeoutMs {
		timeout = r.minTimeoutMs
	}
	if timeout > r.maxTimeoutMs {
		timeout = r.maxTimeoutMs
	}

	now := time.Now()
	r.mu.Lock()
	r.counter++
	id := uint64(now.UnixMilli())<<16 | uint64(r.counter)
	s := &Session{
		ID:        id,
		TimeoutMs: timeout,
		AuthIDs:   []saber.ID{{Scheme: "world", ID: "anyone"}},
		lastSeen:  now,
		connID:    connID,
	}
	r.sessions[id] = s
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"session": id, "timeout_ms": timeout}).Info("session created")
	return s
}

func (r *SessionRegistry) Get(id uint64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *SessionRegistry) Remove(id uint64) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Expired returns the sessions whose timeout elapsed with no frame heard.
func (r *SessionRegistry) Expired(now time.Time) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.expiredAt(now) {
			out = append(out, s)
		}
	}
	return out
}
