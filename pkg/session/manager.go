package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Manager tracks the live sessions of a multi-session host (the container
// service of §4.6 Backend 3, or any other caller juggling more than one
// session), and implements the idle-expiry sweep of spec.md's "Session
// expiry" note: sessions idle longer than the threshold are dropped on
// every Sweep call.
type Manager struct {
	mu            sync.Mutex
	sessions      map[string]*Session
	idleThreshold time.Duration
	log           logr.Logger
}

// NewManager builds an empty manager. idleThreshold is the default idle
// interval from spec.md §2 ("Sessions expire after an idle interval,
// default 1 h").
func NewManager(idleThreshold time.Duration, log logr.Logger) *Manager {
	if idleThreshold <= 0 {
		idleThreshold = time.Hour
	}
	return &Manager{sessions: make(map[string]*Session), idleThreshold: idleThreshold, log: log}
}

// Put registers s under its own ID, replacing any previous session with
// the same ID (the caller is responsible for closing the replaced one).
func (m *Manager) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
}

// Get returns the session with the given id, sweeping expired sessions
// first — per spec.md's "on every container-side execute call" note.
func (m *Manager) Get(id string) (*Session, bool) {
	m.Sweep(context.Background())
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops id from the manager without closing it (the caller closes
// it first if that's desired).
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Sweep closes and drops every session idle longer than the manager's
// threshold. The drop is lossy per spec.md: any RPC in flight for a
// dropped session simply starts returning errors from a closed session.
func (m *Manager) Sweep(ctx context.Context) {
	m.mu.Lock()
	expired := make([]*Session, 0)
	now := time.Now()
	for id, s := range m.sessions {
		if s.IdleFor(now) > m.idleThreshold {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if err := s.Close(ctx); err != nil {
			m.log.Error(err, "close expired session", "session_id", s.ID())
		}
	}
}

// Count returns the number of live (non-expired-as-of-last-sweep)
// sessions currently tracked.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes and drops every tracked session, for host shutdown.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
