package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session has ended")
)

// Session is the metadata of one chat conversation, typically one browser tab.
type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Status         Status    `json:"status"`
	TurnCount      int       `json:"turn_count"`
	ClearCount     int       `json:"clear_count"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type entry struct {
	meta    Session
	history *History
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*entry
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*entry),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(userID string) *Session {
	now := time.Now().UTC()
	e := &entry{
		meta: Session{
			ID:             uuid.NewString(),
			UserID:         userID,
			Status:         StatusActive,
			StartedAt:      now,
			LastActivityAt: now,
		},
		history: NewHistory(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[e.meta.ID] = e
	return clone(&e.meta)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s := clone(&e.meta)
	s.TurnCount = e.history.Len()
	return s, nil
}

// History returns the live turn log of a session. Ended sessions keep their
// history readable until they are evicted.
func (m *Manager) History(sessionID string) (*History, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return e.history, nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.meta.LastActivityAt = time.Now().UTC()
	return nil
}

// MarkCleared records an explicit transcript reset.
func (m *Manager) MarkCleared(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.meta.ClearCount++
	e.meta.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	e.meta.Status = StatusEnded
	e.meta.LastActivityAt = time.Now().UTC()
	s := clone(&e.meta)
	s.TurnCount = e.history.Len()
	return s, nil
}

// RunJanitor expires idle sessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.expireInactive()
		}
	}
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.sessions {
		if e.meta.Status == StatusActive {
			count++
		}
	}
	return count
}

// expireInactive ends idle sessions and evicts sessions that have been ended
// for longer than the inactivity timeout.
func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, e := range m.sessions {
		idle := now.Sub(e.meta.LastActivityAt)
		if e.meta.Status != StatusActive {
			if idle >= m.inactivityTimeout {
				delete(m.sessions, id)
			}
			continue
		}
		if idle < m.inactivityTimeout {
			continue
		}
		e.meta.Status = StatusEnded
		e.meta.LastActivityAt = now
		expired = append(expired, clone(&e.meta))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
