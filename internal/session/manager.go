package session

import (
	"sort"
	"sync"
	"time"

	"github.com/hubenschmidt/whisper-gateway/internal/metrics"
)

// Manager owns the live sessions. Its lock covers map operations only.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager whose sessions use cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg.withDefaults(), sessions: make(map[string]*Session)}
}

// Config returns the effective session configuration.
func (m *Manager) Config() Config { return m.cfg }

// GetOrCreate returns the session for id, creating it when absent.
// created reports whether a new session was made.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, false
	}
	s = New(id, m.cfg)
	m.sessions[id] = s
	metrics.SessionsActive.Inc()
	return s, true
}

// Get returns the session for id, if any.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove discards the session without flushing. It reports whether one existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	metrics.SessionsActive.Dec()
	return true
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Stat describes one live session.
type Stat struct {
	ID              string    `json:"id"`
	BufferedSeconds float64   `json:"buffered_seconds"`
	Flushes         int       `json:"flushes"`
	Language        string    `json:"language,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Stats snapshots live sessions, oldest first.
func (m *Manager) Stats() []Stat {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]Stat, 0, len(list))
	for _, s := range list {
		out = append(out, Stat{
			ID:              s.ID(),
			BufferedSeconds: s.Duration(),
			Flushes:         s.Flushes(),
			Language:        s.Language(),
			CreatedAt:       s.CreatedAt(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
