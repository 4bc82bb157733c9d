package viewer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/lox/hazardmap/internal/metrics"
	"github.com/lox/hazardmap/internal/models"
)

// PreferenceStore persists per-session view settings.
type PreferenceStore interface {
	GetPreferences(sessionID string) (*models.Preferences, error)
	UpsertPreferences(p models.Preferences) error
}

type ManagerConfig struct {
	Backend Backend
	Options Options
	Store   PreferenceStore // optional
	Clock   clockwork.Clock
	TTL     time.Duration
}

// Manager owns the live sessions, keyed by the session cookie.
type Manager struct {
	ctx   context.Context
	cfg   ManagerConfig
	clock clockwork.Clock

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions fetch under ctx.
func NewManager(ctx context.Context, cfg ManagerConfig) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Manager{
		ctx:      ctx,
		cfg:      cfg,
		clock:    cfg.Clock,
		sessions: make(map[string]*Session),
	}
}

// Get returns the live session for id, if any.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.Touch(m.clock.Now())
	}
	return s, ok
}

// GetOrCreate returns the session for id, creating one when it is unknown.
// A well-formed id that was evicted keeps its identity and saved preferences.
func (m *Manager) GetOrCreate(id string) (*Session, bool) {
	if s, ok := m.Get(id); ok {
		return s, false
	}
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	s := NewSession(m.ctx, id, m.cfg.Backend, m.cfg.Options, m.clock.Now())
	if m.cfg.Store != nil {
		prefs, err := m.cfg.Store.GetPreferences(id)
		if err != nil {
			log.Printf("session %s: load preferences: %v", shortID(id), err)
		} else if prefs != nil {
			s.Restore(*prefs)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		return existing, false
	}
	m.sessions[id] = s
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return s, true
}

// Save persists the session's preferences.
func (m *Manager) Save(s *Session) {
	if m.cfg.Store == nil {
		return
	}
	if err := m.cfg.Store.UpsertPreferences(s.Preferences(m.clock.Now())); err != nil {
		log.Printf("session %s: save preferences: %v", shortID(s.ID), err)
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the TTL.
func (m *Manager) Sweep() int {
	cutoff := m.clock.Now().Add(-m.cfg.TTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return evicted
}

func (m *Manager) TTL() time.Duration {
	return m.cfg.TTL
}
