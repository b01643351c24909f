package player

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hls-preload/internal/metrics"
	"hls-preload/internal/netspeed"
	"hls-preload/internal/preload"
)

// ErrSessionNotFound is returned when no session has the given ID.
var ErrSessionNotFound = errors.New("session not found")

// Summary is the listing entry for one session.
type Summary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeen   time.Time `json:"lastSeen"`
	Source     string    `json:"source,omitempty"`
	Preloading bool      `json:"preloading"`
}

// Manager is the registry of open sessions.
type Manager struct {
	estimator *netspeed.Estimator
	cfg       Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty registry. Sessions estimate network speed with
// estimator and share cfg.
func NewManager(estimator *netspeed.Estimator, cfg Config) *Manager {
	return &Manager{
		estimator: estimator,
		cfg:       cfg.withDefaults(),
		sessions:  make(map[string]*Session),
	}
}

// Create opens a session backed by a RemotePlayer. A speed the client reports
// through Session.ReportSpeed is consulted first, then hints when non-nil,
// then the manager's own connection provider.
func (m *Manager) Create(hints netspeed.ConnectionProvider) *Session {
	reported := netspeed.NewReportedProvider()
	est := m.estimator.WithProvider(netspeed.Chain{reported, hints})
	sim := preload.NewSimulator(preload.WithClock(m.cfg.Clock))
	ctrl := preload.NewController(est, sim)
	p := NewRemotePlayer(m.cfg.Clock.Now)

	s := NewSession(uuid.NewString(), p, ctrl, m.cfg, WithReportedSpeed(reported))

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	log.Info("Session %s created (%d open)", s.ID, n)
	return s
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete closes and removes the session with id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	metrics.ActiveSessions.Set(float64(n))
	log.Info("Session %s deleted (%d open)", id, n)
	return nil
}

// List returns every open session, oldest first.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		sum := Summary{
			ID:         s.ID,
			CreatedAt:  s.CreatedAt,
			LastSeen:   s.LastSeen(),
			Preloading: s.Preloading(),
		}
		if src := s.Metrics().Source; src != nil {
			sum.Source = src.URL
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetStats implements metrics.StatsProvider.
func (m *Manager) GetStats() metrics.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := metrics.Stats{ActiveSessions: len(m.sessions)}
	for _, s := range m.sessions {
		if s.Preloading() {
			stats.PreloadingSessions++
		}
	}
	return stats
}

// Sweep closes sessions not used for longer than maxIdle and returns how many
// were removed.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := m.cfg.Clock.Now().Add(-maxIdle)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		metrics.ActiveSessions.Set(float64(n))
		log.Info("Closed %d idle sessions (%d open)", len(idle), n)
	}
	return len(idle)
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	metrics.ActiveSessions.Set(0)
	if len(sessions) > 0 {
		log.Info("Closed %d sessions", len(sessions))
	}
}
