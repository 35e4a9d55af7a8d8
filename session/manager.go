package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"argus/core"
	"argus/detect"
	"argus/metrics"
	"argus/ruleset"
)

// Close reasons reported in logs and metrics.
const (
	closeReasonClient   = "client"
	closeReasonIdle     = "idle"
	closeReasonShutdown = "shutdown"
)

// Manager owns every open session. Opening a session snapshots the
// currently published ruleset generation; sessions opened before a
// reload keep the generation they started with.
type Manager struct {
	provider    *ruleset.Provider
	logger      *zap.SugaredLogger
	maxSessions int
	idleTTL     time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	now func() time.Time

	reapCancel context.CancelFunc
	reapWg     sync.WaitGroup
}

// Config holds the manager limits.
type Config struct {
	// MaxSessions caps concurrent sessions; 0 means unlimited.
	MaxSessions int
	// IdleTTL closes sessions with no requests for this long; 0
	// disables idle reaping.
	IdleTTL time.Duration
}

// NewManager creates a session manager and, when an idle TTL is
// configured, starts the idle reaper.
func NewManager(provider *ruleset.Provider, cfg Config, logger *zap.SugaredLogger) *Manager {
	m := &Manager{
		provider:    provider,
		logger:      logger,
		maxSessions: cfg.MaxSessions,
		idleTTL:     cfg.IdleTTL,
		sessions:    make(map[string]*Session),
		now:         time.Now,
	}
	if cfg.IdleTTL > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		m.reapCancel = cancel
		m.startReaper(ctx)
	}
	return m
}

// Open creates a new isolated session from the current ruleset
// generation. It fails with core.ErrSessionLimit when the cap is hit.
func (m *Manager) Open() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, core.ErrSessionLimit
	}

	now := m.now()
	s := &Session{
		ID:         uuid.New().String(),
		CreatedAt:  now,
		gen:        m.provider.Current(),
		corr:       detect.NewState(),
		lastActive: now,
	}
	m.sessions[s.ID] = s

	metrics.SessionsOpened.Inc()
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.logger.Debugw("Session opened",
		"session_id", s.ID,
		"generation", s.gen.Version,
		"active_sessions", len(m.sessions))
	return s, nil
}

// Get returns the open session for id, or core.ErrUnknownSession.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, core.ErrUnknownSession
	}
	return s, nil
}

// Close tears down the session. When Close returns, no request on the
// session can succeed anymore.
func (m *Manager) Close(id string) error {
	return m.close(id, closeReasonClient)
}

func (m *Manager) close(id, reason string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return core.ErrUnknownSession
	}
	delete(m.sessions, id)
	remaining := len(m.sessions)
	m.mu.Unlock()

	// Wait for an in-flight request to drain, then mark the session
	// closed so a caller still holding the pointer gets
	// ErrUnknownSession instead of a result.
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	metrics.SessionsClosed.WithLabelValues(reason).Inc()
	metrics.ActiveSessions.Set(float64(remaining))
	m.logger.Debugw("Session closed",
		"session_id", id,
		"reason", reason,
		"active_sessions", remaining)
	return nil
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stop shuts the manager down: the reaper exits and every open
// session is closed.
func (m *Manager) Stop() {
	if m.reapCancel != nil {
		m.reapCancel()
		m.reapWg.Wait()
	}

	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.close(id, closeReasonShutdown)
	}
}

// startReaper runs periodic idle-session cleanup. The interval is half
// the TTL, with a floor so tiny TTLs do not busy-loop.
func (m *Manager) startReaper(ctx context.Context) {
	interval := m.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	m.reapWg.Add(1)
	go func() {
		defer m.reapWg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.reapIdle()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// reapIdle closes sessions whose last request is older than the TTL.
func (m *Manager) reapIdle() {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		if err := m.close(id, closeReasonIdle); err == nil {
			m.logger.Infow("Idle session expired", "session_id", id, "idle_ttl", m.idleTTL)
		}
	}
}
