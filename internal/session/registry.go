package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/metrics"
	"go.uber.org/zap"
)

// Registry owns the live sessions. It is created by the server and shared by
// its connections.
type Registry struct {
	historySize   int
	idleTTL       time.Duration
	sweepInterval time.Duration
	logger        *zap.Logger
	metrics       *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets a logger for session lifecycle events.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *config.SessionConfig, opts ...RegistryOption) *Registry {
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = 10
	}
	r := &Registry{
		historySize:   historySize,
		idleTTL:       cfg.IdleTTL,
		sweepInterval: cfg.SweepInterval,
		logger:        zap.NewNop(),
		sessions:      make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates and registers a session that answers turns with asker.
func (r *Registry) Open(asker Asker) *Session {
	s := newSession(uuid.NewString(), asker, r.historySize, time.Now())
	s.onInterrupt = r.metrics.TurnInterrupted
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	r.metrics.SessionOpened()
	r.logger.Debug("session opened", zap.String("session_id", s.id))
	return s
}

// Get returns the session with id, if it is still registered.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close closes and removes the session with id. Closing an unknown id is a no-op.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok && s.close() {
		r.metrics.SessionClosed()
		r.logger.Debug("session closed", zap.String("session_id", id))
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes every session idle since before now minus the idle TTL and
// returns how many were evicted. A zero TTL disables eviction.
func (r *Registry) Sweep(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idleTTL)
	r.mu.Lock()
	var idle []string
	for id, s := range r.sessions {
		if s.idleSince(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()
	for _, id := range idle {
		r.Close(id)
	}
	if len(idle) > 0 {
		r.logger.Info("evicted idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps idle sessions every sweep interval until ctx is cancelled,
// then closes all remaining sessions.
func (r *Registry) Run(ctx context.Context) {
	interval := r.sweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// CloseAll closes every registered session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Close(id)
	}
}
