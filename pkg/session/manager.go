// Package session serializes the operations of one engine session. A
// session runs at most one operation of each kind at a time; a second
// request of the same kind is rejected outright rather than queued, so a
// double-clicked submit or a re-entrant load cannot stack up.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
)

// Operation kinds guarded by the manager.
const (
	OpFetch    = "fetch"
	OpUserData = "user_data"
	OpSubmit   = "submit"
)

// ErrRequestInFlight is returned when an operation of the same kind is
// already running for the session.
var ErrRequestInFlight = errors.New("request already in flight")

// Manager tracks the in-flight operations of one session. It also carries a
// generation counter: the engine advances it when the session is reset, and
// long operations compare generations on completion to discard results that
// belong to a superseded session.
type Manager struct {
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
	gen      int
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger configures a logger for rejected requests.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a session Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:   logging.NewNop(),
		inflight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Do runs fn if no operation of the same kind is in flight, otherwise it
// returns ErrRequestInFlight without queueing.
func (m *Manager) Do(ctx context.Context, kind string, fn func(context.Context) error) error {
	m.mu.Lock()
	if m.inflight[kind] {
		m.mu.Unlock()
		m.logger.Warn("request rejected, already in flight", "kind", kind)
		return fmt.Errorf("%s: %w", kind, ErrRequestInFlight)
	}
	m.inflight[kind] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inflight, kind)
		m.mu.Unlock()
	}()
	return fn(ctx)
}

// Generation returns the current session generation.
func (m *Manager) Generation() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// Advance invalidates results of operations started before the call. Used
// when the session's trees or user data are replaced wholesale.
func (m *Manager) Advance() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	return m.gen
}

// Stale reports whether gen belongs to a superseded session.
func (m *Manager) Stale(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.gen
}
