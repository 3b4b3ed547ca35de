// Package storage implements the persistence collaborator for the trace
// engine: a keyed store for traces and sessions with two backends, an
// in-memory store for tests and ephemeral runs, and SQLite for durability.
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/dachid/flowscope/internal/shared/types"
)

// ErrNotFound is returned when a requested session does not exist.
// Unknown trace IDs are never an error: lookups simply omit them.
var ErrNotFound = errors.New("not found")

// CounterDelta adjusts a persisted session's aggregate counters
type CounterDelta struct {
	Traces    int
	Errors    int
	Successes int
}

// Store is the persistence collaborator interface. SaveTrace is
// idempotent on trace ID. LoadSessionTraces preserves first-write order
// so catch-up replay matches submission order.
type Store interface {
	SaveTrace(ctx context.Context, t *types.Trace) error
	LoadSessionTraces(ctx context.Context, sessionID string) ([]types.Trace, error)
	LoadTracesByIDs(ctx context.Context, ids []string) ([]types.Trace, error)
	SaveSession(ctx context.Context, s *types.Session) error
	LoadSession(ctx context.Context, id string) (*types.Session, error)
	UpdateSessionCounters(ctx context.Context, id string, delta CounterDelta) error
	Close() error
}

// Memory is an in-memory Store
type Memory struct {
	mu       sync.RWMutex
	traces   map[string]types.Trace
	order    map[string][]string // sessionID -> trace IDs in first-write order
	sessions map[string]types.Session
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		traces:   make(map[string]types.Trace),
		order:    make(map[string][]string),
		sessions: make(map[string]types.Session),
	}
}

// SaveTrace stores a trace, replacing any previous trace with the same ID
func (m *Memory) SaveTrace(_ context.Context, t *types.Trace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.traces[t.ID]; !exists {
		m.order[t.SessionID] = append(m.order[t.SessionID], t.ID)
	}
	m.traces[t.ID] = *t
	return nil
}

// LoadSessionTraces returns a session's traces in first-write order.
// Unknown sessions yield an empty slice.
func (m *Memory) LoadSessionTraces(_ context.Context, sessionID string) ([]types.Trace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.order[sessionID]
	traces := make([]types.Trace, 0, len(ids))
	for _, id := range ids {
		if t, ok := m.traces[id]; ok {
			traces = append(traces, t)
		}
	}
	return traces, nil
}

// LoadTracesByIDs returns the named traces, silently skipping unknown IDs
func (m *Memory) LoadTracesByIDs(_ context.Context, ids []string) ([]types.Trace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	traces := make([]types.Trace, 0, len(ids))
	for _, id := range ids {
		if t, ok := m.traces[id]; ok {
			traces = append(traces, t)
		}
	}
	return traces, nil
}

// SaveSession stores session metadata, replacing any previous record
func (m *Memory) SaveSession(_ context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = *s
	return nil
}

// LoadSession returns a session or ErrNotFound
func (m *Memory) LoadSession(_ context.Context, id string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// UpdateSessionCounters adjusts a session's aggregate counters
func (m *Memory) UpdateSessionCounters(_ context.Context, id string, delta CounterDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.TotalTraces += delta.Traces
	s.ErrorCount += delta.Errors
	s.SuccessCount += delta.Successes
	m.sessions[id] = s
	return nil
}

// Close is a no-op for the in-memory store
func (m *Memory) Close() error {
	return nil
}
