package storage

import (
	"context"

	"github.com/dachid/flowscope/internal/infrastructure/resilience"
	"github.com/dachid/flowscope/internal/shared/types"
)

// Resilient wraps a Store with a circuit breaker on the write path. A
// broken backend (full disk, corrupted file) trips the breaker so
// ingestion degrades to fast persist-failure results instead of paying
// the backend's timeout on every trace. Reads pass through untouched:
// the catch-up protocol should keep serving whatever the backend can
// still answer.
type Resilient struct {
	inner   Store
	breaker *resilience.Breaker
}

// NewResilient wraps a store with write-path protection
func NewResilient(inner Store) *Resilient {
	return &Resilient{
		inner:   inner,
		breaker: resilience.New(resilience.Settings{}),
	}
}

func (r *Resilient) SaveTrace(ctx context.Context, t *types.Trace) error {
	return r.breaker.Execute(func() error { return r.inner.SaveTrace(ctx, t) })
}

func (r *Resilient) SaveSession(ctx context.Context, s *types.Session) error {
	return r.breaker.Execute(func() error { return r.inner.SaveSession(ctx, s) })
}

func (r *Resilient) UpdateSessionCounters(ctx context.Context, sessionID string, delta CounterDelta) error {
	return r.breaker.Execute(func() error { return r.inner.UpdateSessionCounters(ctx, sessionID, delta) })
}

func (r *Resilient) LoadSessionTraces(ctx context.Context, sessionID string) ([]types.Trace, error) {
	return r.inner.LoadSessionTraces(ctx, sessionID)
}

func (r *Resilient) LoadTracesByIDs(ctx context.Context, ids []string) ([]types.Trace, error) {
	return r.inner.LoadTracesByIDs(ctx, ids)
}

func (r *Resilient) LoadSession(ctx context.Context, id string) (*types.Session, error) {
	return r.inner.LoadSession(ctx, id)
}

func (r *Resilient) Close() error {
	return r.inner.Close()
}
