// Package resilience provides a three-state circuit breaker
// (Closed, Open, Half-Open) guarding the storage write path: a broken
// persistence backend degrades ingestion to fast persist-failure
// results instead of stalling every submission on the backend's
// timeout. Zero-value Settings take defaults sized for frequent,
// local, low-latency writes.
//
//	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
//
// Usage:
//
//	breaker := resilience.New(resilience.Settings{})
//	err := breaker.Execute(func() error {
//		return store.SaveTrace(ctx, t)
//	})
package resilience
