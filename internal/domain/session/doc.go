// Package session implements the session registry: the process-wide
// table of active debugging sessions and their connected-client
// membership.
//
// Responsibilities:
//   - Lazy, idempotent session creation (EnsureSession)
//   - Room membership (Join/Leave/MembersOf/RemoveConnection)
//   - Aggregate trace counters per session
//   - Explicit lifecycle transitions (never implicit from trace flow)
//
// Concurrency: the registry is safe for arbitrarily many simultaneous
// connections. Membership and counters are guarded per session, so churn
// in one room does not contend with another.
//
// Example Usage:
//
//	registry := session.NewRegistry()
//	registry.Join(connID, "sess-1", "")
//	for _, m := range registry.MembersOf("sess-1") {
//		// fan out to m.ConnectionID
//	}
package session
