package session

import (
	"sync"
	"time"

	"github.com/dachid/flowscope/internal/shared/types"
)

// Registry is the process-wide authoritative table of active sessions
// and their connected-client membership. Sessions are created lazily and
// never transition out of active except via explicit request.
//
// The session map uses sync.Map for lock-free reads; each session entry
// carries its own mutex, so membership churn on one session never
// contends with another.
type Registry struct {
	sessions sync.Map // sessionID -> *entry
	conns    sync.Map // connectionID -> sessionID
}

type entry struct {
	mu      sync.RWMutex
	session types.Session
	members map[string]types.ConnectedClient
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// EnsureSession returns the session with the given ID, lazily creating
// an active one. Idempotent: concurrent callers observe one session.
// The second return reports whether the session was created by this call.
func (r *Registry) EnsureSession(sessionID string) (types.Session, bool) {
	if v, ok := r.sessions.Load(sessionID); ok {
		return v.(*entry).snapshot(), false
	}

	e := &entry{
		session: types.Session{
			ID:        sessionID,
			StartTime: time.Now(),
			Status:    types.SessionActive,
			Metadata:  map[string]interface{}{},
		},
		members: make(map[string]types.ConnectedClient),
	}
	actual, loaded := r.sessions.LoadOrStore(sessionID, e)
	return actual.(*entry).snapshot(), !loaded
}

// Restore seeds the registry with a session recovered from persistence,
// so counters and metadata survive process restarts. A concurrently
// created entry wins: Restore never overwrites live state.
func (r *Registry) Restore(sess types.Session) types.Session {
	e := &entry{
		session: sess.Clone(),
		members: make(map[string]types.ConnectedClient),
	}
	if e.session.Metadata == nil {
		e.session.Metadata = map[string]interface{}{}
	}
	actual, _ := r.sessions.LoadOrStore(sess.ID, e)
	return actual.(*entry).snapshot()
}

// Get returns a session snapshot if it exists
func (r *Registry) Get(sessionID string) (types.Session, bool) {
	v, ok := r.sessions.Load(sessionID)
	if !ok {
		return types.Session{}, false
	}
	return v.(*entry).snapshot(), true
}

// MergeMetadata merges session-level metadata (and an optional display
// name) into an existing or lazily created session.
func (r *Registry) MergeMetadata(sessionID, name string, metadata map[string]interface{}) types.Session {
	r.EnsureSession(sessionID)
	v, _ := r.sessions.Load(sessionID)
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if name != "" {
		e.session.Name = name
	}
	for k, val := range metadata {
		e.session.Metadata[k] = val
	}
	return e.session.Clone()
}

// RecordTrace increments a session's aggregate counters for one
// processed trace. Creates the session if needed.
func (r *Registry) RecordTrace(sessionID string, status types.TraceStatus) types.Session {
	r.EnsureSession(sessionID)
	v, _ := r.sessions.Load(sessionID)
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.TotalTraces++
	switch status {
	case types.StatusCompleted:
		e.session.SuccessCount++
	case types.StatusFailed, types.StatusError:
		e.session.ErrorCount++
	}
	return e.session.Clone()
}

// SetStatus applies an explicit lifecycle transition. Completing or
// archiving stamps the end time. Returns false for unknown sessions.
func (r *Registry) SetStatus(sessionID string, status types.SessionStatus) (types.Session, bool) {
	v, ok := r.sessions.Load(sessionID)
	if !ok {
		return types.Session{}, false
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Status = status
	if status != types.SessionActive && e.session.EndTime == nil {
		now := time.Now()
		e.session.EndTime = &now
	}
	return e.session.Clone(), true
}

// Join adds a connection to a session's membership. A connection belongs
// to at most one session: joining a new session implicitly leaves the
// previous one.
func (r *Registry) Join(connectionID, sessionID, userID string) types.Session {
	r.Leave(connectionID)

	sess, _ := r.EnsureSession(sessionID)
	v, _ := r.sessions.Load(sessionID)
	e := v.(*entry)

	e.mu.Lock()
	e.members[connectionID] = types.ConnectedClient{
		ConnectionID: connectionID,
		ConnectedAt:  time.Now(),
		SessionID:    sessionID,
		UserID:       userID,
	}
	e.mu.Unlock()

	r.conns.Store(connectionID, sessionID)
	return sess
}

// Leave removes a connection from its current session. Idempotent:
// no-op when the connection is not a member of anything.
func (r *Registry) Leave(connectionID string) {
	v, ok := r.conns.LoadAndDelete(connectionID)
	if !ok {
		return
	}
	sessionID := v.(string)

	ev, ok := r.sessions.Load(sessionID)
	if !ok {
		return
	}
	e := ev.(*entry)

	e.mu.Lock()
	delete(e.members, connectionID)
	e.mu.Unlock()
}

// RemoveConnection cleans up a disconnecting connection regardless of
// which state it was in.
func (r *Registry) RemoveConnection(connectionID string) {
	r.Leave(connectionID)
}

// MembersOf returns the current membership of a session. Unknown
// sessions have no members.
func (r *Registry) MembersOf(sessionID string) []types.ConnectedClient {
	v, ok := r.sessions.Load(sessionID)
	if !ok {
		return nil
	}
	e := v.(*entry)

	e.mu.RLock()
	defer e.mu.RUnlock()
	members := make([]types.ConnectedClient, 0, len(e.members))
	for _, m := range e.members {
		members = append(members, m)
	}
	return members
}

// SessionOf returns the session a connection currently observes
func (r *Registry) SessionOf(connectionID string) (string, bool) {
	v, ok := r.conns.Load(connectionID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Stats summarizes the registry for health reporting
type Stats struct {
	TotalSessions  int `json:"total_sessions"`
	ActiveSessions int `json:"active_sessions"`
	OccupiedRooms  int `json:"occupied_rooms"`
	Connections    int `json:"connections"`
}

// Stats returns current registry statistics
func (r *Registry) Stats() Stats {
	var stats Stats
	r.sessions.Range(func(_, v interface{}) bool {
		e := v.(*entry)
		e.mu.RLock()
		stats.TotalSessions++
		if e.session.Status == types.SessionActive {
			stats.ActiveSessions++
		}
		if len(e.members) > 0 {
			stats.OccupiedRooms++
		}
		e.mu.RUnlock()
		return true
	})
	r.conns.Range(func(_, _ interface{}) bool {
		stats.Connections++
		return true
	})
	return stats
}

func (e *entry) snapshot() types.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session.Clone()
}
