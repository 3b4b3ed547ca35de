package types

import "time"

// SessionStatus represents session lifecycle states
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionArchived  SessionStatus = "archived"
)

// Session is a debugging scope grouping traces and live observers.
// Lifecycle transitions to completed/archived happen only via explicit
// request, never implicitly from trace flow.
type Session struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name,omitempty"`
	StartTime    time.Time              `json:"start_time"`
	EndTime      *time.Time             `json:"end_time,omitempty"`
	Status       SessionStatus          `json:"status"`
	TotalTraces  int                    `json:"total_traces"`
	ErrorCount   int                    `json:"error_count"`
	SuccessCount int                    `json:"success_count"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers can hold session snapshots
// without racing registry updates.
func (s Session) Clone() Session {
	c := s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// ConnectedClient is the ephemeral record of one live connection. Owned
// exclusively by the broadcast gateway, never persisted.
type ConnectedClient struct {
	ConnectionID string    `json:"connection_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	SessionID    string    `json:"session_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
}

// SessionSubmission is a whole-session payload: session-level metadata
// plus the traces to ingest under it.
type SessionSubmission struct {
	SessionID string                 `json:"session_id"`
	Name      string                 `json:"name,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Traces    []Trace                `json:"traces"`
}
