package types

import "time"

// TraceType classifies what a trace records
type TraceType string

const (
	TypePrompt       TraceType = "prompt"
	TypeResponse     TraceType = "response"
	TypeFunctionCall TraceType = "function_call"
	TypeToolUse      TraceType = "tool_use"
	TypeAgentStep    TraceType = "agent_step"
	TypeError        TraceType = "error"
	TypeWarning      TraceType = "warning"
	TypeChainStart   TraceType = "chain_start"
	TypeChainEnd     TraceType = "chain_end"
)

// ValidTraceTypes is the closed set of accepted trace types
var ValidTraceTypes = map[TraceType]bool{
	TypePrompt:       true,
	TypeResponse:     true,
	TypeFunctionCall: true,
	TypeToolUse:      true,
	TypeAgentStep:    true,
	TypeError:        true,
	TypeWarning:      true,
	TypeChainStart:   true,
	TypeChainEnd:     true,
}

// TraceStatus represents trace execution outcome
type TraceStatus string

const (
	StatusPending   TraceStatus = "pending"
	StatusCompleted TraceStatus = "completed"
	StatusFailed    TraceStatus = "failed"
	StatusCancelled TraceStatus = "cancelled"
	StatusError     TraceStatus = "error"
)

// Metadata keys written by the detector during enrichment
const (
	MetaLanguage   = "language"
	MetaFramework  = "framework"
	MetaConfidence = "detection_confidence"
)

// Trace is one observed event from an instrumented LLM application,
// normalized across producing languages and frameworks.
type Trace struct {
	ID         string                 `json:"id"`
	SessionID  string                 `json:"session_id"`
	ParentID   *string                `json:"parent_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Type       TraceType              `json:"type"`
	Status     TraceStatus            `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	DurationMs *float64               `json:"duration_ms,omitempty"`
}

// Clone returns a copy whose metadata map can be enriched without
// mutating the caller's trace. Payload data is shared: the engine treats
// it as opaque and never writes into it.
func (t *Trace) Clone() *Trace {
	c := *t
	if t.ParentID != nil {
		p := *t.ParentID
		c.ParentID = &p
	}
	if t.DurationMs != nil {
		d := *t.DurationMs
		c.DurationMs = &d
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// MetaString reads a string metadata field without unchecked casts
func (t *Trace) MetaString(key string) (string, bool) {
	if t.Metadata == nil {
		return "", false
	}
	s, ok := t.Metadata[key].(string)
	return s, ok && s != ""
}

// DataHas reports whether the payload carries the named top-level key
func (t *Trace) DataHas(key string) bool {
	if t.Data == nil {
		return false
	}
	_, ok := t.Data[key]
	return ok
}

// TraceBatch groups traces for high-throughput submission. Only its
// effects (the processed traces) are persisted, never the batch itself.
type TraceBatch struct {
	BatchID string  `json:"batch_id"`
	Traces  []Trace `json:"traces"`
}

// Detection is the language/framework inference result
type Detection struct {
	Language   string  `json:"language"`
	Framework  string  `json:"framework"`
	Confidence float64 `json:"confidence"`
}

// CorrelationGraph is the derived parent/child/sibling structure linking
// traces across languages and frameworks. Computed on demand, never stored.
type CorrelationGraph struct {
	Nodes      []string            `json:"nodes"`
	Edges      map[string][]string `json:"edges"`
	Languages  []string            `json:"languages"`
	Frameworks []string            `json:"frameworks"`
}
