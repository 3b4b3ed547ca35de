package types

// ValidationResult reports structural validity of one trace
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// SubmitResult is the structured outcome of a single trace submission.
// Validation rejection, persistence failure, and full success are
// distinguishable: a validation reject has Validation.Valid=false; a
// persistence failure has Validation.Valid=true with Error set and
// Persisted=false (the trace was still broadcast, just not durably
// recorded).
type SubmitResult struct {
	Success    bool             `json:"success"`
	Validation ValidationResult `json:"validation"`
	Trace      *Trace           `json:"processed_trace,omitempty"`
	Persisted  bool             `json:"persisted"`
	Error      string           `json:"error,omitempty"`
}

// TraceResult is the per-trace entry in a batch or session result
type TraceResult struct {
	TraceID string `json:"trace_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BatchResult summarizes a batch submission. The batch is successful
// overall when at least one trace processed.
type BatchResult struct {
	Success        bool          `json:"success"`
	BatchID        string        `json:"batch_id"`
	ProcessedCount int           `json:"processed_count"`
	FailedCount    int           `json:"failed_count"`
	Results        []TraceResult `json:"results"`
}

// SessionResult summarizes a whole-session submission
type SessionResult struct {
	Success        bool          `json:"success"`
	SessionID      string        `json:"session_id"`
	ProcessedCount int           `json:"processed_count"`
	FailedCount    int           `json:"failed_count"`
	Results        []TraceResult `json:"results"`
}
