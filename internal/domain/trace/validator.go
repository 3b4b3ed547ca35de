package trace

import (
	"encoding/json"
	"fmt"

	"github.com/dachid/flowscope/internal/shared/types"
)

// DefaultMetadataMaxBytes is the metadata size ceiling applied when no
// explicit limit is configured.
const DefaultMetadataMaxBytes = 65536

// Validator checks structural and semantic validity of one trace.
// Stateless and deterministic: the same trace always yields the same
// result.
type Validator struct {
	metadataMaxBytes int
}

// NewValidator creates a validator with the given metadata size ceiling.
// Non-positive ceilings fall back to the default.
func NewValidator(metadataMaxBytes int) *Validator {
	if metadataMaxBytes <= 0 {
		metadataMaxBytes = DefaultMetadataMaxBytes
	}
	return &Validator{metadataMaxBytes: metadataMaxBytes}
}

// Validate checks one trace. Errors make the trace invalid; warnings
// flag recoverable issues the pipeline compensates for (missing
// timestamp, oversized metadata).
func (v *Validator) Validate(t *types.Trace) types.ValidationResult {
	result := types.ValidationResult{Valid: true}

	if t.ID == "" {
		result.Errors = append(result.Errors, "trace id is required")
	}
	if t.SessionID == "" {
		result.Errors = append(result.Errors, "session id is required")
	}
	if !types.ValidTraceTypes[t.Type] {
		result.Errors = append(result.Errors, fmt.Sprintf("unknown trace type %q", t.Type))
	}
	if t.ParentID != nil && t.ID != "" && *t.ParentID == t.ID {
		result.Errors = append(result.Errors, "trace cannot be its own parent")
	}

	if t.Timestamp.IsZero() {
		result.Warnings = append(result.Warnings, "timestamp missing, defaulting to ingestion time")
	}
	if len(t.Metadata) > 0 {
		if encoded, err := json.Marshal(t.Metadata); err == nil && len(encoded) > v.metadataMaxBytes {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("metadata size %d exceeds ceiling %d", len(encoded), v.metadataMaxBytes))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}
