// Package types defines the shared data model for the trace engine.
//
// Core entities:
//   - Trace: one observed event, normalized across frameworks
//   - Session: a debugging scope grouping traces and live observers
//   - ConnectedClient: ephemeral record of one live connection
//   - CorrelationGraph: derived parent/child/sibling structure
//
// Result types (ValidationResult, SubmitResult, BatchResult) carry
// expected failures as data rather than errors, so submission surfaces
// never throw for structurally invalid input.
package types
