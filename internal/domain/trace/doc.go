// Package trace implements the ingestion core: validation, language and
// framework detection, the submission pipeline, and on-demand
// correlation graphs.
//
// Components:
//   - Validator: pure structural/semantic checks on one trace
//   - Detector: heuristic language/framework inference, never fails
//   - Pipeline: validate -> enrich -> register -> persist -> broadcast,
//     with single, batch, and whole-session entry points
//   - Correlator: derived parent/child/sibling graphs across frameworks
//
// Expected failures are data, not errors: validation rejects and
// persistence failures come back inside SubmitResult so callers can tell
// "rejected before processing" from "processed but not durable" from
// full success.
package trace
