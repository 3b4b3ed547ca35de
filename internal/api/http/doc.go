// Package http exposes the engine's REST surface: trace submission
// (single, batch, whole-session), correlation queries, session
// retrieval and lifecycle transitions, plus status and health probes.
//
// Submission outcomes travel as structured result bodies. A validation
// reject answers 422 with the validation detail; a persistence failure
// answers 500 with the enriched trace still attached, because the
// broadcast already happened.
package http
