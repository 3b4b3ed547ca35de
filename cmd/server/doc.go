// Package main is the entry point for the FlowScope trace engine.
//
// The engine ingests LLM execution traces from adapters in any
// language, validates and enriches them, persists them per session,
// and fans them out live to WebSocket observers in session rooms.
//
// The server provides:
//   - REST API for trace submission, correlation and session queries
//   - WebSocket streaming with session rooms and catch-up replay
//   - SQLite or in-memory persistence
//   - Prometheus metrics and rate limiting
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional YAML file via -config
//   - CLI flags override both
//
// Usage:
//
//	# Environment-driven
//	./server -port 8000
//
//	# File-driven
//	./server -config flowscope.yaml
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown
package main
