// Package server assembles the trace engine: it opens the configured
// store, builds the session registry, ingestion pipeline, correlator
// and broadcast gateway, and mounts the HTTP and WebSocket surface on
// a single gin router with graceful shutdown.
package server
