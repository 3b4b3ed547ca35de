/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the trace
engine, tracking HTTP requests, trace ingestion, session lifecycle, and
WebSocket fan-out.

# Features

- HTTP request metrics (latency, throughput, size)
- Trace submission metrics by outcome (accepted, rejected, persist_failed)
- Session lifecycle metrics
- WebSocket connection, message and broadcast metrics
- Room occupancy tracking

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record custom metrics
	metrics.RecordSubmission(monitoring.OutcomeAccepted, elapsed)
	metrics.WSConnections.Inc()

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
