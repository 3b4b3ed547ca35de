package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trace engine
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Ingestion metrics
	TracesSubmitted *prometheus.CounterVec // outcome: accepted, rejected, persist_failed
	BatchesTotal    prometheus.Counter
	IngestDuration  prometheus.Histogram

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec // direction, type
	Broadcasts    *prometheus.CounterVec // event
	RoomsActive   prometheus.Gauge

	// System metrics
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowscope_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowscope_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowscope_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowscope_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		TracesSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowscope_traces_submitted_total",
				Help: "Total trace submissions by outcome",
			},
			[]string{"outcome"},
		),
		BatchesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "flowscope_batches_total",
				Help: "Total batch submissions",
			},
		),
		IngestDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flowscope_ingest_duration_seconds",
				Help:    "Single trace ingestion duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowscope_sessions_active",
				Help: "Number of active debugging sessions",
			},
		),
		SessionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "flowscope_sessions_total",
				Help: "Total sessions created",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowscope_ws_connections",
				Help: "Number of live WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowscope_ws_messages_total",
				Help: "WebSocket messages by direction and type",
			},
			[]string{"direction", "type"},
		),
		Broadcasts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowscope_broadcasts_total",
				Help: "Room-scoped broadcast events by type",
			},
			[]string{"event"},
		),
		RoomsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowscope_rooms_active",
				Help: "Number of session rooms with at least one member",
			},
		),
	}
}

// RecordHTTPRequest records metrics for an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordSubmission records a single trace submission outcome
func (m *Metrics) RecordSubmission(outcome string, duration time.Duration) {
	m.TracesSubmitted.WithLabelValues(outcome).Inc()
	m.IngestDuration.Observe(duration.Seconds())
}

// RecordWSMessage records one WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordBroadcast records one room-scoped broadcast
func (m *Metrics) RecordBroadcast(event string) {
	m.Broadcasts.WithLabelValues(event).Inc()
}

// Uptime returns time since the collector was created
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// Submission outcomes
const (
	OutcomeAccepted      = "accepted"
	OutcomeRejected      = "rejected"
	OutcomePersistFailed = "persist_failed"
)
