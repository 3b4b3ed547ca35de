package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dachid/flowscope/internal/domain/session"
	"github.com/dachid/flowscope/internal/domain/trace"
	"github.com/dachid/flowscope/internal/infrastructure/logging"
	"github.com/dachid/flowscope/internal/infrastructure/monitoring"
	"github.com/dachid/flowscope/internal/shared/types"
	"github.com/dachid/flowscope/internal/storage"
)

// ProtocolVersion is reported to clients for capability negotiation
const ProtocolVersion = "1.0.0"

// ConnectionCounter exposes the gateway's live connection count for the
// status endpoint.
type ConnectionCounter interface {
	ConnectionCount() int
}

// Handlers wires the ingestion pipeline, correlator, registry and store
// to the HTTP surface.
type Handlers struct {
	pipeline   *trace.Pipeline
	correlator *trace.Correlator
	registry   *session.Registry
	store      storage.Store
	gateway    ConnectionCounter
	logger     *logging.Logger
	metrics    *monitoring.Metrics

	// engineID distinguishes engine instances behind a load balancer
	engineID string
}

// NewHandlers creates HTTP handlers
func NewHandlers(
	pipeline *trace.Pipeline,
	correlator *trace.Correlator,
	registry *session.Registry,
	store storage.Store,
	gateway ConnectionCounter,
	logger *logging.Logger,
) *Handlers {
	return &Handlers{
		pipeline:   pipeline,
		correlator: correlator,
		registry:   registry,
		store:      store,
		gateway:    gateway,
		logger:     logger,
		engineID:   uuid.NewString(),
	}
}

// WithMetrics adds metrics tracking to the handlers
func (h *Handlers) WithMetrics(metrics *monitoring.Metrics) *Handlers {
	h.metrics = metrics
	return h
}

// SubmitTrace handles POST /traces. Validation rejects and persistence
// failures both come back as structured results, not transport errors.
func (h *Handlers) SubmitTrace(c *gin.Context) {
	var t types.Trace
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trace payload: " + err.Error()})
		return
	}

	result := h.pipeline.SubmitTrace(c.Request.Context(), &t)
	c.JSON(statusFor(result), result)
}

// statusFor maps a submit result to a transport status: validation
// rejects are the caller's fault, persistence failures are ours.
func statusFor(r types.SubmitResult) int {
	switch {
	case r.Success:
		return http.StatusOK
	case !r.Validation.Valid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// SubmitBatch handles POST /traces/batch. Per-trace independence: the
// response enumerates every outcome and the batch succeeds when at
// least one trace processed.
func (h *Handlers) SubmitBatch(c *gin.Context) {
	var batch types.TraceBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch payload: " + err.Error()})
		return
	}

	result := h.pipeline.SubmitBatch(c.Request.Context(), &batch)
	status := http.StatusOK
	if !result.Success && len(batch.Traces) > 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

// SubmitSession handles POST /sessions/submit: a whole-session payload
// with metadata and traces in one request.
func (h *Handlers) SubmitSession(c *gin.Context) {
	var sub types.SessionSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session payload: " + err.Error()})
		return
	}
	if sub.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	result := h.pipeline.SubmitSession(c.Request.Context(), &sub)
	status := http.StatusOK
	if !result.Success && len(sub.Traces) > 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

type correlateRequest struct {
	TraceIDs []string `json:"trace_ids"`
}

// Correlate handles POST /correlate: builds the cross-language
// correlation graph for the requested trace IDs.
func (h *Handlers) Correlate(c *gin.Context) {
	var req correlateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid correlate payload: " + err.Error()})
		return
	}

	graph, err := h.correlator.Correlate(c.Request.Context(), req.TraceIDs)
	if err != nil {
		h.logger.Error("correlation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "correlation failed"})
		return
	}
	c.JSON(http.StatusOK, graph)
}

// GetSession handles GET /sessions/:id. Unknown sessions yield an empty
// result, not an error: clients poll for sessions that may not have
// produced traffic yet.
func (h *Handlers) GetSession(c *gin.Context) {
	sessionID := c.Param("id")

	sess, ok := h.registry.Get(sessionID)
	if !ok {
		stored, err := h.store.LoadSession(c.Request.Context(), sessionID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			h.logger.Error("failed to load session", zap.String("session_id", sessionID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
		if stored == nil {
			c.JSON(http.StatusOK, gin.H{"session": nil, "traces": []types.Trace{}})
			return
		}
		sess = *stored
	}

	traces, err := h.store.LoadSessionTraces(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load session traces", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session traces"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sess, "traces": traces})
}

// GetSessionTraces handles GET /sessions/:id/traces: the persisted
// trace list in first-write order.
func (h *Handlers) GetSessionTraces(c *gin.Context) {
	sessionID := c.Param("id")

	traces, err := h.store.LoadSessionTraces(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load session traces", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session traces"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "traces": traces, "count": len(traces)})
}

// EndSession handles POST /sessions/:id/end. Lifecycle transitions are
// always explicit; trace flow alone never completes a session.
func (h *Handlers) EndSession(c *gin.Context) {
	h.transitionSession(c, types.SessionCompleted)
}

// ArchiveSession handles POST /sessions/:id/archive
func (h *Handlers) ArchiveSession(c *gin.Context) {
	h.transitionSession(c, types.SessionArchived)
}

func (h *Handlers) transitionSession(c *gin.Context, status types.SessionStatus) {
	sessionID := c.Param("id")

	sess, ok := h.pipeline.EndSession(c.Request.Context(), sessionID, status)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session " + sessionID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// Status handles GET /status: capability negotiation for clients.
func (h *Handlers) Status(c *gin.Context) {
	stats := h.registry.Stats()

	payload := gin.H{
		"engine_id":            h.engineID,
		"protocol_version":     ProtocolVersion,
		"supported_languages":  trace.SupportedLanguages,
		"supported_frameworks": trace.SupportedFrameworks,
		"sessions": gin.H{
			"total":  stats.TotalSessions,
			"active": stats.ActiveSessions,
		},
		"rooms":       stats.OccupiedRooms,
		"connections": h.gateway.ConnectionCount(),
		"timestamp":   time.Now().UnixMilli(),
	}
	if h.metrics != nil {
		payload["uptime_seconds"] = int64(h.metrics.Uptime().Seconds())
	}
	c.JSON(http.StatusOK, payload)
}

// Health handles GET /health
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "flowscope",
		"timestamp": time.Now().UnixMilli(),
	})
}
