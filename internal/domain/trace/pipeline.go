package trace

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dachid/flowscope/internal/domain/session"
	"github.com/dachid/flowscope/internal/infrastructure/logging"
	"github.com/dachid/flowscope/internal/infrastructure/monitoring"
	"github.com/dachid/flowscope/internal/shared/id"
	"github.com/dachid/flowscope/internal/shared/types"
	"github.com/dachid/flowscope/internal/storage"
)

// Publisher is the broadcast collaborator the pipeline hands enriched
// traces to. Implementations must scope delivery to the session room.
type Publisher interface {
	PublishTrace(t *types.Trace)
	PublishBatchResult(sessionID, batchID string, traceIDs []string)
	PublishSessionResult(sessionID string, result *types.SessionResult)
	PublishSessionUpdate(sessionID string, update map[string]interface{})
}

// Pipeline validates, enriches, persists and broadcasts incoming traces.
// Expected failures (validation, persistence) travel in the returned
// result structs; the pipeline never panics or errors on bad input.
type Pipeline struct {
	validator *Validator
	detector  *Detector
	registry  *session.Registry
	store     storage.Store
	publisher Publisher
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// NewPipeline creates an ingestion pipeline
func NewPipeline(validator *Validator, detector *Detector, registry *session.Registry, store storage.Store, publisher Publisher, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		validator: validator,
		detector:  detector,
		registry:  registry,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// WithMetrics adds metrics tracking to the pipeline
func (p *Pipeline) WithMetrics(metrics *monitoring.Metrics) *Pipeline {
	p.metrics = metrics
	return p
}

// SubmitTrace processes one trace: validate, enrich, register, persist,
// broadcast. See SubmitResult for how outcomes are distinguished.
func (p *Pipeline) SubmitTrace(ctx context.Context, t *types.Trace) types.SubmitResult {
	return p.submit(ctx, t, true)
}

func (p *Pipeline) submit(ctx context.Context, t *types.Trace, publish bool) types.SubmitResult {
	start := time.Now()

	validation := p.validator.Validate(t)
	if !validation.Valid {
		p.recordSubmission(monitoring.OutcomeRejected, start)
		p.logger.Debug("trace rejected",
			zap.String("trace_id", t.ID),
			zap.Strings("errors", validation.Errors),
		)
		return types.SubmitResult{Success: false, Validation: validation}
	}

	enriched := t.Clone()
	if enriched.Timestamp.IsZero() {
		enriched.Timestamp = time.Now()
	}
	p.enrich(enriched)

	p.ensureSession(ctx, enriched.SessionID)
	p.registry.RecordTrace(enriched.SessionID, enriched.Status)

	persistErr := p.store.SaveTrace(ctx, enriched)
	if persistErr == nil {
		delta := storage.CounterDelta{Traces: 1}
		switch enriched.Status {
		case types.StatusCompleted:
			delta.Successes = 1
		case types.StatusFailed, types.StatusError:
			delta.Errors = 1
		}
		if err := p.store.UpdateSessionCounters(ctx, enriched.SessionID, delta); err != nil {
			p.logger.Warn("failed to update persisted session counters",
				zap.String("session_id", enriched.SessionID),
				zap.Error(err),
			)
		}
	}

	// Broadcast proceeds even when persistence failed: observers see the
	// trace, the caller learns it was not durably recorded.
	if publish && p.publisher != nil {
		p.publisher.PublishTrace(enriched)
	}

	if persistErr != nil {
		p.recordSubmission(monitoring.OutcomePersistFailed, start)
		p.logger.Error("failed to persist trace",
			zap.String("trace_id", enriched.ID),
			zap.Error(persistErr),
		)
		return types.SubmitResult{
			Success:    false,
			Validation: validation,
			Trace:      enriched,
			Persisted:  false,
			Error:      "persistence failure: " + persistErr.Error(),
		}
	}

	p.recordSubmission(monitoring.OutcomeAccepted, start)
	return types.SubmitResult{
		Success:    true,
		Validation: validation,
		Trace:      enriched,
		Persisted:  true,
	}
}

// SubmitBatch processes each trace independently; one failing trace
// never aborts the batch. Successful traces are announced as one
// aggregated batch result per touched session rather than N events.
func (p *Pipeline) SubmitBatch(ctx context.Context, batch *types.TraceBatch) types.BatchResult {
	batchID := batch.BatchID
	if batchID == "" {
		batchID = id.Batch()
	}
	if p.metrics != nil {
		p.metrics.BatchesTotal.Inc()
	}

	result := types.BatchResult{
		BatchID: batchID,
		Results: make([]types.TraceResult, 0, len(batch.Traces)),
	}
	succeededBySession := make(map[string][]string)
	var sessionOrder []string

	for i := range batch.Traces {
		t := &batch.Traces[i]
		r := p.submit(ctx, t, false)
		if r.Success {
			result.ProcessedCount++
			if _, seen := succeededBySession[t.SessionID]; !seen {
				sessionOrder = append(sessionOrder, t.SessionID)
			}
			succeededBySession[t.SessionID] = append(succeededBySession[t.SessionID], t.ID)
			result.Results = append(result.Results, types.TraceResult{TraceID: t.ID, Success: true})
		} else {
			result.FailedCount++
			result.Results = append(result.Results, types.TraceResult{
				TraceID: t.ID,
				Success: false,
				Error:   firstError(r),
			})
		}
	}

	result.Success = result.ProcessedCount > 0

	if p.publisher != nil {
		for _, sessionID := range sessionOrder {
			p.publisher.PublishBatchResult(sessionID, batchID, succeededBySession[sessionID])
		}
	}

	p.logger.Info("batch processed",
		zap.String("batch_id", batchID),
		zap.Int("processed", result.ProcessedCount),
		zap.Int("failed", result.FailedCount),
	)
	return result
}

// SubmitSession ingests a whole-session payload: session metadata is
// merged into the registry, traces are processed with the same per-trace
// independence as a batch, and one aggregated session result is
// broadcast to the room.
func (p *Pipeline) SubmitSession(ctx context.Context, sub *types.SessionSubmission) types.SessionResult {
	p.ensureSession(ctx, sub.SessionID)
	sess := p.registry.MergeMetadata(sub.SessionID, sub.Name, sub.Metadata)
	if err := p.store.SaveSession(ctx, &sess); err != nil {
		p.logger.Warn("failed to persist session metadata",
			zap.String("session_id", sub.SessionID),
			zap.Error(err),
		)
	}

	result := types.SessionResult{
		SessionID: sub.SessionID,
		Results:   make([]types.TraceResult, 0, len(sub.Traces)),
	}

	for i := range sub.Traces {
		t := &sub.Traces[i]
		// Session payloads bind every trace to the enclosing session.
		if t.SessionID == "" {
			t.SessionID = sub.SessionID
		}
		r := p.submit(ctx, t, false)
		if r.Success {
			result.ProcessedCount++
			result.Results = append(result.Results, types.TraceResult{TraceID: t.ID, Success: true})
		} else {
			result.FailedCount++
			result.Results = append(result.Results, types.TraceResult{
				TraceID: t.ID,
				Success: false,
				Error:   firstError(r),
			})
		}
	}

	result.Success = result.ProcessedCount > 0

	if p.publisher != nil {
		p.publisher.PublishSessionResult(sub.SessionID, &result)
	}
	return result
}

// EndSession applies an explicit lifecycle transition, persists it, and
// notifies the room.
func (p *Pipeline) EndSession(ctx context.Context, sessionID string, status types.SessionStatus) (types.Session, bool) {
	sess, ok := p.registry.SetStatus(sessionID, status)
	if !ok {
		return types.Session{}, false
	}
	if err := p.store.SaveSession(ctx, &sess); err != nil {
		p.logger.Warn("failed to persist session transition",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	if p.metrics != nil {
		p.metrics.SessionsActive.Set(float64(p.registry.Stats().ActiveSessions))
	}
	if p.publisher != nil {
		p.publisher.PublishSessionUpdate(sessionID, map[string]interface{}{
			"status":   string(sess.Status),
			"end_time": sess.EndTime,
		})
	}
	return sess, true
}

// ensureSession makes a session visible in the registry. A session ID
// the process has not seen may still have a persisted record from an
// earlier run; that record is adopted rather than overwritten, so
// names, start times and counters survive restarts. Only genuinely new
// sessions are written back to the store.
func (p *Pipeline) ensureSession(ctx context.Context, sessionID string) {
	if _, ok := p.registry.Get(sessionID); ok {
		return
	}

	stored, err := p.store.LoadSession(ctx, sessionID)
	if err == nil {
		p.registry.Restore(*stored)
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		// Can't tell whether a record exists. Register in memory but do
		// not risk clobbering a persisted session with a fresh one.
		p.logger.Warn("failed to check for persisted session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		p.registry.EnsureSession(sessionID)
		return
	}

	if _, created := p.registry.EnsureSession(sessionID); created {
		sess, _ := p.registry.Get(sessionID)
		if err := p.store.SaveSession(ctx, &sess); err != nil {
			p.logger.Warn("failed to persist new session",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
		if p.metrics != nil {
			p.metrics.SessionsTotal.Inc()
			p.metrics.SessionsActive.Set(float64(p.registry.Stats().ActiveSessions))
		}
	}
}

// enrich merges detection results into trace metadata when the producer
// did not declare them.
func (p *Pipeline) enrich(t *types.Trace) {
	_, hasLang := t.MetaString(types.MetaLanguage)
	_, hasFramework := t.MetaString(types.MetaFramework)
	if hasLang && hasFramework {
		return
	}

	detection := p.detector.Detect(t)
	if detection.Confidence < ConfidenceThreshold {
		p.logger.Debug("ambiguous framework detection",
			zap.String("trace_id", t.ID),
			zap.String("framework", detection.Framework),
			zap.Float64("confidence", detection.Confidence),
		)
	}

	if t.Metadata == nil {
		t.Metadata = map[string]interface{}{}
	}
	if !hasLang {
		t.Metadata[types.MetaLanguage] = detection.Language
	}
	if !hasFramework {
		t.Metadata[types.MetaFramework] = detection.Framework
	}
	t.Metadata[types.MetaConfidence] = detection.Confidence
}

func (p *Pipeline) recordSubmission(outcome string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordSubmission(outcome, time.Since(start))
	}
}

func firstError(r types.SubmitResult) string {
	if r.Error != "" {
		return r.Error
	}
	if len(r.Validation.Errors) > 0 {
		return r.Validation.Errors[0]
	}
	return "submission failed"
}
