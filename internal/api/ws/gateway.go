package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dachid/flowscope/internal/domain/session"
	"github.com/dachid/flowscope/internal/infrastructure/logging"
	"github.com/dachid/flowscope/internal/infrastructure/monitoring"
	"github.com/dachid/flowscope/internal/shared/id"
	"github.com/dachid/flowscope/internal/shared/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // trace producers and viewers connect cross-origin
	},
}

// Submitter accepts client-submitted traces. Adapters and live viewers
// go through the same contract as the HTTP submission surface.
type Submitter interface {
	SubmitTrace(ctx context.Context, t *types.Trace) types.SubmitResult
}

// StateLoader supplies the catch-up protocol with a session's current
// trace list.
type StateLoader interface {
	LoadSessionTraces(ctx context.Context, sessionID string) ([]types.Trace, error)
}

// Gateway owns all live connections and the session "rooms" they join.
// It fans traces, batch results and session updates out to exactly the
// connections observing the relevant session.
type Gateway struct {
	registry  *session.Registry
	store     StateLoader
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	submitter Submitter

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewGateway creates a broadcast gateway
func NewGateway(registry *session.Registry, store StateLoader, logger *logging.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		store:    store,
		logger:   logger,
		clients:  make(map[string]*Client),
	}
}

// WithMetrics adds metrics tracking to the gateway
func (g *Gateway) WithMetrics(metrics *monitoring.Metrics) *Gateway {
	g.metrics = metrics
	return g
}

// SetSubmitter wires the ingestion pipeline in after construction (the
// pipeline also needs the gateway as its publisher).
func (g *Gateway) SetSubmitter(s Submitter) {
	g.submitter = s
}

// HandleConnection upgrades an HTTP request and runs the connection
// lifecycle: Connecting -> Connected -> (InSession) -> Disconnected.
func (g *Gateway) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:          id.Connection(),
		connectedAt: time.Now(),
		gateway:     g,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
	}

	g.mu.Lock()
	g.clients[client.id] = client
	total := len(g.clients)
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.WSConnections.Set(float64(total))
	}
	g.logger.Info("connection established",
		zap.String("connection_id", client.id),
		zap.Int("total", total),
	)

	go client.writePump()

	// Handshake completion: Connecting -> Connected.
	g.sendTo(client, map[string]interface{}{
		"type":          evtConnected,
		"connection_id": client.id,
		"timestamp":     time.Now().UnixMilli(),
	})

	client.readPump()
}

// unregister tears a connection down regardless of its state: room
// membership, client table and send channel are all cleaned up exactly
// once.
func (g *Gateway) unregister(client *Client) {
	g.mu.Lock()
	_, present := g.clients[client.id]
	if present {
		delete(g.clients, client.id)
	}
	total := len(g.clients)
	g.mu.Unlock()

	if !present {
		return
	}

	g.registry.RemoveConnection(client.id)
	close(client.send)
	client.conn.Close()

	if g.metrics != nil {
		g.metrics.WSConnections.Set(float64(total))
		g.metrics.RoomsActive.Set(float64(g.registry.Stats().OccupiedRooms))
	}
	g.logger.Info("connection closed",
		zap.String("connection_id", client.id),
		zap.Int("total", total),
	)
}

// handleMessage dispatches one client request. Malformed input is
// answered with a structured error on that connection only; it never
// terminates the connection.
func (g *Gateway) handleMessage(client *Client, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.sendError(client, "malformed message: expected JSON envelope")
		return
	}
	if g.metrics != nil {
		g.metrics.RecordWSMessage("in", msg.Type)
	}

	switch msg.Type {
	case msgJoinSession:
		g.handleJoin(client, msg)
	case msgLeaveSession:
		g.handleLeave(client)
	case msgTraceEvent:
		g.handleTraceEvent(client, msg)
	case msgRequestSessionState:
		g.handleSessionState(client, msg)
	case msgPing:
		g.sendTo(client, map[string]interface{}{"type": evtPong})
	default:
		g.sendError(client, "unknown message type "+msg.Type)
	}
}

func (g *Gateway) handleJoin(client *Client, msg inboundMessage) {
	if msg.SessionID == "" {
		g.sendError(client, "join_session requires session_id")
		return
	}

	g.registry.Join(client.id, msg.SessionID, msg.UserID)
	if g.metrics != nil {
		g.metrics.RoomsActive.Set(float64(g.registry.Stats().OccupiedRooms))
	}

	g.sendTo(client, map[string]interface{}{
		"type":       evtSessionJoined,
		"session_id": msg.SessionID,
		"timestamp":  time.Now().UnixMilli(),
	})
}

func (g *Gateway) handleLeave(client *Client) {
	sessionID, ok := g.registry.SessionOf(client.id)
	g.registry.Leave(client.id)
	if g.metrics != nil {
		g.metrics.RoomsActive.Set(float64(g.registry.Stats().OccupiedRooms))
	}

	if !ok {
		g.sendError(client, "not in a session")
		return
	}
	g.sendTo(client, map[string]interface{}{
		"type":       evtSessionLeft,
		"session_id": sessionID,
		"timestamp":  time.Now().UnixMilli(),
	})
}

func (g *Gateway) handleTraceEvent(client *Client, msg inboundMessage) {
	if msg.Trace == nil {
		g.sendError(client, "trace_event requires a trace payload")
		return
	}
	if g.submitter == nil {
		g.sendError(client, "ingestion unavailable")
		return
	}

	// Same contract as any inbound submitter: validation failures come
	// back to this connection, successful traces reach the room as
	// new_trace via the pipeline's publish step.
	result := g.submitter.SubmitTrace(context.Background(), msg.Trace)
	if !result.Success {
		reason := result.Error
		if reason == "" && len(result.Validation.Errors) > 0 {
			reason = result.Validation.Errors[0]
		}
		g.sendError(client, reason)
	}
}

// handleSessionState implements the catch-up protocol: a late or
// reconnected observer receives the session's current trace list from
// the store. Unknown sessions yield an empty list, not an error.
func (g *Gateway) handleSessionState(client *Client, msg inboundMessage) {
	if msg.SessionID == "" {
		g.sendError(client, "request_session_state requires session_id")
		return
	}

	traces, err := g.store.LoadSessionTraces(context.Background(), msg.SessionID)
	if err != nil {
		g.logger.Error("failed to load session state",
			zap.String("session_id", msg.SessionID),
			zap.Error(err),
		)
		g.sendError(client, "failed to load session state")
		return
	}

	g.sendTo(client, map[string]interface{}{
		"type":       evtSessionState,
		"session_id": msg.SessionID,
		"traces":     traces,
		"timestamp":  time.Now().UnixMilli(),
	})
}

// PublishTrace delivers a trace to every connection observing its
// session. Room-scoped: no other connection sees it.
func (g *Gateway) PublishTrace(t *types.Trace) {
	g.publishToRoom(t.SessionID, evtNewTrace, map[string]interface{}{
		"type":      evtNewTrace,
		"trace":     t,
		"timestamp": time.Now().UnixMilli(),
	})
}

// PublishBatchResult announces a processed batch's successful trace IDs
// to the session room as one aggregated event.
func (g *Gateway) PublishBatchResult(sessionID, batchID string, traceIDs []string) {
	g.publishToRoom(sessionID, evtBatchResult, map[string]interface{}{
		"type":       evtBatchResult,
		"session_id": sessionID,
		"batch_id":   batchID,
		"trace_ids":  traceIDs,
		"timestamp":  time.Now().UnixMilli(),
	})
}

// PublishSessionResult announces a whole-session submission summary
func (g *Gateway) PublishSessionResult(sessionID string, result *types.SessionResult) {
	g.publishToRoom(sessionID, evtSessionResult, map[string]interface{}{
		"type":       evtSessionResult,
		"session_id": sessionID,
		"result":     result,
		"timestamp":  time.Now().UnixMilli(),
	})
}

// PublishSessionUpdate pushes a session-level notification (status
// change, counters) to the room.
func (g *Gateway) PublishSessionUpdate(sessionID string, update map[string]interface{}) {
	g.publishToRoom(sessionID, evtSessionUpdate, map[string]interface{}{
		"type":       evtSessionUpdate,
		"session_id": sessionID,
		"update":     update,
		"timestamp":  time.Now().UnixMilli(),
	})
}

// publishToRoom fans one event out to the session's current members.
// Per-connection failures are logged and isolated; they never affect
// other members or the originating submission.
func (g *Gateway) publishToRoom(sessionID, event string, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		g.logger.Error("failed to encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}

	members := g.registry.MembersOf(sessionID)
	if len(members) == 0 {
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, m := range members {
		client, ok := g.clients[m.ConnectionID]
		if !ok {
			continue
		}
		if !client.enqueue(data) {
			g.logger.Warn("dropping broadcast for slow connection",
				zap.String("connection_id", m.ConnectionID),
				zap.String("event", event),
			)
		}
	}

	if g.metrics != nil {
		g.metrics.RecordBroadcast(event)
	}
}

// ConnectionCount returns the number of live connections
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

func (g *Gateway) sendTo(client *Client, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		g.logger.Error("failed to encode message", zap.Error(err))
		return
	}
	if g.metrics != nil {
		if t, ok := payload["type"].(string); ok {
			g.metrics.RecordWSMessage("out", t)
		}
	}
	client.enqueue(data)
}

func (g *Gateway) sendError(client *Client, message string) {
	g.sendTo(client, map[string]interface{}{
		"type":      evtError,
		"message":   message,
		"timestamp": time.Now().UnixMilli(),
	})
}
