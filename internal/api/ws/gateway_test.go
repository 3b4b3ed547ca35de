package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dachid/flowscope/internal/domain/session"
	"github.com/dachid/flowscope/internal/domain/trace"
	"github.com/dachid/flowscope/internal/infrastructure/logging"
	"github.com/dachid/flowscope/internal/shared/types"
	"github.com/dachid/flowscope/internal/storage"
)

type testEnv struct {
	gateway  *Gateway
	pipeline *trace.Pipeline
	store    *storage.Memory
	server   *httptest.Server
	url      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := session.NewRegistry()
	store := storage.NewMemory()
	logger := logging.NewNop()

	gateway := NewGateway(registry, store, logger)
	pipeline := trace.NewPipeline(trace.NewValidator(0), trace.NewDetector(), registry, store, gateway, logger)
	gateway.SetSubmitter(pipeline)

	router := gin.New()
	router.GET("/stream", gateway.HandleConnection)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{
		gateway:  gateway,
		pipeline: pipeline,
		store:    store,
		server:   server,
		url:      "ws" + strings.TrimPrefix(server.URL, "http") + "/stream",
	}
}

// dial connects and consumes the connected handshake
func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := readMessage(t, conn)
	require.Equal(t, "connected", msg["type"])
	require.NotEmpty(t, msg["connection_id"])
	return conn
}

func (e *testEnv) join(t *testing.T, conn *websocket.Conn, sessionID string) {
	t.Helper()
	writeMessage(t, conn, map[string]interface{}{"type": "join_session", "session_id": sessionID})
	msg := readMessage(t, conn)
	require.Equal(t, "session_joined", msg["type"])
	require.Equal(t, sessionID, msg["session_id"])
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// expectSilence asserts that no message arrives within the window
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", data)
	}
}

func writeMessage(t *testing.T, conn *websocket.Conn, msg map[string]interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func submitTrace(t *testing.T, env *testEnv, traceID, sessionID string) {
	t.Helper()
	result := env.pipeline.SubmitTrace(t.Context(), &types.Trace{
		ID:        traceID,
		SessionID: sessionID,
		Type:      types.TypePrompt,
		Status:    types.StatusCompleted,
	})
	require.True(t, result.Success)
}

func TestRoomScopedFanOut(t *testing.T) {
	env := newTestEnv(t)

	observer := env.dial(t)
	env.join(t, observer, "s1")

	bystander := env.dial(t)
	env.join(t, bystander, "s2")

	submitTrace(t, env, "t1", "s1")

	msg := readMessage(t, observer)
	assert.Equal(t, "new_trace", msg["type"])
	tracePayload := msg["trace"].(map[string]interface{})
	assert.Equal(t, "t1", tracePayload["id"])

	// Room isolation: the s2 member must see nothing.
	expectSilence(t, bystander)
}

func TestConnectedButNotJoinedReceivesNothing(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t)
	submitTrace(t, env, "t1", "s1")
	expectSilence(t, conn)
}

func TestCatchUpReplay(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{"t1", "t2", "t3"} {
		submitTrace(t, env, id, "s1")
	}

	// A client that was never connected joins late and requests state.
	late := env.dial(t)
	env.join(t, late, "s1")
	writeMessage(t, late, map[string]interface{}{"type": "request_session_state", "session_id": "s1"})

	msg := readMessage(t, late)
	require.Equal(t, "session_state", msg["type"])
	require.Equal(t, "s1", msg["session_id"])

	traces := msg["traces"].([]interface{})
	require.Len(t, traces, 3)
	for i, want := range []string{"t1", "t2", "t3"} {
		got := traces[i].(map[string]interface{})
		assert.Equal(t, want, got["id"], "replay preserves submission order")
	}
}

func TestCatchUpUnknownSessionIsEmpty(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t)
	writeMessage(t, conn, map[string]interface{}{"type": "request_session_state", "session_id": "ghost"})

	msg := readMessage(t, conn)
	require.Equal(t, "session_state", msg["type"])
	assert.Empty(t, msg["traces"])
}

func TestTraceEventFromClient(t *testing.T) {
	env := newTestEnv(t)

	producer := env.dial(t)
	env.join(t, producer, "s1")

	viewer := env.dial(t)
	env.join(t, viewer, "s1")

	writeMessage(t, producer, map[string]interface{}{
		"type": "trace_event",
		"trace": map[string]interface{}{
			"id":         "t1",
			"session_id": "s1",
			"type":       "prompt",
			"status":     "completed",
		},
	})

	// Both room members see the broadcast, including the producer.
	for _, conn := range []*websocket.Conn{producer, viewer} {
		msg := readMessage(t, conn)
		assert.Equal(t, "new_trace", msg["type"])
	}
}

func TestMalformedRequestsAnsweredNotFatal(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t)

	// Not JSON at all.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])

	// Join without a session.
	writeMessage(t, conn, map[string]interface{}{"type": "join_session"})
	msg = readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])

	// Invalid trace payload.
	writeMessage(t, conn, map[string]interface{}{
		"type":  "trace_event",
		"trace": map[string]interface{}{"id": "", "session_id": "s1", "type": "prompt"},
	})
	msg = readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])

	// Unknown type.
	writeMessage(t, conn, map[string]interface{}{"type": "teleport"})
	msg = readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])

	// Connection survived all of it.
	writeMessage(t, conn, map[string]interface{}{"type": "ping"})
	msg = readMessage(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestErrorIsolatedToOffendingConnection(t *testing.T) {
	env := newTestEnv(t)

	offender := env.dial(t)
	env.join(t, offender, "s1")

	innocent := env.dial(t)
	env.join(t, innocent, "s1")

	require.NoError(t, offender.WriteMessage(websocket.TextMessage, []byte("garbage")))
	msg := readMessage(t, offender)
	assert.Equal(t, "error", msg["type"])

	// The room still works for everyone.
	submitTrace(t, env, "t1", "s1")
	for _, conn := range []*websocket.Conn{offender, innocent} {
		msg := readMessage(t, conn)
		assert.Equal(t, "new_trace", msg["type"])
	}
}

func TestLeaveSessionStopsDelivery(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t)
	env.join(t, conn, "s1")

	writeMessage(t, conn, map[string]interface{}{"type": "leave_session", "session_id": "s1"})
	msg := readMessage(t, conn)
	require.Equal(t, "session_left", msg["type"])

	submitTrace(t, env, "t1", "s1")
	expectSilence(t, conn)
}

func TestDisconnectCleansUpMembership(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t)
	env.join(t, conn, "s1")
	conn.Close()

	require.Eventually(t, func() bool {
		return env.gateway.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Broadcasting into the now-empty room must not panic or leak.
	submitTrace(t, env, "t1", "s1")
}

func TestBatchResultAggregatedToRoom(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t)
	env.join(t, conn, "s1")

	result := env.pipeline.SubmitBatch(t.Context(), &types.TraceBatch{
		BatchID: "batch-1",
		Traces: []types.Trace{
			{ID: "t1", SessionID: "s1", Type: types.TypePrompt, Status: types.StatusCompleted},
			{ID: "t2", SessionID: "s1", Type: types.TypeResponse, Status: types.StatusCompleted},
		},
	})
	require.True(t, result.Success)

	// One aggregated event, not one per trace.
	msg := readMessage(t, conn)
	require.Equal(t, "batch_result", msg["type"])
	assert.Equal(t, "batch-1", msg["batch_id"])
	ids := msg["trace_ids"].([]interface{})
	assert.Len(t, ids, 2)
	expectSilence(t, conn)
}
