// Package ws implements the broadcast gateway: live WebSocket
// connections, session rooms, and room-scoped fan-out of trace events.
//
// Connection state machine:
//
//	Connecting -> Connected -> (InSession) -> Disconnected
//
// The handshake emits a connected acknowledgment carrying the generated
// connection ID. Joining a session moves the connection into that
// session's room; transport closure cleans up membership unconditionally.
//
// Message Types (Client -> Server):
//   - join_session: enter a session room (session_id, optional user_id)
//   - leave_session: leave the current room
//   - trace_event: submit a trace (validated like any inbound trace)
//   - request_session_state: catch-up replay of the session's traces
//   - ping: keep-alive
//
// Message Types (Server -> Client):
//   - connected: handshake acknowledgment with connection_id
//   - session_joined / session_left: room transitions
//   - new_trace: a trace ingested into the observed session
//   - batch_result / session_result: aggregated submission summaries
//   - session_state: catch-up trace list
//   - session_update: session-level notification (status change)
//   - error: structured per-connection failure, never fatal
//   - pong: keep-alive reply
//
// Example Usage:
//
//	gateway := ws.NewGateway(registry, store, logger)
//	gateway.SetSubmitter(pipeline)
//	router.GET("/stream", gateway.HandleConnection)
package ws
