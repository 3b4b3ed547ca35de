package ws

import "github.com/dachid/flowscope/internal/shared/types"

// Inbound message types (client -> server)
const (
	msgJoinSession         = "join_session"
	msgLeaveSession        = "leave_session"
	msgTraceEvent          = "trace_event"
	msgRequestSessionState = "request_session_state"
	msgPing                = "ping"
)

// Outbound message types (server -> client)
const (
	evtConnected     = "connected"
	evtSessionJoined = "session_joined"
	evtSessionLeft   = "session_left"
	evtNewTrace      = "new_trace"
	evtBatchResult   = "batch_result"
	evtSessionResult = "session_result"
	evtSessionState  = "session_state"
	evtSessionUpdate = "session_update"
	evtError         = "error"
	evtPong          = "pong"
)

// inboundMessage is the envelope for all client requests
type inboundMessage struct {
	Type      string       `json:"type"`
	SessionID string       `json:"session_id,omitempty"`
	UserID    string       `json:"user_id,omitempty"`
	Trace     *types.Trace `json:"trace,omitempty"`
}
