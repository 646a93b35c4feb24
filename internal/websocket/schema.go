package websocket

import "encoding/json"

// Client → server actions on the monitor socket.

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// Server → client events.

type Event string

const (
	EventError   Event = "error"
	EventMonitor Event = "monitor"
	EventPong    Event = "pong"
)

// MonitorFrame wraps one attempt event for the author's live monitor.
// Payload is the serialized attempt event exactly as published to the
// session's channel.
type MonitorFrame struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
