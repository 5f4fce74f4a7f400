package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionEvent    Action = "event"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest is sent by the client to save a single answer.
type AutosaveRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id"`
	Answer string `json:"ans"`
}

// MonitorEventRequest reports a proctoring signal over the socket.
type MonitorEventRequest struct {
	Action    Action          `json:"action"`
	EventType string          `json:"event_type"`
	Severity  string          `json:"severity"`
	Details   json.RawMessage `json:"details"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSuccess Event = "success"
	EventPong    Event = "pong"
	EventMonitor Event = "monitor"
)

type SuccessResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// MonitorBroadcast wraps a live event forwarded to admin subscribers.
type MonitorBroadcast struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}
