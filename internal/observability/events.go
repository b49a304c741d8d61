package observability

import "time"

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// WSEvent describes a transport lifecycle event for one connection.
type WSEvent struct {
	Kind       string `json:"kind"`
	RoomID     string `json:"resource_id"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

type Identity struct {
	UserID   int    `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
	IP       string `json:"ip"`
}

type WSEventPayload struct {
	WS       WSEvent  `json:"ws"`
	Identity Identity `json:"identity"`
}

// NewWSEnvelope wraps a transport event for the ws_events stream.
func NewWSEnvelope(event WSEvent, identity Identity, connectedAt time.Time) EventEnvelope {
	if !connectedAt.IsZero() {
		event.DurationMS = time.Since(connectedAt).Milliseconds()
	}
	return EventEnvelope{
		EventType: "ws_events",
		EventName: event.Event,
		Payload:   WSEventPayload{WS: event, Identity: identity},
	}
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
