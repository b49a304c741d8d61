package telemetry

import (
	"context"
	"log"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Audit actions recorded by the chat service.
const (
	ActionRoomCreated   = "room.created"
	ActionGroupCreated  = "group.created"
	ActionAccessDenied  = "room.access_denied"
	ActionInvalidInput  = "request.invalid"
	ActionInternalError = "request.failed"
	ActionDebug         = "debug.test"
)

// Record is one audit entry. RoomID, RequestID and UserID are optional.
type Record struct {
	Level     Level
	Action    string
	Text      string
	RoomID    string
	RequestID string
	UserID    *int64
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *int64       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  Level  `json:"level"`
	Action string `json:"action"`
	Text   string `json:"text"`
	RoomID string `json:"room_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes r. Publish failures are logged, never returned.
func (e *AuditEmitter) Emit(ctx context.Context, r Record) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     r.RequestID,
		UserID:        r.UserID,
		Payload: AuditPayload{
			Level:  r.Level,
			Action: r.Action,
			Text:   r.Text,
			RoomID: r.RoomID,
		},
	}

	headers := map[string]string{"x-audit-action": r.Action}
	if r.RequestID != "" {
		headers["x-request-id"] = r.RequestID
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		log.Printf("audit publish failed action=%s request_id=%s: %v", r.Action, r.RequestID, err)
	}
}
