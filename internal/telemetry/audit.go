// Package telemetry publishes audit records to the event bus.
package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// AuditEvent is one auditable action.
type AuditEvent struct {
	Level     string
	Text      string
	RequestID string
	UserID    string
	RoomID    string
}

// AuditEnvelope is the published form of an AuditEvent.
type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string `json:"level"`
	Text   string `json:"text"`
	RoomID string `json:"room_id,omitempty"`
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      zerolog.Logger
	now         func() time.Time
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger zerolog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
		now:         time.Now,
	}
}

// Emit publishes ev. Failures are logged, never returned.
func (e *AuditEmitter) Emit(ctx context.Context, ev AuditEvent) {
	if e == nil || e.publisher == nil {
		return
	}

	var headers map[string]string
	if ev.RequestID != "" {
		headers = map[string]string{"x-request-id": ev.RequestID}
	}

	if err := e.publisher.Publish(ctx, e.routingKey, e.envelope(ev), headers); err != nil {
		e.logger.Warn().Err(err).Str("request_id", ev.RequestID).Msg("audit publish failed")
		return
	}
	e.logger.Debug().Str("level", ev.Level).Str("request_id", ev.RequestID).Str("text", ev.Text).Msg("audit emitted")
}

func (e *AuditEmitter) envelope(ev AuditEvent) AuditEnvelope {
	env := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     ev.RequestID,
		Payload:       AuditPayload{Level: ev.Level, Text: ev.Text, RoomID: ev.RoomID},
	}
	if ev.UserID != "" {
		userID := ev.UserID
		env.UserID = &userID
	}
	return env
}
