package queue

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/models"
)

// AuditStore persists the durable copy of ephemeral-state audit events.
type AuditStore interface {
	UpsertAuditEvent(ctx context.Context, event *models.AuditEvent) error
}

// AuditHandler consumes the chat_audit topic and upserts typing/delivery/
// read audit rows. The upsert keys on the event id, so redelivery is safe.
type AuditHandler struct {
	store AuditStore
	log   zerolog.Logger
}

func NewAuditHandler(store AuditStore, log zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		store: store,
		log:   log.With().Str("component", "audit_handler").Logger(),
	}
}

func (h *AuditHandler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	var event models.AuditEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		// Malformed telemetry is dropped, not retried.
		h.log.Warn().Err(err).Msg("malformed audit event")
		return nil
	}
	return h.store.UpsertAuditEvent(ctx, &event)
}
