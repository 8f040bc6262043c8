package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/models"
)

type fakeAuditStore struct {
	events []models.AuditEvent
}

func (f *fakeAuditStore) UpsertAuditEvent(_ context.Context, event *models.AuditEvent) error {
	f.events = append(f.events, *event)
	return nil
}

func TestAuditHandlerUpsertsEvent(t *testing.T) {
	store := &fakeAuditStore{}
	handler := NewAuditHandler(store, zerolog.Nop())

	event := models.AuditEvent{
		ID:        "e1",
		RoomID:    "r1",
		ActorID:   "a1",
		Kind:      "read",
		MessageID: "m1",
		CreatedAt: time.Now(),
	}
	value, err := json.Marshal(event)
	require.NoError(t, err)

	err = handler.Handle(context.Background(), &sarama.ConsumerMessage{Value: value})
	require.NoError(t, err)
	require.Len(t, store.events, 1)
	assert.Equal(t, "e1", store.events[0].ID)
	assert.Equal(t, "read", store.events[0].Kind)
}

// Malformed telemetry must not poison the consumer group with retries.
func TestAuditHandlerDropsMalformed(t *testing.T) {
	store := &fakeAuditStore{}
	handler := NewAuditHandler(store, zerolog.Nop())

	err := handler.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("{broken")})
	assert.NoError(t, err)
	assert.Empty(t, store.events)
}
