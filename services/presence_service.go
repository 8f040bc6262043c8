package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/cache"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/models"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/queue"
)

// PresenceService tracks typing status and delivery/read receipts. All of
// it is TTL-bounded cache state: absence of a typing key means "not
// typing", so nothing needs a cleanup job. Each write also publishes a
// low-priority audit event; losing one is acceptable, it is telemetry.
type PresenceService struct {
	cache Cache
	jobs  Jobs
	log   zerolog.Logger
}

func NewPresenceService(c Cache, jobs Jobs, log zerolog.Logger) *PresenceService {
	return &PresenceService{
		cache: c,
		jobs:  jobs,
		log:   log.With().Str("component", "presence").Logger(),
	}
}

// SetTyping writes a short-TTL key when typing starts and deletes it when
// typing stops.
func (s *PresenceService) SetTyping(ctx context.Context, roomID, participantID string, isTyping bool) {
	key := cache.TypingKey(roomID, participantID)
	if isTyping {
		s.cache.Set(ctx, key, "1", cache.TTLTyping)
	} else {
		s.cache.Del(ctx, key)
	}
	s.auditEvent(roomID, participantID, "typing", "")
}

// IsTyping reports whether the participant's typing key is present.
func (s *PresenceService) IsTyping(ctx context.Context, roomID, participantID string) bool {
	_, ok := s.cache.Get(ctx, cache.TypingKey(roomID, participantID))
	return ok
}

// MarkDelivered records an acknowledging actor and timestamp against the
// message.
func (s *PresenceService) MarkDelivered(ctx context.Context, roomID, messageID, actorID string) {
	s.cache.HSet(ctx, cache.DeliveryKey(messageID), cache.TTLReceipt,
		actorID, time.Now().UTC().Format(time.RFC3339Nano))
	s.auditEvent(roomID, actorID, "delivered", messageID)
}

// MarkRead acknowledges a batch of messages for one actor and clears the
// actor's unread counter so the next read recomputes it.
func (s *PresenceService) MarkRead(ctx context.Context, roomID, actorID string, messageIDs []string) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, messageID := range messageIDs {
		s.cache.HSet(ctx, cache.ReadKey(messageID), cache.TTLReceipt, actorID, now)
		s.auditEvent(roomID, actorID, "read", messageID)
	}
	s.cache.Del(ctx, cache.UnreadKey(roomID, actorID))
}

// Delivery returns the delivery receipt map (actor id -> timestamp) for a
// message; Read does the same for read receipts.
func (s *PresenceService) Delivery(ctx context.Context, messageID string) map[string]string {
	receipts, _ := s.cache.HGetAll(ctx, cache.DeliveryKey(messageID))
	return receipts
}

func (s *PresenceService) Read(ctx context.Context, messageID string) map[string]string {
	receipts, _ := s.cache.HGetAll(ctx, cache.ReadKey(messageID))
	return receipts
}

func (s *PresenceService) auditEvent(roomID, actorID, kind, messageID string) {
	event := models.AuditEvent{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		ActorID:   actorID,
		Kind:      kind,
		MessageID: messageID,
		CreatedAt: time.Now(),
	}
	s.jobs.Enqueue("chat_audit", kind, event, queue.JobOptions{Priority: queue.PriorityLow})
}
