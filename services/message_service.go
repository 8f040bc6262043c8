package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/cache"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/models"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/queue"
)

// MessageService is the cache-first message pipeline: a message is visible
// to cache reads before CreateMessage returns, while durable persistence
// follows through the write queue.
type MessageService struct {
	rooms     *RoomService
	cache     Cache
	writer    Enqueuer
	jobs      Jobs
	bridge    Bridge
	limiter   RateLimiter
	rateLimit int
	rateWin   time.Duration
	window    int64
	log       zerolog.Logger
}

func NewMessageService(rooms *RoomService, c Cache, writer Enqueuer, jobs Jobs, bridge Bridge,
	limiter RateLimiter, rateLimit int, rateWindow time.Duration, window int, log zerolog.Logger) *MessageService {
	if window <= 0 {
		window = 50
	}
	return &MessageService{
		rooms:     rooms,
		cache:     c,
		writer:    writer,
		jobs:      jobs,
		bridge:    bridge,
		limiter:   limiter,
		rateLimit: rateLimit,
		rateWin:   rateWindow,
		window:    int64(window),
		log:       log.With().Str("component", "messages").Logger(),
	}
}

type CreateMessageInput struct {
	ID          string // assigned when empty
	RoomID      string
	WorkspaceID string
	SenderType  models.SenderType
	SenderID    string
	SenderName  string
	Content     string
	IsInternal  bool
}

type CreateFileMessageInput struct {
	CreateMessageInput
	FileURL    string
	FileName   string
	FileMime   string
	FileSize   int64
	PreviewURL string
}

// CreateMessage appends a text message to the room's bounded window,
// invalidates the snapshot, re-scores the workspace index and schedules the
// durable write plus analytics. Visitor messages pass the rate limiter and
// are forwarded to the AI bridge.
func (s *MessageService) CreateMessage(ctx context.Context, input CreateMessageInput) (*models.Message, error) {
	if input.Content == "" {
		return nil, ErrEmptyMessage
	}
	if err := s.checkRate(ctx, input); err != nil {
		return nil, err
	}

	message := s.build(input)
	message.Type = models.MessageText
	s.apply(ctx, message, input.WorkspaceID)

	if input.SenderType == models.SenderVisitor && s.bridge != nil {
		s.bridge.VisitorMessage(input.WorkspaceID, input.RoomID, input.Content)
	}
	return message, nil
}

// CreateFileMessage is CreateMessage with an attachment descriptor in place
// of plain content.
func (s *MessageService) CreateFileMessage(ctx context.Context, input CreateFileMessageInput) (*models.Message, error) {
	if input.FileURL == "" {
		return nil, ErrEmptyMessage
	}
	if err := s.checkRate(ctx, input.CreateMessageInput); err != nil {
		return nil, err
	}

	message := s.build(input.CreateMessageInput)
	message.Type = models.MessageFile
	message.FileURL = input.FileURL
	message.FileName = input.FileName
	message.FileMime = input.FileMime
	message.FileSize = input.FileSize
	message.PreviewURL = input.PreviewURL
	s.apply(ctx, message, input.WorkspaceID)
	return message, nil
}

// RoomMessages reads the recent window, newest first, falling back to the
// durable store when the cache cannot answer. An empty cached window is
// treated as an expired key: the durable history decides whether the room
// really has no messages.
func (s *MessageService) RoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	vals, ok := s.cache.LRange(ctx, cache.MessagesKey(roomID), 0, s.window-1)
	if !ok || len(vals) == 0 {
		return s.rooms.History(ctx, roomID, 1, int(s.window))
	}
	messages := make([]models.Message, 0, len(vals))
	for _, v := range vals {
		var m models.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			s.log.Warn().Err(err).Str("room", roomID).Msg("corrupt cached message, skipping")
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (s *MessageService) build(input CreateMessageInput) *models.Message {
	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}
	return &models.Message{
		ID:         id,
		RoomID:     input.RoomID,
		SenderType: input.SenderType,
		SenderID:   input.SenderID,
		SenderName: input.SenderName,
		Content:    input.Content,
		IsInternal: input.IsInternal,
		CreatedAt:  time.Now(),
	}
}

// apply runs the shared cache-mutate plus enqueue tail of both message
// kinds.
func (s *MessageService) apply(ctx context.Context, message *models.Message, workspaceID string) {
	if data, err := json.Marshal(message); err == nil {
		s.cache.LPushTrim(ctx, cache.MessagesKey(message.RoomID), string(data), s.window, cache.TTLMessages)
	} else {
		s.log.Error().Err(err).Str("message", message.ID).Msg("unmarshalable message")
	}
	s.rooms.InvalidateRoom(ctx, message.RoomID)
	s.rooms.Touch(ctx, message.RoomID, workspaceID, message.CreatedAt)

	s.writer.Enqueue(queue.JobMessageCreated, message.ID, message)
	s.writer.Enqueue(queue.JobAnalyticsDelta, message.RoomID, s.delta(message))

	if message.FromAgent() {
		payload := map[string]string{
			"room_id":    message.RoomID,
			"agent_id":   message.SenderID,
			"message_id": message.ID,
		}
		s.jobs.Enqueue("response_time", "first_response", payload, queue.JobOptions{})
		s.jobs.Enqueue("response_time", "rolling_average", payload, queue.JobOptions{})
	}
}

func (s *MessageService) delta(message *models.Message) queue.AnalyticsDelta {
	delta := queue.AnalyticsDelta{
		RoomID:         message.RoomID,
		MessageCount:   1,
		LastActivityAt: message.CreatedAt,
	}
	switch message.SenderType {
	case models.SenderVisitor:
		delta.VisitorMessageCount = 1
	case models.SenderAgent:
		if !message.IsInternal {
			delta.AgentMessageCount = 1
			at := message.CreatedAt
			delta.FirstResponseAt = &at
		}
	}
	return delta
}

// checkRate applies the visitor flood limit. The limiter fails open: if
// Redis cannot answer, the message is admitted.
func (s *MessageService) checkRate(ctx context.Context, input CreateMessageInput) error {
	if s.limiter == nil || input.SenderType != models.SenderVisitor {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, "ratelimit:messages:"+input.SenderID, s.rateLimit, s.rateWin)
	if err != nil {
		s.log.Warn().Err(err).Str("visitor", input.SenderID).Msg("rate limiter unavailable, admitting message")
		return nil
	}
	if !allowed {
		return ErrTooManyMessages
	}
	return nil
}
