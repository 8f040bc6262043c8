package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/cache"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/models"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/queue"
)

// ParticipantService tracks room membership in cache and enforces the
// single-active-agent rule. AddAgent is the primary-agent entry point; a
// second concurrent agent is only admitted through the invitation and
// transfer workflows in HandoffService.
type ParticipantService struct {
	store  Store
	cache  Cache
	writer Enqueuer
	rooms  *RoomService
	log    zerolog.Logger
}

func NewParticipantService(store Store, c Cache, writer Enqueuer, rooms *RoomService, log zerolog.Logger) *ParticipantService {
	return &ParticipantService{
		store:  store,
		cache:  c,
		writer: writer,
		rooms:  rooms,
		log:    log.With().Str("component", "participants").Logger(),
	}
}

// AddAgent admits an agent as the room's primary. It rejects when the agent
// is already active here, when a different agent already serves the room,
// and when the agent's durable capacity record says offline or full.
func (s *ParticipantService) AddAgent(ctx context.Context, roomID, agentID string) error {
	members, err := s.rooms.Participants(ctx, roomID)
	if err != nil {
		return err
	}
	for _, member := range members {
		actorType, actorID := models.ParseMember(member)
		if actorType != models.ActorAgent {
			continue
		}
		if actorID == agentID {
			return ErrAgentAlreadyInRoom
		}
		return ErrRoomHasActiveAgent
	}

	capacity, err := s.store.FindAgentCapacity(ctx, agentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAgentNotFound
		}
		return err
	}
	if !capacity.Online() {
		return ErrAgentOffline
	}
	if capacity.AtCapacity() {
		return ErrAgentAtCapacity
	}

	now := time.Now()
	participant := models.Participant{
		RoomID:    roomID,
		ActorType: models.ActorAgent,
		ActorID:   agentID,
		Active:    true,
		JoinedAt:  now,
	}
	s.cache.SAdd(ctx, cache.ParticipantsKey(roomID), cache.TTLParticipants, participant.Member())
	s.rooms.InvalidateRoom(ctx, roomID)

	s.writer.Enqueue(queue.JobParticipantAdded, roomID+":"+participant.Member(), participant)
	entry := models.SessionHistory{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		ActorID:   participant.Member(),
		Event:     "joined",
		Reason:    "manual",
		CreatedAt: now,
	}
	s.writer.Enqueue(queue.JobSessionHistory, entry.ID, entry)
	s.log.Info().Str("room", roomID).Str("agent", agentID).Msg("agent joined")
	return nil
}

// RemoveAgent takes an active agent out of the room. The capacity decrement
// happens durably when the participant_removed job lands; the read here is
// for validation and logging only.
func (s *ParticipantService) RemoveAgent(ctx context.Context, roomID, agentID string) error {
	members, err := s.rooms.Participants(ctx, roomID)
	if err != nil {
		return err
	}
	member := models.AgentMember(agentID)
	active := false
	for _, m := range members {
		if m == member {
			active = true
			break
		}
	}
	if !active {
		return ErrAgentNotInRoom
	}

	if capacity, err := s.store.FindAgentCapacity(ctx, agentID); err == nil {
		s.log.Debug().Str("agent", agentID).Int("current_chats", capacity.CurrentChats).Msg("agent leaving room")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Warn().Err(err).Str("agent", agentID).Msg("capacity read failed on leave")
	}

	now := time.Now()
	s.cache.SRem(ctx, cache.ParticipantsKey(roomID), member)
	s.rooms.InvalidateRoom(ctx, roomID)

	s.writer.Enqueue(queue.JobParticipantRemoved, roomID+":"+member, models.Participant{
		RoomID:    roomID,
		ActorType: models.ActorAgent,
		ActorID:   agentID,
	})
	entry := models.SessionHistory{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		ActorID:   member,
		Event:     "left",
		Reason:    "manual",
		CreatedAt: now,
	}
	s.writer.Enqueue(queue.JobSessionHistory, entry.ID, entry)
	s.log.Info().Str("room", roomID).Str("agent", agentID).Msg("agent left")
	return nil
}

// UpdateChatWindowStatus keeps at most one OPEN room per agent. The durable
// transaction is all-or-nothing; afterwards every affected room's cache
// entry is invalidated.
func (s *ParticipantService) UpdateChatWindowStatus(ctx context.Context, agentID, roomID, status, roomInFocus string) error {
	switch status {
	case models.WindowOpen, models.WindowInBackground, models.WindowMinimized, models.WindowClosed:
	default:
		return ErrInvalidWindowStatus
	}

	affected, err := s.store.UpdateChatWindowStatusTx(ctx, agentID, roomID, status, roomInFocus)
	if err != nil {
		return err
	}
	for _, id := range affected {
		s.rooms.InvalidateRoom(ctx, id)
	}
	return nil
}
