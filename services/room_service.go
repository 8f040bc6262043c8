package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/cache"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/models"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/queue"
)

// RoomService is the cache-first room store. Every mutation in the engine
// funnels room invalidation and activity re-scoring through here, so no
// caller can leave a stale snapshot behind.
type RoomService struct {
	store    Store
	cache    Cache
	writer   Enqueuer
	notifier Notifier
	bridge   Bridge
	window   int64
	log      zerolog.Logger
}

func NewRoomService(store Store, c Cache, writer Enqueuer, notifier Notifier, bridge Bridge, window int, log zerolog.Logger) *RoomService {
	if window <= 0 {
		window = 50
	}
	return &RoomService{
		store:    store,
		cache:    c,
		writer:   writer,
		notifier: notifier,
		bridge:   bridge,
		window:   int64(window),
		log:      log.With().Str("component", "rooms").Logger(),
	}
}

// CreateRoom is idempotent per visitor session: a second call with the same
// session id returns the existing room unchanged. Creation marks the
// visitor's other active sessions away, so a visitor has one live room at a
// time.
func (s *RoomService) CreateRoom(ctx context.Context, visitorID, workspaceID, visitorSessionID string, servingDepartment *string) (*models.RoomSnapshot, error) {
	existing, err := s.store.FindRoomBySession(ctx, visitorSessionID)
	if err == nil {
		return s.GetRoom(ctx, existing.ID, workspaceID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check existing room for session %s: %w", visitorSessionID, err)
	}

	now := time.Now()
	room := models.Room{
		ID:                  uuid.New().String(),
		WorkspaceID:         workspaceID,
		VisitorID:           visitorID,
		VisitorSessionID:    visitorSessionID,
		ServingDepartmentID: servingDepartment,
		CreatedAt:           now,
		LastActivityAt:      now,
	}
	visitor := models.Participant{
		RoomID:    room.ID,
		ActorType: models.ActorVisitor,
		ActorID:   visitorID,
		Active:    true,
		JoinedAt:  now,
	}
	snapshot := &models.RoomSnapshot{
		Room:         room,
		Participants: []models.Participant{visitor},
	}
	if servingDepartment != nil {
		snapshot.CurrentDepartment = *servingDepartment
		snapshot.Departments = []string{*servingDepartment}
	}

	s.writeSnapshot(ctx, snapshot)
	s.cache.SAdd(ctx, cache.ParticipantsKey(room.ID), cache.TTLParticipants, visitor.Member())
	if servingDepartment != nil {
		s.cache.SAdd(ctx, cache.DepartmentsKey(room.ID), cache.TTLDepartments, *servingDepartment)
		s.cache.Set(ctx, cache.CurrentDepartmentKey(room.ID), *servingDepartment, cache.TTLDepartments)
	}
	s.Touch(ctx, room.ID, workspaceID, now)

	s.writer.Enqueue(queue.JobRoomCreated, room.ID, room)
	s.writer.Enqueue(queue.JobParticipantAdded, room.ID+":"+visitor.Member(), visitor)
	s.writer.Enqueue(queue.JobSessionAway, visitorSessionID, queue.SessionAway{
		VisitorID:       visitorID,
		ExceptSessionID: visitorSessionID,
	})
	s.notifier.Notify("new_chat", map[string]string{
		"room_id":      room.ID,
		"workspace_id": workspaceID,
		"visitor_id":   visitorID,
	})
	if s.bridge != nil {
		s.bridge.Activate(workspaceID, room.ID)
	}

	s.log.Info().Str("room", room.ID).Str("workspace", workspaceID).Msg("room created")
	return snapshot, nil
}

// GetRoom serves the cached snapshot when present, otherwise reconstructs
// the projection from the durable store and best-effort repopulates the
// cache.
func (s *RoomService) GetRoom(ctx context.Context, roomID, workspaceID string) (*models.RoomSnapshot, error) {
	if data, ok := s.cache.Get(ctx, cache.RoomKey(roomID)); ok {
		var snapshot models.RoomSnapshot
		if err := json.Unmarshal([]byte(data), &snapshot); err == nil && snapshot.WorkspaceID == workspaceID {
			return &snapshot, nil
		}
	}

	snapshot, err := s.store.FindRoom(ctx, roomID, workspaceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	s.repopulate(ctx, snapshot)
	return snapshot, nil
}

// InvalidateRoom deletes the cached snapshot so the next read recomputes
// from the freshest state. Called by every room mutation.
func (s *RoomService) InvalidateRoom(ctx context.Context, roomID string) {
	s.cache.Del(ctx, cache.RoomKey(roomID))
}

// Touch re-scores the room in the workspace's activity-sorted index and
// records the durable activity bump.
func (s *RoomService) Touch(ctx context.Context, roomID, workspaceID string, at time.Time) {
	s.cache.ZAdd(ctx, cache.WorkspaceRoomsKey(workspaceID), roomID, float64(at.Unix()), cache.TTLWorkspaceIndex)
	s.writer.Enqueue(queue.JobRoomActivity, roomID, queue.RoomActivity{RoomID: roomID, At: at})
}

// History pages durable message history, caching each page briefly.
func (s *RoomService) History(ctx context.Context, roomID string, page, limit int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = int(s.window)
	}
	key := cache.HistoryKey(roomID, page, limit)
	if data, ok := s.cache.Get(ctx, key); ok {
		var messages []models.Message
		if err := json.Unmarshal([]byte(data), &messages); err == nil {
			return messages, nil
		}
	}

	messages, err := s.store.FindMessages(ctx, roomID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(messages); err == nil {
		s.cache.Set(ctx, key, string(data), cache.TTLHistory)
	}
	return messages, nil
}

// Participants returns the active participant set, cache first. A live room
// always holds at least its visitor member, so an empty cached set means the
// key expired, not an empty room; both cases reconstruct from the durable
// store.
func (s *RoomService) Participants(ctx context.Context, roomID string) ([]string, error) {
	if members, ok := s.cache.SMembers(ctx, cache.ParticipantsKey(roomID)); ok && len(members) > 0 {
		return members, nil
	}
	participants, err := s.store.FindParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	members := make([]string, 0, len(participants))
	for _, p := range participants {
		members = append(members, p.Member())
	}
	if len(members) > 0 {
		s.cache.SAdd(ctx, cache.ParticipantsKey(roomID), cache.TTLParticipants, members...)
	}
	return members, nil
}

func (s *RoomService) writeSnapshot(ctx context.Context, snapshot *models.RoomSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		s.log.Error().Err(err).Str("room", snapshot.ID).Msg("unmarshalable snapshot")
		return
	}
	s.cache.Set(ctx, cache.RoomKey(snapshot.ID), string(data), cache.TTLRoom)
}

// repopulate pushes a reconstructed projection back into every cache key it
// was rebuilt from. Best effort: failures leave the durable read path in
// charge.
func (s *RoomService) repopulate(ctx context.Context, snapshot *models.RoomSnapshot) {
	s.writeSnapshot(ctx, snapshot)

	if len(snapshot.Participants) > 0 {
		members := make([]string, 0, len(snapshot.Participants))
		for _, p := range snapshot.Participants {
			members = append(members, p.Member())
		}
		s.cache.SAdd(ctx, cache.ParticipantsKey(snapshot.ID), cache.TTLParticipants, members...)
	}

	// Messages arrive newest first; replay oldest first so LPUSH leaves the
	// newest at the head.
	for i := len(snapshot.Messages) - 1; i >= 0; i-- {
		data, err := json.Marshal(snapshot.Messages[i])
		if err != nil {
			continue
		}
		s.cache.LPushTrim(ctx, cache.MessagesKey(snapshot.ID), string(data), s.window, cache.TTLMessages)
	}

	if len(snapshot.Departments) > 0 {
		s.cache.SAdd(ctx, cache.DepartmentsKey(snapshot.ID), cache.TTLDepartments, snapshot.Departments...)
	}
	if snapshot.CurrentDepartment != "" {
		s.cache.Set(ctx, cache.CurrentDepartmentKey(snapshot.ID), snapshot.CurrentDepartment, cache.TTLDepartments)
	}
	s.cache.ZAdd(ctx, cache.WorkspaceRoomsKey(snapshot.WorkspaceID), snapshot.ID,
		float64(snapshot.LastActivityAt.Unix()), cache.TTLWorkspaceIndex)
}
