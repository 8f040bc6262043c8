package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/models"
)

// Store is the durable side of the engine. Every write is an upsert keyed
// by the same id the cache uses, so a retried batch applies cleanly.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

func New(db *gorm.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "store").Logger(),
	}
}

// FindRoom reconstructs the full room projection: the row itself, the
// participant set and the recent message window. Used on cache miss.
func (s *Store) FindRoom(ctx context.Context, roomID, workspaceID string) (*models.RoomSnapshot, error) {
	var room models.Room
	err := s.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", roomID, workspaceID).
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find room %s: %w", roomID, err)
	}

	snapshot := &models.RoomSnapshot{Room: room}
	if room.ServingDepartmentID != nil {
		snapshot.CurrentDepartment = *room.ServingDepartmentID
		snapshot.Departments = []string{*room.ServingDepartmentID}
	}

	err = s.db.WithContext(ctx).
		Where("room_id = ? AND active = ?", roomID, true).
		Find(&snapshot.Participants).Error
	if err != nil {
		return nil, fmt.Errorf("find room %s participants: %w", roomID, err)
	}

	err = s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(50).
		Find(&snapshot.Messages).Error
	if err != nil {
		return nil, fmt.Errorf("find room %s messages: %w", roomID, err)
	}

	return snapshot, nil
}

// FindParticipants returns a room's active participants.
func (s *Store) FindParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND active = ?", roomID, true).
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("find participants for room %s: %w", roomID, err)
	}
	return participants, nil
}

// FindRoomBySession backs CreateRoom's idempotency: one room per visitor
// session, ever.
func (s *Store) FindRoomBySession(ctx context.Context, visitorSessionID string) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).
		Where("visitor_session_id = ?", visitorSessionID).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// FindMessages pages durable history, newest first.
func (s *Store) FindMessages(ctx context.Context, roomID string, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("find messages for room %s: %w", roomID, err)
	}
	return messages, nil
}

// FindAgentCapacity reads the authoritative capacity record. Capacity is
// never cached: it aggregates the agent's chats across rooms.
func (s *Store) FindAgentCapacity(ctx context.Context, agentID string) (*models.AgentCapacity, error) {
	var capacity models.AgentCapacity
	err := s.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		First(&capacity).Error
	if err != nil {
		return nil, err
	}
	return &capacity, nil
}

// UpdateChatWindowStatusTx applies the one-OPEN-room-per-agent rule in a
// single transaction. Setting a room OPEN demotes the agent's other OPEN
// rooms to IN_BACKGROUND; closing or minimizing may promote a named room
// back to OPEN. Returns every room whose window row changed so callers can
// invalidate their cache entries.
func (s *Store) UpdateChatWindowStatusTx(ctx context.Context, agentID, roomID, status, roomInFocus string) ([]string, error) {
	affected := []string{roomID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		if status == models.WindowOpen {
			var demoted []models.ChatWindow
			err := tx.Where("agent_id = ? AND room_id <> ? AND status = ?", agentID, roomID, models.WindowOpen).
				Find(&demoted).Error
			if err != nil {
				return err
			}
			for _, w := range demoted {
				affected = append(affected, w.RoomID)
			}
			err = tx.Model(&models.ChatWindow{}).
				Where("agent_id = ? AND room_id <> ? AND status = ?", agentID, roomID, models.WindowOpen).
				Updates(map[string]interface{}{"status": models.WindowInBackground, "updated_at": now}).Error
			if err != nil {
				return err
			}
		}

		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}, {Name: "room_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"status": status, "updated_at": now}),
		}).Create(&models.ChatWindow{
			AgentID:   agentID,
			RoomID:    roomID,
			Status:    status,
			UpdatedAt: now,
		}).Error
		if err != nil {
			return err
		}

		if status != models.WindowOpen && roomInFocus != "" && roomInFocus != roomID {
			// The promotion must demote whatever else is OPEN, or a close
			// whose subject was not the OPEN room leaves two OPEN rows.
			var demoted []models.ChatWindow
			err = tx.Where("agent_id = ? AND room_id <> ? AND status = ?", agentID, roomInFocus, models.WindowOpen).
				Find(&demoted).Error
			if err != nil {
				return err
			}
			for _, w := range demoted {
				affected = append(affected, w.RoomID)
			}
			err = tx.Model(&models.ChatWindow{}).
				Where("agent_id = ? AND room_id <> ? AND status = ?", agentID, roomInFocus, models.WindowOpen).
				Updates(map[string]interface{}{"status": models.WindowInBackground, "updated_at": now}).Error
			if err != nil {
				return err
			}

			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "agent_id"}, {Name: "room_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"status": models.WindowOpen, "updated_at": now}),
			}).Create(&models.ChatWindow{
				AgentID:   agentID,
				RoomID:    roomInFocus,
				Status:    models.WindowOpen,
				UpdatedAt: now,
			}).Error
			if err != nil {
				return err
			}
			affected = append(affected, roomInFocus)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update chat window for agent %s: %w", agentID, err)
	}
	return affected, nil
}

// UpsertAuditEvent stores the durable copy of an ephemeral-state event.
func (s *Store) UpsertAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(event).Error
}
