package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/models"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/queue"
)

// Apply executes a write-queue batch as one transaction. Every mutation is
// an upsert on the cache-side id, so the write queue can retry a failed
// batch without duplicating state. Unknown or malformed jobs are logged and
// skipped: failing the whole batch would wedge the retry loop on a job that
// can never succeed.
func (s *Store) Apply(ctx context.Context, jobs []queue.Job) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, job := range jobs {
			if err := s.applyJob(tx, job); err != nil {
				return fmt.Errorf("apply %s %s: %w", job.Kind, job.Key, err)
			}
		}
		return nil
	})
}

func (s *Store) applyJob(tx *gorm.DB, job queue.Job) error {
	switch job.Kind {
	case queue.JobRoomCreated:
		var room models.Room
		if err := json.Unmarshal(job.Payload, &room); err != nil {
			s.skip(job, err)
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&room).Error; err != nil {
			return err
		}
		session := models.VisitorSession{
			ID:          room.VisitorSessionID,
			VisitorID:   room.VisitorID,
			WorkspaceID: room.WorkspaceID,
			Status:      models.SessionActive,
			CreatedAt:   room.CreatedAt,
			UpdatedAt:   room.CreatedAt,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&session).Error

	case queue.JobMessageCreated:
		var message models.Message
		if err := json.Unmarshal(job.Payload, &message); err != nil {
			s.skip(job, err)
			return nil
		}
		row, err := durableMessage(message)
		if err != nil {
			s.skip(job, err)
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&row).Error

	case queue.JobParticipantAdded:
		var participant models.Participant
		if err := json.Unmarshal(job.Payload, &participant); err != nil {
			s.skip(job, err)
			return nil
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "room_id"}, {Name: "actor_type"}, {Name: "actor_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"active":    true,
				"joined_at": participant.JoinedAt,
				"left_at":   nil,
			}),
		}).Create(&participant).Error
		if err != nil {
			return err
		}
		if participant.ActorType == models.ActorAgent {
			return tx.Model(&models.AgentCapacity{}).
				Where("agent_id = ?", participant.ActorID).
				Update("current_chats", gorm.Expr("current_chats + 1")).Error
		}
		return nil

	case queue.JobParticipantRemoved:
		var participant models.Participant
		if err := json.Unmarshal(job.Payload, &participant); err != nil {
			s.skip(job, err)
			return nil
		}
		now := time.Now()
		err := tx.Model(&models.Participant{}).
			Where("room_id = ? AND actor_type = ? AND actor_id = ? AND active = ?",
				participant.RoomID, participant.ActorType, participant.ActorID, true).
			Updates(map[string]interface{}{"active": false, "left_at": now}).Error
		if err != nil {
			return err
		}
		if participant.ActorType == models.ActorAgent {
			return tx.Model(&models.AgentCapacity{}).
				Where("agent_id = ? AND current_chats > 0", participant.ActorID).
				Update("current_chats", gorm.Expr("current_chats - 1")).Error
		}
		return nil

	case queue.JobSessionHistory:
		var entry models.SessionHistory
		if err := json.Unmarshal(job.Payload, &entry); err != nil {
			s.skip(job, err)
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&entry).Error

	case queue.JobSessionAway:
		var away queue.SessionAway
		if err := json.Unmarshal(job.Payload, &away); err != nil {
			s.skip(job, err)
			return nil
		}
		return tx.Model(&models.VisitorSession{}).
			Where("visitor_id = ? AND id <> ? AND status = ?",
				away.VisitorID, away.ExceptSessionID, models.SessionActive).
			Updates(map[string]interface{}{"status": models.SessionAway, "updated_at": time.Now()}).Error

	case queue.JobAnalyticsDelta:
		var delta queue.AnalyticsDelta
		if err := json.Unmarshal(job.Payload, &delta); err != nil {
			s.skip(job, err)
			return nil
		}
		return s.upsertAnalytics(tx, delta)

	case queue.JobRoomActivity:
		var activity queue.RoomActivity
		if err := json.Unmarshal(job.Payload, &activity); err != nil {
			s.skip(job, err)
			return nil
		}
		return tx.Model(&models.Room{}).
			Where("id = ? AND last_activity_at < ?", activity.RoomID, activity.At).
			Update("last_activity_at", activity.At).Error

	case queue.JobRoomDepartment:
		var dept queue.RoomDepartment
		if err := json.Unmarshal(job.Payload, &dept); err != nil {
			s.skip(job, err)
			return nil
		}
		return tx.Model(&models.Room{}).
			Where("id = ?", dept.RoomID).
			Update("serving_department_id", dept.Department).Error

	case queue.JobAuditEvent:
		var event models.AuditEvent
		if err := json.Unmarshal(job.Payload, &event); err != nil {
			s.skip(job, err)
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&event).Error

	default:
		s.log.Warn().Str("kind", string(job.Kind)).Str("key", job.Key).Msg("unknown job kind, skipping")
		return nil
	}
}

// durableMessage maps a cache-side message onto the durable schema: the
// sender type routes to the source column and the rendered display name is
// pinned so anonymous visitors stay attributable. An unknown sender type is
// a malformed payload.
func durableMessage(m models.Message) (models.Message, error) {
	source, err := m.DurableSource()
	if err != nil {
		return models.Message{}, err
	}
	m.Source = source
	m.SenderName = m.DisplayName()
	return m, nil
}

// upsertAnalytics folds a counter delta into the per-room analytics row.
// first_response_at only moves from NULL to a value, never backwards.
func (s *Store) upsertAnalytics(tx *gorm.DB, delta queue.AnalyticsDelta) error {
	row := models.RoomAnalytics{
		RoomID:              delta.RoomID,
		MessageCount:        delta.MessageCount,
		VisitorMessageCount: delta.VisitorMessageCount,
		AgentMessageCount:   delta.AgentMessageCount,
		FirstResponseAt:     delta.FirstResponseAt,
		LastActivityAt:      delta.LastActivityAt,
	}
	assignments := map[string]interface{}{
		"message_count":         gorm.Expr("room_analytics.message_count + ?", delta.MessageCount),
		"visitor_message_count": gorm.Expr("room_analytics.visitor_message_count + ?", delta.VisitorMessageCount),
		"agent_message_count":   gorm.Expr("room_analytics.agent_message_count + ?", delta.AgentMessageCount),
		"last_activity_at":      delta.LastActivityAt,
	}
	if delta.FirstResponseAt != nil {
		assignments["first_response_at"] = gorm.Expr("COALESCE(room_analytics.first_response_at, ?)", *delta.FirstResponseAt)
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&row).Error
}

func (s *Store) skip(job queue.Job, err error) {
	s.log.Error().Err(err).Str("kind", string(job.Kind)).Str("key", job.Key).Msg("malformed job payload, skipping")
}
