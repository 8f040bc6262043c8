package models

import "time"

// RoomAnalytics accumulates per-room counters applied as upsert deltas by
// the durable write queue.
type RoomAnalytics struct {
	RoomID              string     `json:"room_id" gorm:"primaryKey"`
	MessageCount        int        `json:"message_count"`
	VisitorMessageCount int        `json:"visitor_message_count"`
	AgentMessageCount   int        `json:"agent_message_count"`
	FirstResponseAt     *time.Time `json:"first_response_at,omitempty"`
	LastActivityAt      time.Time  `json:"last_activity_at"`
}

// AuditEvent is the durable copy of ephemeral state changes (typing,
// delivery, read). It is telemetry: losing one is acceptable.
type AuditEvent struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	RoomID    string    `json:"room_id" gorm:"index"`
	ActorID   string    `json:"actor_id"`
	Kind      string    `json:"kind"` // typing, delivered, read
	MessageID string    `json:"message_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
