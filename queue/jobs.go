package queue

import (
	"encoding/json"
	"time"
)

// JobKind identifies the durable mutation a queued job carries.
type JobKind string

const (
	JobRoomCreated        JobKind = "room_created"
	JobMessageCreated     JobKind = "message_created"
	JobParticipantAdded   JobKind = "participant_added"
	JobParticipantRemoved JobKind = "participant_removed"
	JobSessionHistory     JobKind = "session_history"
	JobSessionAway        JobKind = "session_away"
	JobAnalyticsDelta     JobKind = "analytics_delta"
	JobRoomActivity       JobKind = "room_activity"
	JobRoomDepartment     JobKind = "room_department"
	JobAuditEvent         JobKind = "audit_event"
)

// Job is one pending durable write. Key is the identity the durable side
// upserts on, so a retried batch never duplicates state.
type Job struct {
	Kind       JobKind         `json:"kind"`
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// AnalyticsDelta increments per-room counters. FirstResponseAt is only set
// when this mutation may establish the first agent response.
type AnalyticsDelta struct {
	RoomID              string     `json:"room_id"`
	MessageCount        int        `json:"message_count"`
	VisitorMessageCount int        `json:"visitor_message_count"`
	AgentMessageCount   int        `json:"agent_message_count"`
	FirstResponseAt     *time.Time `json:"first_response_at,omitempty"`
	LastActivityAt      time.Time  `json:"last_activity_at"`
}

// RoomActivity bumps a room's last-activity timestamp.
type RoomActivity struct {
	RoomID string    `json:"room_id"`
	At     time.Time `json:"at"`
}

// RoomDepartment moves a room's serving department.
type RoomDepartment struct {
	RoomID     string  `json:"room_id"`
	Department *string `json:"department"`
}

// SessionAway marks a visitor's other active sessions away, enforcing the
// one-live-room-per-visitor policy.
type SessionAway struct {
	VisitorID       string `json:"visitor_id"`
	ExceptSessionID string `json:"except_session_id"`
}
