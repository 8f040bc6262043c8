package models

import "time"

// Room binds one visitor session to zero or more agents. Rooms are never
// physically deleted; the cache entry expires and the session status closes
// the conversation logically.
type Room struct {
	ID                  string    `json:"id" gorm:"primaryKey"`
	WorkspaceID         string    `json:"workspace_id" gorm:"index"`
	VisitorID           string    `json:"visitor_id" gorm:"index"`
	VisitorSessionID    string    `json:"visitor_session_id" gorm:"uniqueIndex"`
	ServingDepartmentID *string   `json:"serving_department_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	LastActivityAt      time.Time `json:"last_activity_at"`
}

// RoomSnapshot is the cached projection served on reads. It carries the
// participant set, the bounded recent-message window and the department set
// alongside the room row itself.
type RoomSnapshot struct {
	Room
	Participants      []Participant `json:"participants" gorm:"-"`
	Messages          []Message     `json:"messages" gorm:"-"`
	Departments       []string      `json:"departments" gorm:"-"`
	CurrentDepartment string        `json:"current_department,omitempty" gorm:"-"`
}

// VisitorSession tracks the lifecycle of one widget session. A visitor has
// at most one active session; creating a room for a new session marks the
// visitor's other active sessions away.
type VisitorSession struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	VisitorID   string    `json:"visitor_id" gorm:"index"`
	WorkspaceID string    `json:"workspace_id"`
	Status      string    `json:"status"` // active, away, ended
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	SessionActive = "active"
	SessionAway   = "away"
	SessionEnded  = "ended"
)

// SessionHistory records join/leave transitions with a reason code. The ID
// is assigned by the caller so retried durable writes stay idempotent.
type SessionHistory struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	RoomID    string    `json:"room_id" gorm:"index"`
	ActorID   string    `json:"actor_id"`
	Event     string    `json:"event"`  // joined, left
	Reason    string    `json:"reason"` // transfer_in, transfer_out, invited, department_transfer, manual
	CreatedAt time.Time `json:"created_at"`
}
