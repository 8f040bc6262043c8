package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	ActorVisitor = "visitor"
	ActorAgent   = "agent"
)

// Participant is a (room, actor) membership row. The cache keeps the same
// set as Redis set members in "type:id" form.
type Participant struct {
	RoomID    string     `json:"room_id" gorm:"primaryKey"`
	ActorType string     `json:"actor_type" gorm:"primaryKey"`
	ActorID   string     `json:"actor_id" gorm:"primaryKey"`
	Active    bool       `json:"active"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}

// Member renders the cache set member for this participant.
func (p Participant) Member() string {
	return fmt.Sprintf("%s:%s", p.ActorType, p.ActorID)
}

// ParseMember splits a cache set member back into actor type and id.
func ParseMember(member string) (actorType, actorID string) {
	parts := strings.SplitN(member, ":", 2)
	if len(parts) != 2 {
		return "", member
	}
	return parts[0], parts[1]
}

// AgentMember and VisitorMember build cache set members directly.
func AgentMember(agentID string) string { return ActorAgent + ":" + agentID }

func VisitorMember(visitorID string) string { return ActorVisitor + ":" + visitorID }

// Chat window statuses for an agent's open conversations. An agent has at
// most one OPEN room at a time.
const (
	WindowOpen         = "OPEN"
	WindowInBackground = "IN_BACKGROUND"
	WindowMinimized    = "MINIMIZED"
	WindowClosed       = "CLOSED"
)

type ChatWindow struct {
	AgentID   string    `json:"agent_id" gorm:"primaryKey"`
	RoomID    string    `json:"room_id" gorm:"primaryKey"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}
