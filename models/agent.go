package models

import "time"

// AgentCapacity is authoritative in the durable store, never cached: the
// chat count aggregates across rooms, so a per-room cache cannot answer it.
type AgentCapacity struct {
	AgentID            string    `json:"agent_id" gorm:"primaryKey"`
	DisplayName        string    `json:"display_name"`
	CurrentChats       int       `json:"current_chats"`
	MaxConcurrentChats int       `json:"max_concurrent_chats"`
	OnlineStatus       string    `json:"online_status"` // online, away, offline
	UpdatedAt          time.Time `json:"updated_at"`
}

func (a AgentCapacity) Online() bool {
	return a.OnlineStatus == "online"
}

func (a AgentCapacity) AtCapacity() bool {
	return a.MaxConcurrentChats > 0 && a.CurrentChats >= a.MaxConcurrentChats
}
