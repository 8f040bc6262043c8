package models

import (
	"fmt"
	"time"
)

// SenderType discriminates who produced a message. Branches on it must be
// exhaustive; SenderName and DurableSource cover every value.
type SenderType string

const (
	SenderVisitor       SenderType = "visitor"
	SenderAgent         SenderType = "agent"
	SenderVisitorSystem SenderType = "visitor-system"
	SenderAgentSystem   SenderType = "agent-system"
	SenderTriggered     SenderType = "triggered-message"
)

const (
	MessageText = "text"
	MessageFile = "file"
)

// Message is immutable once created; only delivery/read annotations are
// added afterwards, and those live in their own cache keys.
type Message struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	RoomID     string     `json:"room_id" gorm:"index"`
	SenderType SenderType `json:"sender_type"`
	SenderID   string     `json:"sender_id"`
	SenderName string     `json:"sender_name,omitempty"`
	Type       string     `json:"type"` // text, file
	Source     string     `json:"source,omitempty"` // visitor, agent, trigger; set durably
	Content    string     `json:"content" gorm:"type:text"`
	IsInternal bool       `json:"is_internal"`
	FileURL    string     `json:"file_url,omitempty"`
	FileName   string     `json:"file_name,omitempty"`
	FileMime   string     `json:"file_mime,omitempty"`
	FileSize   int64      `json:"file_size,omitempty"`
	PreviewURL string     `json:"preview_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// DisplayName resolves the name rendered next to the message.
func (m Message) DisplayName() string {
	switch m.SenderType {
	case SenderVisitor:
		if m.SenderName != "" {
			return m.SenderName
		}
		return "Visitor"
	case SenderAgent:
		return m.SenderName
	case SenderVisitorSystem, SenderAgentSystem:
		return "System"
	case SenderTriggered:
		return "Triggered message"
	default:
		return string(m.SenderType)
	}
}

// DurableSource maps the sender onto the durable schema's source column.
func (m Message) DurableSource() (string, error) {
	switch m.SenderType {
	case SenderVisitor, SenderVisitorSystem:
		return "visitor", nil
	case SenderAgent, SenderAgentSystem:
		return "agent", nil
	case SenderTriggered:
		return "trigger", nil
	default:
		return "", fmt.Errorf("unknown sender type %q", m.SenderType)
	}
}

// FromAgent reports whether the message counts toward agent response times.
func (m Message) FromAgent() bool {
	return m.SenderType == SenderAgent && !m.IsInternal
}
