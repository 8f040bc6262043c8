package cache

import (
	"fmt"
	"time"
)

// Key derivation for everything the engine caches. Every key is namespaced
// by entity type and scoped ids so invalidation is unambiguous. TTLs follow
// data volatility: snapshots and membership sets live for hours, paginated
// history and cross-room indexes for minutes, typing state for seconds.
const (
	TTLRoom           = 6 * time.Hour
	TTLParticipants   = 6 * time.Hour
	TTLDepartments    = 6 * time.Hour
	TTLMessages       = 6 * time.Hour
	TTLWorkspaceIndex = 10 * time.Minute
	TTLHistory        = 5 * time.Minute
	TTLTyping         = 30 * time.Second
	TTLReceipt        = time.Hour
	TTLUnread         = 10 * time.Minute
)

func RoomKey(roomID string) string {
	return fmt.Sprintf("room:%s:data", roomID)
}

func ParticipantsKey(roomID string) string {
	return fmt.Sprintf("room:%s:participants", roomID)
}

func MessagesKey(roomID string) string {
	return fmt.Sprintf("room:%s:messages", roomID)
}

func DepartmentsKey(roomID string) string {
	return fmt.Sprintf("room:%s:departments", roomID)
}

func CurrentDepartmentKey(roomID string) string {
	return fmt.Sprintf("room:%s:current_department", roomID)
}

// WorkspaceRoomsKey is a sorted set scored by last-activity epoch, so the
// most recently active room always sorts first.
func WorkspaceRoomsKey(workspaceID string) string {
	return fmt.Sprintf("workspace:%s:rooms", workspaceID)
}

func HistoryKey(roomID string, page, limit int) string {
	return fmt.Sprintf("room:%s:history:%d:%d", roomID, page, limit)
}

func TypingKey(roomID, participantID string) string {
	return fmt.Sprintf("typing:%s:%s", roomID, participantID)
}

func DeliveryKey(messageID string) string {
	return fmt.Sprintf("message:%s:delivery", messageID)
}

func ReadKey(messageID string) string {
	return fmt.Sprintf("message:%s:read", messageID)
}

func UnreadKey(roomID, userID string) string {
	return fmt.Sprintf("room:%s:user:%s:unread", roomID, userID)
}
