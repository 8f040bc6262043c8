package services

import (
	"context"
	"errors"
	"time"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/models"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/queue"
)

// Validation errors are surfaced to the caller and never retried. Cache
// outages are invisible here: the facade converts them into degraded reads.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrAgentNotFound       = errors.New("agent not found")
	ErrAgentAlreadyInRoom  = errors.New("agent is already an active participant")
	ErrRoomHasActiveAgent  = errors.New("another agent is already serving this room")
	ErrAgentNotInRoom      = errors.New("agent is not an active participant")
	ErrAgentOffline        = errors.New("agent is offline")
	ErrAgentAtCapacity     = errors.New("agent is at maximum concurrent chats")
	ErrDepartmentMismatch  = errors.New("department does not match the room's serving department")
	ErrDepartmentNotInRoom = errors.New("department is not attached to this room")
	ErrEmptyMessage        = errors.New("message content is empty")
	ErrTooManyMessages     = errors.New("message rate limit exceeded")
	ErrInvalidWindowStatus = errors.New("invalid chat window status")
)

// Cache is the resilient cache facade. Every method is best-effort: ok=false
// means the value is absent or the cache is unavailable, and callers proceed
// against the durable store instead.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
	Del(ctx context.Context, keys ...string) bool
	SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) bool
	SRem(ctx context.Context, key string, members ...string) bool
	SMembers(ctx context.Context, key string) ([]string, bool)
	SIsMember(ctx context.Context, key, member string) (bool, bool)
	LPushTrim(ctx context.Context, key, value string, max int64, ttl time.Duration) bool
	LRange(ctx context.Context, key string, start, stop int64) ([]string, bool)
	ZAdd(ctx context.Context, key, member string, score float64, ttl time.Duration) bool
	HSet(ctx context.Context, key string, ttl time.Duration, pairs ...string) bool
	HGetAll(ctx context.Context, key string) (map[string]string, bool)
}

// Store is the durable source of truth.
type Store interface {
	FindRoom(ctx context.Context, roomID, workspaceID string) (*models.RoomSnapshot, error)
	FindRoomBySession(ctx context.Context, visitorSessionID string) (*models.Room, error)
	FindMessages(ctx context.Context, roomID string, limit, offset int) ([]models.Message, error)
	FindParticipants(ctx context.Context, roomID string) ([]models.Participant, error)
	FindAgentCapacity(ctx context.Context, agentID string) (*models.AgentCapacity, error)
	UpdateChatWindowStatusTx(ctx context.Context, agentID, roomID, status, roomInFocus string) ([]string, error)
}

// Enqueuer is the durable write queue's inbound side.
type Enqueuer interface {
	Enqueue(kind queue.JobKind, key string, payload any)
}

// Jobs is the external job queue (response-time calculation, audit
// telemetry). Fire-and-forget.
type Jobs interface {
	Enqueue(queueName, jobType string, payload any, opts queue.JobOptions)
}

// Notifier dispatches chat notifications (new chat, transfers, invites).
type Notifier interface {
	Notify(eventType string, data any)
}

// Bridge is the outbound AI-bridge client. All calls are fire-and-forget.
type Bridge interface {
	Activate(workspaceID, roomID string)
	Deactivate(workspaceID, roomID string)
	VisitorMessage(workspaceID, roomID, content string)
}

// RateLimiter guards visitor message flooding.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
