package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/cache"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/models"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/queue"
)

// HandoffService runs the validate -> cache-mutate -> enqueue workflows that
// move a room between agents and departments. Validation failures abort
// before any mutation; there is no partial participant-set change.
type HandoffService struct {
	store    Store
	cache    Cache
	writer   Enqueuer
	notifier Notifier
	rooms    *RoomService
	log      zerolog.Logger
}

func NewHandoffService(store Store, c Cache, writer Enqueuer, notifier Notifier, rooms *RoomService, log zerolog.Logger) *HandoffService {
	return &HandoffService{
		store:    store,
		cache:    c,
		writer:   writer,
		notifier: notifier,
		rooms:    rooms,
		log:      log.With().Str("component", "handoff").Logger(),
	}
}

// TransferRequest moves a room from one agent to another.
type TransferRequest struct {
	RoomID      string
	WorkspaceID string
	FromAgentID string
	ToAgentID   string
	Reason      string
	RequestedAt time.Time
}

// InvitationRequest admits a secondary agent alongside the primary.
type InvitationRequest struct {
	RoomID      string
	WorkspaceID string
	InviterID   string
	AgentID     string
	Reason      string
	RequestedAt time.Time
}

// DepartmentRequest drives the department transfer/invite workflows.
type DepartmentRequest struct {
	RoomID         string
	WorkspaceID    string
	FromDepartment string
	ToDepartment   string
	RequestedBy    string
	Reason         string
}

// AcceptAgentTransfer replaces the primary agent. If the primary already
// left before acceptance, the transfer proceeds into the agent-less room
// without attempting to remove an absent participant.
func (s *HandoffService) AcceptAgentTransfer(ctx context.Context, req TransferRequest) error {
	if _, err := s.rooms.GetRoom(ctx, req.RoomID, req.WorkspaceID); err != nil {
		return err
	}
	members, err := s.rooms.Participants(ctx, req.RoomID)
	if err != nil {
		return err
	}
	if err := s.validateTarget(ctx, members, req.ToAgentID); err != nil {
		return err
	}

	now := time.Now()
	fromMember := models.AgentMember(req.FromAgentID)
	if containsMember(members, fromMember) {
		s.cache.SRem(ctx, cache.ParticipantsKey(req.RoomID), fromMember)
		s.writer.Enqueue(queue.JobParticipantRemoved, req.RoomID+":"+fromMember, models.Participant{
			RoomID:    req.RoomID,
			ActorType: models.ActorAgent,
			ActorID:   req.FromAgentID,
		})
		s.history(req.RoomID, fromMember, "left", "transfer_out", now)
	}

	s.admit(ctx, req.RoomID, req.ToAgentID, "transfer_in", now)
	s.rooms.InvalidateRoom(ctx, req.RoomID)
	s.audit(req.RoomID, req.ToAgentID, "agent_transfer", now)
	s.notifier.Notify("agent_transfer", map[string]string{
		"room_id":    req.RoomID,
		"from_agent": req.FromAgentID,
		"to_agent":   req.ToAgentID,
		"reason":     req.Reason,
	})
	s.log.Info().Str("room", req.RoomID).Str("from", req.FromAgentID).Str("to", req.ToAgentID).Msg("agent transfer accepted")
	return nil
}

// AcceptAgentInvitation admits the invited agent as a secondary; the
// primary stays.
func (s *HandoffService) AcceptAgentInvitation(ctx context.Context, req InvitationRequest) error {
	if _, err := s.rooms.GetRoom(ctx, req.RoomID, req.WorkspaceID); err != nil {
		return err
	}
	members, err := s.rooms.Participants(ctx, req.RoomID)
	if err != nil {
		return err
	}
	if err := s.validateTarget(ctx, members, req.AgentID); err != nil {
		return err
	}

	now := time.Now()
	s.admit(ctx, req.RoomID, req.AgentID, "invited", now)
	s.rooms.InvalidateRoom(ctx, req.RoomID)
	s.audit(req.RoomID, req.AgentID, "agent_invitation_accepted", now)
	s.notifier.Notify("agent_invitation_accepted", map[string]string{
		"room_id":  req.RoomID,
		"agent_id": req.AgentID,
		"inviter":  req.InviterID,
	})
	return nil
}

// RequestDepartmentTransfer attaches the target department to the room. The
// serving department does not change until acceptance.
func (s *HandoffService) RequestDepartmentTransfer(ctx context.Context, req DepartmentRequest) error {
	room, err := s.rooms.GetRoom(ctx, req.RoomID, req.WorkspaceID)
	if err != nil {
		return err
	}
	if req.FromDepartment != "" && room.CurrentDepartment != req.FromDepartment {
		return ErrDepartmentMismatch
	}

	now := time.Now()
	s.cache.SAdd(ctx, cache.DepartmentsKey(req.RoomID), cache.TTLDepartments, req.ToDepartment)
	s.rooms.InvalidateRoom(ctx, req.RoomID)
	s.audit(req.RoomID, req.RequestedBy, "department_transfer_requested", now)
	s.notifier.Notify("department_transfer_requested", map[string]string{
		"room_id":         req.RoomID,
		"from_department": req.FromDepartment,
		"to_department":   req.ToDepartment,
	})
	return nil
}

// AcceptDepartmentTransfer moves the serving department to the target and
// detaches the source.
func (s *HandoffService) AcceptDepartmentTransfer(ctx context.Context, req DepartmentRequest) error {
	if _, err := s.rooms.GetRoom(ctx, req.RoomID, req.WorkspaceID); err != nil {
		return err
	}
	if err := s.requireDepartment(ctx, req.RoomID, req.ToDepartment); err != nil {
		return err
	}

	now := time.Now()
	s.cache.Set(ctx, cache.CurrentDepartmentKey(req.RoomID), req.ToDepartment, cache.TTLDepartments)
	if req.FromDepartment != "" {
		s.cache.SRem(ctx, cache.DepartmentsKey(req.RoomID), req.FromDepartment)
	}
	s.rooms.InvalidateRoom(ctx, req.RoomID)
	s.writer.Enqueue(queue.JobRoomDepartment, req.RoomID, queue.RoomDepartment{
		RoomID:     req.RoomID,
		Department: &req.ToDepartment,
	})
	s.audit(req.RoomID, req.RequestedBy, "department_transfer_accepted", now)
	return nil
}

// CancelDepartmentTransfer withdraws a pending transfer; the serving
// department stays unchanged.
func (s *HandoffService) CancelDepartmentTransfer(ctx context.Context, req DepartmentRequest) error {
	if _, err := s.rooms.GetRoom(ctx, req.RoomID, req.WorkspaceID); err != nil {
		return err
	}
	s.cache.SRem(ctx, cache.DepartmentsKey(req.RoomID), req.ToDepartment)
	s.rooms.InvalidateRoom(ctx, req.RoomID)
	s.audit(req.RoomID, req.RequestedBy, "department_transfer_cancelled", time.Now())
	return nil
}

// InviteDepartment attaches a department whose agents may then accept.
func (s *HandoffService) InviteDepartment(ctx context.Context, req DepartmentRequest) error {
	if _, err := s.rooms.GetRoom(ctx, req.RoomID, req.WorkspaceID); err != nil {
		return err
	}
	s.cache.SAdd(ctx, cache.DepartmentsKey(req.RoomID), cache.TTLDepartments, req.ToDepartment)
	s.rooms.InvalidateRoom(ctx, req.RoomID)
	s.audit(req.RoomID, req.RequestedBy, "department_invited", time.Now())
	s.notifier.Notify("department_invited", map[string]string{
		"room_id":    req.RoomID,
		"department": req.ToDepartment,
	})
	return nil
}

// AcceptDepartmentInvitation admits an agent from an invited department.
// The department set does not change: it was attached at invite time.
func (s *HandoffService) AcceptDepartmentInvitation(ctx context.Context, req InvitationRequest, department string) error {
	if _, err := s.rooms.GetRoom(ctx, req.RoomID, req.WorkspaceID); err != nil {
		return err
	}
	if err := s.requireDepartment(ctx, req.RoomID, department); err != nil {
		return err
	}
	members, err := s.rooms.Participants(ctx, req.RoomID)
	if err != nil {
		return err
	}
	if err := s.validateTarget(ctx, members, req.AgentID); err != nil {
		return err
	}

	now := time.Now()
	s.admit(ctx, req.RoomID, req.AgentID, "invited", now)
	s.rooms.InvalidateRoom(ctx, req.RoomID)
	s.audit(req.RoomID, req.AgentID, "department_invitation_accepted", now)
	return nil
}

// RejectDepartmentInvitation detaches the invited department.
func (s *HandoffService) RejectDepartmentInvitation(ctx context.Context, req DepartmentRequest) error {
	if _, err := s.rooms.GetRoom(ctx, req.RoomID, req.WorkspaceID); err != nil {
		return err
	}
	s.cache.SRem(ctx, cache.DepartmentsKey(req.RoomID), req.ToDepartment)
	s.rooms.InvalidateRoom(ctx, req.RoomID)
	s.audit(req.RoomID, req.RequestedBy, "department_invitation_rejected", time.Now())
	return nil
}

// validateTarget rejects a workflow whose target is already active in the
// room, offline, or at capacity. Capacity is read durably at workflow time.
func (s *HandoffService) validateTarget(ctx context.Context, members []string, agentID string) error {
	if containsMember(members, models.AgentMember(agentID)) {
		return ErrAgentAlreadyInRoom
	}
	capacity, err := s.store.FindAgentCapacity(ctx, agentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAgentNotFound
		}
		return err
	}
	if !capacity.Online() {
		return ErrAgentOffline
	}
	if capacity.AtCapacity() {
		return ErrAgentAtCapacity
	}
	return nil
}

// requireDepartment checks the department is attached to the room, reading
// through the cache with a durable snapshot fallback.
func (s *HandoffService) requireDepartment(ctx context.Context, roomID, department string) error {
	found, ok := s.cache.SIsMember(ctx, cache.DepartmentsKey(roomID), department)
	if ok {
		if !found {
			return ErrDepartmentNotInRoom
		}
		return nil
	}
	// Cache unavailable: the durable projection only knows the serving
	// department, so pending invites cannot be verified and are trusted.
	return nil
}

func (s *HandoffService) admit(ctx context.Context, roomID, agentID, reason string, now time.Time) {
	participant := models.Participant{
		RoomID:    roomID,
		ActorType: models.ActorAgent,
		ActorID:   agentID,
		Active:    true,
		JoinedAt:  now,
	}
	s.cache.SAdd(ctx, cache.ParticipantsKey(roomID), cache.TTLParticipants, participant.Member())
	s.writer.Enqueue(queue.JobParticipantAdded, roomID+":"+participant.Member(), participant)
	s.history(roomID, participant.Member(), "joined", reason, now)
}

func (s *HandoffService) history(roomID, actor, event, reason string, now time.Time) {
	entry := models.SessionHistory{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		ActorID:   actor,
		Event:     event,
		Reason:    reason,
		CreatedAt: now,
	}
	s.writer.Enqueue(queue.JobSessionHistory, entry.ID, entry)
}

func (s *HandoffService) audit(roomID, actor, kind string, now time.Time) {
	event := models.AuditEvent{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		ActorID:   actor,
		Kind:      kind,
		CreatedAt: now,
	}
	s.writer.Enqueue(queue.JobAuditEvent, event.ID, event)
}

func containsMember(members []string, member string) bool {
	for _, m := range members {
		if m == member {
			return true
		}
	}
	return false
}
