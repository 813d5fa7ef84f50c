package chat

import (
	"context"
	"log"
	"time"

	"bisikin/server/internal/errs"
	"bisikin/server/internal/models"
	"bisikin/server/internal/ws"
)

const previewLength = 80

// CreateGroup creates a group with the creator as sole active admin and all
// named members as active members.
func (s *Service) CreateGroup(ctx context.Context, creatorID, name string, memberIDs []string) (*models.GroupWithMembers, error) {
	if name == "" {
		return nil, errs.Validation("group name is required")
	}

	group := &models.Group{Name: name, CreatedBy: creatorID}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}

	if err := s.memberships.Upsert(ctx, &models.Membership{
		GroupID: group.ID,
		UserID:  creatorID,
		Role:    models.RoleAdmin,
		AddedBy: creatorID,
	}); err != nil {
		return nil, err
	}

	for _, memberID := range memberIDs {
		if memberID == creatorID {
			continue
		}
		if _, err := s.users.GetByID(ctx, memberID); err != nil {
			continue // Skip unknown users, like partial add on creation
		}
		if err := s.memberships.Upsert(ctx, &models.Membership{
			GroupID: group.ID,
			UserID:  memberID,
			Role:    models.RoleMember,
			AddedBy: creatorID,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.groups.Recount(ctx, group.ID); err != nil {
		return nil, err
	}

	members, err := s.memberships.ListMembers(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	group, err = s.groups.Get(ctx, group.ID)
	if err != nil {
		return nil, err
	}

	// Populate the room before the system broadcast so connected members see
	// the creation entry live instead of only on the next history fetch.
	for _, m := range members {
		s.broadcaster.JoinRoom(group.ID, m.UserID)
		s.broadcaster.ToUser(m.UserID, ws.NewEvent(ws.EventGroupCreate, ws.GroupPayload{Group: group}))
	}

	s.appendSystem(ctx, group.ID, creatorID, models.ActionGroupCreated,
		map[string]string{"name": name})

	return &models.GroupWithMembers{Group: *group, Members: members}, nil
}

// GetGroup returns the group detail with roster. Active members only.
func (s *Service) GetGroup(ctx context.Context, userID, groupID string) (*models.GroupWithMembers, error) {
	if _, err := s.requireActiveMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.memberships.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &models.GroupWithMembers{Group: *group, Members: members}, nil
}

// AddMember upserts an active membership for the target. Re-adding a removed
// member reactivates their original row.
func (s *Service) AddMember(ctx context.Context, actorID, groupID, targetID string) error {
	if _, err := s.requireActiveAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if existing, err := s.memberships.Get(ctx, groupID, targetID); err == nil && existing.IsActive() {
		return errs.Validation("user is already an active member")
	}

	if err := s.memberships.Upsert(ctx, &models.Membership{
		GroupID: groupID,
		UserID:  targetID,
		Role:    models.RoleMember,
		AddedBy: actorID,
	}); err != nil {
		return err
	}
	if err := s.groups.Recount(ctx, groupID); err != nil {
		return err
	}

	s.broadcaster.JoinRoom(groupID, targetID)
	s.appendSystem(ctx, groupID, actorID, models.ActionMemberAdded,
		map[string]string{"userId": targetID, "username": target.Username})

	payload := ws.MembershipPayload{GroupID: groupID, UserID: targetID, ActorID: actorID}
	s.broadcaster.ToGroup(groupID, ws.NewEvent(ws.EventGroupAddMember, payload), actorID)
	return nil
}

// RemoveMember tombstones the target's membership as removed. Admins cannot
// remove themselves; that path is Leave.
func (s *Service) RemoveMember(ctx context.Context, actorID, groupID, targetID string) error {
	if _, err := s.requireActiveAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	if targetID == actorID {
		return errs.Validation("use leave to remove yourself")
	}

	if err := s.memberships.Remove(ctx, groupID, targetID, actorID); err != nil {
		return err
	}
	if err := s.groups.Recount(ctx, groupID); err != nil {
		return err
	}

	s.broadcaster.LeaveRoom(groupID, targetID)
	s.appendSystem(ctx, groupID, actorID, models.ActionMemberRemoved,
		map[string]string{"userId": targetID})

	payload := ws.MembershipPayload{GroupID: groupID, UserID: targetID, ActorID: actorID}
	s.broadcaster.ToGroup(groupID, ws.NewEvent(ws.EventGroupRemoveMember, payload), actorID)
	s.broadcaster.ToUser(targetID, ws.NewEvent(ws.EventGroupRemoved, payload))
	return nil
}

// Promote raises an active member to admin.
func (s *Service) Promote(ctx context.Context, actorID, groupID, targetID string) error {
	if _, err := s.requireActiveAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	target, err := s.memberships.Get(ctx, groupID, targetID)
	if err != nil {
		return err
	}
	if !target.IsActive() {
		return errs.Validation("target is not an active member")
	}
	if target.Role == models.RoleAdmin {
		return errs.Validation("target is already an admin")
	}

	if err := s.memberships.Promote(ctx, groupID, targetID); err != nil {
		return err
	}
	if err := s.groups.Recount(ctx, groupID); err != nil {
		return err
	}

	s.appendSystem(ctx, groupID, actorID, models.ActionMemberPromoted,
		map[string]string{"userId": targetID})
	return nil
}

// Demote lowers an active admin to member. Rejected atomically when it would
// leave the group without an active admin.
func (s *Service) Demote(ctx context.Context, actorID, groupID, targetID string) error {
	if _, err := s.requireActiveAdmin(ctx, groupID, actorID); err != nil {
		return err
	}

	if err := s.memberships.Demote(ctx, groupID, targetID); err != nil {
		return err
	}
	if err := s.groups.Recount(ctx, groupID); err != nil {
		return err
	}

	s.appendSystem(ctx, groupID, actorID, models.ActionMemberDemoted,
		map[string]string{"userId": targetID})
	return nil
}

// Leave tombstones the caller's own membership as left. A sole admin may not
// abandon a group that still has other active members.
func (s *Service) Leave(ctx context.Context, actorID, groupID string) error {
	if err := s.memberships.Leave(ctx, groupID, actorID); err != nil {
		return err
	}
	if err := s.groups.Recount(ctx, groupID); err != nil {
		return err
	}

	s.broadcaster.LeaveRoom(groupID, actorID)
	s.appendSystem(ctx, groupID, actorID, models.ActionMemberLeft,
		map[string]string{"userId": actorID})
	s.broadcaster.ToGroup(groupID, ws.NewEvent(ws.EventGroupLeave,
		ws.MembershipPayload{GroupID: groupID, UserID: actorID}), actorID)
	return nil
}

// Rename updates the group name.
func (s *Service) Rename(ctx context.Context, actorID, groupID, name string) error {
	if _, err := s.requireActiveAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	if name == "" {
		return errs.Validation("group name is required")
	}

	if err := s.groups.Rename(ctx, groupID, name); err != nil {
		return err
	}

	s.appendSystem(ctx, groupID, actorID, models.ActionGroupRenamed,
		map[string]string{"name": name})
	return nil
}

// SendGroup persists a plaintext group message and delivers it to connected
// members with their freshly computed unread counters.
func (s *Service) SendGroup(ctx context.Context, senderID, groupID, content string, replyTo *string) (*models.GroupMessage, error) {
	if content == "" {
		return nil, errs.Validation("content is required")
	}
	if _, err := s.requireActiveMember(ctx, groupID, senderID); err != nil {
		return nil, err
	}

	msg := &models.GroupMessage{
		MessageBase: models.MessageBase{SenderID: senderID, ReplyTo: replyTo},
		GroupID:     groupID,
		Content:     content,
		Type:        models.GroupMessageUser,
	}
	if err := s.messages.CreateGroup(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.groups.SetLastMessage(ctx, groupID, msg.CreatedAt, preview(content)); err != nil {
		log.Printf("Failed to update group summary: %v", err)
	}

	s.deliverGroupMessage(ctx, msg, ws.EventGroupMessage)
	return msg, nil
}

// EditGroup replaces the content of a group message. System messages are
// never editable.
func (s *Service) EditGroup(ctx context.Context, actorID, messageID, content string) (*models.GroupMessage, error) {
	msg, err := s.messages.GetGroup(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Type == models.GroupMessageSystem {
		return nil, errs.Validation("system messages cannot be edited")
	}
	if msg.SenderID != actorID {
		return nil, errs.Authorization("only the sender can edit a message")
	}
	if msg.IsUnsent {
		return nil, errs.Validation("message has been unsent")
	}
	if content == "" {
		return nil, errs.Validation("content is required")
	}

	now := time.Now()
	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &now
	if err := s.messages.UpdateGroup(ctx, msg); err != nil {
		return nil, err
	}

	s.broadcaster.ToGroup(msg.GroupID, ws.NewEvent(ws.EventGroupMessageUpdate,
		ws.GroupMessagePayload{Message: msg}), actorID)
	return msg, nil
}

// UnsendGroup clears a group message's content and marks it unsent.
func (s *Service) UnsendGroup(ctx context.Context, actorID, messageID string) (*models.GroupMessage, error) {
	msg, err := s.messages.GetGroup(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Type == models.GroupMessageSystem {
		return nil, errs.Validation("system messages cannot be unsent")
	}
	if msg.SenderID != actorID {
		return nil, errs.Authorization("only the sender can unsend a message")
	}

	msg.IsUnsent = true
	msg.Content = ""
	if err := s.messages.UpdateGroup(ctx, msg); err != nil {
		return nil, err
	}

	s.broadcaster.ToGroup(msg.GroupID, ws.NewEvent(ws.EventGroupMessageUpdate,
		ws.GroupMessagePayload{Message: msg}), actorID)
	return msg, nil
}

// ListGroupMessages returns the group history, newest first. Active members only.
func (s *Service) ListGroupMessages(ctx context.Context, userID, groupID string, limit, offset int) ([]models.GroupMessage, int, error) {
	if _, err := s.requireActiveMember(ctx, groupID, userID); err != nil {
		return nil, 0, err
	}
	return s.messages.ListGroup(ctx, groupID, userID, normalizeLimit(limit), offset)
}

// MarkGroupRead advances the caller's lastReadAt; the unread count is always
// recomputed from it, never tracked incrementally.
func (s *Service) MarkGroupRead(ctx context.Context, userID, groupID string) error {
	if _, err := s.requireActiveMember(ctx, groupID, userID); err != nil {
		return err
	}
	return s.memberships.UpdateLastRead(ctx, groupID, userID, time.Now())
}

// ListGroups returns the caller's active groups.
func (s *Service) ListGroups(ctx context.Context, userID string) ([]models.Group, error) {
	return s.groups.ListForUser(ctx, userID)
}

// appendSystem writes a structured transcript entry and pushes it to the
// room. Best effort: a failed transcript write never rolls back the
// mutation it describes.
func (s *Service) appendSystem(ctx context.Context, groupID, actorID string, action models.SystemAction, meta map[string]string) {
	msg := &models.GroupMessage{
		MessageBase: models.MessageBase{SenderID: actorID},
		GroupID:     groupID,
		Type:        models.GroupMessageSystem,
		Action:      action,
		ActionMeta:  meta,
	}
	if err := s.messages.CreateGroup(ctx, msg); err != nil {
		log.Printf("Failed to append system message: %v", err)
		return
	}
	if err := s.groups.SetLastMessage(ctx, groupID, msg.CreatedAt, string(action)); err != nil {
		log.Printf("Failed to update group summary: %v", err)
	}
	s.broadcaster.ToGroup(groupID, ws.NewEvent(ws.EventGroupSystem,
		ws.GroupMessagePayload{Message: msg}), "")
}

// deliverGroupMessage pushes a persisted message to each connected room
// member with that member's own unread counter.
func (s *Service) deliverGroupMessage(ctx context.Context, msg *models.GroupMessage, eventType ws.EventType) {
	members, err := s.memberships.ListActive(ctx, msg.GroupID)
	if err != nil {
		log.Printf("Failed to list members for delivery: %v", err)
		return
	}
	for _, m := range members {
		if m.UserID == msg.SenderID || !s.broadcaster.IsUserOnline(m.UserID) {
			continue
		}
		unread, err := s.messages.UnreadGroupCount(ctx, msg.GroupID, m.UserID, m.LastReadAt)
		if err != nil {
			log.Printf("Failed to compute unread count: %v", err)
		}
		s.broadcaster.ToUser(m.UserID, ws.NewEvent(eventType,
			ws.GroupMessagePayload{Message: msg, UnreadCount: unread}))
	}
}

func (s *Service) requireActiveMember(ctx context.Context, groupID, userID string) (*models.Membership, error) {
	m, err := s.memberships.Get(ctx, groupID, userID)
	if err != nil {
		return nil, errs.Authorization("not a member of this group")
	}
	if !m.IsActive() {
		return nil, errs.Authorization("not an active member of this group")
	}
	return m, nil
}

func (s *Service) requireActiveAdmin(ctx context.Context, groupID, userID string) (*models.Membership, error) {
	m, err := s.requireActiveMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if m.Role != models.RoleAdmin {
		return nil, errs.Authorization("admin role required")
	}
	return m, nil
}

func preview(content string) string {
	if len(content) > previewLength {
		return content[:previewLength]
	}
	return content
}
