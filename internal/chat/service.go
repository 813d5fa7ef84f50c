// Package chat is the conversation orchestrator: it composes the stores and
// the realtime gateway into the send/edit/unsend/delete-for-me lifecycle and
// the group state machine.
package chat

import (
	"context"
	"log"
	"sort"
	"time"

	"bisikin/server/internal/errs"
	"bisikin/server/internal/models"
	"bisikin/server/internal/store"
	"bisikin/server/internal/ws"
)

// Broadcaster is the slice of the gateway the orchestrator publishes through.
// Implemented by *ws.Hub; tests substitute a recorder.
type Broadcaster interface {
	ToUser(userID string, event ws.Event)
	ToGroup(groupID string, event ws.Event, excludeUserID string)
	JoinRoom(groupID, userID string)
	LeaveRoom(groupID, userID string)
	IsUserOnline(userID string) bool
}

// Service wires the stores and the gateway together.
type Service struct {
	users       store.UserStore
	messages    store.MessageStore
	groups      store.GroupStore
	memberships store.MembershipStore
	broadcaster Broadcaster
}

// NewService builds the orchestrator.
func NewService(users store.UserStore, messages store.MessageStore, groups store.GroupStore,
	memberships store.MembershipStore, broadcaster Broadcaster) *Service {
	return &Service{
		users:       users,
		messages:    messages,
		groups:      groups,
		memberships: memberships,
		broadcaster: broadcaster,
	}
}

// SendDirectRequest carries an encrypted direct message from the sender's
// codec. The four crypto fields travel together or not at all.
type SendDirectRequest struct {
	ReceiverID     string  `json:"receiverId"`
	Ciphertext     string  `json:"ciphertext"`
	IV             string  `json:"iv"`
	KeyForReceiver string  `json:"keyForReceiver"`
	KeyForSender   string  `json:"keyForSender"`
	ReplyTo        *string `json:"replyTo,omitempty"`
}

func (r *SendDirectRequest) complete() bool {
	return r.Ciphertext != "" && r.IV != "" && r.KeyForReceiver != "" && r.KeyForSender != ""
}

// SendDirect persists an encrypted direct message and pushes it to the
// receiver if they are connected. The server never decrypts the payload.
func (s *Service) SendDirect(ctx context.Context, senderID string, req SendDirectRequest) (*models.DirectMessage, error) {
	if req.ReceiverID == "" {
		return nil, errs.Validation("receiverId is required")
	}
	if !req.complete() {
		return nil, errs.Validation("ciphertext, iv, and both wrapped keys are required together")
	}
	if _, err := s.users.GetByID(ctx, req.ReceiverID); err != nil {
		return nil, err
	}

	msg := &models.DirectMessage{
		MessageBase:    models.MessageBase{SenderID: senderID, ReplyTo: req.ReplyTo},
		ReceiverID:     req.ReceiverID,
		Ciphertext:     req.Ciphertext,
		IV:             req.IV,
		KeyForReceiver: req.KeyForReceiver,
		KeyForSender:   req.KeyForSender,
	}
	if err := s.messages.CreateDirect(ctx, msg); err != nil {
		return nil, err
	}

	if s.broadcaster.IsUserOnline(req.ReceiverID) {
		unread, err := s.messages.UnreadDirectCount(ctx, req.ReceiverID, senderID)
		if err != nil {
			log.Printf("Failed to compute unread count: %v", err)
		}
		s.broadcaster.ToUser(req.ReceiverID, ws.NewEvent(ws.EventReceiveMessage,
			ws.ReceiveMessagePayload{Message: msg, UnreadCount: unread}))
	}

	return msg, nil
}

// EditDirectRequest carries the re-encrypted payload for an edit.
type EditDirectRequest struct {
	Ciphertext     string `json:"ciphertext"`
	IV             string `json:"iv"`
	KeyForReceiver string `json:"keyForReceiver"`
	KeyForSender   string `json:"keyForSender"`
}

// EditDirect replaces the payload of a direct message. Only the original
// sender may edit, and an unsent message is terminal.
func (s *Service) EditDirect(ctx context.Context, actorID, messageID string, req EditDirectRequest) (*models.DirectMessage, error) {
	msg, err := s.messages.GetDirect(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actorID {
		return nil, errs.Authorization("only the sender can edit a message")
	}
	if msg.IsUnsent {
		return nil, errs.Validation("message has been unsent")
	}
	if req.Ciphertext == "" || req.IV == "" || req.KeyForReceiver == "" || req.KeyForSender == "" {
		return nil, errs.Validation("ciphertext, iv, and both wrapped keys are required together")
	}

	now := time.Now()
	msg.Ciphertext = req.Ciphertext
	msg.IV = req.IV
	msg.KeyForReceiver = req.KeyForReceiver
	msg.KeyForSender = req.KeyForSender
	msg.IsEdited = true
	msg.EditedAt = &now

	if err := s.messages.UpdateDirect(ctx, msg); err != nil {
		return nil, err
	}

	s.broadcaster.ToUser(msg.ReceiverID, ws.NewEvent(ws.EventMessageUpdated,
		ws.MessageUpdatedPayload{Message: msg}))
	return msg, nil
}

// UnsendDirect clears the stored payload outright and marks the message
// unsent. Irreversible; viewers render a terminal placeholder.
func (s *Service) UnsendDirect(ctx context.Context, actorID, messageID string) (*models.DirectMessage, error) {
	msg, err := s.messages.GetDirect(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actorID {
		return nil, errs.Authorization("only the sender can unsend a message")
	}

	msg.IsUnsent = true
	msg.Ciphertext = ""
	msg.IV = ""
	msg.KeyForReceiver = ""
	msg.KeyForSender = ""

	if err := s.messages.UpdateDirect(ctx, msg); err != nil {
		return nil, err
	}

	s.broadcaster.ToUser(msg.ReceiverID, ws.NewEvent(ws.EventMessageUpdated,
		ws.MessageUpdatedPayload{Message: msg}))
	return msg, nil
}

// DeleteForMe locally tombstones a message for the caller only. The other
// participants are not notified and their view is unchanged.
func (s *Service) DeleteForMe(ctx context.Context, actorID string, conversationType models.ConversationType, messageID string) error {
	switch conversationType {
	case models.ConversationDirect:
		msg, err := s.messages.GetDirect(ctx, messageID)
		if err != nil {
			return err
		}
		if msg.SenderID != actorID && msg.ReceiverID != actorID {
			return errs.Authorization("not a participant of this conversation")
		}
	case models.ConversationGroup:
		msg, err := s.messages.GetGroup(ctx, messageID)
		if err != nil {
			return err
		}
		// Same access rule as the history fetch: active members only.
		if _, err := s.requireActiveMember(ctx, msg.GroupID, actorID); err != nil {
			return err
		}
	default:
		return errs.Validation("unknown conversation type %q", conversationType)
	}

	return s.messages.AddDeletedFor(ctx, messageID, actorID)
}

// ListDirectMessages returns the history with a peer, newest first,
// excluding the caller's locally deleted messages.
func (s *Service) ListDirectMessages(ctx context.Context, userID, peerID string, limit, offset int) ([]models.DirectMessage, int, error) {
	return s.messages.ListDirect(ctx, userID, peerID, normalizeLimit(limit), offset)
}

// MarkDirectRead marks everything from peer to the caller as read.
func (s *Service) MarkDirectRead(ctx context.Context, userID, peerID string) (int64, error) {
	return s.messages.MarkDirectRead(ctx, userID, peerID)
}

// ListConversations returns the unified direct + group summary, sorted by
// most recent activity.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	summaries, err := s.messages.DirectConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	groups, err := s.groups.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		membership, err := s.memberships.Get(ctx, g.ID, userID)
		if err != nil {
			continue
		}
		unread, err := s.messages.UnreadGroupCount(ctx, g.ID, userID, membership.LastReadAt)
		if err != nil {
			return nil, err
		}
		lastAt := g.CreatedAt
		if g.LastMessageAt != nil {
			lastAt = *g.LastMessageAt
		}
		summaries = append(summaries, models.ConversationSummary{
			Type:          models.ConversationGroup,
			GroupID:       g.ID,
			GroupName:     g.Name,
			LastMessageAt: lastAt,
			LastPreview:   g.LastMessagePreview,
			UnreadCount:   unread,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})
	return summaries, nil
}

func normalizeLimit(limit int) int {
	if limit < 1 || limit > 100 {
		return 50
	}
	return limit
}
