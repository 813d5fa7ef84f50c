package ws

import (
	"time"

	"bisikin/server/internal/models"
)

// EventType names the realtime events the gateway exchanges with clients.
type EventType string

const (
	// Direct, peer-scoped events
	EventTyping         EventType = "typing"
	EventStopTyping     EventType = "stop_typing"
	EventReceiveMessage EventType = "receive_message"
	EventMessageUpdated EventType = "message_updated"

	// Group, room-scoped events
	EventGroupTyping        EventType = "group:typing"
	EventGroupStopTyping    EventType = "group:stop_typing"
	EventGroupMessage       EventType = "group:message"
	EventGroupSystem        EventType = "group:system"
	EventGroupMessageUpdate EventType = "group:message:update"
	EventGroupCreate        EventType = "group:create"
	EventGroupRemoved       EventType = "group:removed"
	EventGroupAddMember     EventType = "group:addMember"
	EventGroupRemoveMember  EventType = "group:removeMember"
	EventGroupLeave         EventType = "group:leave"

	// Client-initiated, acked with AckPayload
	EventGroupJoin EventType = "group:join"

	// Connect-time catch-up snapshot
	EventConversations EventType = "conversations"
)

// Event is the wire frame for gateway pushes.
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType EventType, payload interface{}) Event {
	return Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
}

// ReceiveMessagePayload delivers a persisted direct message, still
// ciphertext, plus a freshly computed unread counter for the sender's thread.
type ReceiveMessagePayload struct {
	Message     *models.DirectMessage `json:"message"`
	UnreadCount int                   `json:"unreadCount"`
}

// MessageUpdatedPayload carries a direct edit/unsend result.
type MessageUpdatedPayload struct {
	Message *models.DirectMessage `json:"message"`
}

// GroupMessagePayload carries a persisted group message.
type GroupMessagePayload struct {
	Message     *models.GroupMessage `json:"message"`
	UnreadCount int                  `json:"unreadCount,omitempty"`
}

// TypingPayload identifies who is typing where. Username is set for group
// indicators so multi-party clients can label the indicator.
type TypingPayload struct {
	UserID   string `json:"userId"`
	PeerID   string `json:"peerId,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
	Username string `json:"username,omitempty"`
}

// MembershipPayload describes a membership change pushed to a room.
type MembershipPayload struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
	ActorID string `json:"actorId,omitempty"`
}

// GroupPayload carries a group summary, e.g. on creation.
type GroupPayload struct {
	Group *models.Group `json:"group"`
}

// AckPayload answers client-initiated join/leave requests.
type AckPayload struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// IncomingEvent is a frame received from a client.
type IncomingEvent struct {
	Type    EventType              `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}
