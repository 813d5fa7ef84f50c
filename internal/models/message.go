package models

import "time"

// ConversationType discriminates the two message variants.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// GroupMessageType distinguishes user content from membership transcript entries.
type GroupMessageType string

const (
	GroupMessageUser   GroupMessageType = "user"
	GroupMessageSystem GroupMessageType = "system"
)

// MessageBase holds the fields shared by both conversation kinds.
type MessageBase struct {
	ID         string     `json:"id" db:"id"`
	SenderID   string     `json:"senderId" db:"sender_id"`
	ReplyTo    *string    `json:"replyTo,omitempty" db:"reply_to"`
	IsEdited   bool       `json:"isEdited" db:"is_edited"`
	EditedAt   *time.Time `json:"editedAt,omitempty" db:"edited_at"`
	IsUnsent   bool       `json:"isUnsent" db:"is_unsent"`
	DeletedFor []string   `json:"deletedFor" db:"deleted_for"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
}

// DeletedForViewer reports whether the viewer has locally tombstoned the message.
func (m *MessageBase) DeletedForViewer(viewerID string) bool {
	for _, id := range m.DeletedFor {
		if id == viewerID {
			return true
		}
	}
	return false
}

// DirectMessage is a two-party encrypted message. The server stores only
// ciphertext; the four crypto fields are always present together (or all
// cleared after an unsend).
type DirectMessage struct {
	MessageBase
	ReceiverID     string `json:"receiverId" db:"receiver_id"`
	Ciphertext     string `json:"ciphertext" db:"ciphertext"`
	IV             string `json:"iv" db:"iv"`
	KeyForReceiver string `json:"keyForReceiver" db:"key_for_receiver"`
	KeyForSender   string `json:"keyForSender" db:"key_for_sender"`
	IsRead         bool   `json:"isRead" db:"is_read"`
}

// GroupMessage is a multi-party plaintext message, access-controlled by
// membership rather than cryptography. System messages carry a structured
// action and metadata; clients render display text from the action enum.
type GroupMessage struct {
	MessageBase
	GroupID    string            `json:"groupId" db:"group_id"`
	Content    string            `json:"content" db:"content"`
	Type       GroupMessageType  `json:"type" db:"type"`
	Action     SystemAction      `json:"systemAction,omitempty" db:"system_action"`
	ActionMeta map[string]string `json:"systemMeta,omitempty" db:"system_meta"`
}

// DirectMessageWithSender includes sender information for history responses.
type DirectMessageWithSender struct {
	DirectMessage
	Sender UserResponse `json:"sender"`
}

// GroupMessageWithSender includes sender information for history responses.
type GroupMessageWithSender struct {
	GroupMessage
	Sender UserResponse `json:"sender"`
}

// ConversationSummary is one row of the unified conversation list, covering
// both direct peers and groups, sorted by most-recent activity.
type ConversationSummary struct {
	Type          ConversationType `json:"type"`
	PeerID        string           `json:"peerId,omitempty"`
	PeerUsername  string           `json:"peerUsername,omitempty"`
	GroupID       string           `json:"groupId,omitempty"`
	GroupName     string           `json:"groupName,omitempty"`
	LastMessageAt time.Time        `json:"lastMessageAt"`
	LastPreview   string           `json:"lastPreview,omitempty"`
	UnreadCount   int              `json:"unreadCount"`
}
