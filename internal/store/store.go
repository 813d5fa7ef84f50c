// Package store persists messages, groups, memberships, and the user
// directory. Postgres implementations back the server; in-memory
// implementations back the tests.
package store

import (
	"context"
	"time"

	"bisikin/server/internal/models"
)

// UserStore is the identity directory the messaging core consumes.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// MessageStore owns the polymorphic message collection and the mutation
// rules for edit/unsend/delete-for-me.
type MessageStore interface {
	CreateDirect(ctx context.Context, msg *models.DirectMessage) error
	CreateGroup(ctx context.Context, msg *models.GroupMessage) error
	GetDirect(ctx context.Context, id string) (*models.DirectMessage, error)
	GetGroup(ctx context.Context, id string) (*models.GroupMessage, error)
	UpdateDirect(ctx context.Context, msg *models.DirectMessage) error
	UpdateGroup(ctx context.Context, msg *models.GroupMessage) error

	// AddDeletedFor appends a viewer to the message's local-tombstone set.
	// The shared record stays untouched for everyone else.
	AddDeletedFor(ctx context.Context, messageID, viewerID string) error

	ListDirect(ctx context.Context, userID, peerID string, limit, offset int) ([]models.DirectMessage, int, error)
	ListGroup(ctx context.Context, groupID, viewerID string, limit, offset int) ([]models.GroupMessage, int, error)

	// MarkDirectRead marks all messages from peer to user as read and
	// returns how many rows changed.
	MarkDirectRead(ctx context.Context, userID, peerID string) (int64, error)

	// UnreadDirectCount counts unread messages from peer to user, excluding
	// locally deleted ones.
	UnreadDirectCount(ctx context.Context, userID, peerID string) (int, error)

	// UnreadGroupCount counts user messages in the group created after since,
	// not authored by the viewer and not locally deleted by them. System
	// messages never count. Recomputed on demand, never tracked incrementally.
	UnreadGroupCount(ctx context.Context, groupID, viewerID string, since time.Time) (int, error)

	// DirectConversations returns one summary per peer the user has
	// exchanged messages with, newest activity first.
	DirectConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error)
}

// GroupStore owns group summary records. Counters are denormalized caches;
// Recount recomputes them from a live scan of active memberships.
type GroupStore interface {
	Create(ctx context.Context, group *models.Group) error
	Get(ctx context.Context, id string) (*models.Group, error)
	Rename(ctx context.Context, id, name string) error
	SetLastMessage(ctx context.Context, id string, at time.Time, preview string) error
	Recount(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]models.Group, error)
}

// MembershipStore owns the per (group, user) role/status records and the
// group invariant: at least one active admin whenever more than one active
// member remains. Demote and Leave enforce it atomically.
type MembershipStore interface {
	// Upsert inserts a membership or reactivates the existing row for the
	// (group, user) pair. Uniqueness is never violated by re-adding.
	Upsert(ctx context.Context, m *models.Membership) error

	Get(ctx context.Context, groupID, userID string) (*models.Membership, error)
	ListActive(ctx context.Context, groupID string) ([]models.Membership, error)
	ListMembers(ctx context.Context, groupID string) ([]models.MemberWithUser, error)

	// ActiveGroupIDs lists the groups a user is an active member of, used to
	// replay room subscriptions at connect time.
	ActiveGroupIDs(ctx context.Context, userID string) ([]string, error)

	Promote(ctx context.Context, groupID, targetID string) error

	// Demote rejects atomically if the target is the last active admin.
	Demote(ctx context.Context, groupID, targetID string) error

	// Remove tombstones the membership as removed.
	Remove(ctx context.Context, groupID, targetID, actorID string) error

	// Leave tombstones the membership as left, rejecting atomically if the
	// leaver is the sole active admin and other active members remain.
	Leave(ctx context.Context, groupID, userID string) error

	UpdateLastRead(ctx context.Context, groupID, userID string, at time.Time) error
}
