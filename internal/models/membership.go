package models

import "time"

// MemberRole is a member's role within a group.
type MemberRole string

const (
	RoleMember MemberRole = "member"
	RoleAdmin  MemberRole = "admin"
)

// MemberStatus tracks the membership lifecycle. Rows are never hard-deleted;
// status is the tombstone, preserving the audit trail.
type MemberStatus string

const (
	StatusActive  MemberStatus = "active"
	StatusLeft    MemberStatus = "left"
	StatusRemoved MemberStatus = "removed"
)

// Membership is the single row per (group, user). Re-adding a removed member
// reactivates this row rather than creating a duplicate.
type Membership struct {
	GroupID    string       `json:"groupId" db:"group_id"`
	UserID     string       `json:"userId" db:"user_id"`
	Role       MemberRole   `json:"role" db:"role"`
	Status     MemberStatus `json:"status" db:"status"`
	JoinedAt   time.Time    `json:"joinedAt" db:"joined_at"`
	LeftAt     *time.Time   `json:"leftAt,omitempty" db:"left_at"`
	RemovedAt  *time.Time   `json:"removedAt,omitempty" db:"removed_at"`
	AddedBy    string       `json:"addedBy,omitempty" db:"added_by"`
	RemovedBy  *string      `json:"removedBy,omitempty" db:"removed_by"`
	LastReadAt time.Time    `json:"lastReadAt" db:"last_read_at"`
}

// IsActive reports whether the member currently belongs to the group.
func (m *Membership) IsActive() bool {
	return m.Status == StatusActive
}

// IsActiveAdmin reports whether the member is an active admin.
func (m *Membership) IsActiveAdmin() bool {
	return m.Status == StatusActive && m.Role == RoleAdmin
}
