package models

import "time"

// SystemAction enumerates the membership/state changes recorded in the group
// transcript. Rendering to display text is the client's job; the server never
// composes free text for these.
type SystemAction string

const (
	ActionGroupCreated   SystemAction = "group_created"
	ActionMemberAdded    SystemAction = "member_added"
	ActionMemberRemoved  SystemAction = "member_removed"
	ActionMemberLeft     SystemAction = "member_left"
	ActionMemberPromoted SystemAction = "member_promoted"
	ActionMemberDemoted  SystemAction = "member_demoted"
	ActionGroupRenamed   SystemAction = "group_renamed"
)

// Group holds only denormalized summary fields; the member list lives in the
// memberships collection. MemberCount and AdminCount are recomputed from a
// live scan after every membership mutation, never hand-incremented.
type Group struct {
	ID                 string     `json:"id" db:"id"`
	Name               string     `json:"name" db:"name"`
	CreatedBy          string     `json:"createdBy" db:"created_by"`
	MemberCount        int        `json:"memberCount" db:"member_count"`
	AdminCount         int        `json:"adminCount" db:"admin_count"`
	LastMessageAt      *time.Time `json:"lastMessageAt,omitempty" db:"last_message_at"`
	LastMessagePreview string     `json:"lastMessagePreview,omitempty" db:"last_message_preview"`
	CreatedAt          time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time  `json:"updatedAt" db:"updated_at"`
}

// GroupWithMembers includes the member roster for the detail endpoint.
type GroupWithMembers struct {
	Group
	Members []MemberWithUser `json:"members"`
}

// MemberWithUser pairs a membership with its user info.
type MemberWithUser struct {
	Membership
	User UserResponse `json:"user"`
}
