package chat

import (
	"context"
	"testing"

	"bisikin/server/internal/errs"
	"bisikin/server/internal/models"
	"bisikin/server/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroup_CreatorIsSoleAdmin(t *testing.T) {
	svc, mem, broadcaster := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, mem, "alice")
	bob := addUser(t, mem, "bob")
	carol := addUser(t, mem, "carol")

	group, err := svc.CreateGroup(ctx, alice.ID, "ops", []string{bob.ID, carol.ID, "not-a-user"})
	require.NoError(t, err)

	// Unknown members are skipped, not fatal.
	assert.Equal(t, 3, group.MemberCount)
	assert.Equal(t, 1, group.AdminCount)

	roles := map[string]models.MemberRole{}
	for _, m := range group.Members {
		roles[m.UserID] = m.Role
	}
	assert.Equal(t, models.RoleAdmin, roles[alice.ID])
	assert.Equal(t, models.RoleMember, roles[bob.ID])
	assert.Equal(t, models.RoleMember, roles[carol.ID])

	// Every member is subscribed to the room.
	for _, id := range []string{alice.ID, bob.ID, carol.ID} {
		assert.True(t, broadcaster.rooms[group.ID][id])
	}

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := svc.CreateGroup(ctx, alice.ID, "", nil)
		assert.ErrorIs(t, err, errs.ErrValidation)
	})
}

func TestCreateGroup_SystemEventReachesPopulatedRoom(t *testing.T) {
	svc, mem, broadcaster := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, mem, "alice")
	bob := addUser(t, mem, "bob")
	carol := addUser(t, mem, "carol")

	group, err := svc.CreateGroup(ctx, alice.ID, "ops", []string{bob.ID, carol.ID})
	require.NoError(t, err)

	// The creation entry must be broadcast after the room is populated, so
	// every founding member sees it live.
	var created *groupEvent
	for i := range broadcaster.toGroup {
		e := &broadcaster.toGroup[i]
		if e.GroupID == group.ID && e.Event.Type == ws.EventGroupSystem {
			created = e
			break
		}
	}
	require.NotNil(t, created, "group_created system event was broadcast")
	assert.ElementsMatch(t, []string{alice.ID, bob.ID, carol.ID}, created.Recipients)
}

func TestAddMember_Guards(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, mem, "alice")
	bob := addUser(t, mem, "bob")
	carol := addUser(t, mem, "carol")

	group, err := svc.CreateGroup(ctx, alice.ID, "ops", []string{bob.ID})
	require.NoError(t, err)

	// Plain members cannot add.
	err = svc.AddMember(ctx, bob.ID, group.ID, carol.ID)
	assert.ErrorIs(t, err, errs.ErrAuthorization)

	// Outsiders cannot add.
	err = svc.AddMember(ctx, carol.ID, group.ID, carol.ID)
	assert.ErrorIs(t, err, errs.ErrAuthorization)

	require.NoError(t, svc.AddMember(ctx, alice.ID, group.ID, carol.ID))

	// Adding an active member again is a validation error.
	err = svc.AddMember(ctx, alice.ID, group.ID, carol.ID)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRemoveMember_TombstoneAndReactivation(t *testing.T) {
	svc, mem, broadcaster := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, mem, "alice")
	bob := addUser(t, mem, "bob")

	group, err := svc.CreateGroup(ctx, alice.ID, "ops", []string{bob.ID})
	require.NoError(t, err)

	// Self-removal goes through Leave, not Remove.
	err = svc.RemoveMember(ctx, alice.ID, group.ID, alice.ID)
	assert.ErrorIs(t, err, errs.ErrValidation)

	require.NoError(t, svc.RemoveMember(ctx, alice.ID, group.ID, bob.ID))
	assert.False(t, broadcaster.rooms[group.ID][bob.ID])

	// The row survives as a tombstone, so history attribution keeps working.
	membership, err := mem.Memberships.Get(ctx, group.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRemoved, membership.Status)
	require.NotNil(t, membership.RemovedBy)
	assert.Equal(t, alice.ID, *membership.RemovedBy)

	// Removed members lose read access.
	_, _, err = svc.ListGroupMessages(ctx, bob.ID, group.ID, 50, 0)
	assert.ErrorIs(t, err, errs.ErrAuthorization)

	// Re-adding reactivates the same row instead of inserting a duplicate.
	require.NoError(t, svc.AddMember(ctx, alice.ID, group.ID, bob.ID))
	members, err := mem.Memberships.ListMembers(ctx, group.ID)
	require.NoError(t, err)

	seen := 0
	for _, m := range members {
		if m.UserID == bob.ID {
			seen++
			assert.Equal(t, models.StatusActive, m.Status)
			assert.Nil(t, m.RemovedAt)
			assert.Nil(t, m.RemovedBy)
		}
	}
	assert.Equal(t, 1, seen)

	refreshed, err := mem.Groups.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed.MemberCount)
}

func TestAdminFloor_DemoteAndLeave(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, mem, "alice")
	bob := addUser(t, mem, "bob")
	carol := addUser(t, mem, "carol")

	group, err := svc.CreateGroup(ctx, alice.ID, "ops", []string{bob.ID, carol.ID})
	require.NoError(t, err)

	// The sole admin cannot demote themselves or leave while others remain.
	err = svc.Demote(ctx, alice.ID, group.ID, alice.ID)
	assert.ErrorIs(t, err, errs.ErrInvariant)
	err = svc.Leave(ctx, alice.ID, group.ID)
	assert.ErrorIs(t, err, errs.ErrInvariant)

	// With a second admin, both operations unblock.
	require.NoError(t, svc.Promote(ctx, alice.ID, group.ID, bob.ID))
	refreshed, err := mem.Groups.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed.AdminCount)

	require.NoError(t, svc.Demote(ctx, alice.ID, group.ID, alice.ID))

	// Bob is now the sole admin again; the floor re-engages for him.
	err = svc.Leave(ctx, bob.ID, group.ID)
	assert.ErrorIs(t, err, errs.ErrInvariant)

	// Non-admins may always leave.
	require.NoError(t, svc.Leave(ctx, alice.ID, group.ID))
	require.NoError(t, svc.Leave(ctx, carol.ID, group.ID))

	// A sole admin who is also the sole active member may leave.
	require.NoError(t, svc.Leave(ctx, bob.ID, group.ID))

	refreshed, err = mem.Groups.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed.MemberCount)
	assert.Equal(t, 0, refreshed.AdminCount)
}

func TestPromote_Guards(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, mem, "alice")
	bob := addUser(t, mem, "bob")

	group, err := svc.CreateGroup(ctx, alice.ID, "ops", []string{bob.ID})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveMember(ctx, alice.ID, group.ID, bob.ID))

	// A tombstoned member cannot be promoted.
	err = svc.Promote(ctx, alice.ID, group.ID, bob.ID)
	assert.ErrorIs(t, err, errs.ErrValidation)

	require.NoError(t, svc.AddMember(ctx, alice.ID, group.ID, bob.ID))
	require.NoError(t, svc.Promote(ctx, alice.ID, group.ID, bob.ID))

	// Promoting an admin is a no-op caught as validation.
	err = svc.Promote(ctx, alice.ID, group.ID, bob.ID)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRename(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, mem, "alice")
	bob := addUser(t, mem, "bob")

	group, err := svc.CreateGroup(ctx, alice.ID, "ops", []string{bob.ID})
	require.NoError(t, err)

	err = svc.Rename(ctx, bob.ID, group.ID, "platform")
	assert.ErrorIs(t, err, errs.ErrAuthorization)

	err = svc.Rename(ctx, alice.ID, group.ID, "")
	assert.ErrorIs(t, err, errs.ErrValidation)

	require.NoError(t, svc.Rename(ctx, alice.ID, group.ID, "platform"))
	refreshed, err := mem.Groups.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, "platform", refreshed.Name)
}

func TestSystemMessages_RecordMembershipChanges(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, mem, "alice")
	bob := addUser(t, mem, "bob")
	carol := addUser(t, mem, "carol")

	group, err := svc.CreateGroup(ctx, alice.ID, "ops", []string{bob.ID})
	require.NoError(t, err)
	require.NoError(t, svc.AddMember(ctx, alice.ID, group.ID, carol.ID))
	require.NoError(t, svc.Promote(ctx, alice.ID, group.ID, bob.ID))
	require.NoError(t, svc.RemoveMember(ctx, alice.ID, group.ID, carol.ID))
	require.NoError(t, svc.Leave(ctx, alice.ID, group.ID))

	messages, _, err := svc.ListGroupMessages(ctx, bob.ID, group.ID, 50, 0)
	require.NoError(t, err)

	actions := map[models.SystemAction]int{}
	for _, m := range messages {
		require.Equal(t, models.GroupMessageSystem, m.Type)
		actions[m.Action]++
	}
	assert.Equal(t, 1, actions[models.ActionGroupCreated])
	assert.Equal(t, 1, actions[models.ActionMemberAdded])
	assert.Equal(t, 1, actions[models.ActionMemberPromoted])
	assert.Equal(t, 1, actions[models.ActionMemberRemoved])
	assert.Equal(t, 1, actions[models.ActionMemberLeft])

	// System entries carry structured metadata, not prose.
	for _, m := range messages {
		if m.Action == models.ActionMemberAdded {
			assert.Equal(t, carol.ID, m.ActionMeta["userId"])
			assert.Equal(t, "carol", m.ActionMeta["username"])
		}
	}

	// System messages can never be edited or unsent.
	_, err = svc.EditGroup(ctx, bob.ID, messages[0].ID, "rewrite history")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = svc.UnsendGroup(ctx, bob.ID, messages[0].ID)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestSendGroup_DeliveryWithPersonalUnreadCounts(t *testing.T) {
	svc, mem, broadcaster := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, mem, "alice")
	bob := addUser(t, mem, "bob")
	carol := addUser(t, mem, "carol")

	group, err := svc.CreateGroup(ctx, alice.ID, "ops", []string{bob.ID, carol.ID})
	require.NoError(t, err)

	broadcaster.setOnline(bob.ID, true)
	// Carol stays offline: no push for her.

	msg, err := svc.SendGroup(ctx, alice.ID, group.ID, "standup in 5", nil)
	require.NoError(t, err)
	assert.Equal(t, models.GroupMessageUser, msg.Type)

	events := broadcaster.userEvents(bob.ID, ws.EventGroupMessage)
	require.Len(t, events, 1)
	payload := events[0].Payload.(ws.GroupMessagePayload)
	assert.Equal(t, msg.ID, payload.Message.ID)
	assert.Equal(t, 1, payload.UnreadCount)
	assert.Empty(t, broadcaster.userEvents(carol.ID, ws.EventGroupMessage))

	refreshed, err := mem.Groups.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, "standup in 5", refreshed.LastMessagePreview)

	t.Run("non-members cannot send", func(t *testing.T) {
		dave := addUser(t, mem, "dave")
		_, err := svc.SendGroup(ctx, dave.ID, group.ID, "hi", nil)
		assert.ErrorIs(t, err, errs.ErrAuthorization)
	})

	t.Run("empty content rejected", func(t *testing.T) {
		_, err := svc.SendGroup(ctx, alice.ID, group.ID, "", nil)
		assert.ErrorIs(t, err, errs.ErrValidation)
	})
}

func TestGroupUnread_RecomputedNotTracked(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, mem, "alice")
	bob := addUser(t, mem, "bob")

	group, err := svc.CreateGroup(ctx, alice.ID, "ops", []string{bob.ID})
	require.NoError(t, err)

	first, err := svc.SendGroup(ctx, alice.ID, group.ID, "one", nil)
	require.NoError(t, err)
	_, err = svc.SendGroup(ctx, alice.ID, group.ID, "two", nil)
	require.NoError(t, err)

	unreadFor := func(userID string) int {
		t.Helper()
		m, err := mem.Memberships.Get(ctx, group.ID, userID)
		require.NoError(t, err)
		n, err := mem.Messages.UnreadGroupCount(ctx, group.ID, userID, m.LastReadAt)
		require.NoError(t, err)
		return n
	}

	// The author's own messages never count against them.
	assert.Equal(t, 0, unreadFor(alice.ID))
	assert.Equal(t, 2, unreadFor(bob.ID))

	// A local delete drops the message from the viewer's count and history.
	require.NoError(t, svc.DeleteForMe(ctx, bob.ID, models.ConversationGroup, first.ID))
	assert.Equal(t, 1, unreadFor(bob.ID))

	for _, viewer := range []struct {
		userID string
		hidden bool
	}{{bob.ID, true}, {alice.ID, false}} {
		history, _, err := svc.ListGroupMessages(ctx, viewer.userID, group.ID, 50, 0)
		require.NoError(t, err)
		found := false
		for _, m := range history {
			if m.ID == first.ID {
				found = true
			}
		}
		assert.Equal(t, !viewer.hidden, found)
	}

	require.NoError(t, svc.MarkGroupRead(ctx, bob.ID, group.ID))
	assert.Equal(t, 0, unreadFor(bob.ID))

	// New activity after the read marker counts again.
	_, err = svc.SendGroup(ctx, alice.ID, group.ID, "three", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, unreadFor(bob.ID))
}

func TestDeleteForMe_GroupRequiresActiveMembership(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, mem, "alice")
	bob := addUser(t, mem, "bob")

	group, err := svc.CreateGroup(ctx, alice.ID, "ops", []string{bob.ID})
	require.NoError(t, err)

	msg, err := svc.SendGroup(ctx, alice.ID, group.ID, "hello", nil)
	require.NoError(t, err)

	// Active members may tombstone locally.
	require.NoError(t, svc.DeleteForMe(ctx, bob.ID, models.ConversationGroup, msg.ID))

	// A removed member loses delete access along with read access.
	require.NoError(t, svc.RemoveMember(ctx, alice.ID, group.ID, bob.ID))
	err = svc.DeleteForMe(ctx, bob.ID, models.ConversationGroup, msg.ID)
	assert.ErrorIs(t, err, errs.ErrAuthorization)
}

func TestEditUnsendGroup_SenderOnlyAndTerminal(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, mem, "alice")
	bob := addUser(t, mem, "bob")

	group, err := svc.CreateGroup(ctx, alice.ID, "ops", []string{bob.ID})
	require.NoError(t, err)

	msg, err := svc.SendGroup(ctx, alice.ID, group.ID, "draft", nil)
	require.NoError(t, err)

	_, err = svc.EditGroup(ctx, bob.ID, msg.ID, "hijack")
	assert.ErrorIs(t, err, errs.ErrAuthorization)

	edited, err := svc.EditGroup(ctx, alice.ID, msg.ID, "final")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "final", edited.Content)

	unsent, err := svc.UnsendGroup(ctx, alice.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, unsent.IsUnsent)
	assert.Empty(t, unsent.Content)

	_, err = svc.EditGroup(ctx, alice.ID, msg.ID, "resurrect")
	assert.ErrorIs(t, err, errs.ErrValidation)
}
