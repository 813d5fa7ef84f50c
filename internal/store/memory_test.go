package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bisikin/server/internal/errs"
	"bisikin/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDirect_Pagination(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, mem.Messages.CreateDirect(ctx, &models.DirectMessage{
			MessageBase: models.MessageBase{SenderID: "alice"},
			ReceiverID:  "bob",
			Ciphertext:  fmt.Sprintf("c%d", i),
			IV:          "iv", KeyForReceiver: "k1", KeyForSender: "k2",
		}))
		time.Sleep(time.Millisecond)
	}

	first, total, err := mem.Messages.ListDirect(ctx, "bob", "alice", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, first, 2)
	// Newest first.
	assert.Equal(t, "c4", first[0].Ciphertext)
	assert.Equal(t, "c3", first[1].Ciphertext)

	second, _, err := mem.Messages.ListDirect(ctx, "bob", "alice", 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "c2", second[0].Ciphertext)

	tail, _, err := mem.Messages.ListDirect(ctx, "bob", "alice", 2, 4)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "c0", tail[0].Ciphertext)

	past, _, err := mem.Messages.ListDirect(ctx, "bob", "alice", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestAddDeletedFor_Idempotent(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	msg := &models.DirectMessage{
		MessageBase: models.MessageBase{SenderID: "alice"},
		ReceiverID:  "bob",
		Ciphertext:  "c", IV: "iv", KeyForReceiver: "k1", KeyForSender: "k2",
	}
	require.NoError(t, mem.Messages.CreateDirect(ctx, msg))

	require.NoError(t, mem.Messages.AddDeletedFor(ctx, msg.ID, "bob"))
	require.NoError(t, mem.Messages.AddDeletedFor(ctx, msg.ID, "bob"))

	stored, err := mem.Messages.GetDirect(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, stored.DeletedFor)

	err = mem.Messages.AddDeletedFor(ctx, "missing", "bob")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUpsert_ReactivatesTombstone(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.Memberships.Upsert(ctx, &models.Membership{
		GroupID: "g1", UserID: "bob", Role: models.RoleMember, AddedBy: "alice",
	}))
	require.NoError(t, mem.Memberships.Remove(ctx, "g1", "bob", "alice"))

	removed, err := mem.Memberships.Get(ctx, "g1", "bob")
	require.NoError(t, err)
	require.Equal(t, models.StatusRemoved, removed.Status)
	firstJoin := removed.JoinedAt

	time.Sleep(time.Millisecond)
	require.NoError(t, mem.Memberships.Upsert(ctx, &models.Membership{
		GroupID: "g1", UserID: "bob", Role: models.RoleMember, AddedBy: "carol",
	}))

	reactivated, err := mem.Memberships.Get(ctx, "g1", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, reactivated.Status)
	assert.Equal(t, "carol", reactivated.AddedBy)
	assert.Nil(t, reactivated.RemovedAt)
	assert.Nil(t, reactivated.RemovedBy)
	assert.True(t, reactivated.JoinedAt.After(firstJoin), "rejoin refreshes joinedAt")

	// Still exactly one row for the pair.
	members, err := mem.Memberships.ListMembers(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestMarkDirectRead_OnlyInboundUnread(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	inbound := &models.DirectMessage{
		MessageBase: models.MessageBase{SenderID: "alice"},
		ReceiverID:  "bob",
		Ciphertext:  "c", IV: "iv", KeyForReceiver: "k1", KeyForSender: "k2",
	}
	outbound := &models.DirectMessage{
		MessageBase: models.MessageBase{SenderID: "bob"},
		ReceiverID:  "alice",
		Ciphertext:  "c", IV: "iv", KeyForReceiver: "k1", KeyForSender: "k2",
	}
	require.NoError(t, mem.Messages.CreateDirect(ctx, inbound))
	require.NoError(t, mem.Messages.CreateDirect(ctx, outbound))

	changed, err := mem.Messages.MarkDirectRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	// Second pass finds nothing left to flip.
	changed, err = mem.Messages.MarkDirectRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), changed)

	// Bob's own outbound message is untouched.
	stored, err := mem.Messages.GetDirect(ctx, outbound.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRead)
}
