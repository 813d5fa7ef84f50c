package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"bisikin/server/internal/models"
	"bisikin/server/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return NewHub(mem.Memberships), mem
}

func newTestClient(userID string) *Client {
	return &Client{UserID: userID, Username: userID, Send: make(chan []byte, 8)}
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var event Event
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return Event{}
	}
}

func TestHub_LastConnectWins(t *testing.T) {
	hub, _ := newTestHub(t)

	first := newTestClient("alice")
	second := newTestClient("alice")

	hub.registerClient(first)
	assert.True(t, hub.IsUserOnline("alice"))

	// A second connection for the same user displaces the first.
	hub.registerClient(second)
	_, ok := <-first.Send
	assert.False(t, ok, "displaced connection's channel should be closed")

	// The displaced connection's teardown must not evict its successor.
	hub.unregisterClient(first)
	assert.True(t, hub.IsUserOnline("alice"))

	hub.ToUser("alice", NewEvent(EventReceiveMessage, nil))
	recvEvent(t, second)

	hub.unregisterClient(second)
	assert.False(t, hub.IsUserOnline("alice"))
	_, ok = <-second.Send
	assert.False(t, ok)
}

func TestHub_ReplaysMembershipsOnConnect(t *testing.T) {
	hub, mem := newTestHub(t)
	ctx := context.Background()

	require.NoError(t, mem.Memberships.Upsert(ctx, &models.Membership{
		GroupID: "g1", UserID: "alice", Role: models.RoleAdmin, AddedBy: "alice",
	}))
	require.NoError(t, mem.Memberships.Upsert(ctx, &models.Membership{
		GroupID: "g2", UserID: "alice", Role: models.RoleMember, AddedBy: "bob",
	}))
	// A tombstoned membership is not replayed.
	require.NoError(t, mem.Memberships.Upsert(ctx, &models.Membership{
		GroupID: "g3", UserID: "alice", Role: models.RoleMember, AddedBy: "bob",
	}))
	require.NoError(t, mem.Memberships.Leave(ctx, "g3", "alice"))

	alice := newTestClient("alice")
	hub.registerClient(alice)

	hub.ToGroup("g1", NewEvent(EventGroupMessage, nil), "")
	event := recvEvent(t, alice)
	assert.Equal(t, EventGroupMessage, event.Type)

	hub.ToGroup("g2", NewEvent(EventGroupSystem, nil), "")
	event = recvEvent(t, alice)
	assert.Equal(t, EventGroupSystem, event.Type)

	hub.ToGroup("g3", NewEvent(EventGroupMessage, nil), "")
	select {
	case <-alice.Send:
		t.Fatal("left group must not receive frames")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_ToGroupExcludesSender(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	hub.registerClient(alice)
	hub.registerClient(bob)
	hub.JoinRoom("g1", "alice")
	hub.JoinRoom("g1", "bob")

	hub.ToGroup("g1", NewEvent(EventGroupTyping, nil), "alice")
	recvEvent(t, bob)
	select {
	case <-alice.Send:
		t.Fatal("excluded user must not receive the frame")
	case <-time.After(50 * time.Millisecond):
	}

	hub.LeaveRoom("g1", "bob")
	hub.ToGroup("g1", NewEvent(EventGroupTyping, nil), "alice")
	select {
	case <-bob.Send:
		t.Fatal("user who left the room must not receive frames")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_ToUserOfflineIsNoop(t *testing.T) {
	hub, _ := newTestHub(t)
	assert.False(t, hub.IsUserOnline("ghost"))
	hub.ToUser("ghost", NewEvent(EventReceiveMessage, nil))
	assert.Equal(t, 0, hub.OnlineCount())
}

func TestHub_TypingAutoStop(t *testing.T) {
	hub, _ := newTestHub(t)

	fired := make(chan struct{}, 1)
	hub.startTyping("g1/alice", func() { fired <- struct{}{} })

	// An explicit stop disarms the timer and reports it was live.
	assert.True(t, hub.stopTyping("g1/alice"))
	assert.False(t, hub.stopTyping("g1/alice"))
	select {
	case <-fired:
		t.Fatal("stopped indicator must not auto-fire")
	case <-time.After(typingTimeout + 500*time.Millisecond):
	}

	// Without a stop, the hub fires the auto-stop on the sender's behalf.
	hub.startTyping("g1/alice", func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(typingTimeout + time.Second):
		t.Fatal("auto-stop did not fire")
	}
	// The key is cleared, so a stop after the auto-fire reports not live.
	assert.False(t, hub.stopTyping("g1/alice"))
}

func TestHub_OnlineUsers(t *testing.T) {
	hub, _ := newTestHub(t)
	hub.registerClient(newTestClient("alice"))
	hub.registerClient(newTestClient("bob"))

	assert.Equal(t, 2, hub.OnlineCount())
	assert.ElementsMatch(t, []string{"alice", "bob"}, hub.OnlineUsers())
}
