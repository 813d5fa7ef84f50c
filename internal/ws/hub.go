// Package ws is the realtime gateway: the presence registry, group rooms,
// and fan-out of typed events to connected clients. Pushes are
// fire-and-forget; an offline receiver catches up via pull on next connect.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"bisikin/server/internal/models"
	"bisikin/server/internal/store"
)

// SummaryProvider supplies the conversation snapshot pushed to a client at
// connect time. Implemented by the chat service.
type SummaryProvider interface {
	ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error)
}

// typingTimeout is how long a typing indicator survives without a repeated
// start before the hub broadcasts the stop on the sender's behalf. Tolerates
// dropped stop events.
const typingTimeout = 3 * time.Second

// Hub is the process-wide presence registry and room index. It is the only
// shared mutable state in the core; everything goes through its mutex.
type Hub struct {
	memberships store.MembershipStore
	summaries   SummaryProvider

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	mu      sync.RWMutex
	clients map[string]*Client             // userID -> connection, last-connect-wins
	rooms   map[string]map[string]struct{} // groupID -> set of userIDs
	typing  map[string]*time.Timer         // (conversation, sender) -> auto-stop timer
}

// NewHub creates the gateway hub. The membership store backs connect-time
// room replay and re-validation of client join requests.
func NewHub(memberships store.MembershipStore) *Hub {
	return &Hub{
		memberships: memberships,
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		clients:     make(map[string]*Client),
		rooms:       make(map[string]map[string]struct{}),
		typing:      make(map[string]*time.Timer),
	}
}

// SetSummaryProvider attaches the source of connect-time conversation
// snapshots. The hub is built before the chat service, so this is wired
// separately.
func (h *Hub) SetSummaryProvider(summaries SummaryProvider) {
	h.summaries = summaries
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		}
	}
}

// registerClient adds a client to the presence registry. A prior connection
// for the same user is displaced: last-connect-wins.
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if existing, ok := h.clients[client.UserID]; ok {
		close(existing.Send)
	}
	h.clients[client.UserID] = client
	h.mu.Unlock()

	// Mirror persisted memberships into the room index so group fan-out
	// works without a database query per broadcast.
	groupIDs, err := h.memberships.ActiveGroupIDs(context.Background(), client.UserID)
	if err != nil {
		log.Printf("Failed to replay memberships for %s: %v", client.UserID, err)
	} else {
		h.mu.Lock()
		for _, groupID := range groupIDs {
			h.joinRoomLocked(groupID, client.UserID)
		}
		h.mu.Unlock()
	}

	// Push the catch-up snapshot so a reconnecting client sees everything it
	// missed, with fresh unread counters, before any live traffic.
	if h.summaries != nil {
		summaries, err := h.summaries.ListConversations(context.Background(), client.UserID)
		if err != nil {
			log.Printf("Failed to load conversations for %s: %v", client.UserID, err)
		} else {
			client.SendEvent(NewEvent(EventConversations, summaries))
		}
	}

	log.Printf("Client connected: %s", client.UserID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Only drop the entry if this connection still owns it; a displaced
	// connection must not evict its successor.
	if current, ok := h.clients[client.UserID]; ok && current == client {
		delete(h.clients, client.UserID)
		close(client.Send)
		for _, members := range h.rooms {
			delete(members, client.UserID)
		}
		log.Printf("Client disconnected: %s", client.UserID)
	}
}

// ToUser pushes an event to one user if connected. Offline receivers are the
// expected no-op path, not an error.
func (h *Hub) ToUser(userID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	h.sendLocked(userID, data)
}

// ToGroup pushes an event to every room member except excludeUserID.
func (h *Hub) ToGroup(groupID string, event Event, excludeUserID string) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for userID := range h.rooms[groupID] {
		if userID == excludeUserID {
			continue
		}
		h.sendLocked(userID, data)
	}
}

// sendLocked is a non-blocking push; a full buffer drops the frame. Callers
// hold at least a read lock.
func (h *Hub) sendLocked(userID string, data []byte) {
	client, ok := h.clients[userID]
	if !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
		log.Printf("Send buffer full, dropping frame for %s", userID)
	}
}

// JoinRoom subscribes a user to a group room.
func (h *Hub) JoinRoom(groupID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinRoomLocked(groupID, userID)
}

func (h *Hub) joinRoomLocked(groupID, userID string) {
	members, ok := h.rooms[groupID]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[groupID] = members
	}
	members[userID] = struct{}{}
}

// LeaveRoom unsubscribes a user from a group room.
func (h *Hub) LeaveRoom(groupID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[groupID], userID)
}

// IsUserOnline checks if a user is currently connected.
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// OnlineUsers returns the currently connected user IDs.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	userIDs := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		userIDs = append(userIDs, userID)
	}
	return userIDs
}

// OnlineCount returns the number of connected clients.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// startTyping broadcasts the indicator and arms (or re-arms) the one timer
// this (conversation, sender) pair owns.
func (h *Hub) startTyping(key string, stop func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if timer, ok := h.typing[key]; ok {
		timer.Stop()
	}
	h.typing[key] = time.AfterFunc(typingTimeout, func() {
		h.clearTyping(key)
		stop()
	})
}

// stopTyping cancels the pending auto-stop for the pair, if any. Returns
// whether an indicator was actually live.
func (h *Hub) stopTyping(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	timer, ok := h.typing[key]
	if ok {
		timer.Stop()
		delete(h.typing, key)
	}
	return ok
}

func (h *Hub) clearTyping(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.typing, key)
}
