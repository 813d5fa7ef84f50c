package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Client represents one authenticated WebSocket connection.
type Client struct {
	UserID   string
	Username string
	Conn     *websocket.Conn
	Hub      *Hub
	Send     chan []byte
}

// NewClient creates a client for an already-authenticated connection.
func NewClient(userID, username string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		UserID:   userID,
		Username: username,
		Conn:     conn,
		Hub:      hub,
		Send:     make(chan []byte, 256),
	}
}

// ReadPump handles incoming frames from the client.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var incoming IncomingEvent
		if err := json.Unmarshal(message, &incoming); err != nil {
			log.Printf("Failed to parse frame: %v", err)
			continue
		}

		c.handleIncoming(incoming)
	}
}

// WritePump handles outgoing frames to the client.
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleIncoming(event IncomingEvent) {
	switch event.Type {
	case EventTyping, EventGroupTyping:
		c.handleTypingStart(event)
	case EventStopTyping, EventGroupStopTyping:
		c.handleTypingStop(event)
	case EventGroupJoin:
		c.handleGroupJoin(event)
	case EventGroupLeave:
		c.handleGroupLeave(event)
	default:
		log.Printf("Unknown event type: %s", event.Type)
	}
}

func (c *Client) handleTypingStart(event IncomingEvent) {
	peerID, _ := event.Payload["peerId"].(string)
	groupID, _ := event.Payload["groupId"].(string)

	if groupID != "" {
		// The groupId is client-asserted; drop the indicator silently if the
		// sender is not actually in the group.
		if !c.isActiveMember(groupID) {
			return
		}
		payload := TypingPayload{UserID: c.UserID, GroupID: groupID, Username: c.Username}
		c.Hub.ToGroup(groupID, NewEvent(EventGroupTyping, payload), c.UserID)
		c.Hub.startTyping(typingKey(groupID, c.UserID), func() {
			c.Hub.ToGroup(groupID, NewEvent(EventGroupStopTyping, payload), c.UserID)
		})
		return
	}

	if peerID != "" {
		payload := TypingPayload{UserID: c.UserID, PeerID: peerID}
		c.Hub.ToUser(peerID, NewEvent(EventTyping, payload))
		c.Hub.startTyping(typingKey(peerID, c.UserID), func() {
			c.Hub.ToUser(peerID, NewEvent(EventStopTyping, payload))
		})
	}
}

func (c *Client) handleTypingStop(event IncomingEvent) {
	peerID, _ := event.Payload["peerId"].(string)
	groupID, _ := event.Payload["groupId"].(string)

	if groupID != "" {
		if c.Hub.stopTyping(typingKey(groupID, c.UserID)) {
			payload := TypingPayload{UserID: c.UserID, GroupID: groupID, Username: c.Username}
			c.Hub.ToGroup(groupID, NewEvent(EventGroupStopTyping, payload), c.UserID)
		}
		return
	}

	if peerID != "" {
		if c.Hub.stopTyping(typingKey(peerID, c.UserID)) {
			c.Hub.ToUser(peerID, NewEvent(EventStopTyping, TypingPayload{UserID: c.UserID, PeerID: peerID}))
		}
	}
}

// handleGroupJoin re-validates a client-asserted group id against the
// membership store before honoring the room subscription.
func (c *Client) handleGroupJoin(event IncomingEvent) {
	groupID, _ := event.Payload["groupId"].(string)
	if groupID == "" {
		c.ack(EventGroupJoin, false, "groupId is required")
		return
	}

	if !c.isActiveMember(groupID) {
		c.ack(EventGroupJoin, false, "not an active member of this group")
		return
	}

	c.Hub.JoinRoom(groupID, c.UserID)
	c.ack(EventGroupJoin, true, "")
}

// handleGroupLeave re-validates like join: a room unsubscribe is only
// honored for a group the caller actually belongs to.
func (c *Client) handleGroupLeave(event IncomingEvent) {
	groupID, _ := event.Payload["groupId"].(string)
	if groupID == "" {
		c.ack(EventGroupLeave, false, "groupId is required")
		return
	}

	if !c.isActiveMember(groupID) {
		c.ack(EventGroupLeave, false, "not an active member of this group")
		return
	}

	c.Hub.LeaveRoom(groupID, c.UserID)
	c.ack(EventGroupLeave, true, "")
}

func (c *Client) isActiveMember(groupID string) bool {
	membership, err := c.Hub.memberships.Get(context.Background(), groupID, c.UserID)
	return err == nil && membership.IsActive()
}

func (c *Client) ack(eventType EventType, ok bool, message string) {
	c.SendEvent(NewEvent(eventType, AckPayload{OK: ok, Message: message}))
}

// SendEvent queues an event for this connection only.
func (c *Client) SendEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal event: %v", err)
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Printf("Send buffer full, dropping frame for %s", c.UserID)
	}
}

func typingKey(conversationID, senderID string) string {
	return conversationID + "/" + senderID
}
