package handlers

import (
	"log"

	"bisikin/server/internal/store"
	"bisikin/server/internal/ws"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

var (
	// WSHub is the global WebSocket hub instance
	WSHub *ws.Hub
)

// InitWebSocket initializes the WebSocket hub
func InitWebSocket(memberships store.MembershipStore) *ws.Hub {
	WSHub = ws.NewHub(memberships)
	go WSHub.Run()
	log.Println("✅ WebSocket Hub initialized")
	return WSHub
}

// WebSocketUpgrade checks if the request should be upgraded to WebSocket
func WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}

	return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
		"success": false,
		"error":   "WebSocket upgrade required",
	})
}

// WebSocketHandler handles WebSocket connections
func WebSocketHandler(c *websocket.Conn) {
	// Get user info from context (set by auth middleware)
	userID := c.Locals("userID").(string)
	username := c.Locals("username").(string)

	client := ws.NewClient(userID, username, c, WSHub)

	WSHub.Register <- client

	// Start read and write pumps in separate goroutines
	go client.WritePump()
	client.ReadPump() // This blocks until connection closes
}

// GetWebSocketStats returns WebSocket connection statistics
func GetWebSocketStats(c *fiber.Ctx) error {
	if WSHub == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "WebSocket hub not initialized",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"onlineUsers": WSHub.OnlineCount(),
			"userIds":     WSHub.OnlineUsers(),
		},
	})
}
