package routes

import (
	"bisikin/server/internal/handlers"
	"bisikin/server/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App) {
	// API v1 group
	api := app.Group("/api/v1")

	// Health check (public)
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "Bisikin API is running",
		})
	})

	// Auth routes (public)
	auth := api.Group("/auth")
	auth.Post("/register", middleware.StrictRateLimiter(), handlers.Register)
	auth.Post("/login", middleware.StrictRateLimiter(), handlers.Login)
	auth.Post("/refresh", middleware.StrictRateLimiter(), handlers.RefreshToken)
	auth.Post("/logout", middleware.AuthMiddleware, handlers.Logout)
	auth.Get("/me", middleware.AuthMiddleware, handlers.GetMe)

	// Key directory (protected)
	users := api.Group("/users", middleware.AuthMiddleware)
	users.Get("/lookup", middleware.RelaxedRateLimiter(), handlers.LookupUser)
	users.Get("/:userId/key", middleware.RelaxedRateLimiter(), handlers.GetPublicKey)

	// Message routes (protected)
	messages := api.Group("/messages", middleware.AuthMiddleware)
	messages.Get("/chats", handlers.GetChats)
	messages.Post("/", middleware.ModerateRateLimiter(), handlers.SendMessage)
	messages.Put("/read", handlers.MarkAsRead)
	messages.Post("/group", middleware.ModerateRateLimiter(), handlers.SendGroupMessage)
	messages.Put("/group/read", handlers.MarkGroupAsRead)
	messages.Get("/group/:groupId", handlers.GetGroupMessages)
	messages.Patch("/group/:messageId", handlers.EditGroupMessage)
	messages.Post("/group/:messageId/unsend", handlers.UnsendGroupMessage)
	messages.Get("/:peerId", handlers.GetMessages)
	messages.Patch("/:messageId", handlers.EditMessage)
	messages.Post("/:messageId/unsend", handlers.UnsendMessage)
	messages.Delete("/:messageId", handlers.DeleteMessageForMe)

	// Group routes (protected)
	groups := api.Group("/groups", middleware.AuthMiddleware)
	groups.Post("/", handlers.CreateGroup)
	groups.Get("/", handlers.GetGroups)
	groups.Get("/:groupId", handlers.GetGroupDetails)
	groups.Put("/:groupId", handlers.RenameGroup)
	groups.Post("/:groupId/members", handlers.AddGroupMember)
	groups.Delete("/:groupId/members/:userId", handlers.RemoveGroupMember)
	groups.Post("/:groupId/members/:userId/promote", handlers.PromoteGroupMember)
	groups.Post("/:groupId/members/:userId/demote", handlers.DemoteGroupMember)
	groups.Post("/:groupId/leave", handlers.LeaveGroup)

	// WebSocket route (protected)
	api.Get("/ws", middleware.AuthMiddleware, handlers.WebSocketUpgrade, websocket.New(handlers.WebSocketHandler))

	// WebSocket stats (protected, for debugging)
	api.Get("/ws/stats", middleware.AuthMiddleware, handlers.GetWebSocketStats)
}
