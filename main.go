package main

import (
	"context"
	"log"
	"os"

	"bisikin/server/internal/chat"
	"bisikin/server/internal/database"
	"bisikin/server/internal/handlers"
	"bisikin/server/internal/routes"
	"bisikin/server/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Connect to database
	pool, err := database.Connect(context.Background())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	pg := store.NewPostgres(pool)

	// Initialize WebSocket hub
	hub := handlers.InitWebSocket(pg.Memberships)

	// Wire the chat service
	service := chat.NewService(pg.Users, pg.Messages, pg.Groups, pg.Memberships, hub)
	hub.SetSummaryProvider(service)
	handlers.Init(service, pg.Users)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName: "Bisikin API v1.0",
	})

	// Middleware
	app.Use(logger.New())
	corsOrigin := os.Getenv("CORS_ORIGIN")
	if corsOrigin == "" {
		corsOrigin = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigin,
		AllowCredentials: true,
	}))

	// Setup routes
	routes.SetupRoutes(app)

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("🚀 Server starting on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}
