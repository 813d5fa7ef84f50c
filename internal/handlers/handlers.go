// Package handlers exposes the HTTP surface. Handlers stay thin: parse,
// call the chat service, map domain errors onto statuses.
package handlers

import (
	"errors"

	"bisikin/server/internal/chat"
	"bisikin/server/internal/errs"
	"bisikin/server/internal/store"

	"github.com/gofiber/fiber/v2"
)

var (
	chatService *chat.Service
	userStore   store.UserStore
)

// Init wires the handler package to the service layer
func Init(service *chat.Service, users store.UserStore) {
	chatService = service
	userStore = users
}

// respondError maps a domain error onto an HTTP status and the standard
// error envelope.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrAuthentication):
		status = fiber.StatusUnauthorized
	case errors.Is(err, errs.ErrAuthorization):
		status = fiber.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, errs.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, errs.ErrInvariant):
		status = fiber.StatusConflict
	}

	message := err.Error()
	if status == fiber.StatusInternalServerError {
		message = "Internal server error"
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}
