package handlers

import (
	"bisikin/server/internal/chat"
	"bisikin/server/internal/errs"
	"bisikin/server/internal/middleware"
	"bisikin/server/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SendMessage handles sending an encrypted direct message
func SendMessage(c *fiber.Ctx) error {
	var req chat.SendDirectRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errs.Validation("invalid request body"))
	}

	msg, err := chatService.SendDirect(c.Context(), middleware.GetUserID(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    msg,
	})
}

// GetMessages returns the direct history with a peer, newest first
func GetMessages(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	messages, total, err := chatService.ListDirectMessages(c.Context(),
		middleware.GetUserID(c), c.Params("peerId"), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"messages": messages,
			"total":    total,
		},
	})
}

// EditMessage replaces a direct message's encrypted payload
func EditMessage(c *fiber.Ctx) error {
	var req chat.EditDirectRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errs.Validation("invalid request body"))
	}

	msg, err := chatService.EditDirect(c.Context(), middleware.GetUserID(c), c.Params("messageId"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    msg,
	})
}

// UnsendMessage retracts a direct message for everyone
func UnsendMessage(c *fiber.Ctx) error {
	msg, err := chatService.UnsendDirect(c.Context(), middleware.GetUserID(c), c.Params("messageId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    msg,
	})
}

// DeleteMessageForMe hides a message from the caller's own view only
func DeleteMessageForMe(c *fiber.Ctx) error {
	conversationType := models.ConversationType(c.Query("type", string(models.ConversationDirect)))

	err := chatService.DeleteForMe(c.Context(), middleware.GetUserID(c), conversationType, c.Params("messageId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Message deleted for you",
	})
}

// MarkAsRead marks all direct messages from a peer as read
func MarkAsRead(c *fiber.Ctx) error {
	var req struct {
		PeerID string `json:"peerId"`
	}
	if err := c.BodyParser(&req); err != nil || req.PeerID == "" {
		return respondError(c, errs.Validation("peerId is required"))
	}

	updated, err := chatService.MarkDirectRead(c.Context(), middleware.GetUserID(c), req.PeerID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"updated": updated},
	})
}

// GetChats returns the unified conversation list, newest activity first
func GetChats(c *fiber.Ctx) error {
	summaries, err := chatService.ListConversations(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    summaries,
	})
}
