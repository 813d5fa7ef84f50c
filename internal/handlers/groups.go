package handlers

import (
	"bisikin/server/internal/errs"
	"bisikin/server/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// CreateGroupRequest represents group creation request body
type CreateGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"memberIds"`
}

// CreateGroup creates a group with the caller as its first admin
func CreateGroup(c *fiber.Ctx) error {
	var req CreateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errs.Validation("invalid request body"))
	}

	group, err := chatService.CreateGroup(c.Context(), middleware.GetUserID(c), req.Name, req.MemberIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    group,
	})
}

// GetGroups returns the caller's active groups
func GetGroups(c *fiber.Ctx) error {
	groups, err := chatService.ListGroups(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    groups,
	})
}

// GetGroupDetails returns one group with its roster
func GetGroupDetails(c *fiber.Ctx) error {
	group, err := chatService.GetGroup(c.Context(), middleware.GetUserID(c), c.Params("groupId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    group,
	})
}

// RenameGroup updates the group name
func RenameGroup(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errs.Validation("invalid request body"))
	}

	if err := chatService.Rename(c.Context(), middleware.GetUserID(c), c.Params("groupId"), req.Name); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Group renamed",
	})
}

// AddGroupMember adds (or re-adds) a member to the group
func AddGroupMember(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return respondError(c, errs.Validation("userId is required"))
	}

	if err := chatService.AddMember(c.Context(), middleware.GetUserID(c), c.Params("groupId"), req.UserID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Member added",
	})
}

// RemoveGroupMember removes another member from the group
func RemoveGroupMember(c *fiber.Ctx) error {
	err := chatService.RemoveMember(c.Context(), middleware.GetUserID(c), c.Params("groupId"), c.Params("userId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Member removed",
	})
}

// PromoteGroupMember raises a member to admin
func PromoteGroupMember(c *fiber.Ctx) error {
	err := chatService.Promote(c.Context(), middleware.GetUserID(c), c.Params("groupId"), c.Params("userId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Member promoted",
	})
}

// DemoteGroupMember lowers an admin back to member
func DemoteGroupMember(c *fiber.Ctx) error {
	err := chatService.Demote(c.Context(), middleware.GetUserID(c), c.Params("groupId"), c.Params("userId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Member demoted",
	})
}

// LeaveGroup removes the caller from the group
func LeaveGroup(c *fiber.Ctx) error {
	if err := chatService.Leave(c.Context(), middleware.GetUserID(c), c.Params("groupId")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Left group",
	})
}

// SendGroupMessageRequest represents a group message send body
type SendGroupMessageRequest struct {
	GroupID string  `json:"groupId"`
	Content string  `json:"content"`
	ReplyTo *string `json:"replyTo,omitempty"`
}

// SendGroupMessage sends a plaintext message to a group
func SendGroupMessage(c *fiber.Ctx) error {
	var req SendGroupMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errs.Validation("invalid request body"))
	}
	if req.GroupID == "" {
		return respondError(c, errs.Validation("groupId is required"))
	}

	msg, err := chatService.SendGroup(c.Context(), middleware.GetUserID(c), req.GroupID, req.Content, req.ReplyTo)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    msg,
	})
}

// GetGroupMessages returns the group history, newest first
func GetGroupMessages(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	messages, total, err := chatService.ListGroupMessages(c.Context(),
		middleware.GetUserID(c), c.Params("groupId"), limit, offset)
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

// EditGroupMessage replaces a group message's content
func EditGroupMessage(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errs.Validation("invalid request body"))
	}

	msg, err := chatService.EditGroup(c.Context(), middleware.GetUserID(c), c.Params("messageId"), req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    msg,
	})
}

// UnsendGroupMessage retracts a group message for everyone
func UnsendGroupMessage(c *fiber.Ctx) error {
	msg, err := chatService.UnsendGroup(c.Context(), middleware.GetUserID(c), c.Params("messageId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    msg,
	})
}

// MarkGroupAsRead advances the caller's read marker for a group
func MarkGroupAsRead(c *fiber.Ctx) error {
	var req struct {
		GroupID string `json:"groupId"`
	}
	if err := c.BodyParser(&req); err != nil || req.GroupID == "" {
		return respondError(c, errs.Validation("groupId is required"))
	}

	if err := chatService.MarkGroupRead(c.Context(), middleware.GetUserID(c), req.GroupID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Group marked as read",
	})
}
