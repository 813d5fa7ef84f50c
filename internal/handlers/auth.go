package handlers

import (
	"bisikin/server/internal/errs"
	"bisikin/server/internal/middleware"
	"bisikin/server/internal/models"
	"bisikin/server/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// RegisterRequest represents registration request body
type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	PublicKey string `json:"publicKey"`
}

// LoginRequest represents login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register handles user registration. The client generates its keypair
// locally and uploads only the public half; the server never sees a
// private key.
func Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	if req.Username == "" || req.Password == "" || req.PublicKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Username, password, and publicKey are required",
		})
	}

	if _, err := userStore.GetByUsername(c.Context(), req.Username); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "Username already taken",
		})
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to hash password",
		})
	}

	user := &models.User{
		Username:  req.Username,
		Password:  hashedPassword,
		PublicKey: req.PublicKey,
	}
	if err := userStore.Create(c.Context(), user); err != nil {
		return respondError(c, err)
	}

	token, refreshToken, err := issueTokens(user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to generate token",
		})
	}
	setAuthCookies(c, token, refreshToken)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user":  user.ToResponse(),
			"token": token,
		},
	})
}

// Login handles user login
func Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Username and password are required",
		})
	}

	user, err := userStore.GetByUsername(c.Context(), req.Username)
	if err != nil || !utils.CheckPassword(user.Password, req.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid username or password",
		})
	}

	token, refreshToken, err := issueTokens(user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to generate token",
		})
	}
	setAuthCookies(c, token, refreshToken)

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user":  user.ToResponse(),
			"token": token,
		},
	})
}

// Logout handles user logout
func Logout(c *fiber.Ctx) error {
	clearAuthCookies(c)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}

// RefreshToken exchanges a valid refresh token for a fresh pair
func RefreshToken(c *fiber.Ctx) error {
	refreshToken := c.Cookies("refresh_token")
	if refreshToken == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Refresh token not found",
		})
	}

	claims, err := utils.ValidateToken(refreshToken)
	if err != nil || claims.Type != "refresh" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid refresh token",
		})
	}

	user, err := userStore.GetByID(c.Context(), claims.UserID)
	if err != nil {
		return respondError(c, errs.Authentication("account no longer exists"))
	}

	token, newRefreshToken, err := issueTokens(user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to generate token",
		})
	}
	setAuthCookies(c, token, newRefreshToken)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"token": token},
	})
}

// GetMe returns current authenticated user
func GetMe(c *fiber.Ctx) error {
	user, err := userStore.GetByID(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    user.ToResponse(),
	})
}

// GetPublicKey returns a user's published encryption key. This is the key
// directory senders consult before wrapping a message key.
func GetPublicKey(c *fiber.Ctx) error {
	user, err := userStore.GetByID(c.Context(), c.Params("userId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"userId":    user.ID,
			"username":  user.Username,
			"publicKey": user.PublicKey,
		},
	})
}

// LookupUser resolves a username to its directory entry
func LookupUser(c *fiber.Ctx) error {
	username := c.Query("username")
	if username == "" {
		return respondError(c, errs.Validation("username query parameter is required"))
	}
	user, err := userStore.GetByUsername(c.Context(), username)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"userId":    user.ID,
			"username":  user.Username,
			"publicKey": user.PublicKey,
		},
	})
}

func issueTokens(user *models.User) (string, string, error) {
	token, err := utils.GenerateToken(user.ID, user.Username)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := utils.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		return "", "", err
	}
	return token, refreshToken, nil
}

func setAuthCookies(c *fiber.Ctx, token, refreshToken string) {
	c.Cookie(&fiber.Cookie{
		Name:     "token",
		Value:    token,
		HTTPOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: "Lax",
		MaxAge:   86400, // 24 hours
	})
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		HTTPOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: "Lax",
		MaxAge:   604800, // 7 days
	})
}

func clearAuthCookies(c *fiber.Ctx) {
	for _, name := range []string{"token", "refresh_token"} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			HTTPOnly: true,
			Secure:   false,
			SameSite: "Lax",
			MaxAge:   -1, // Delete cookie
		})
	}
}
