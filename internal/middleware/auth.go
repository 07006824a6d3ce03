package middleware

import (
	"strings"

	"github.com/boscod/outreachguard/internal/services"
	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/gofiber/fiber/v3"
)

const (
	// ContextKeyUserID is the key for user ID in context
	ContextKeyUserID = "user_id"
	// ContextKeyUserEmail is the key for user email in context
	ContextKeyUserEmail = "user_email"
	// ContextKeySessionID holds the token's jti, one per UI session
	ContextKeySessionID = "session_id"
)

// AuthMiddleware creates a middleware that validates JWT tokens
func AuthMiddleware(jwtService *services.JWTService) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := tokenFromRequest(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Unauthorized",
				"message": "Authentication required",
			})
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Unauthorized",
				"message": "Invalid or expired token",
			})
		}

		c.Locals(ContextKeyUserID, claims.UserID)
		c.Locals(ContextKeyUserEmail, claims.Email)
		c.Locals(ContextKeySessionID, claims.SessionID())

		return c.Next()
	}
}

// tokenFromRequest prefers the Authorization header over the cookie.
func tokenFromRequest(c fiber.Ctx) string {
	if h := c.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Cookies("token")
}

func GetUserID(c fiber.Ctx) string {
	if id, ok := c.Locals(ContextKeyUserID).(string); ok {
		return id
	}
	return ""
}

func GetUserEmail(c fiber.Ctx) string {
	if email, ok := c.Locals(ContextKeyUserEmail).(string); ok {
		return email
	}
	return ""
}

func GetSessionID(c fiber.Ctx) string {
	if id, ok := c.Locals(ContextKeySessionID).(string); ok {
		return id
	}
	return ""
}

// Identity returns the authenticated user, or nil for anonymous requests.
func Identity(c fiber.Ctx) *tracker.Identity {
	id := GetUserID(c)
	if id == "" {
		return nil
	}
	return &tracker.Identity{ID: id, Email: GetUserEmail(c)}
}
