package handlers

import (
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/boscod/outreachguard/internal/middleware"
	"github.com/boscod/outreachguard/internal/services"
	"github.com/boscod/outreachguard/internal/store"
	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/gofiber/fiber/v3"
)

type AuthHandler struct {
	authService         *services.AuthService
	jwtService          *services.JWTService
	collector           *tracker.Collector
	notificationService *services.NotificationService
	blockDuplicates     bool
	secureCookies       bool
}

func NewAuthHandler(
	authService *services.AuthService,
	jwtService *services.JWTService,
	collector *tracker.Collector,
	notificationService *services.NotificationService,
	blockDuplicates bool,
	secureCookies bool,
) *AuthHandler {
	return &AuthHandler{
		authService:         authService,
		jwtService:          jwtService,
		collector:           collector,
		notificationService: notificationService,
		blockDuplicates:     blockDuplicates,
		secureCookies:       secureCookies,
	}
}

// RegisterRequest represents the registration payload
type RegisterRequest struct {
	Email    string                `json:"email"`
	Password string                `json:"password"`
	FullName *string               `json:"full_name,omitempty"`
	Company  *string               `json:"company,omitempty"`
	Device   tracker.DeviceContext `json:"device"`
}

// LoginRequest represents the login payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account after the duplicate-account check.
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var req RegisterRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Email and password are required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Email is invalid")
	}
	if len(req.Password) < 8 {
		return errorJSON(c, fiber.StatusBadRequest, "Password must be at least 8 characters")
	}

	ctx := c.UserContext()
	duplicate := h.collector.CheckForDuplicateAccount(ctx, req.Email, deviceWithUserAgent(c, req.Device))
	if duplicate && h.blockDuplicates {
		return errorJSON(c, fiber.StatusConflict, services.ErrDuplicateAccount.Error())
	}

	user, err := h.authService.CreateUser(ctx, req.Email, req.Password, req.FullName, req.Company)
	if errors.Is(err, services.ErrEmailTaken) {
		return errorJSON(c, fiber.StatusConflict, "Email already registered")
	}
	if err != nil {
		slog.Error("failed to create user", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to create user")
	}

	if duplicate {
		if err := h.notificationService.NotifyDuplicateSuspected(ctx, user.ID, c.IP()); err != nil {
			slog.Warn("failed to store duplicate notification", "user_id", user.ID, "error", err)
		}
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to generate token")
	}
	h.setAuthCookie(c, token)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":                user.ToResponse(),
		"token":               token,
		"duplicate_suspected": duplicate,
	})
}

// Login handles user authentication
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req LoginRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Email and password are required")
	}

	user, err := h.authService.Authenticate(c.UserContext(), req.Email, req.Password)
	if errors.Is(err, services.ErrNotFound) {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid email or password")
	}
	if err != nil {
		slog.Error("login failed", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to log in")
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to generate token")
	}
	h.setAuthCookie(c, token)

	return c.JSON(fiber.Map{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Logout clears the auth cookie
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   h.secureCookies,
		SameSite: "Lax",
	})

	return c.JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

// Me returns the current user's information
func (h *AuthHandler) Me(c fiber.Ctx) error {
	user, err := h.authService.GetUserByID(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return errorJSON(c, fiber.StatusNotFound, "User not found")
	}
	return c.JSON(fiber.Map{
		"user": user.ToResponse(),
	})
}

// UpdateProfileRequest represents the profile update payload
type UpdateProfileRequest struct {
	FullName    *string `json:"full_name,omitempty"`
	Company     *string `json:"company,omitempty"`
	NotifyEmail *bool   `json:"notify_email,omitempty"`
}

// UpdateProfile updates the current user's profile
func (h *AuthHandler) UpdateProfile(c fiber.Ctx) error {
	var req UpdateProfileRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	user, err := h.authService.UpdateProfile(c.UserContext(), middleware.GetUserID(c), store.ProfileUpdate{
		FullName:    req.FullName,
		Company:     req.Company,
		NotifyEmail: req.NotifyEmail,
	})
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to update profile")
	}

	return c.JSON(fiber.Map{
		"user": user.ToResponse(),
	})
}

func (h *AuthHandler) setAuthCookie(c fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.jwtService.GetExpiry()),
		HTTPOnly: true,
		Secure:   h.secureCookies,
		SameSite: "Lax",
	})
}
