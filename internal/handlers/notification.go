package handlers

import (
	"errors"
	"strconv"

	"github.com/boscod/outreachguard/internal/middleware"
	"github.com/boscod/outreachguard/internal/models"
	"github.com/boscod/outreachguard/internal/services"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

func currentUserID(c fiber.Ctx) (uuid.UUID, bool) {
	uid, err := uuid.Parse(middleware.GetUserID(c))
	return uid, err == nil
}

// List returns paginated notifications for the current user
func (h *NotificationHandler) List(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Not authenticated")
	}

	page := 1
	limit := 20
	if p, err := strconv.Atoi(c.Query("page", "1")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.Query("limit", "20")); err == nil && l > 0 && l <= 50 {
		limit = l
	}
	offset := (page - 1) * limit

	notifications, total, err := h.notificationService.GetUserNotifications(c.UserContext(), userID, limit, offset)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to fetch notifications")
	}

	responses := make([]*models.NotificationResponse, len(notifications))
	for i := range notifications {
		responses[i] = notifications[i].ToResponse()
	}

	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}

	return c.JSON(fiber.Map{
		"notifications": responses,
		"pagination": fiber.Map{
			"page":        page,
			"limit":       limit,
			"total":       total,
			"total_pages": totalPages,
		},
	})
}

// UnreadCount returns the count of unread notifications
func (h *NotificationHandler) UnreadCount(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Not authenticated")
	}

	count, err := h.notificationService.GetUnreadCount(c.UserContext(), userID)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to fetch unread count")
	}

	return c.JSON(fiber.Map{
		"count": count,
	})
}

// MarkAsRead marks a single notification as read
func (h *NotificationHandler) MarkAsRead(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Not authenticated")
	}

	notificationID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid notification ID")
	}

	err = h.notificationService.MarkAsRead(c.UserContext(), notificationID, userID)
	if errors.Is(err, services.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "Notification not found")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to mark notification as read")
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

// MarkAllAsRead marks all notifications as read for the current user
func (h *NotificationHandler) MarkAllAsRead(c fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Not authenticated")
	}

	if err := h.notificationService.MarkAllAsRead(c.UserContext(), userID); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to mark all notifications as read")
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}
