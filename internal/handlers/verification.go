package handlers

import (
	"errors"
	"log/slog"

	"github.com/boscod/outreachguard/internal/middleware"
	"github.com/boscod/outreachguard/internal/services"
	"github.com/gofiber/fiber/v3"
)

type VerificationHandler struct {
	phoneService *services.PhoneVerificationService
}

func NewVerificationHandler(phoneService *services.PhoneVerificationService) *VerificationHandler {
	return &VerificationHandler{phoneService: phoneService}
}

type StartPhoneRequest struct {
	Phone string `json:"phone"`
}

type ConfirmPhoneRequest struct {
	Code string `json:"code"`
}

func (h *VerificationHandler) Start(c fiber.Ctx) error {
	var req StartPhoneRequest
	if err := c.Bind().JSON(&req); err != nil || req.Phone == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Phone number is required")
	}

	res, err := h.phoneService.Start(c.UserContext(), middleware.GetUserID(c), req.Phone)
	switch {
	case errors.Is(err, services.ErrInvalidPhone):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrAlreadyVerified), errors.Is(err, services.ErrPhoneInUse):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, "User not found")
	case err != nil:
		slog.Error("failed to start phone verification", "user_id", middleware.GetUserID(c), "error", err)
		return errorJSON(c, fiber.StatusBadGateway, "Failed to send verification code")
	}

	return c.JSON(res)
}

func (h *VerificationHandler) Confirm(c fiber.Ctx) error {
	var req ConfirmPhoneRequest
	if err := c.Bind().JSON(&req); err != nil || req.Code == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Code is required")
	}

	err := h.phoneService.Confirm(c.UserContext(), middleware.GetUserID(c), req.Code)
	switch {
	case errors.Is(err, services.ErrInvalidCode):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrVerificationExpired):
		return errorJSON(c, fiber.StatusGone, err.Error())
	case errors.Is(err, services.ErrTooManyAttempts):
		return errorJSON(c, fiber.StatusTooManyRequests, err.Error())
	case errors.Is(err, services.ErrPhoneInUse):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, "No pending verification")
	case err != nil:
		slog.Error("failed to confirm phone verification", "user_id", middleware.GetUserID(c), "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to confirm verification")
	}

	return c.JSON(fiber.Map{"phone_verified": true})
}
