package handlers

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/boscod/outreachguard/internal/middleware"
	"github.com/boscod/outreachguard/internal/models"
	"github.com/boscod/outreachguard/internal/services"
	"github.com/boscod/outreachguard/internal/store"
	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/gofiber/fiber/v3"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type TrackingHandler struct {
	collector    *tracker.Collector
	registry     *tracker.Registry
	fingerprints tracker.FingerprintGenerator
	signals      store.SignalStore
	exports      *services.ExportService
}

func NewTrackingHandler(
	collector *tracker.Collector,
	registry *tracker.Registry,
	fingerprints tracker.FingerprintGenerator,
	signals store.SignalStore,
	exports *services.ExportService,
) *TrackingHandler {
	return &TrackingHandler{
		collector:    collector,
		registry:     registry,
		fingerprints: fingerprints,
		signals:      signals,
		exports:      exports,
	}
}

type TrackSessionRequest struct {
	Device tracker.DeviceContext `json:"device"`
}

type DuplicateCheckRequest struct {
	Email  string                `json:"email"`
	Device tracker.DeviceContext `json:"device"`
}

// deviceWithUserAgent fills a missing user agent from the request header.
func deviceWithUserAgent(c fiber.Ctx, d tracker.DeviceContext) tracker.DeviceContext {
	if strings.TrimSpace(d.UserAgent) == "" {
		d.UserAgent = c.Get(fiber.HeaderUserAgent)
	}
	return d
}

// TrackSession records the session start for the caller's UI session.
func (h *TrackingHandler) TrackSession(c fiber.Ctx) error {
	var req TrackSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	device := deviceWithUserAgent(c, req.Device)

	identity := middleware.Identity(c)
	if identity == nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Not authenticated")
	}

	session := h.registry.Session(middleware.GetSessionID(c))
	scope := &trackingScope{
		identity:        *identity,
		fingerprintHash: h.fingerprints.Generate(device),
		ip:              c.IP(),
	}

	session.TrackUserSession(withTrackingScope(c.UserContext(), scope), identity, device)

	return c.JSON(fiber.Map{
		"requires_verification": session.RequiresVerification(),
		"is_tracking":           session.IsTracking(),
		"notifications":         scope.collected(),
	})
}

// Status reports the flags of the caller's UI session without tracking.
func (h *TrackingHandler) Status(c fiber.Ctx) error {
	session, ok := h.registry.Lookup(middleware.GetSessionID(c))
	if !ok {
		return c.JSON(fiber.Map{
			"tracked":               false,
			"is_tracking":           false,
			"requires_verification": false,
		})
	}
	return c.JSON(fiber.Map{
		"tracked":               true,
		"is_tracking":           session.IsTracking(),
		"requires_verification": session.RequiresVerification(),
	})
}

// Sessions lists the caller's most recent session starts.
func (h *TrackingHandler) Sessions(c fiber.Ctx) error {
	uid, ok := currentUserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Not authenticated")
	}

	limit := 20
	if l, err := strconv.Atoi(c.Query("limit", "20")); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	sessions, err := h.signals.ListSessions(c.UserContext(), uid, limit)
	if err != nil {
		slog.Error("failed to list sessions", "user_id", uid, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to fetch sessions")
	}

	responses := make([]*models.UserSessionResponse, len(sessions))
	for i := range sessions {
		responses[i] = sessions[i].ToResponse()
	}
	return c.JSON(fiber.Map{"sessions": responses})
}

// Export downloads the caller's sessions and devices as a workbook.
func (h *TrackingHandler) Export(c fiber.Ctx) error {
	uid, ok := currentUserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Not authenticated")
	}

	buf, err := h.exports.SessionsWorkbook(c.UserContext(), uid)
	if err != nil {
		slog.Error("failed to build export", "user_id", uid, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to build export")
	}

	filename := fmt.Sprintf("sessions-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(buf.Bytes())
}

// DuplicateCheck answers whether a signup from this device and network
// looks like an existing account.
func (h *TrackingHandler) DuplicateCheck(c fiber.Ctx) error {
	var req DuplicateCheckRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Email) == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Email is required")
	}

	duplicate := h.collector.CheckForDuplicateAccount(c.UserContext(), req.Email, deviceWithUserAgent(c, req.Device))
	return c.JSON(fiber.Map{"duplicate": duplicate})
}
