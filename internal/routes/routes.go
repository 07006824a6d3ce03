package routes

import (
	"time"

	"github.com/boscod/outreachguard/internal/handlers"
	"github.com/boscod/outreachguard/internal/metrics"
	"github.com/boscod/outreachguard/internal/middleware"
	"github.com/boscod/outreachguard/internal/services"
	"github.com/boscod/outreachguard/internal/store"
	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	publicRateLimit  = 10
	publicRateWindow = time.Minute
)

// Dependencies are the services the HTTP surface is built from.
// Metrics and Gatherer may be nil to run without instrumentation.
type Dependencies struct {
	JWT           *services.JWTService
	Auth          *services.AuthService
	Notifications *services.NotificationService
	Phone         *services.PhoneVerificationService
	Exports       *services.ExportService

	Collector    *tracker.Collector
	Registry     *tracker.Registry
	Fingerprints tracker.FingerprintGenerator
	Signals      store.SignalStore

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	BlockDuplicateSignups bool
	SecureCookies         bool
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.Auth, deps.JWT, deps.Collector, deps.Notifications, deps.BlockDuplicateSignups, deps.SecureCookies)
	trackingHandler := handlers.NewTrackingHandler(deps.Collector, deps.Registry, deps.Fingerprints, deps.Signals, deps.Exports)
	verificationHandler := handlers.NewVerificationHandler(deps.Phone)
	notificationHandler := handlers.NewNotificationHandler(deps.Notifications)

	if deps.Metrics != nil {
		app.Use(middleware.Metrics(deps.Metrics))
	}
	app.Use(middleware.ClientIP())

	health := func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "OutreachGuard API is running",
		})
	}
	app.Get("/health", health)

	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// API group
	api := app.Group("/api")
	api.Get("/health", health)

	// ==================
	// Public Auth Routes
	// ==================
	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)

	// ==================
	// Public signup checks
	// Rate limited per client IP
	// ==================
	public := api.Group("/public", middleware.RateLimitMiddleware(publicRateLimit, publicRateWindow))
	public.Post("/duplicate-check", trackingHandler.DuplicateCheck)

	// ==================
	// Protected Routes (JWT)
	// ==================
	protected := api.Group("", middleware.AuthMiddleware(deps.JWT))

	// Auth routes
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)
	protected.Put("/auth/profile", authHandler.UpdateProfile)

	// Tracking routes
	protected.Post("/tracking/session", trackingHandler.TrackSession)
	protected.Get("/tracking/status", trackingHandler.Status)
	protected.Get("/tracking/sessions", trackingHandler.Sessions)
	protected.Get("/tracking/export", trackingHandler.Export)

	// Verification routes
	protected.Post("/verification/phone/start", verificationHandler.Start)
	protected.Post("/verification/phone/confirm", verificationHandler.Confirm)

	// Notification routes
	protected.Get("/notifications", notificationHandler.List)
	protected.Get("/notifications/unread-count", notificationHandler.UnreadCount)
	protected.Post("/notifications/:id/read", notificationHandler.MarkAsRead)
	protected.Post("/notifications/read-all", notificationHandler.MarkAllAsRead)
}
