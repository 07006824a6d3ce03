package middleware

import (
	"time"

	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/limiter"
)

// RateLimitMiddleware limits requests per client IP within window. The key is
// c.IP(), so forwarded headers only count when the app trusts the peer.
func RateLimitMiddleware(limit int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: window,
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests",
				"message":     "Please slow down and try again shortly.",
				"retry_after": int(window.Seconds()),
			})
		},
	})
}

// ClientIP makes the caller's address available to tracker.ContextIPResolver.
func ClientIP() fiber.Handler {
	return func(c fiber.Ctx) error {
		c.SetUserContext(tracker.WithClientIP(c.UserContext(), c.IP()))
		return c.Next()
	}
}
