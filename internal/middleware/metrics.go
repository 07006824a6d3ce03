package middleware

import (
	"errors"

	"github.com/boscod/outreachguard/internal/metrics"
	"github.com/gofiber/fiber/v3"
)

// Metrics counts every request by method and status class.
func Metrics(m *metrics.Metrics) fiber.Handler {
	return func(c fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		m.IncHTTPRequest(c.Method(), status)
		return err
	}
}
