package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v3"
)

func errorJSON(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   http.StatusText(status),
		"message": message,
	})
}
