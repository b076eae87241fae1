package routes

import (
	"github.com/gofiber/fiber/v2"
)

// Error response helpers
func errorEnvelope(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":     code,
			"message":  message,
			"trace_id": c.Get("X-Request-ID"),
		},
	})
}

func badRequestError(c *fiber.Ctx, code, message string) error {
	return errorEnvelope(c, fiber.StatusBadRequest, code, message)
}

func unauthorizedError(c *fiber.Ctx, code, message string) error {
	return errorEnvelope(c, fiber.StatusUnauthorized, code, message)
}

func forbiddenError(c *fiber.Ctx, code, message string) error {
	return errorEnvelope(c, fiber.StatusForbidden, code, message)
}

func notFoundError(c *fiber.Ctx, code, message string) error {
	return errorEnvelope(c, fiber.StatusNotFound, code, message)
}

func internalError(c *fiber.Ctx, code, message string) error {
	return errorEnvelope(c, fiber.StatusInternalServerError, code, message)
}
