package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"contest-scoring-engine/services"
)

// statusFor maps an error class to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrState), errors.Is(err, services.ErrConcurrencyConflict):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrDeadlinePassed):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrExternalService):
		return fiber.StatusBadGateway
	case errors.Is(err, services.ErrUnresolvedData):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body: " + err.Error()})
}
