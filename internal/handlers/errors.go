package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/campuspool/carpool-backend/internal/apperr"
)

// statusFor maps the stable error codes of the service layer onto HTTP
// status codes.
func statusFor(code string) int {
	switch code {
	case apperr.ErrRateLimitExceeded.Code, apperr.ErrCooldownActive.Code:
		return fiber.StatusTooManyRequests
	case apperr.ErrTokenInvalid.Code:
		return fiber.StatusUnauthorized
	case apperr.ErrForbidden.Code, apperr.ErrAccountDeactivated.Code, apperr.ErrEmailNotAllowed.Code:
		return fiber.StatusForbidden
	case apperr.ErrNotFound.Code, apperr.ErrSessionNotFound.Code:
		return fiber.StatusNotFound
	case apperr.ErrConflict.Code, apperr.ErrAlreadyVerified.Code:
		return fiber.StatusConflict
	default:
		return fiber.StatusBadRequest
	}
}

// respondError writes a service error as JSON. Typed errors carry their
// code and any extra context through unchanged; anything else is an
// internal failure and stays opaque.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return c.Status(statusFor(appErr.Code)).JSON(appErr)
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}
