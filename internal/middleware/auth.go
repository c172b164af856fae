package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/campuspool/carpool-backend/internal/auth"
	"github.com/campuspool/carpool-backend/internal/models"
	"github.com/campuspool/carpool-backend/internal/storage"
)

const userLocalsKey = "currentUser"

// RequireAuth validates the Bearer access token, loads the user and
// stashes it in locals. Deactivated accounts are rejected here so no
// handler has to re-check.
func RequireAuth(tokens *auth.TokenService, store storage.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return unauthorized(c, "Missing or malformed Authorization header.")
		}

		claims := tokens.Verify(strings.TrimPrefix(header, "Bearer "), auth.TokenAccess)
		if claims == nil {
			return unauthorized(c, "Invalid or expired token.")
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return unauthorized(c, "Invalid or expired token.")
		}

		user, err := store.GetUserByID(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load user.",
			})
		}
		if user == nil {
			return unauthorized(c, "User no longer exists.")
		}
		if !user.IsActive {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Account is deactivated.",
			})
		}

		c.Locals(userLocalsKey, user)
		return c.Next()
	}
}

// CurrentUser returns the authenticated user set by RequireAuth, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userLocalsKey).(*models.User)
	return user
}

// ClientIP extracts the caller's IP, honoring X-Forwarded-For when a
// proxy is in front.
func ClientIP(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return c.IP()
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": message,
	})
}
