package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/campuspool/carpool-backend/internal/middleware"
	"github.com/campuspool/carpool-backend/internal/models"
	"github.com/campuspool/carpool-backend/internal/storage"
)

// UserHandler handles profile management
type UserHandler struct {
	store storage.Store
}

// NewUserHandler creates a new user handler
func NewUserHandler(store storage.Store) *UserHandler {
	return &UserHandler{store: store}
}

// Me returns the current user's profile
func (h *UserHandler) Me(c *fiber.Ctx) error {
	return c.JSON(middleware.CurrentUser(c))
}

// UpdateMe applies a partial profile update
func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req struct {
		FullName        *string `json:"full_name"`
		Gender          *string `json:"gender"`
		Community       *string `json:"community"`
		ProfilePhotoURL *string `json:"profile_photo_url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.FullName != nil {
		if *req.FullName == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Full name cannot be empty",
			})
		}
		user.FullName = *req.FullName
	}
	if req.Gender != nil {
		switch *req.Gender {
		case models.GenderMale, models.GenderFemale, models.GenderOther:
			user.Gender = *req.Gender
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid gender value",
			})
		}
	}
	if req.Community != nil {
		user.Community = req.Community
	}
	if req.ProfilePhotoURL != nil {
		user.ProfilePhotoURL = req.ProfilePhotoURL
	}

	now := time.Now()
	user.UpdatedAt = &now
	if err := h.store.UpdateUser(user); err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// DeactivateMe soft-deactivates the account; the row is kept
func (h *UserHandler) DeactivateMe(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	user.IsActive = false
	now := time.Now()
	user.UpdatedAt = &now
	if err := h.store.UpdateUser(user); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Account deactivated",
	})
}
