package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/campuspool/carpool-backend/internal/middleware"
	"github.com/campuspool/carpool-backend/internal/models"
	"github.com/campuspool/carpool-backend/internal/storage"
)

// VehicleHandler handles a user's vehicle registry
type VehicleHandler struct {
	store storage.Store
}

// NewVehicleHandler creates a new vehicle handler
func NewVehicleHandler(store storage.Store) *VehicleHandler {
	return &VehicleHandler{store: store}
}

// List returns the current user's vehicles
func (h *VehicleHandler) List(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	vehicles, err := h.store.GetVehiclesByOwner(user.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(vehicles)
}

// Create registers a new vehicle for the current user
func (h *VehicleHandler) Create(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req struct {
		VehicleType   string `json:"vehicle_type"`
		VehicleNumber string `json:"vehicle_number"`
	}
	if err := c.BodyParser(&req); err != nil || req.VehicleNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Vehicle number is required",
		})
	}
	switch req.VehicleType {
	case models.VehicleTypeTwoWheeler, models.VehicleTypeFourWheeler:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Vehicle type must be 2_wheeler or 4_wheeler",
		})
	}

	number := strings.ToUpper(req.VehicleNumber)
	existing, err := h.store.GetVehicleByNumber(number)
	if err != nil {
		return respondError(c, err)
	}
	if existing != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Vehicle with this number already registered",
		})
	}

	vehicle := &models.Vehicle{
		VehicleID:     uuid.New(),
		UserID:        user.UserID,
		VehicleType:   req.VehicleType,
		VehicleNumber: number,
		CreatedAt:     time.Now(),
	}
	if err := h.store.CreateVehicle(vehicle); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(vehicle)
}

// Delete removes a vehicle owned by the current user
func (h *VehicleHandler) Delete(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid vehicle ID",
		})
	}

	vehicle, err := h.store.GetVehicle(id)
	if err != nil {
		return respondError(c, err)
	}
	if vehicle == nil || vehicle.UserID != user.UserID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Vehicle not found or does not belong to you",
		})
	}

	if err := h.store.DeleteVehicle(id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
