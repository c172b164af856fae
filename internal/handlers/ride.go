package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/campuspool/carpool-backend/internal/middleware"
	"github.com/campuspool/carpool-backend/internal/models"
	"github.com/campuspool/carpool-backend/internal/services"
)

// RideHandler handles ride lifecycle, join requests and pickup
// verification
type RideHandler struct {
	rides *services.RideService
}

// NewRideHandler creates a new ride handler
func NewRideHandler(rides *services.RideService) *RideHandler {
	return &RideHandler{rides: rides}
}

// participantView hides the pickup code from everyone but the driver.
type participantView struct {
	*models.RideParticipant
	PickupOTP *string `json:"pickup_otp,omitempty"`
}

func viewParticipants(participants []*models.RideParticipant, isDriver bool) []participantView {
	views := make([]participantView, 0, len(participants))
	for _, p := range participants {
		v := participantView{RideParticipant: p}
		if isDriver {
			code := p.PickupOTP
			v.PickupOTP = &code
		}
		views = append(views, v)
	}
	return views
}

func rideID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

// Create offers a new ride (verified drivers only)
func (h *RideHandler) Create(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req services.CreateRideInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ride, err := h.rides.Create(user, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ride)
}

// List returns all open rides
func (h *RideHandler) List(c *fiber.Ctx) error {
	rides, err := h.rides.ListOpen()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rides)
}

// Get returns one ride with its participants. Per-rider pickup codes
// are visible to the driver only; the legacy ride-level code goes the
// other way, to riders only.
func (h *RideHandler) Get(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := rideID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid ride ID",
		})
	}

	ride, err := h.rides.Get(id)
	if err != nil {
		return respondError(c, err)
	}
	participants, isDriver, err := h.rides.ListParticipants(user, id)
	if err != nil {
		return respondError(c, err)
	}

	resp := fiber.Map{
		"ride":         ride,
		"participants": viewParticipants(participants, isDriver),
	}
	if !isDriver && ride.PickupOTP != nil {
		resp["pickup_otp"] = *ride.PickupOTP
	}
	return c.JSON(resp)
}

// UpdateStatus moves a ride through its lifecycle (driver only)
func (h *RideHandler) UpdateStatus(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := rideID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid ride ID",
		})
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil || req.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Status is required",
		})
	}

	ride, err := h.rides.UpdateStatus(user, id, req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ride)
}

// RequestJoin files a seat request on an open ride
func (h *RideHandler) RequestJoin(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := rideID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid ride ID",
		})
	}

	var req services.JoinRequestInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	request, err := h.rides.RequestJoin(user, id, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(request)
}

// ListRequests returns the pending requests of a ride (driver only)
func (h *RideHandler) ListRequests(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := rideID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid ride ID",
		})
	}

	requests, err := h.rides.ListRequests(user, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(requests)
}

// HandleRequest accepts or rejects a pending request (driver only)
func (h *RideHandler) HandleRequest(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := rideID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid ride ID",
		})
	}
	requestID, err := uuid.Parse(c.Params("requestId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request ID",
		})
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := c.BodyParser(&req); err != nil || req.Action == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Action is required",
		})
	}

	request, participant, err := h.rides.HandleRequest(user, id, requestID, req.Action)
	if err != nil {
		return respondError(c, err)
	}

	resp := fiber.Map{"request": request}
	if participant != nil {
		resp["participant"] = viewParticipants([]*models.RideParticipant{participant}, true)[0]
	}
	return c.JSON(resp)
}

// VerifyPickup confirms a rider boarded by their pickup code (driver
// only)
func (h *RideHandler) VerifyPickup(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := rideID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid ride ID",
		})
	}

	var req struct {
		OTP           string  `json:"otp"`
		ParticipantID *string `json:"participant_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.OTP == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "OTP is required",
		})
	}

	var participantID *uuid.UUID
	if req.ParticipantID != nil {
		pid, err := uuid.Parse(*req.ParticipantID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid participant ID",
			})
		}
		participantID = &pid
	}

	participant, err := h.rides.VerifyPickup(user, id, req.OTP, participantID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":     "Pickup verified",
		"participant": viewParticipants([]*models.RideParticipant{participant}, true)[0],
	})
}

// ListParticipants returns a ride's confirmed participants
func (h *RideHandler) ListParticipants(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := rideID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid ride ID",
		})
	}

	participants, isDriver, err := h.rides.ListParticipants(user, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(viewParticipants(participants, isDriver))
}
