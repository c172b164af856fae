package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campuspool/carpool-backend/internal/apperr"
	"github.com/campuspool/carpool-backend/internal/config"
	"github.com/campuspool/carpool-backend/internal/models"
	"github.com/campuspool/carpool-backend/internal/storage"
	"github.com/campuspool/carpool-backend/internal/utils"
)

// Forward ranks of the ride lifecycle. Transitions must move strictly
// forward; cancelled is reachable from any non-terminal status;
// completed and cancelled are terminal.
var rideStatusRank = map[string]int{
	models.RideStatusOpen:           0,
	models.RideStatusDriverArriving: 1,
	models.RideStatusDriverArrived:  2,
	models.RideStatusRiderPickedUp:  3,
	models.RideStatusOngoing:        4,
	models.RideStatusCompleted:      5,
}

// RideService owns ride status transitions, seat capacity accounting,
// the join-request lifecycle, and per-rider pickup code generation and
// verification.
type RideService struct {
	store storage.Store
	cfg   *config.Config
	now   Clock
}

// NewRideService creates a ride service. A nil clock means the wall
// clock.
func NewRideService(store storage.Store, cfg *config.Config, now Clock) *RideService {
	if now == nil {
		now = time.Now
	}
	return &RideService{store: store, cfg: cfg, now: now}
}

// CreateRideInput carries the fields a driver supplies when offering a
// ride.
type CreateRideInput struct {
	VehicleID        uuid.UUID `json:"vehicle_id"`
	StartLat         float64   `json:"start_lat"`
	StartLng         float64   `json:"start_lng"`
	EndLat           float64   `json:"end_lat"`
	EndLng           float64   `json:"end_lng"`
	StartAddress     string    `json:"start_address"`
	EndAddress       string    `json:"end_address"`
	RideDate         string    `json:"ride_date"`
	RideTime         string    `json:"ride_time"`
	AvailableSeats   int       `json:"available_seats"`
	AllowedGender    string    `json:"allowed_gender"`
	AllowedCommunity *string   `json:"allowed_community"`
	EstimatedFare    *float64  `json:"estimated_fare"`
}

// Create offers a new ride. The vehicle must belong to the driver.
func (s *RideService) Create(driver *models.User, in CreateRideInput) (*models.Ride, error) {
	vehicle, err := s.store.GetVehicle(in.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vehicle: %w", err)
	}
	if vehicle == nil || vehicle.UserID != driver.UserID {
		return nil, apperr.NotFound("Vehicle")
	}

	if in.AvailableSeats < 0 {
		return nil, apperr.InvalidState("Seat count cannot be negative.")
	}
	switch in.AllowedGender {
	case "":
		in.AllowedGender = models.AllowedGenderAny
	case models.AllowedGenderAny, models.AllowedGenderMale, models.AllowedGenderFemale:
	default:
		return nil, apperr.InvalidState("Invalid gender restriction.")
	}

	ride := &models.Ride{
		RideID:           uuid.New(),
		DriverID:         driver.UserID,
		VehicleID:        in.VehicleID,
		StartLat:         in.StartLat,
		StartLng:         in.StartLng,
		EndLat:           in.EndLat,
		EndLng:           in.EndLng,
		StartAddress:     in.StartAddress,
		EndAddress:       in.EndAddress,
		RideDate:         in.RideDate,
		RideTime:         in.RideTime,
		AvailableSeats:   in.AvailableSeats,
		AllowedGender:    in.AllowedGender,
		AllowedCommunity: in.AllowedCommunity,
		EstimatedFare:    in.EstimatedFare,
		Status:           models.RideStatusOpen,
		CreatedAt:        s.now(),
	}
	if err := s.store.CreateRide(ride); err != nil {
		return nil, fmt.Errorf("failed to create ride: %w", err)
	}
	return ride, nil
}

// ListOpen returns the rides discoverable by riders. Open status is the
// sole visibility rule.
func (s *RideService) ListOpen() ([]*models.Ride, error) {
	return s.store.ListOpenRides()
}

// Get returns one ride.
func (s *RideService) Get(rideID uuid.UUID) (*models.Ride, error) {
	ride, err := s.store.GetRide(rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ride: %w", err)
	}
	if ride == nil {
		return nil, apperr.NotFound("Ride")
	}
	return ride, nil
}

// UpdateStatus moves the ride through its lifecycle (driver only).
// The first transition into driver_arriving lazily generates the legacy
// ride-level pickup code.
func (s *RideService) UpdateStatus(driver *models.User, rideID uuid.UUID, newStatus string) (*models.Ride, error) {
	ride, err := s.Get(rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driver.UserID {
		return nil, apperr.Forbidden("Only the driver can update the ride status.")
	}

	if ride.Status == models.RideStatusCompleted || ride.Status == models.RideStatusCancelled {
		return nil, apperr.InvalidState("Ride is already " + ride.Status + ".")
	}

	if newStatus != models.RideStatusCancelled {
		newRank, known := rideStatusRank[newStatus]
		if !known {
			return nil, apperr.InvalidState("Unknown ride status " + newStatus + ".")
		}
		if newRank <= rideStatusRank[ride.Status] {
			return nil, apperr.InvalidState("Cannot move ride from " + ride.Status + " to " + newStatus + ".")
		}
	}

	if newStatus == models.RideStatusDriverArriving && ride.PickupOTP == nil {
		code, err := utils.GenerateNumericCode(s.cfg.PickupCodeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate pickup code: %w", err)
		}
		ride.PickupOTP = &code
	}

	ride.Status = newStatus
	if err := s.store.UpdateRide(ride); err != nil {
		return nil, fmt.Errorf("failed to update ride: %w", err)
	}
	return ride, nil
}

// JoinRequestInput carries the optional candidate pickup point.
type JoinRequestInput struct {
	PickupLat     *float64 `json:"pickup_lat"`
	PickupLng     *float64 `json:"pickup_lng"`
	PickupAddress *string  `json:"pickup_address"`
}

// RequestJoin files a passenger's request for a seat. At most one
// request ever exists per (ride, passenger), regardless of status, so a
// rejected rider cannot re-request.
func (s *RideService) RequestJoin(passenger *models.User, rideID uuid.UUID, in JoinRequestInput) (*models.RideRequest, error) {
	ride, err := s.Get(rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID == passenger.UserID {
		return nil, apperr.InvalidState("Cannot request your own ride.")
	}
	if ride.AvailableSeats <= 0 {
		return nil, apperr.InvalidState("No seats available.")
	}

	existing, err := s.store.GetRideRequestByRideAndPassenger(rideID, passenger.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing request: %w", err)
	}
	if existing != nil {
		return nil, apperr.Conflict("You have already requested this ride.")
	}

	req := &models.RideRequest{
		RequestID:     uuid.New(),
		RideID:        rideID,
		PassengerID:   passenger.UserID,
		Status:        models.RequestStatusPending,
		PickupLat:     in.PickupLat,
		PickupLng:     in.PickupLng,
		PickupAddress: in.PickupAddress,
		RequestedAt:   s.now(),
	}
	if err := s.store.CreateRideRequest(req); err != nil {
		return nil, fmt.Errorf("failed to create ride request: %w", err)
	}
	return req, nil
}

// ListRequests returns the pending requests of a ride (driver only).
func (s *RideService) ListRequests(driver *models.User, rideID uuid.UUID) ([]*models.RideRequest, error) {
	ride, err := s.Get(rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driver.UserID {
		return nil, apperr.Forbidden("Not your ride.")
	}
	return s.store.ListPendingRideRequests(rideID)
}

// Request actions
const (
	RequestActionAccept = "accept"
	RequestActionReject = "reject"
)

// HandleRequest accepts or rejects a pending request (driver only).
// Accept atomically takes a seat and spawns a participant with a fresh
// pickup code; reject has no side effect. Either way the request is
// terminal afterwards.
func (s *RideService) HandleRequest(driver *models.User, rideID, requestID uuid.UUID, action string) (*models.RideRequest, *models.RideParticipant, error) {
	ride, err := s.Get(rideID)
	if err != nil {
		return nil, nil, err
	}
	if ride.DriverID != driver.UserID {
		return nil, nil, apperr.Forbidden("Not your ride.")
	}

	req, err := s.store.GetRideRequest(requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load ride request: %w", err)
	}
	if req == nil || req.RideID != rideID {
		return nil, nil, apperr.NotFound("Request")
	}
	if req.Status != models.RequestStatusPending {
		return nil, nil, apperr.InvalidState("Request has already been " + req.Status + ".")
	}

	switch action {
	case RequestActionAccept:
		// Winning the pending->accepted transition is a conditional
		// update at the storage layer; two concurrent accepts of the
		// same request cannot both pass, so a request leaves pending
		// exactly once.
		ok, err := s.store.UpdateRideRequestStatus(req.RequestID, models.RequestStatusPending, models.RequestStatusAccepted)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to update request: %w", err)
		}
		if !ok {
			return nil, nil, apperr.InvalidState("Request has already been handled.")
		}

		// The seat check and decrement are one atomic conditional
		// update; two concurrent accepts against the last seat cannot
		// both pass.
		ok, err = s.store.DecrementRideSeats(rideID)
		if err != nil {
			s.rollbackAccept(req.RequestID, rideID, false)
			return nil, nil, fmt.Errorf("failed to take seat: %w", err)
		}
		if !ok {
			s.rollbackAccept(req.RequestID, rideID, false)
			return nil, nil, apperr.InvalidState("No seats available.")
		}

		code, err := s.generatePickupCode(rideID)
		if err != nil {
			s.rollbackAccept(req.RequestID, rideID, true)
			return nil, nil, err
		}

		participant := &models.RideParticipant{
			ParticipantID: uuid.New(),
			RideID:        rideID,
			UserID:        req.PassengerID,
			PickupLat:     req.PickupLat,
			PickupLng:     req.PickupLng,
			PickupAddress: req.PickupAddress,
			PickupOTP:     code,
			JoinedAt:      s.now(),
		}
		if err := s.store.CreateRideParticipant(participant); err != nil {
			s.rollbackAccept(req.RequestID, rideID, true)
			return nil, nil, fmt.Errorf("failed to create participant: %w", err)
		}

		req.Status = models.RequestStatusAccepted
		return req, participant, nil

	case RequestActionReject:
		ok, err := s.store.UpdateRideRequestStatus(req.RequestID, models.RequestStatusPending, models.RequestStatusRejected)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to update request: %w", err)
		}
		if !ok {
			return nil, nil, apperr.InvalidState("Request has already been handled.")
		}
		req.Status = models.RequestStatusRejected
		return req, nil, nil

	default:
		return nil, nil, apperr.InvalidState("Unknown action " + action + ".")
	}
}

// rollbackAccept undoes a half-finished accept: the request returns to
// pending so the driver can retry, and the seat goes back if it was
// already taken. Best effort; a failed rollback leaves the request
// accepted without a participant, which the driver surfaces by
// re-listing.
func (s *RideService) rollbackAccept(requestID, rideID uuid.UUID, seatTaken bool) {
	if seatTaken {
		_ = s.store.IncrementRideSeats(rideID)
	}
	_, _ = s.store.UpdateRideRequestStatus(requestID, models.RequestStatusAccepted, models.RequestStatusPending)
}

// generatePickupCode draws a fresh code and re-rolls against the ride's
// existing participants, so no two participants of one ride ever share
// a code and the fallback scan in VerifyPickup stays unambiguous.
func (s *RideService) generatePickupCode(rideID uuid.UUID) (string, error) {
	existing, err := s.store.ListRideParticipants(rideID)
	if err != nil {
		return "", fmt.Errorf("failed to list participants: %w", err)
	}
	used := make(map[string]bool, len(existing))
	for _, p := range existing {
		used[p.PickupOTP] = true
	}

	for i := 0; i < 100; i++ {
		code, err := utils.GenerateNumericCode(s.cfg.PickupCodeLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate pickup code: %w", err)
		}
		if !used[code] {
			return code, nil
		}
	}
	return "", fmt.Errorf("exhausted pickup code space for ride %s", rideID)
}

// VerifyPickup confirms a rider's physical pickup (driver only). With a
// participant id the exact code is checked; without one, all
// not-yet-picked-up participants are scanned and the first match wins.
// Re-verifying an already-picked-up participant fails.
func (s *RideService) VerifyPickup(driver *models.User, rideID uuid.UUID, code string, participantID *uuid.UUID) (*models.RideParticipant, error) {
	ride, err := s.Get(rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driver.UserID {
		return nil, apperr.Forbidden("Not your ride.")
	}

	if participantID != nil {
		p, err := s.store.GetRideParticipant(*participantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load participant: %w", err)
		}
		if p == nil || p.RideID != rideID {
			return nil, apperr.NotFound("Participant")
		}
		if p.IsPickedUp {
			return nil, apperr.InvalidState("Rider has already been picked up.")
		}
		if p.PickupOTP != code {
			return nil, apperr.ErrInvalidOTP
		}
		return s.markPickedUp(p)
	}

	candidates, err := s.store.ListUnpickedParticipants(rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	for _, p := range candidates {
		if p.PickupOTP == code {
			return s.markPickedUp(p)
		}
	}
	return nil, apperr.ErrInvalidOTP
}

func (s *RideService) markPickedUp(p *models.RideParticipant) (*models.RideParticipant, error) {
	p.IsPickedUp = true
	if err := s.store.UpdateRideParticipant(p); err != nil {
		return nil, fmt.Errorf("failed to update participant: %w", err)
	}
	return p, nil
}

// ListParticipants returns a ride's confirmed participants and whether
// the requesting user is the driver (pickup codes are shown to the
// driver only; the handler strips them otherwise).
func (s *RideService) ListParticipants(user *models.User, rideID uuid.UUID) ([]*models.RideParticipant, bool, error) {
	ride, err := s.Get(rideID)
	if err != nil {
		return nil, false, err
	}
	participants, err := s.store.ListRideParticipants(rideID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, ride.DriverID == user.UserID, nil
}
