package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/campuspool/carpool-backend/internal/models"
)

// Store defines the interface for storage operations. Lookup methods
// return (nil, nil) when the row does not exist; errors are reserved
// for storage failures. The service layer turns missing rows into
// domain errors.
type Store interface {
	// User operations
	CreateUser(user *models.User) error
	GetUserByID(id uuid.UUID) (*models.User, error)
	GetUserByPhone(phone string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	UpdateUser(user *models.User) error

	// Vehicle operations
	CreateVehicle(vehicle *models.Vehicle) error
	GetVehicle(id uuid.UUID) (*models.Vehicle, error)
	GetVehicleByNumber(number string) (*models.Vehicle, error)
	GetVehiclesByOwner(ownerID uuid.UUID) ([]*models.Vehicle, error)
	DeleteVehicle(id uuid.UUID) error

	// OTP challenge operations
	CreateOTPSession(session *models.OTPSession) error
	GetOTPSession(id uuid.UUID) (*models.OTPSession, error)
	UpdateOTPSession(session *models.OTPSession) error
	// IncrementOTPAttempts atomically increments the attempt counter if
	// it is still below maxAttempts. Returns false when the cap was
	// already reached; concurrent wrong guesses can never push the
	// counter past the cap.
	IncrementOTPAttempts(id uuid.UUID, maxAttempts int) (bool, error)
	// DeleteOTPSession removes a challenge whose out-of-band delivery
	// failed, so it cannot consume rate-limit quota.
	DeleteOTPSession(id uuid.UUID) error
	CountOTPSessionsSince(identifier, kind string, since time.Time) (int64, error)
	// LatestUnverifiedOTPSessionSince returns the most recently created
	// unverified challenge for the identifier within the window, or nil.
	LatestUnverifiedOTPSessionSince(identifier, kind string, since time.Time) (*models.OTPSession, error)

	// Ride operations
	CreateRide(ride *models.Ride) error
	GetRide(id uuid.UUID) (*models.Ride, error)
	ListOpenRides() ([]*models.Ride, error)
	UpdateRide(ride *models.Ride) error
	// DecrementRideSeats atomically decrements the seat counter if it is
	// positive. Returns false when no seat was available; the counter
	// never goes negative.
	DecrementRideSeats(id uuid.UUID) (bool, error)
	// IncrementRideSeats gives a seat back, compensating an accept that
	// failed after the decrement.
	IncrementRideSeats(id uuid.UUID) error

	// Ride request operations
	CreateRideRequest(req *models.RideRequest) error
	GetRideRequest(id uuid.UUID) (*models.RideRequest, error)
	GetRideRequestByRideAndPassenger(rideID, passengerID uuid.UUID) (*models.RideRequest, error)
	ListPendingRideRequests(rideID uuid.UUID) ([]*models.RideRequest, error)
	// UpdateRideRequestStatus moves a request from one status to another
	// atomically. Returns false when the request was not in the expected
	// status, so a request leaves pending exactly once.
	UpdateRideRequestStatus(id uuid.UUID, from, to string) (bool, error)

	// Ride participant operations
	CreateRideParticipant(p *models.RideParticipant) error
	GetRideParticipant(id uuid.UUID) (*models.RideParticipant, error)
	ListRideParticipants(rideID uuid.UUID) ([]*models.RideParticipant, error)
	ListUnpickedParticipants(rideID uuid.UUID) ([]*models.RideParticipant, error)
	UpdateRideParticipant(p *models.RideParticipant) error
}
