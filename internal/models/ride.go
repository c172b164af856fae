package models

import (
	"time"

	"github.com/google/uuid"
)

// Ride statuses, in lifecycle order. Cancelled is reachable from any
// non-terminal status; completed and cancelled are terminal.
const (
	RideStatusOpen           = "open"
	RideStatusDriverArriving = "driver_arriving"
	RideStatusDriverArrived  = "driver_arrived"
	RideStatusRiderPickedUp  = "rider_picked_up"
	RideStatusOngoing        = "ongoing"
	RideStatusCompleted      = "completed"
	RideStatusCancelled      = "cancelled"
)

// Allowed gender restrictions on a ride.
const (
	AllowedGenderAny    = "any"
	AllowedGenderMale   = "male"
	AllowedGenderFemale = "female"
)

// Ride request statuses.
const (
	RequestStatusPending  = "pending"
	RequestStatusAccepted = "accepted"
	RequestStatusRejected = "rejected"
)

// Ride is offered by a driver with a fixed vehicle and a mutable seat
// counter. AvailableSeats never goes negative; the decrement is guarded
// by a conditional update at the storage layer.
type Ride struct {
	RideID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"ride_id"`
	DriverID  uuid.UUID `gorm:"type:uuid;index;not null" json:"driver_id"`
	VehicleID uuid.UUID `gorm:"type:uuid;not null" json:"vehicle_id"`

	StartLat     float64 `json:"start_lat"`
	StartLng     float64 `json:"start_lng"`
	EndLat       float64 `json:"end_lat"`
	EndLng       float64 `json:"end_lng"`
	StartAddress string  `json:"start_address"`
	EndAddress   string  `json:"end_address"`

	RideDate string `gorm:"size:10" json:"ride_date"` // YYYY-MM-DD
	RideTime string `gorm:"size:5" json:"ride_time"`  // HH:MM

	AvailableSeats   int      `gorm:"not null" json:"available_seats"`
	AllowedGender    string   `gorm:"size:10;default:any" json:"allowed_gender"`
	AllowedCommunity *string  `gorm:"size:50" json:"allowed_community"`
	EstimatedFare    *float64 `json:"estimated_fare"`

	// Legacy ride-level pickup code, superseded by per-participant
	// codes. Generated lazily on the first transition to
	// driver_arriving.
	PickupOTP *string `gorm:"size:8" json:"-"`

	Status    string    `gorm:"size:20;default:open;index" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RideRequest is a passenger's ask for a seat. At most one row exists
// per (ride, passenger) regardless of status.
type RideRequest struct {
	RequestID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"request_id"`
	RideID      uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_ride_passenger;not null" json:"ride_id"`
	PassengerID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_ride_passenger;not null" json:"passenger_id"`

	Status string `gorm:"size:10;default:pending" json:"status"`

	PickupLat     *float64 `json:"pickup_lat"`
	PickupLng     *float64 `json:"pickup_lng"`
	PickupAddress *string  `json:"pickup_address"`

	RequestedAt time.Time `json:"requested_at"`
}

// RideParticipant is a confirmed seat holder, created when the driver
// accepts a request. The pickup code is generated fresh per participant
// and revealed only to the driver.
type RideParticipant struct {
	ParticipantID uuid.UUID `gorm:"type:uuid;primaryKey" json:"participant_id"`
	RideID        uuid.UUID `gorm:"type:uuid;index;not null" json:"ride_id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null" json:"user_id"`

	PickupLat     *float64 `json:"pickup_lat"`
	PickupLng     *float64 `json:"pickup_lng"`
	PickupAddress *string  `json:"pickup_address"`

	PickupOTP  string `gorm:"size:8;not null" json:"-"`
	IsPickedUp bool   `gorm:"default:false" json:"is_picked_up"`

	JoinedAt time.Time `json:"joined_at"`
}
