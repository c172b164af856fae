package models

import (
	"time"

	"github.com/google/uuid"
)

// Vehicle types
const (
	VehicleTypeTwoWheeler  = "2_wheeler"
	VehicleTypeFourWheeler = "4_wheeler"
)

// Vehicle belongs to a user; rides reference exactly one vehicle.
type Vehicle struct {
	VehicleID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"vehicle_id"`
	UserID        uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	VehicleType   string    `gorm:"size:20;not null" json:"vehicle_type"`
	VehicleNumber string    `gorm:"size:20;uniqueIndex;not null" json:"vehicle_number"`
	CreatedAt     time.Time `json:"created_at"`
}
