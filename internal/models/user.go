package models

import (
	"time"

	"github.com/google/uuid"
)

// Gender values
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// User is a member of the college community. Authentication is
// passwordless (OTP only); capability access is gated by tiered
// verification flags, each level a strict superset of the previous.
type User struct {
	UserID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	FullName        string    `gorm:"size:100;not null" json:"full_name"`
	Email           *string   `gorm:"size:150;uniqueIndex" json:"email"`
	PhoneNumber     string    `gorm:"size:15;uniqueIndex;not null" json:"phone_number"`
	CollegeID       *string   `gorm:"size:50;uniqueIndex" json:"college_id"`
	Gender          string    `gorm:"size:10;not null" json:"gender"`
	Community       *string   `gorm:"size:50" json:"community"`
	ProfilePhotoURL *string   `json:"profile_photo_url"`

	IsPhoneVerified    bool `gorm:"default:false" json:"is_phone_verified"`
	IsEmailVerified    bool `gorm:"default:false" json:"is_email_verified"`
	IsIdentityVerified bool `gorm:"default:false" json:"is_identity_verified"`
	IsDriverVerified   bool `gorm:"default:false" json:"is_driver_verified"`
	IsAdmin            bool `gorm:"default:false" json:"is_admin"`

	// Soft deactivation; users are never hard-deleted.
	IsActive bool `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}
