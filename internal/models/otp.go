package models

import (
	"time"

	"github.com/google/uuid"
)

// Identifier kinds for OTP challenges.
const (
	IdentifierPhone = "phone"
	IdentifierEmail = "email"
)

// OTPSession is one OTP challenge tied to a phone number or email.
// The plaintext code is never stored; only its digest. Rows are kept as
// an audit trail — rate limiting and cooldown scan recent rows by
// creation time instead of relying on a separate counter.
type OTPSession struct {
	SessionID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"session_id"`
	Identifier     string    `gorm:"size:255;index;not null" json:"identifier"`
	IdentifierType string    `gorm:"size:10;not null" json:"identifier_type"`

	OTPHash  string `gorm:"size:64;not null" json:"-"`
	Attempts int    `gorm:"default:0" json:"attempts"`

	IsVerified bool `gorm:"default:false" json:"is_verified"`
	IsExpired  bool `gorm:"default:false" json:"is_expired"`

	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`

	IPAddress string `gorm:"size:45" json:"-"`
}
