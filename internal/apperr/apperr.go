// Package apperr defines the typed, recoverable error taxonomy returned
// by the service layer. Every error carries a stable machine-readable
// code and a human-readable message; the HTTP layer maps codes to
// status codes. Errors compare by code through errors.Is, so variants
// carrying extra context (cooldown seconds, attempts remaining) still
// match their base value.
package apperr

import "fmt"

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Set on COOLDOWN_ACTIVE.
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
	// Set on INVALID_OTP during challenge verification.
	AttemptsRemaining int `json:"attempts_remaining,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Is matches on code so errors.Is(err, apperr.ErrInvalidOTP) works for
// instances built with extra context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// OTP session errors.
var (
	ErrRateLimitExceeded   = New("RATE_LIMIT_EXCEEDED", "Too many OTP requests. Try again in 1 hour.")
	ErrCooldownActive      = New("COOLDOWN_ACTIVE", "Please wait before requesting another OTP.")
	ErrSessionNotFound     = New("SESSION_NOT_FOUND", "OTP session not found or expired.")
	ErrAlreadyVerified     = New("ALREADY_VERIFIED", "This OTP has already been used.")
	ErrOTPExpired          = New("OTP_EXPIRED", "OTP has expired. Please request a new one.")
	ErrMaxAttemptsExceeded = New("MAX_ATTEMPTS_EXCEEDED", "Too many failed attempts. Please request a new OTP.")
	ErrInvalidOTP          = New("INVALID_OTP", "Invalid OTP.")
	ErrDeliveryFailed      = New("DELIVERY_FAILED", "Failed to send OTP. Please try again.")
)

// Token errors.
var ErrTokenInvalid = New("TOKEN_INVALID", "Invalid or expired token. Please start over.")

// Domain errors.
var (
	ErrNotFound           = New("NOT_FOUND", "Resource not found.")
	ErrForbidden          = New("FORBIDDEN", "You are not allowed to perform this action.")
	ErrConflict           = New("CONFLICT", "Resource already exists.")
	ErrInvalidState       = New("INVALID_STATE", "Operation not allowed in the current state.")
	ErrEmailNotAllowed    = New("EMAIL_DOMAIN_NOT_ALLOWED", "Only institutional email addresses are accepted.")
	ErrAccountDeactivated = New("ACCOUNT_DEACTIVATED", "Account is deactivated.")
)

// CooldownActive builds a COOLDOWN_ACTIVE error carrying the remaining
// wait in seconds.
func CooldownActive(remaining int) *Error {
	return &Error{
		Code:              ErrCooldownActive.Code,
		Message:           fmt.Sprintf("Please wait %d seconds before requesting another OTP.", remaining),
		RetryAfterSeconds: remaining,
	}
}

// InvalidOTP builds an INVALID_OTP error carrying the number of
// verification attempts left on the challenge.
func InvalidOTP(attemptsRemaining int) *Error {
	return &Error{
		Code:              ErrInvalidOTP.Code,
		Message:           fmt.Sprintf("Invalid OTP. %d attempts remaining.", attemptsRemaining),
		AttemptsRemaining: attemptsRemaining,
	}
}

// NotFound builds a NOT_FOUND error naming the missing resource.
func NotFound(what string) *Error {
	return &Error{Code: ErrNotFound.Code, Message: what + " not found."}
}

// Forbidden builds a FORBIDDEN error with a specific message.
func Forbidden(message string) *Error {
	return &Error{Code: ErrForbidden.Code, Message: message}
}

// Conflict builds a CONFLICT error with a specific message.
func Conflict(message string) *Error {
	return &Error{Code: ErrConflict.Code, Message: message}
}

// InvalidState builds an INVALID_STATE error with a specific message.
func InvalidState(message string) *Error {
	return &Error{Code: ErrInvalidState.Code, Message: message}
}
