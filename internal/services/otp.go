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

// Clock supplies the current time; injectable for tests.
type Clock func() time.Time

// OTPService owns the lifecycle of OTP challenges: creation behind rate
// limiting and cooldown, attempt-counted verification, and lazy expiry.
// Three independent guards cover distinct abuse patterns: the hourly
// rate limit (bulk enumeration), the resend cooldown (resend spam), and
// the per-challenge attempt cap (brute-force guessing). They are checked
// in that order.
type OTPService struct {
	store storage.Store
	cfg   *config.Config
	now   Clock
}

// NewOTPService creates an OTP service. A nil clock means the wall
// clock.
func NewOTPService(store storage.Store, cfg *config.Config, now Clock) *OTPService {
	if now == nil {
		now = time.Now
	}
	return &OTPService{store: store, cfg: cfg, now: now}
}

// Create generates a new challenge for the identifier and returns it
// together with the plaintext code for out-of-band delivery. The
// plaintext is never stored.
func (s *OTPService) Create(identifier, kind, ipAddress string) (*models.OTPSession, string, error) {
	now := s.now()

	count, err := s.store.CountOTPSessionsSince(identifier, kind, now.Add(-time.Hour))
	if err != nil {
		return nil, "", fmt.Errorf("failed to check rate limit: %w", err)
	}
	if count >= int64(s.cfg.OTPRateLimitPerHour) {
		return nil, "", apperr.ErrRateLimitExceeded
	}

	last, err := s.store.LatestUnverifiedOTPSessionSince(identifier, kind, now.Add(-s.cfg.OTPResendCooldown))
	if err != nil {
		return nil, "", fmt.Errorf("failed to check cooldown: %w", err)
	}
	if last != nil {
		remaining := int(s.cfg.OTPResendCooldown.Seconds()) - int(now.Sub(last.CreatedAt).Seconds())
		if remaining > 0 {
			return nil, "", apperr.CooldownActive(remaining)
		}
	}

	code, err := utils.GenerateNumericCode(s.cfg.OTPLength)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate OTP: %w", err)
	}

	session := &models.OTPSession{
		SessionID:      uuid.New(),
		Identifier:     identifier,
		IdentifierType: kind,
		OTPHash:        utils.HashCode(code),
		Attempts:       0,
		IsVerified:     false,
		IsExpired:      false,
		ExpiresAt:      now.Add(s.cfg.OTPExpiry),
		CreatedAt:      now,
		IPAddress:      ipAddress,
	}
	if err := s.store.CreateOTPSession(session); err != nil {
		return nil, "", fmt.Errorf("failed to persist OTP session: %w", err)
	}

	return session, code, nil
}

// Verify checks a candidate code against the challenge. Every outcome
// persists its side effect (attempt increment or flag flip) before
// returning.
func (s *OTPService) Verify(sessionID uuid.UUID, code string) (*models.OTPSession, error) {
	session, err := s.store.GetOTPSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load OTP session: %w", err)
	}
	if session == nil {
		return nil, apperr.ErrSessionNotFound
	}

	if session.IsVerified {
		return nil, apperr.ErrAlreadyVerified
	}

	now := s.now()
	if now.After(session.ExpiresAt) {
		session.IsExpired = true
		if err := s.store.UpdateOTPSession(session); err != nil {
			return nil, fmt.Errorf("failed to expire OTP session: %w", err)
		}
		return nil, apperr.ErrOTPExpired
	}

	if session.Attempts >= s.cfg.OTPMaxAttempts {
		session.IsExpired = true
		if err := s.store.UpdateOTPSession(session); err != nil {
			return nil, fmt.Errorf("failed to expire OTP session: %w", err)
		}
		return nil, apperr.ErrMaxAttemptsExceeded
	}

	if !utils.CodeMatches(code, session.OTPHash) {
		// The increment is a conditional update at the storage layer;
		// parallel wrong guesses can never consume more than the cap.
		ok, err := s.store.IncrementOTPAttempts(session.SessionID, s.cfg.OTPMaxAttempts)
		if err != nil {
			return nil, fmt.Errorf("failed to record OTP attempt: %w", err)
		}
		if !ok {
			return nil, apperr.ErrMaxAttemptsExceeded
		}
		current, err := s.store.GetOTPSession(session.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload OTP session: %w", err)
		}
		if current == nil {
			return nil, apperr.ErrSessionNotFound
		}
		return nil, apperr.InvalidOTP(s.cfg.OTPMaxAttempts - current.Attempts)
	}

	session.IsVerified = true
	session.VerifiedAt = &now
	if err := s.store.UpdateOTPSession(session); err != nil {
		return nil, fmt.Errorf("failed to mark OTP session verified: %w", err)
	}
	return session, nil
}

// Discard removes a challenge whose out-of-band delivery failed. The
// create step counts as failed in that case, and the row must not keep
// consuming rate-limit quota.
func (s *OTPService) Discard(sessionID uuid.UUID) error {
	return s.store.DeleteOTPSession(sessionID)
}
