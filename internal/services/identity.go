package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campuspool/carpool-backend/internal/apperr"
	"github.com/campuspool/carpool-backend/internal/auth"
	"github.com/campuspool/carpool-backend/internal/config"
	"github.com/campuspool/carpool-backend/internal/models"
	"github.com/campuspool/carpool-backend/internal/notify"
	"github.com/campuspool/carpool-backend/internal/storage"
)

// IdentityService sequences OTP challenges and staged tokens into the
// registration, login and email-verification flows. Each step accepts
// exactly one token type; a failure at any step surfaces the specific
// OTP or token error, never falls through to another flow.
type IdentityService struct {
	store  storage.Store
	otp    *OTPService
	tokens *auth.TokenService
	sms    notify.Notifier
	email  notify.Notifier
	cfg    *config.Config
	now    Clock
}

// NewIdentityService wires the identity pipeline. A nil clock means the
// wall clock.
func NewIdentityService(
	store storage.Store,
	otp *OTPService,
	tokens *auth.TokenService,
	sms notify.Notifier,
	email notify.Notifier,
	cfg *config.Config,
	now Clock,
) *IdentityService {
	if now == nil {
		now = time.Now
	}
	return &IdentityService{
		store:  store,
		otp:    otp,
		tokens: tokens,
		sms:    sms,
		email:  email,
		cfg:    cfg,
		now:    now,
	}
}

// OTPChallenge is handed back to the client after a send-code step. The
// session token wraps the challenge id and identifier for the matching
// verify step.
type OTPChallenge struct {
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// createAndDeliver runs the shared create-then-send unit. If delivery
// fails the freshly created challenge row is removed so it cannot
// consume rate-limit quota, and the whole step fails.
func (s *IdentityService) createAndDeliver(identifier, kind, ip string, via notify.Notifier) (*models.OTPSession, error) {
	session, code, err := s.otp.Create(identifier, kind, ip)
	if err != nil {
		return nil, err
	}
	if !via.Send(identifier, code) {
		if derr := s.otp.Discard(session.SessionID); derr != nil {
			return nil, fmt.Errorf("failed to discard undelivered OTP session: %w", derr)
		}
		return nil, apperr.ErrDeliveryFailed
	}
	return session, nil
}

// SendRegistrationCode starts the registration flow. Fails when the
// phone is already registered.
func (s *IdentityService) SendRegistrationCode(phone, ip string) (*OTPChallenge, error) {
	existing, err := s.store.GetUserByPhone(phone)
	if err != nil {
		return nil, fmt.Errorf("failed to look up phone: %w", err)
	}
	if existing != nil {
		return nil, apperr.Conflict("Phone number already registered. Please login instead.")
	}

	session, err := s.createAndDeliver(phone, models.IdentifierPhone, ip, s.sms)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.IssuePhoneSession(session.SessionID.String(), phone)
	if err != nil {
		return nil, fmt.Errorf("failed to issue phone session token: %w", err)
	}
	return &OTPChallenge{SessionToken: token, ExpiresAt: session.ExpiresAt}, nil
}

// VerifyPhoneCode consumes a phone-session token plus a candidate code
// and mints the phone-verified token for the register step.
func (s *IdentityService) VerifyPhoneCode(sessionToken, code string) (verifiedToken, phone string, err error) {
	claims := s.tokens.Verify(sessionToken, auth.TokenPhoneSession)
	if claims == nil {
		return "", "", apperr.ErrTokenInvalid
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return "", "", apperr.ErrTokenInvalid
	}

	if _, err := s.otp.Verify(sessionID, code); err != nil {
		return "", "", err
	}

	token, err := s.tokens.IssuePhoneVerified(claims.Phone)
	if err != nil {
		return "", "", fmt.Errorf("failed to issue phone verified token: %w", err)
	}
	return token, claims.Phone, nil
}

// RegisterInput carries the profile fields collected at registration.
type RegisterInput struct {
	PhoneVerifiedToken string  `json:"phone_verified_token"`
	FullName           string  `json:"full_name"`
	Gender             string  `json:"gender"`
	Community          *string `json:"community"`
}

// Register finishes the registration flow: re-validates the
// phone-verified token, re-checks the phone is still unregistered, and
// creates the user with only the phone verified.
func (s *IdentityService) Register(in RegisterInput) (accessToken string, user *models.User, err error) {
	claims := s.tokens.Verify(in.PhoneVerifiedToken, auth.TokenPhoneVerified)
	if claims == nil || !claims.Verified {
		return "", nil, apperr.ErrTokenInvalid
	}

	if in.FullName == "" {
		return "", nil, apperr.InvalidState("Full name is required.")
	}
	switch in.Gender {
	case models.GenderMale, models.GenderFemale, models.GenderOther:
	default:
		return "", nil, apperr.InvalidState("Invalid gender value.")
	}

	// Race-safe re-check: the phone may have registered between the
	// verify step and this one.
	existing, err := s.store.GetUserByPhone(claims.Phone)
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up phone: %w", err)
	}
	if existing != nil {
		return "", nil, apperr.Conflict("Phone number already registered.")
	}

	now := s.now()
	user = &models.User{
		UserID:          uuid.New(),
		FullName:        in.FullName,
		PhoneNumber:     claims.Phone,
		Gender:          in.Gender,
		Community:       in.Community,
		IsPhoneVerified: true,
		IsActive:        true,
		CreatedAt:       now,
	}
	if err := s.store.CreateUser(user); err != nil {
		return "", nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.tokens.IssueAccess(user.UserID.String())
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	return token, user, nil
}

// SendLoginCode starts the login flow. The phone must belong to an
// active registered user.
func (s *IdentityService) SendLoginCode(phone, ip string) (*OTPChallenge, error) {
	user, err := s.store.GetUserByPhone(phone)
	if err != nil {
		return nil, fmt.Errorf("failed to look up phone: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("Phone number not registered. Please register first.")
	}
	if !user.IsActive {
		return nil, apperr.ErrAccountDeactivated
	}

	session, err := s.createAndDeliver(phone, models.IdentifierPhone, ip, s.sms)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.IssuePhoneSession(session.SessionID.String(), phone)
	if err != nil {
		return nil, fmt.Errorf("failed to issue phone session token: %w", err)
	}
	return &OTPChallenge{SessionToken: token, ExpiresAt: session.ExpiresAt}, nil
}

// VerifyLogin consumes a phone-session token plus a candidate code and
// mints an access token for the matching user.
func (s *IdentityService) VerifyLogin(sessionToken, code string) (accessToken string, user *models.User, err error) {
	claims := s.tokens.Verify(sessionToken, auth.TokenPhoneSession)
	if claims == nil {
		return "", nil, apperr.ErrTokenInvalid
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return "", nil, apperr.ErrTokenInvalid
	}

	if _, err := s.otp.Verify(sessionID, code); err != nil {
		return "", nil, err
	}

	user, err = s.store.GetUserByPhone(claims.Phone)
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up phone: %w", err)
	}
	if user == nil {
		return "", nil, apperr.NotFound("User")
	}
	if !user.IsActive {
		return "", nil, apperr.ErrAccountDeactivated
	}

	token, err := s.tokens.IssueAccess(user.UserID.String())
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	return token, user, nil
}

// SendEmailCode starts the post-registration email verification flow
// for an authenticated user. Only institutional addresses pass.
func (s *IdentityService) SendEmailCode(user *models.User, email, ip string) (*OTPChallenge, error) {
	if !s.cfg.IsCollegeEmail(email) {
		return nil, apperr.ErrEmailNotAllowed
	}

	taken, err := s.store.GetUserByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	if taken != nil && taken.UserID != user.UserID {
		return nil, apperr.Conflict("Email already in use by another account.")
	}

	session, err := s.createAndDeliver(email, models.IdentifierEmail, ip, s.email)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.IssueEmailSession(session.SessionID.String(), email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue email session token: %w", err)
	}
	return &OTPChallenge{SessionToken: token, ExpiresAt: session.ExpiresAt}, nil
}

// VerifyEmailCode consumes an email-session token plus a candidate code
// and mints the email-verified token for the confirm step.
func (s *IdentityService) VerifyEmailCode(sessionToken, code string) (verifiedToken, email string, err error) {
	claims := s.tokens.Verify(sessionToken, auth.TokenEmailSession)
	if claims == nil {
		return "", "", apperr.ErrTokenInvalid
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return "", "", apperr.ErrTokenInvalid
	}

	if _, err := s.otp.Verify(sessionID, code); err != nil {
		return "", "", err
	}

	token, err := s.tokens.IssueEmailVerified(claims.Email)
	if err != nil {
		return "", "", fmt.Errorf("failed to issue email verified token: %w", err)
	}
	return token, claims.Email, nil
}

// ConfirmEmail consumes an email-verified token and attaches the
// verified address to the user.
func (s *IdentityService) ConfirmEmail(user *models.User, verifiedToken string) (*models.User, error) {
	claims := s.tokens.Verify(verifiedToken, auth.TokenEmailVerified)
	if claims == nil || !claims.Verified {
		return nil, apperr.ErrTokenInvalid
	}

	taken, err := s.store.GetUserByEmail(claims.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	if taken != nil && taken.UserID != user.UserID {
		return nil, apperr.Conflict("Email already in use by another account.")
	}

	email := claims.Email
	user.Email = &email
	user.IsEmailVerified = true
	now := s.now()
	user.UpdatedAt = &now
	if err := s.store.UpdateUser(user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}
