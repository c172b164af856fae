// Package auth issues and verifies the signed, typed, expiring bearer
// tokens that carry a user through the identity pipeline. A token of
// type T is accepted only by the operation expecting exactly T; this
// stage-matching is checked alongside signature and expiry so a
// phone-session token can never stand in for an access token.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campuspool/carpool-backend/internal/config"
)

// TokenType tags the identity-pipeline stage a token belongs to.
type TokenType string

const (
	TokenAccess        TokenType = "access"
	TokenPhoneSession  TokenType = "phone_session"
	TokenPhoneVerified TokenType = "phone_verified"
	TokenEmailSession  TokenType = "email_session"
	TokenEmailVerified TokenType = "email_verified"
)

// Claims is the payload shared by all staged tokens. Stage-specific
// fields are simply left empty on stages that do not use them.
type Claims struct {
	SessionID string `json:"session_id,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Verified  bool   `json:"verified,omitempty"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService signs and validates staged tokens with a single server
// secret and a fixed algorithm (HS256).
type TokenService struct {
	secret      []byte
	accessTTL   time.Duration
	verifiedTTL time.Duration
	sessionTTL  time.Duration
	now         func() time.Time
}

// NewTokenService builds a token service from config. A nil clock means
// the wall clock.
func NewTokenService(cfg *config.Config, now func() time.Time) *TokenService {
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		secret:      []byte(cfg.JWTSecret),
		accessTTL:   cfg.AccessTokenTTL,
		verifiedTTL: cfg.VerifiedTokenTTL,
		sessionTTL:  cfg.OTPExpiry,
		now:         now,
	}
}

func (s *TokenService) issue(claims Claims, typ TokenType, ttl time.Duration) (string, error) {
	issued := s.now()
	claims.TokenType = string(typ)
	claims.IssuedAt = jwt.NewNumericDate(issued)
	claims.ExpiresAt = jwt.NewNumericDate(issued.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses the token and fails closed: any signature mismatch,
// structural error, expiry in the past, or type tag different from
// expected yields nil.
func (s *TokenService) Verify(tokenString string, expected TokenType) *Claims {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.secret, nil
		},
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return nil
	}
	if claims.TokenType != string(expected) {
		return nil
	}
	return claims
}

// IssueAccess mints the long-lived token for an authenticated user.
func (s *TokenService) IssueAccess(userID string) (string, error) {
	return s.issue(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	}, TokenAccess, s.accessTTL)
}

// IssuePhoneSession wraps a challenge id and phone for the verify step.
// Its lifetime matches the OTP expiry window.
func (s *TokenService) IssuePhoneSession(sessionID, phone string) (string, error) {
	return s.issue(Claims{SessionID: sessionID, Phone: phone}, TokenPhoneSession, s.sessionTTL)
}

// IssuePhoneVerified marks a phone as verified for registration.
func (s *TokenService) IssuePhoneVerified(phone string) (string, error) {
	return s.issue(Claims{Phone: phone, Verified: true}, TokenPhoneVerified, s.verifiedTTL)
}

// IssueEmailSession wraps a challenge id and email for the verify step.
func (s *TokenService) IssueEmailSession(sessionID, email string) (string, error) {
	return s.issue(Claims{SessionID: sessionID, Email: email}, TokenEmailSession, s.sessionTTL)
}

// IssueEmailVerified marks an email as verified for the confirm step.
func (s *TokenService) IssueEmailVerified(email string) (string, error) {
	return s.issue(Claims{Email: email, Verified: true}, TokenEmailVerified, s.verifiedTTL)
}
