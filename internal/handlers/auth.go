package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campuspool/carpool-backend/internal/middleware"
	"github.com/campuspool/carpool-backend/internal/services"
)

// AuthHandler handles registration, login and email verification
type AuthHandler struct {
	identity *services.IdentityService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(identity *services.IdentityService) *AuthHandler {
	return &AuthHandler{identity: identity}
}

type phoneRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type verifyRequest struct {
	SessionToken string `json:"session_token"`
	OTP          string `json:"otp"`
}

// SendRegistrationOTP starts registration for a new phone number
func (h *AuthHandler) SendRegistrationOTP(c *fiber.Ctx) error {
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil || req.PhoneNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Phone number is required",
		})
	}

	challenge, err := h.identity.SendRegistrationCode(req.PhoneNumber, middleware.ClientIP(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(challenge)
}

// VerifyRegistrationOTP exchanges a session token plus OTP for a
// phone-verified token
func (h *AuthHandler) VerifyRegistrationOTP(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil || req.SessionToken == "" || req.OTP == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session token and OTP are required",
		})
	}

	verifiedToken, phone, err := h.identity.VerifyPhoneCode(req.SessionToken, req.OTP)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"phone_verified_token": verifiedToken,
		"phone_number":         phone,
	})
}

// Register creates the user account after phone verification
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req services.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	accessToken, user, err := h.identity.Register(req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"access_token": accessToken,
		"token_type":   "bearer",
		"user":         user,
	})
}

// SendLoginOTP starts login for a registered phone number
func (h *AuthHandler) SendLoginOTP(c *fiber.Ctx) error {
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil || req.PhoneNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Phone number is required",
		})
	}

	challenge, err := h.identity.SendLoginCode(req.PhoneNumber, middleware.ClientIP(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(challenge)
}

// VerifyLoginOTP exchanges a session token plus OTP for an access token
func (h *AuthHandler) VerifyLoginOTP(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil || req.SessionToken == "" || req.OTP == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session token and OTP are required",
		})
	}

	accessToken, user, err := h.identity.VerifyLogin(req.SessionToken, req.OTP)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"access_token": accessToken,
		"token_type":   "bearer",
		"user":         user,
	})
}

// SendEmailOTP starts email verification for the authenticated user
func (h *AuthHandler) SendEmailOTP(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email is required",
		})
	}

	challenge, err := h.identity.SendEmailCode(user, req.Email, middleware.ClientIP(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(challenge)
}

// VerifyEmailOTP exchanges a session token plus OTP for an
// email-verified token
func (h *AuthHandler) VerifyEmailOTP(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil || req.SessionToken == "" || req.OTP == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session token and OTP are required",
		})
	}

	verifiedToken, email, err := h.identity.VerifyEmailCode(req.SessionToken, req.OTP)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"email_verified_token": verifiedToken,
		"email":                email,
	})
}

// ConfirmEmail attaches the verified address to the account
func (h *AuthHandler) ConfirmEmail(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req struct {
		EmailVerifiedToken string `json:"email_verified_token"`
	}
	if err := c.BodyParser(&req); err != nil || req.EmailVerifiedToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email verified token is required",
		})
	}

	updated, err := h.identity.ConfirmEmail(user, req.EmailVerifiedToken)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Email verified successfully",
		"user":    updated,
	})
}
