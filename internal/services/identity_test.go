package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campuspool/carpool-backend/internal/apperr"
	"github.com/campuspool/carpool-backend/internal/auth"
	"github.com/campuspool/carpool-backend/internal/models"
	"github.com/campuspool/carpool-backend/internal/storage"
)

// fakeNotifier records delivered codes and can simulate delivery
// failure.
type fakeNotifier struct {
	sent []string
	fail bool
}

func (f *fakeNotifier) Send(identifier, code string) bool {
	if f.fail {
		return false
	}
	f.sent = append(f.sent, code)
	return true
}

func (f *fakeNotifier) lastCode(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no code was delivered")
	}
	return f.sent[len(f.sent)-1]
}

type identityFixture struct {
	svc     *IdentityService
	store   storage.Store
	tokens  *auth.TokenService
	sms     *fakeNotifier
	email   *fakeNotifier
	advance func(time.Time)
	start   time.Time
}

func newIdentityFixture(t *testing.T) *identityFixture {
	t.Helper()
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock, advance := testClock(start)
	cfg := testConfig()
	store := storage.NewMemoryStore()
	tokens := auth.NewTokenService(cfg, clock)
	otp := NewOTPService(store, cfg, clock)
	sms := &fakeNotifier{}
	email := &fakeNotifier{}
	svc := NewIdentityService(store, otp, tokens, sms, email, cfg, clock)
	return &identityFixture{
		svc:     svc,
		store:   store,
		tokens:  tokens,
		sms:     sms,
		email:   email,
		advance: advance,
		start:   start,
	}
}

// register drives the full registration flow and returns the user.
func (f *identityFixture) register(t *testing.T, phone, name, gender string) *models.User {
	t.Helper()
	challenge, err := f.svc.SendRegistrationCode(phone, "10.0.0.1")
	if err != nil {
		t.Fatalf("SendRegistrationCode failed: %v", err)
	}
	verifiedToken, _, err := f.svc.VerifyPhoneCode(challenge.SessionToken, f.sms.lastCode(t))
	if err != nil {
		t.Fatalf("VerifyPhoneCode failed: %v", err)
	}
	_, user, err := f.svc.Register(RegisterInput{
		PhoneVerifiedToken: verifiedToken,
		FullName:           name,
		Gender:             gender,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return user
}

func TestRegistrationFlow(t *testing.T) {
	f := newIdentityFixture(t)

	challenge, err := f.svc.SendRegistrationCode("+919876543210", "10.0.0.1")
	if err != nil {
		t.Fatalf("SendRegistrationCode failed: %v", err)
	}
	if challenge.SessionToken == "" {
		t.Fatal("expected a session token")
	}

	verifiedToken, phone, err := f.svc.VerifyPhoneCode(challenge.SessionToken, f.sms.lastCode(t))
	if err != nil {
		t.Fatalf("VerifyPhoneCode failed: %v", err)
	}
	if phone != "+919876543210" {
		t.Errorf("phone = %q", phone)
	}

	accessToken, user, err := f.svc.Register(RegisterInput{
		PhoneVerifiedToken: verifiedToken,
		FullName:           "Asha Menon",
		Gender:             models.GenderFemale,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !user.IsPhoneVerified || user.IsEmailVerified {
		t.Error("new user should have only the phone verified")
	}
	if !user.IsActive {
		t.Error("new user should be active")
	}

	claims := f.tokens.Verify(accessToken, auth.TokenAccess)
	if claims == nil || claims.Subject != user.UserID.String() {
		t.Fatal("access token should identify the new user")
	}
}

func TestRegistrationRejectsWrongTokenType(t *testing.T) {
	f := newIdentityFixture(t)

	challenge, err := f.svc.SendRegistrationCode("+919876543210", "10.0.0.1")
	if err != nil {
		t.Fatalf("SendRegistrationCode failed: %v", err)
	}

	// The session token cannot stand in for the verified token.
	_, _, err = f.svc.Register(RegisterInput{
		PhoneVerifiedToken: challenge.SessionToken,
		FullName:           "Asha Menon",
		Gender:             models.GenderFemale,
	})
	if !errors.Is(err, apperr.ErrTokenInvalid) {
		t.Fatalf("expected token invalid, got %v", err)
	}
}

func TestRegistrationDuplicatePhone(t *testing.T) {
	f := newIdentityFixture(t)
	f.register(t, "+919876543210", "Asha Menon", models.GenderFemale)

	_, err := f.svc.SendRegistrationCode("+919876543210", "10.0.0.1")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLoginFlow(t *testing.T) {
	f := newIdentityFixture(t)
	user := f.register(t, "+919876543210", "Asha Menon", models.GenderFemale)

	// The cooldown from the registration challenge must pass first.
	f.advance(f.start.Add(2 * time.Minute))

	challenge, err := f.svc.SendLoginCode("+919876543210", "10.0.0.1")
	if err != nil {
		t.Fatalf("SendLoginCode failed: %v", err)
	}

	accessToken, loggedIn, err := f.svc.VerifyLogin(challenge.SessionToken, f.sms.lastCode(t))
	if err != nil {
		t.Fatalf("VerifyLogin failed: %v", err)
	}
	if loggedIn.UserID != user.UserID {
		t.Error("login should resolve to the registered user")
	}
	if f.tokens.Verify(accessToken, auth.TokenAccess) == nil {
		t.Error("expected a valid access token")
	}
}

func TestLoginUnregisteredPhone(t *testing.T) {
	f := newIdentityFixture(t)

	_, err := f.svc.SendLoginCode("+919876543210", "10.0.0.1")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoginDeactivatedAccount(t *testing.T) {
	f := newIdentityFixture(t)
	user := f.register(t, "+919876543210", "Asha Menon", models.GenderFemale)

	user.IsActive = false
	if err := f.store.UpdateUser(user); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}

	f.advance(f.start.Add(2 * time.Minute))
	_, err := f.svc.SendLoginCode("+919876543210", "10.0.0.1")
	if !errors.Is(err, apperr.ErrAccountDeactivated) {
		t.Fatalf("expected account deactivated, got %v", err)
	}
}

func TestDeliveryFailureDiscardsChallenge(t *testing.T) {
	f := newIdentityFixture(t)
	f.sms.fail = true

	_, err := f.svc.SendRegistrationCode("+919876543210", "10.0.0.1")
	if !errors.Is(err, apperr.ErrDeliveryFailed) {
		t.Fatalf("expected delivery failed, got %v", err)
	}

	// The failed challenge must not trigger the resend cooldown.
	f.sms.fail = false
	if _, err := f.svc.SendRegistrationCode("+919876543210", "10.0.0.1"); err != nil {
		t.Fatalf("resend after delivery failure failed: %v", err)
	}
}

func TestEmailVerificationFlow(t *testing.T) {
	f := newIdentityFixture(t)
	user := f.register(t, "+919876543210", "Asha Menon", models.GenderFemale)

	challenge, err := f.svc.SendEmailCode(user, "asha.menon@christuniversity.in", "10.0.0.1")
	if err != nil {
		t.Fatalf("SendEmailCode failed: %v", err)
	}

	verifiedToken, email, err := f.svc.VerifyEmailCode(challenge.SessionToken, f.email.lastCode(t))
	if err != nil {
		t.Fatalf("VerifyEmailCode failed: %v", err)
	}
	if email != "asha.menon@christuniversity.in" {
		t.Errorf("email = %q", email)
	}

	updated, err := f.svc.ConfirmEmail(user, verifiedToken)
	if err != nil {
		t.Fatalf("ConfirmEmail failed: %v", err)
	}
	if updated.Email == nil || *updated.Email != "asha.menon@christuniversity.in" {
		t.Error("email should be attached to the user")
	}
	if !updated.IsEmailVerified {
		t.Error("email flag should be set")
	}
}

func TestEmailVerificationRejectsOutsideDomain(t *testing.T) {
	f := newIdentityFixture(t)
	user := f.register(t, "+919876543210", "Asha Menon", models.GenderFemale)

	_, err := f.svc.SendEmailCode(user, "asha@gmail.com", "10.0.0.1")
	if !errors.Is(err, apperr.ErrEmailNotAllowed) {
		t.Fatalf("expected email domain rejection, got %v", err)
	}
}

func TestEmailVerificationRejectsTakenAddress(t *testing.T) {
	f := newIdentityFixture(t)
	first := f.register(t, "+919876543210", "Asha Menon", models.GenderFemale)

	f.advance(f.start.Add(2 * time.Minute))
	second := f.register(t, "+919876543211", "Rahul Nair", models.GenderMale)

	challenge, err := f.svc.SendEmailCode(first, "asha.menon@christuniversity.in", "10.0.0.1")
	if err != nil {
		t.Fatalf("SendEmailCode failed: %v", err)
	}
	verifiedToken, _, err := f.svc.VerifyEmailCode(challenge.SessionToken, f.email.lastCode(t))
	if err != nil {
		t.Fatalf("VerifyEmailCode failed: %v", err)
	}
	if _, err := f.svc.ConfirmEmail(first, verifiedToken); err != nil {
		t.Fatalf("ConfirmEmail failed: %v", err)
	}

	_, err = f.svc.SendEmailCode(second, "asha.menon@christuniversity.in", "10.0.0.1")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestVerifyPhoneCodeGarbageToken(t *testing.T) {
	f := newIdentityFixture(t)

	_, _, err := f.svc.VerifyPhoneCode("not-a-token", "123456")
	if !errors.Is(err, apperr.ErrTokenInvalid) {
		t.Fatalf("expected token invalid, got %v", err)
	}

	_, _, err = f.svc.VerifyPhoneCode(uuid.NewString(), "123456")
	if !errors.Is(err, apperr.ErrTokenInvalid) {
		t.Fatalf("expected token invalid, got %v", err)
	}
}
