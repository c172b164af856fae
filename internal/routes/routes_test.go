package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/campuspool/carpool-backend/internal/auth"
	"github.com/campuspool/carpool-backend/internal/config"
	"github.com/campuspool/carpool-backend/internal/models"
	"github.com/campuspool/carpool-backend/internal/services"
	"github.com/campuspool/carpool-backend/internal/storage"
)

type apiFixture struct {
	app    *fiber.App
	store  storage.Store
	tokens *auth.TokenService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:           "test-secret",
		AccessTokenTTL:      30 * time.Minute,
		VerifiedTokenTTL:    30 * time.Minute,
		OTPLength:           6,
		OTPExpiry:           5 * time.Minute,
		OTPMaxAttempts:      3,
		OTPResendCooldown:   60 * time.Second,
		OTPRateLimitPerHour: 5,
		PickupCodeLength:    4,
		CollegeEmailDomain:  "christuniversity.in",
	}
	store := storage.NewMemoryStore()
	tokens := auth.NewTokenService(cfg, nil)
	otp := services.NewOTPService(store, cfg, nil)
	identity := services.NewIdentityService(store, otp, tokens, nopNotifier{}, nopNotifier{}, cfg, nil)
	rides := services.NewRideService(store, cfg, nil)

	app := fiber.New()
	SetupRoutes(app, store, tokens, identity, rides)
	return &apiFixture{app: app, store: store, tokens: tokens}
}

type nopNotifier struct{}

func (nopNotifier) Send(identifier, code string) bool { return true }

// newMember creates a user the way registration leaves them: phone
// verified, nothing else. Returns the user and a bearer token.
func (f *apiFixture) newMember(t *testing.T, phone, name string) (*models.User, string) {
	t.Helper()
	user := &models.User{
		UserID:          uuid.New(),
		FullName:        name,
		PhoneNumber:     phone,
		Gender:          models.GenderFemale,
		IsPhoneVerified: true,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}
	if err := f.store.CreateUser(user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	token, err := f.tokens.IssueAccess(user.UserID.String())
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	return user, token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// A freshly registered member (phone verified only) can manage vehicles
// and drive the full ride flow over HTTP.
func TestRideAPIOpenToRegisteredMembers(t *testing.T) {
	f := newAPIFixture(t)
	_, driverToken := f.newMember(t, "+919876543210", "Rahul Nair")
	_, riderToken := f.newMember(t, "+919876543211", "Asha Menon")

	resp := f.do(t, "POST", "/vehicles/", driverToken, fiber.Map{
		"vehicle_type":   "4_wheeler",
		"vehicle_number": "ka01ab1234",
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create vehicle: status %d", resp.StatusCode)
	}
	var vehicle models.Vehicle
	if err := json.NewDecoder(resp.Body).Decode(&vehicle); err != nil {
		t.Fatalf("decode vehicle: %v", err)
	}

	resp = f.do(t, "POST", "/rides/", driverToken, fiber.Map{
		"vehicle_id":      vehicle.VehicleID,
		"start_address":   "Kengeri Campus",
		"end_address":     "Central Campus",
		"ride_date":       "2025-03-02",
		"ride_time":       "08:30",
		"available_seats": 2,
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create ride: status %d", resp.StatusCode)
	}
	var ride models.Ride
	if err := json.NewDecoder(resp.Body).Decode(&ride); err != nil {
		t.Fatalf("decode ride: %v", err)
	}

	resp = f.do(t, "GET", "/rides/", riderToken, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("list rides: status %d", resp.StatusCode)
	}
	var open []models.Ride
	if err := json.NewDecoder(resp.Body).Decode(&open); err != nil {
		t.Fatalf("decode rides: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open rides = %d, want 1", len(open))
	}

	resp = f.do(t, "POST", "/rides/"+ride.RideID.String()+"/request", riderToken, fiber.Map{})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("request join: status %d", resp.StatusCode)
	}

	// Unauthenticated callers stay out.
	resp = f.do(t, "GET", "/rides/", "", nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("unauthenticated list: status %d, want 401", resp.StatusCode)
	}
}
