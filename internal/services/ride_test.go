package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campuspool/carpool-backend/internal/apperr"
	"github.com/campuspool/carpool-backend/internal/models"
	"github.com/campuspool/carpool-backend/internal/storage"
)

type rideFixture struct {
	svc     *RideService
	store   storage.Store
	driver  *models.User
	vehicle *models.Vehicle
}

func newRideFixture(t *testing.T) *rideFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	svc := NewRideService(store, testConfig(), nil)

	driver := newTestUser(t, store, "+919876543210", "Rahul Nair")
	vehicle := &models.Vehicle{
		VehicleID:     uuid.New(),
		UserID:        driver.UserID,
		VehicleType:   models.VehicleTypeFourWheeler,
		VehicleNumber: "KA01AB1234",
		CreatedAt:     time.Now(),
	}
	if err := store.CreateVehicle(vehicle); err != nil {
		t.Fatalf("CreateVehicle failed: %v", err)
	}
	return &rideFixture{svc: svc, store: store, driver: driver, vehicle: vehicle}
}

func newTestUser(t *testing.T, store storage.Store, phone, name string) *models.User {
	t.Helper()
	u := &models.User{
		UserID:          uuid.New(),
		FullName:        name,
		PhoneNumber:     phone,
		Gender:          models.GenderMale,
		IsPhoneVerified: true,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}
	if err := store.CreateUser(u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return u
}

func (f *rideFixture) createRide(t *testing.T, seats int) *models.Ride {
	t.Helper()
	ride, err := f.svc.Create(f.driver, CreateRideInput{
		VehicleID:      f.vehicle.VehicleID,
		StartAddress:   "Kengeri Campus",
		EndAddress:     "Central Campus",
		RideDate:       "2025-03-02",
		RideTime:       "08:30",
		AvailableSeats: seats,
	})
	if err != nil {
		t.Fatalf("Create ride failed: %v", err)
	}
	return ride
}

// acceptPassenger drives request-then-accept and returns the
// participant.
func (f *rideFixture) acceptPassenger(t *testing.T, ride *models.Ride, passenger *models.User) *models.RideParticipant {
	t.Helper()
	req, err := f.svc.RequestJoin(passenger, ride.RideID, JoinRequestInput{})
	if err != nil {
		t.Fatalf("RequestJoin failed: %v", err)
	}
	_, participant, err := f.svc.HandleRequest(f.driver, ride.RideID, req.RequestID, RequestActionAccept)
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	return participant
}

func TestCreateRideRejectsForeignVehicle(t *testing.T) {
	f := newRideFixture(t)
	other := newTestUser(t, f.store, "+919876543211", "Asha Menon")

	_, err := f.svc.Create(other, CreateRideInput{
		VehicleID:      f.vehicle.VehicleID,
		AvailableSeats: 2,
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRideStatusTransitions(t *testing.T) {
	f := newRideFixture(t)

	// The lifecycle only moves forward; skipping ahead is allowed.
	t.Run("forward walk", func(t *testing.T) {
		ride := f.createRide(t, 2)
		for _, status := range []string{
			models.RideStatusDriverArriving,
			models.RideStatusDriverArrived,
			models.RideStatusRiderPickedUp,
			models.RideStatusOngoing,
			models.RideStatusCompleted,
		} {
			if _, err := f.svc.UpdateStatus(f.driver, ride.RideID, status); err != nil {
				t.Fatalf("transition to %s failed: %v", status, err)
			}
		}
	})

	t.Run("skip forward", func(t *testing.T) {
		ride := f.createRide(t, 2)
		if _, err := f.svc.UpdateStatus(f.driver, ride.RideID, models.RideStatusOngoing); err != nil {
			t.Fatalf("open -> ongoing failed: %v", err)
		}
	})

	t.Run("no backward moves", func(t *testing.T) {
		ride := f.createRide(t, 2)
		if _, err := f.svc.UpdateStatus(f.driver, ride.RideID, models.RideStatusOngoing); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		_, err := f.svc.UpdateStatus(f.driver, ride.RideID, models.RideStatusDriverArrived)
		if !errors.Is(err, apperr.ErrInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
	})

	t.Run("terminal statuses reject everything", func(t *testing.T) {
		ride := f.createRide(t, 2)
		if _, err := f.svc.UpdateStatus(f.driver, ride.RideID, models.RideStatusCompleted); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		_, err := f.svc.UpdateStatus(f.driver, ride.RideID, models.RideStatusCancelled)
		if !errors.Is(err, apperr.ErrInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
	})

	t.Run("cancel from any non-terminal status", func(t *testing.T) {
		ride := f.createRide(t, 2)
		if _, err := f.svc.UpdateStatus(f.driver, ride.RideID, models.RideStatusOngoing); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		if _, err := f.svc.UpdateStatus(f.driver, ride.RideID, models.RideStatusCancelled); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
	})

	t.Run("non-driver forbidden", func(t *testing.T) {
		ride := f.createRide(t, 2)
		other := newTestUser(t, f.store, "+919876543299", "Asha Menon")
		_, err := f.svc.UpdateStatus(other, ride.RideID, models.RideStatusOngoing)
		if !errors.Is(err, apperr.ErrForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
	})
}

func TestRideArrivingGeneratesPickupCode(t *testing.T) {
	f := newRideFixture(t)
	ride := f.createRide(t, 2)

	updated, err := f.svc.UpdateStatus(f.driver, ride.RideID, models.RideStatusDriverArriving)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.PickupOTP == nil || len(*updated.PickupOTP) != 4 {
		t.Fatal("expected a 4-digit ride pickup code")
	}

	// Later transitions keep the code stable.
	code := *updated.PickupOTP
	updated, err = f.svc.UpdateStatus(f.driver, ride.RideID, models.RideStatusDriverArrived)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.PickupOTP == nil || *updated.PickupOTP != code {
		t.Error("ride pickup code should not change after generation")
	}
}

func TestRequestJoinRules(t *testing.T) {
	f := newRideFixture(t)
	ride := f.createRide(t, 1)
	passenger := newTestUser(t, f.store, "+919876543212", "Asha Menon")

	if _, err := f.svc.RequestJoin(f.driver, ride.RideID, JoinRequestInput{}); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("driver joining own ride: expected invalid state, got %v", err)
	}

	req, err := f.svc.RequestJoin(passenger, ride.RideID, JoinRequestInput{})
	if err != nil {
		t.Fatalf("RequestJoin failed: %v", err)
	}
	if req.Status != models.RequestStatusPending {
		t.Errorf("status = %q, want pending", req.Status)
	}

	if _, err := f.svc.RequestJoin(passenger, ride.RideID, JoinRequestInput{}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate request: expected conflict, got %v", err)
	}
}

func TestRejectedPassengerCannotRequestAgain(t *testing.T) {
	f := newRideFixture(t)
	ride := f.createRide(t, 1)
	passenger := newTestUser(t, f.store, "+919876543212", "Asha Menon")

	req, err := f.svc.RequestJoin(passenger, ride.RideID, JoinRequestInput{})
	if err != nil {
		t.Fatalf("RequestJoin failed: %v", err)
	}
	if _, _, err := f.svc.HandleRequest(f.driver, ride.RideID, req.RequestID, RequestActionReject); err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}

	_, err = f.svc.RequestJoin(passenger, ride.RideID, JoinRequestInput{})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestHandleRequestIsTerminal(t *testing.T) {
	f := newRideFixture(t)
	ride := f.createRide(t, 2)
	passenger := newTestUser(t, f.store, "+919876543212", "Asha Menon")

	req, err := f.svc.RequestJoin(passenger, ride.RideID, JoinRequestInput{})
	if err != nil {
		t.Fatalf("RequestJoin failed: %v", err)
	}
	if _, _, err := f.svc.HandleRequest(f.driver, ride.RideID, req.RequestID, RequestActionAccept); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	// Neither a second accept nor a reject is allowed afterwards.
	_, _, err = f.svc.HandleRequest(f.driver, ride.RideID, req.RequestID, RequestActionAccept)
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	_, _, err = f.svc.HandleRequest(f.driver, ride.RideID, req.RequestID, RequestActionReject)
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestHandleRequestConcurrentAccepts(t *testing.T) {
	f := newRideFixture(t)
	ride := f.createRide(t, 2)
	passenger := newTestUser(t, f.store, "+919876543212", "Asha Menon")

	req, err := f.svc.RequestJoin(passenger, ride.RideID, JoinRequestInput{})
	if err != nil {
		t.Fatalf("RequestJoin failed: %v", err)
	}

	// Two simultaneous accepts of the same request: the request leaves
	// pending exactly once, so only one seat goes and only one
	// participant exists.
	const racers = 5
	var wg sync.WaitGroup
	release := make(chan struct{})
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-release
			_, _, results[i] = f.svc.HandleRequest(f.driver, ride.RideID, req.RequestID, RequestActionAccept)
		}(i)
	}
	close(release)
	wg.Wait()

	accepted := 0
	for i, err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, apperr.ErrInvalidState):
		default:
			t.Fatalf("accept %d: unexpected error %v", i, err)
		}
	}
	if accepted != 1 {
		t.Errorf("accepted = %d, want exactly 1", accepted)
	}

	participants, _, err := f.svc.ListParticipants(f.driver, ride.RideID)
	if err != nil {
		t.Fatalf("ListParticipants failed: %v", err)
	}
	if len(participants) != 1 {
		t.Errorf("participants = %d, want 1", len(participants))
	}

	updated, err := f.svc.Get(ride.RideID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if updated.AvailableSeats != 1 {
		t.Errorf("seats = %d, want 1", updated.AvailableSeats)
	}
}

// participantInsertFailStore makes participant creation fail on demand.
type participantInsertFailStore struct {
	storage.Store
	fail bool
}

func (s *participantInsertFailStore) CreateRideParticipant(p *models.RideParticipant) error {
	if s.fail {
		return errors.New("insert failed")
	}
	return s.Store.CreateRideParticipant(p)
}

func TestHandleRequestAcceptRollsBackSeat(t *testing.T) {
	f := newRideFixture(t)
	wrapped := &participantInsertFailStore{Store: f.store}
	svc := NewRideService(wrapped, testConfig(), nil)
	ride := f.createRide(t, 1)
	passenger := newTestUser(t, f.store, "+919876543212", "Asha Menon")

	req, err := svc.RequestJoin(passenger, ride.RideID, JoinRequestInput{})
	if err != nil {
		t.Fatalf("RequestJoin failed: %v", err)
	}

	wrapped.fail = true
	if _, _, err := svc.HandleRequest(f.driver, ride.RideID, req.RequestID, RequestActionAccept); err == nil {
		t.Fatal("expected accept to fail")
	}

	// The seat comes back and the request returns to pending.
	updated, err := svc.Get(ride.RideID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if updated.AvailableSeats != 1 {
		t.Errorf("seats = %d, want 1 after rollback", updated.AvailableSeats)
	}
	stored, err := f.store.GetRideRequest(req.RequestID)
	if err != nil || stored == nil {
		t.Fatalf("GetRideRequest failed: %v", err)
	}
	if stored.Status != models.RequestStatusPending {
		t.Errorf("status = %q, want pending after rollback", stored.Status)
	}

	// A retry on the same request succeeds.
	wrapped.fail = false
	if _, participant, err := svc.HandleRequest(f.driver, ride.RideID, req.RequestID, RequestActionAccept); err != nil {
		t.Fatalf("retry failed: %v", err)
	} else if participant == nil {
		t.Fatal("expected a participant on retry")
	}
}

func TestSeatAllocationSequential(t *testing.T) {
	f := newRideFixture(t)
	ride := f.createRide(t, 1)

	first := newTestUser(t, f.store, "+919876543212", "Asha Menon")
	second := newTestUser(t, f.store, "+919876543213", "Vikram Rao")

	reqA, err := f.svc.RequestJoin(first, ride.RideID, JoinRequestInput{})
	if err != nil {
		t.Fatalf("RequestJoin failed: %v", err)
	}
	reqB, err := f.svc.RequestJoin(second, ride.RideID, JoinRequestInput{})
	if err != nil {
		t.Fatalf("RequestJoin failed: %v", err)
	}

	if _, _, err := f.svc.HandleRequest(f.driver, ride.RideID, reqA.RequestID, RequestActionAccept); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}

	_, _, err = f.svc.HandleRequest(f.driver, ride.RideID, reqB.RequestID, RequestActionAccept)
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("second accept: expected invalid state, got %v", err)
	}

	updated, err := f.svc.Get(ride.RideID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if updated.AvailableSeats != 0 {
		t.Errorf("seats = %d, want 0", updated.AvailableSeats)
	}
}

func TestSeatAllocationConcurrent(t *testing.T) {
	const seats = 3
	const contenders = 10

	f := newRideFixture(t)
	ride := f.createRide(t, seats)

	requests := make([]*models.RideRequest, contenders)
	for i := range requests {
		p := newTestUser(t, f.store, fmt.Sprintf("+9198765433%02d", i), fmt.Sprintf("Passenger %d", i))
		req, err := f.svc.RequestJoin(p, ride.RideID, JoinRequestInput{})
		if err != nil {
			t.Fatalf("RequestJoin %d failed: %v", i, err)
		}
		requests[i] = req
	}

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i := range requests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, results[i] = f.svc.HandleRequest(f.driver, ride.RideID, requests[i].RequestID, RequestActionAccept)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i, err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, apperr.ErrInvalidState):
		default:
			t.Fatalf("accept %d: unexpected error %v", i, err)
		}
	}
	if accepted != seats {
		t.Errorf("accepted = %d, want exactly %d", accepted, seats)
	}

	updated, err := f.svc.Get(ride.RideID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if updated.AvailableSeats != 0 {
		t.Errorf("seats = %d, want 0", updated.AvailableSeats)
	}

	participants, _, err := f.svc.ListParticipants(f.driver, ride.RideID)
	if err != nil {
		t.Fatalf("ListParticipants failed: %v", err)
	}
	if len(participants) != seats {
		t.Errorf("participants = %d, want %d", len(participants), seats)
	}
}

func TestPickupVerification(t *testing.T) {
	f := newRideFixture(t)
	ride := f.createRide(t, 2)

	x := newTestUser(t, f.store, "+919876543212", "Asha Menon")
	y := newTestUser(t, f.store, "+919876543213", "Vikram Rao")
	pX := f.acceptPassenger(t, ride, x)
	pY := f.acceptPassenger(t, ride, y)

	if pX.PickupOTP == pY.PickupOTP {
		t.Fatal("participants of one ride must not share a pickup code")
	}

	// X's code confirms only X; presenting it for Y's slot fails.
	got, err := f.svc.VerifyPickup(f.driver, ride.RideID, pX.PickupOTP, nil)
	if err != nil {
		t.Fatalf("VerifyPickup failed: %v", err)
	}
	if got.ParticipantID != pX.ParticipantID || !got.IsPickedUp {
		t.Error("X should be marked picked up")
	}

	stored, err := f.store.GetRideParticipant(pY.ParticipantID)
	if err != nil || stored == nil {
		t.Fatalf("GetRideParticipant failed: %v", err)
	}
	if stored.IsPickedUp {
		t.Error("Y must remain unpicked")
	}

	// Replaying X's code fails: no unpicked participant matches.
	if _, err := f.svc.VerifyPickup(f.driver, ride.RideID, pX.PickupOTP, nil); !errors.Is(err, apperr.ErrInvalidOTP) {
		t.Fatalf("expected invalid OTP, got %v", err)
	}

	// Targeted verification with the wrong code fails too.
	if _, err := f.svc.VerifyPickup(f.driver, ride.RideID, pX.PickupOTP, &pY.ParticipantID); !errors.Is(err, apperr.ErrInvalidOTP) {
		t.Fatalf("expected invalid OTP, got %v", err)
	}

	// Y's own code works targeted.
	got, err = f.svc.VerifyPickup(f.driver, ride.RideID, pY.PickupOTP, &pY.ParticipantID)
	if err != nil {
		t.Fatalf("VerifyPickup for Y failed: %v", err)
	}
	if !got.IsPickedUp {
		t.Error("Y should be marked picked up")
	}

	// Re-verifying an already picked-up participant is rejected.
	if _, err := f.svc.VerifyPickup(f.driver, ride.RideID, pY.PickupOTP, &pY.ParticipantID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestVerifyPickupDriverOnly(t *testing.T) {
	f := newRideFixture(t)
	ride := f.createRide(t, 1)
	x := newTestUser(t, f.store, "+919876543212", "Asha Menon")
	p := f.acceptPassenger(t, ride, x)

	_, err := f.svc.VerifyPickup(x, ride.RideID, p.PickupOTP, nil)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRequestJoinFullRide(t *testing.T) {
	f := newRideFixture(t)
	ride := f.createRide(t, 0)
	passenger := newTestUser(t, f.store, "+919876543212", "Asha Menon")

	_, err := f.svc.RequestJoin(passenger, ride.RideID, JoinRequestInput{})
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}
