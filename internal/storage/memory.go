package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campuspool/carpool-backend/internal/models"
)

// MemoryStore holds all data in memory. Used for tests and local
// development; not for production.
type MemoryStore struct {
	users        map[uuid.UUID]*models.User
	vehicles     map[uuid.UUID]*models.Vehicle
	otpSessions  map[uuid.UUID]*models.OTPSession
	rides        map[uuid.UUID]*models.Ride
	requests     map[uuid.UUID]*models.RideRequest
	participants map[uuid.UUID]*models.RideParticipant

	userMu        sync.RWMutex
	vehicleMu     sync.RWMutex
	otpMu         sync.RWMutex
	rideMu        sync.RWMutex
	requestMu     sync.RWMutex
	participantMu sync.RWMutex
}

// NewMemoryStore creates a new in-memory storage.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[uuid.UUID]*models.User),
		vehicles:     make(map[uuid.UUID]*models.Vehicle),
		otpSessions:  make(map[uuid.UUID]*models.OTPSession),
		rides:        make(map[uuid.UUID]*models.Ride),
		requests:     make(map[uuid.UUID]*models.RideRequest),
		participants: make(map[uuid.UUID]*models.RideParticipant),
	}
}

// User operations

func (m *MemoryStore) CreateUser(user *models.User) error {
	m.userMu.Lock()
	defer m.userMu.Unlock()
	m.users[user.UserID] = user
	return nil
}

func (m *MemoryStore) GetUserByID(id uuid.UUID) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()
	return m.users[id], nil
}

func (m *MemoryStore) GetUserByPhone(phone string) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()
	for _, u := range m.users {
		if u.PhoneNumber == phone {
			return u, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()
	for _, u := range m.users {
		if u.Email != nil && *u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) UpdateUser(user *models.User) error {
	m.userMu.Lock()
	defer m.userMu.Unlock()
	m.users[user.UserID] = user
	return nil
}

// Vehicle operations

func (m *MemoryStore) CreateVehicle(vehicle *models.Vehicle) error {
	m.vehicleMu.Lock()
	defer m.vehicleMu.Unlock()
	m.vehicles[vehicle.VehicleID] = vehicle
	return nil
}

func (m *MemoryStore) GetVehicle(id uuid.UUID) (*models.Vehicle, error) {
	m.vehicleMu.RLock()
	defer m.vehicleMu.RUnlock()
	return m.vehicles[id], nil
}

func (m *MemoryStore) GetVehicleByNumber(number string) (*models.Vehicle, error) {
	m.vehicleMu.RLock()
	defer m.vehicleMu.RUnlock()
	for _, v := range m.vehicles {
		if v.VehicleNumber == number {
			return v, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetVehiclesByOwner(ownerID uuid.UUID) ([]*models.Vehicle, error) {
	m.vehicleMu.RLock()
	defer m.vehicleMu.RUnlock()
	var vehicles []*models.Vehicle
	for _, v := range m.vehicles {
		if v.UserID == ownerID {
			vehicles = append(vehicles, v)
		}
	}
	return vehicles, nil
}

func (m *MemoryStore) DeleteVehicle(id uuid.UUID) error {
	m.vehicleMu.Lock()
	defer m.vehicleMu.Unlock()
	delete(m.vehicles, id)
	return nil
}

// OTP challenge operations
//
// Sessions are stored and returned by value so callers mutate private
// copies; the attempt counter only moves through IncrementOTPAttempts
// under the lock.

func (m *MemoryStore) CreateOTPSession(session *models.OTPSession) error {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()
	stored := *session
	m.otpSessions[session.SessionID] = &stored
	return nil
}

func (m *MemoryStore) GetOTPSession(id uuid.UUID) (*models.OTPSession, error) {
	m.otpMu.RLock()
	defer m.otpMu.RUnlock()
	session, exists := m.otpSessions[id]
	if !exists {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (m *MemoryStore) UpdateOTPSession(session *models.OTPSession) error {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()
	stored := *session
	m.otpSessions[session.SessionID] = &stored
	return nil
}

func (m *MemoryStore) IncrementOTPAttempts(id uuid.UUID, maxAttempts int) (bool, error) {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()
	session, exists := m.otpSessions[id]
	if !exists || session.Attempts >= maxAttempts {
		return false, nil
	}
	session.Attempts++
	return true, nil
}

func (m *MemoryStore) DeleteOTPSession(id uuid.UUID) error {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()
	delete(m.otpSessions, id)
	return nil
}

func (m *MemoryStore) CountOTPSessionsSince(identifier, kind string, since time.Time) (int64, error) {
	m.otpMu.RLock()
	defer m.otpMu.RUnlock()
	var count int64
	for _, s := range m.otpSessions {
		if s.Identifier == identifier && s.IdentifierType == kind && !s.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) LatestUnverifiedOTPSessionSince(identifier, kind string, since time.Time) (*models.OTPSession, error) {
	m.otpMu.RLock()
	defer m.otpMu.RUnlock()
	var candidates []*models.OTPSession
	for _, s := range m.otpSessions {
		if s.Identifier == identifier && s.IdentifierType == kind &&
			!s.IsVerified && !s.CreatedAt.Before(since) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	latest := *candidates[0]
	return &latest, nil
}

// Ride operations

func (m *MemoryStore) CreateRide(ride *models.Ride) error {
	m.rideMu.Lock()
	defer m.rideMu.Unlock()
	m.rides[ride.RideID] = ride
	return nil
}

func (m *MemoryStore) GetRide(id uuid.UUID) (*models.Ride, error) {
	m.rideMu.RLock()
	defer m.rideMu.RUnlock()
	return m.rides[id], nil
}

func (m *MemoryStore) ListOpenRides() ([]*models.Ride, error) {
	m.rideMu.RLock()
	defer m.rideMu.RUnlock()
	var rides []*models.Ride
	for _, r := range m.rides {
		if r.Status == models.RideStatusOpen {
			rides = append(rides, r)
		}
	}
	return rides, nil
}

func (m *MemoryStore) UpdateRide(ride *models.Ride) error {
	m.rideMu.Lock()
	defer m.rideMu.Unlock()
	m.rides[ride.RideID] = ride
	return nil
}

func (m *MemoryStore) DecrementRideSeats(id uuid.UUID) (bool, error) {
	m.rideMu.Lock()
	defer m.rideMu.Unlock()
	ride, exists := m.rides[id]
	if !exists || ride.AvailableSeats <= 0 {
		return false, nil
	}
	ride.AvailableSeats--
	return true, nil
}

func (m *MemoryStore) IncrementRideSeats(id uuid.UUID) error {
	m.rideMu.Lock()
	defer m.rideMu.Unlock()
	if ride, exists := m.rides[id]; exists {
		ride.AvailableSeats++
	}
	return nil
}

// Ride request operations
//
// Requests are stored and returned by value; status only moves through
// UpdateRideRequestStatus under the lock.

func (m *MemoryStore) CreateRideRequest(req *models.RideRequest) error {
	m.requestMu.Lock()
	defer m.requestMu.Unlock()
	stored := *req
	m.requests[req.RequestID] = &stored
	return nil
}

func (m *MemoryStore) GetRideRequest(id uuid.UUID) (*models.RideRequest, error) {
	m.requestMu.RLock()
	defer m.requestMu.RUnlock()
	req, exists := m.requests[id]
	if !exists {
		return nil, nil
	}
	copied := *req
	return &copied, nil
}

func (m *MemoryStore) GetRideRequestByRideAndPassenger(rideID, passengerID uuid.UUID) (*models.RideRequest, error) {
	m.requestMu.RLock()
	defer m.requestMu.RUnlock()
	for _, r := range m.requests {
		if r.RideID == rideID && r.PassengerID == passengerID {
			copied := *r
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListPendingRideRequests(rideID uuid.UUID) ([]*models.RideRequest, error) {
	m.requestMu.RLock()
	defer m.requestMu.RUnlock()
	var requests []*models.RideRequest
	for _, r := range m.requests {
		if r.RideID == rideID && r.Status == models.RequestStatusPending {
			copied := *r
			requests = append(requests, &copied)
		}
	}
	return requests, nil
}

func (m *MemoryStore) UpdateRideRequestStatus(id uuid.UUID, from, to string) (bool, error) {
	m.requestMu.Lock()
	defer m.requestMu.Unlock()
	req, exists := m.requests[id]
	if !exists || req.Status != from {
		return false, nil
	}
	req.Status = to
	return true, nil
}

// Ride participant operations

func (m *MemoryStore) CreateRideParticipant(p *models.RideParticipant) error {
	m.participantMu.Lock()
	defer m.participantMu.Unlock()
	m.participants[p.ParticipantID] = p
	return nil
}

func (m *MemoryStore) GetRideParticipant(id uuid.UUID) (*models.RideParticipant, error) {
	m.participantMu.RLock()
	defer m.participantMu.RUnlock()
	return m.participants[id], nil
}

func (m *MemoryStore) ListRideParticipants(rideID uuid.UUID) ([]*models.RideParticipant, error) {
	m.participantMu.RLock()
	defer m.participantMu.RUnlock()
	var participants []*models.RideParticipant
	for _, p := range m.participants {
		if p.RideID == rideID {
			participants = append(participants, p)
		}
	}
	return participants, nil
}

func (m *MemoryStore) ListUnpickedParticipants(rideID uuid.UUID) ([]*models.RideParticipant, error) {
	m.participantMu.RLock()
	defer m.participantMu.RUnlock()
	var participants []*models.RideParticipant
	for _, p := range m.participants {
		if p.RideID == rideID && !p.IsPickedUp {
			participants = append(participants, p)
		}
	}
	return participants, nil
}

func (m *MemoryStore) UpdateRideParticipant(p *models.RideParticipant) error {
	m.participantMu.Lock()
	defer m.participantMu.Unlock()
	m.participants[p.ParticipantID] = p
	return nil
}
