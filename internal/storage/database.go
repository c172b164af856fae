package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuspool/carpool-backend/internal/models"
)

// DatabaseStore implements Store on top of PostgreSQL via gorm.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a gorm-backed store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Ping reports whether the underlying connection is alive.
func (s *DatabaseStore) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func firstOrNil[T any](tx *gorm.DB) (*T, error) {
	var row T
	if err := tx.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// User operations

func (s *DatabaseStore) CreateUser(user *models.User) error {
	return s.db.Create(user).Error
}

func (s *DatabaseStore) GetUserByID(id uuid.UUID) (*models.User, error) {
	return firstOrNil[models.User](s.db.Where("user_id = ?", id))
}

func (s *DatabaseStore) GetUserByPhone(phone string) (*models.User, error) {
	return firstOrNil[models.User](s.db.Where("phone_number = ?", phone))
}

func (s *DatabaseStore) GetUserByEmail(email string) (*models.User, error) {
	return firstOrNil[models.User](s.db.Where("email = ?", email))
}

func (s *DatabaseStore) UpdateUser(user *models.User) error {
	return s.db.Save(user).Error
}

// Vehicle operations

func (s *DatabaseStore) CreateVehicle(vehicle *models.Vehicle) error {
	return s.db.Create(vehicle).Error
}

func (s *DatabaseStore) GetVehicle(id uuid.UUID) (*models.Vehicle, error) {
	return firstOrNil[models.Vehicle](s.db.Where("vehicle_id = ?", id))
}

func (s *DatabaseStore) GetVehicleByNumber(number string) (*models.Vehicle, error) {
	return firstOrNil[models.Vehicle](s.db.Where("vehicle_number = ?", number))
}

func (s *DatabaseStore) GetVehiclesByOwner(ownerID uuid.UUID) ([]*models.Vehicle, error) {
	var vehicles []*models.Vehicle
	err := s.db.Where("user_id = ?", ownerID).Find(&vehicles).Error
	return vehicles, err
}

func (s *DatabaseStore) DeleteVehicle(id uuid.UUID) error {
	return s.db.Where("vehicle_id = ?", id).Delete(&models.Vehicle{}).Error
}

// OTP challenge operations

func (s *DatabaseStore) CreateOTPSession(session *models.OTPSession) error {
	return s.db.Create(session).Error
}

func (s *DatabaseStore) GetOTPSession(id uuid.UUID) (*models.OTPSession, error) {
	return firstOrNil[models.OTPSession](s.db.Where("session_id = ?", id))
}

func (s *DatabaseStore) UpdateOTPSession(session *models.OTPSession) error {
	return s.db.Save(session).Error
}

// IncrementOTPAttempts is a single conditional UPDATE; two concurrent
// wrong guesses cannot both read the same counter value, and the
// counter can never pass the cap.
func (s *DatabaseStore) IncrementOTPAttempts(id uuid.UUID, maxAttempts int) (bool, error) {
	res := s.db.Model(&models.OTPSession{}).
		Where("session_id = ? AND attempts < ?", id, maxAttempts).
		UpdateColumn("attempts", gorm.Expr("attempts + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *DatabaseStore) DeleteOTPSession(id uuid.UUID) error {
	return s.db.Where("session_id = ?", id).Delete(&models.OTPSession{}).Error
}

func (s *DatabaseStore) CountOTPSessionsSince(identifier, kind string, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.OTPSession{}).
		Where("identifier = ? AND identifier_type = ? AND created_at >= ?", identifier, kind, since).
		Count(&count).Error
	return count, err
}

func (s *DatabaseStore) LatestUnverifiedOTPSessionSince(identifier, kind string, since time.Time) (*models.OTPSession, error) {
	return firstOrNil[models.OTPSession](s.db.
		Where("identifier = ? AND identifier_type = ? AND created_at >= ? AND is_verified = false",
			identifier, kind, since).
		Order("created_at DESC"))
}

// Ride operations

func (s *DatabaseStore) CreateRide(ride *models.Ride) error {
	return s.db.Create(ride).Error
}

func (s *DatabaseStore) GetRide(id uuid.UUID) (*models.Ride, error) {
	return firstOrNil[models.Ride](s.db.Where("ride_id = ?", id))
}

func (s *DatabaseStore) ListOpenRides() ([]*models.Ride, error) {
	var rides []*models.Ride
	err := s.db.Where("status = ?", models.RideStatusOpen).Find(&rides).Error
	return rides, err
}

func (s *DatabaseStore) UpdateRide(ride *models.Ride) error {
	return s.db.Save(ride).Error
}

// DecrementRideSeats issues a single conditional UPDATE so two
// concurrent accepts against the last seat cannot both succeed.
func (s *DatabaseStore) DecrementRideSeats(id uuid.UUID) (bool, error) {
	res := s.db.Model(&models.Ride{}).
		Where("ride_id = ? AND available_seats > 0", id).
		UpdateColumn("available_seats", gorm.Expr("available_seats - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *DatabaseStore) IncrementRideSeats(id uuid.UUID) error {
	return s.db.Model(&models.Ride{}).
		Where("ride_id = ?", id).
		UpdateColumn("available_seats", gorm.Expr("available_seats + 1")).Error
}

// Ride request operations

func (s *DatabaseStore) CreateRideRequest(req *models.RideRequest) error {
	return s.db.Create(req).Error
}

func (s *DatabaseStore) GetRideRequest(id uuid.UUID) (*models.RideRequest, error) {
	return firstOrNil[models.RideRequest](s.db.Where("request_id = ?", id))
}

func (s *DatabaseStore) GetRideRequestByRideAndPassenger(rideID, passengerID uuid.UUID) (*models.RideRequest, error) {
	return firstOrNil[models.RideRequest](s.db.
		Where("ride_id = ? AND passenger_id = ?", rideID, passengerID))
}

func (s *DatabaseStore) ListPendingRideRequests(rideID uuid.UUID) ([]*models.RideRequest, error) {
	var requests []*models.RideRequest
	err := s.db.
		Where("ride_id = ? AND status = ?", rideID, models.RequestStatusPending).
		Find(&requests).Error
	return requests, err
}

// UpdateRideRequestStatus is a conditional UPDATE; only one of several
// concurrent transitions out of the same status can win.
func (s *DatabaseStore) UpdateRideRequestStatus(id uuid.UUID, from, to string) (bool, error) {
	res := s.db.Model(&models.RideRequest{}).
		Where("request_id = ? AND status = ?", id, from).
		UpdateColumn("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Ride participant operations

func (s *DatabaseStore) CreateRideParticipant(p *models.RideParticipant) error {
	return s.db.Create(p).Error
}

func (s *DatabaseStore) GetRideParticipant(id uuid.UUID) (*models.RideParticipant, error) {
	return firstOrNil[models.RideParticipant](s.db.Where("participant_id = ?", id))
}

func (s *DatabaseStore) ListRideParticipants(rideID uuid.UUID) ([]*models.RideParticipant, error) {
	var participants []*models.RideParticipant
	err := s.db.Where("ride_id = ?", rideID).Find(&participants).Error
	return participants, err
}

func (s *DatabaseStore) ListUnpickedParticipants(rideID uuid.UUID) ([]*models.RideParticipant, error) {
	var participants []*models.RideParticipant
	err := s.db.
		Where("ride_id = ? AND is_picked_up = false", rideID).
		Find(&participants).Error
	return participants, err
}

func (s *DatabaseStore) UpdateRideParticipant(p *models.RideParticipant) error {
	return s.db.Save(p).Error
}
