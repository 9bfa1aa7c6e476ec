package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/vehicle_integrity/utils"
	"gorm.io/gorm"
)

// Vehicle is the off-chain index row for a registered vehicle.
// The registration service owns the table; the integrity engine only reads it.
type Vehicle struct {
	ID            int       `gorm:"primary_key" json:"id"`
	Vin           string    `gorm:"size:32;uniqueIndex;not null" json:"vin"`
	PlateNumber   string    `gorm:"size:20;index" json:"plateNumber"`
	EngineNumber  string    `gorm:"size:64" json:"engineNumber"`
	ChassisNumber string    `gorm:"size:64" json:"chassisNumber"`
	Make          string    `gorm:"size:100" json:"make"`
	Model         string    `gorm:"size:100" json:"model"`
	Year          int       `json:"year"`
	Color         string    `gorm:"size:50" json:"color"`
	OwnerName     string    `gorm:"size:255" json:"ownerName"`
	OwnerContact  string    `gorm:"size:50" json:"ownerContact"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// VehicleStore reads vehicles from the relational index.
type VehicleStore struct {
	db *gorm.DB
}

func NewVehicleStore(db *gorm.DB) *VehicleStore {
	return &VehicleStore{db: db}
}

// ListVehicles returns every indexed vehicle ordered by id.
func (s *VehicleStore) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	var vehicles []Vehicle
	if err := s.db.WithContext(ctx).Order("id").Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}

// GetVehicleByVin looks a vehicle up by VIN, ignoring case and whitespace.
// The indexed exact match runs first; rows stored unnormalized are found by a
// fallback scan. Returns utils.ErrorRecordNotFound when no row matches.
func (s *VehicleStore) GetVehicleByVin(ctx context.Context, vin string) (*Vehicle, error) {
	normalized := utils.NormalizeIdentifier(vin)
	if normalized == "" {
		return nil, utils.ErrorRecordNotFound
	}

	vehicle, err := s.takeVehicle(ctx, "vin = ?", normalized)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		vehicle, err = s.takeVehicle(ctx, "UPPER(REPLACE(vin, ' ', '')) = ?", normalized)
	}
	return vehicle, err
}

func (s *VehicleStore) takeVehicle(ctx context.Context, query string, args ...interface{}) (*Vehicle, error) {
	var vehicle Vehicle
	err := s.db.WithContext(ctx).Where(query, args...).Take(&vehicle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &vehicle, nil
}
