package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/vehicle_integrity/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RegistryType string

const (
	RegistryTypeInsurance RegistryType = "INSURANCE"
	RegistryTypeEmission  RegistryType = "EMISSION"
)

func (t RegistryType) IsValid() bool {
	return t == RegistryTypeInsurance || t == RegistryTypeEmission
}

// RegistryRecordStatus is the status a third-party registry reports for a record.
type RegistryRecordStatus string

const (
	RegistryRecordStatusActive     RegistryRecordStatus = "ACTIVE"
	RegistryRecordStatusValid      RegistryRecordStatus = "VALID"
	RegistryRecordStatusPassed     RegistryRecordStatus = "PASSED"
	RegistryRecordStatusFraudulent RegistryRecordStatus = "FRAUDULENT"
	RegistryRecordStatusTampered   RegistryRecordStatus = "TAMPERED"
	RegistryRecordStatusExpired    RegistryRecordStatus = "EXPIRED"
	RegistryRecordStatusCancelled  RegistryRecordStatus = "CANCELLED"
)

// IsProblem reports statuses that flag a document regardless of dates.
func (s RegistryRecordStatus) IsProblem() bool {
	switch s {
	case RegistryRecordStatusFraudulent, RegistryRecordStatusTampered,
		RegistryRecordStatusExpired, RegistryRecordStatusCancelled:
		return true
	}
	return false
}

func (s RegistryRecordStatus) IsValid() bool {
	switch s {
	case RegistryRecordStatusActive, RegistryRecordStatusValid, RegistryRecordStatusPassed:
		return true
	}
	return false
}

// RegistryRecord mirrors an insurance policy or emission test held by an external registry.
// The *Key columns hold normalized identifiers for matching.
type RegistryRecord struct {
	ID               int                  `gorm:"primary_key" json:"id"`
	RegistryType     RegistryType         `gorm:"size:20;index;not null" json:"registryType"`
	PlateNumber      string               `gorm:"size:20" json:"plateNumber"`
	EngineNumber     string               `gorm:"size:64" json:"engineNumber"`
	ChassisNumber    string               `gorm:"size:64" json:"chassisNumber"`
	PolicyNumber     string               `gorm:"size:64" json:"policyNumber"`
	PlateNumberKey   string               `gorm:"size:20;index" json:"-"`
	EngineNumberKey  string               `gorm:"size:64;index" json:"-"`
	ChassisNumberKey string               `gorm:"size:64;index" json:"-"`
	PolicyNumberKey  string               `gorm:"size:64;index" json:"-"`
	Status           RegistryRecordStatus `gorm:"size:20;index;not null" json:"status"`
	Provider         string               `gorm:"size:255" json:"provider"`
	CoverageAmount   decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"coverageAmount"`
	IssueDate        *time.Time           `json:"issueDate"`
	ExpiryDate       *time.Time           `json:"expiryDate"`
	FlagReason       string               `gorm:"type:text" json:"flagReason,omitempty"`
	CreatedAt        time.Time            `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time            `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (r *RegistryRecord) BeforeSave(tx *gorm.DB) error {
	r.RegistryType = RegistryType(strings.ToUpper(strings.TrimSpace(string(r.RegistryType))))
	r.Status = RegistryRecordStatus(strings.ToUpper(strings.TrimSpace(string(r.Status))))
	r.PlateNumberKey = utils.NormalizePlate(r.PlateNumber)
	r.EngineNumberKey = utils.NormalizeIdentifier(r.EngineNumber)
	r.ChassisNumberKey = utils.NormalizeIdentifier(r.ChassisNumber)
	r.PolicyNumberKey = utils.NormalizeIdentifier(r.PolicyNumber)
	return nil
}

// IsExpiredAt reports whether the record's expiry date is before now.
func (r RegistryRecord) IsExpiredAt(now time.Time) bool {
	return r.ExpiryDate != nil && r.ExpiryDate.Before(now)
}

// RegistryIdentifiers is the identifier set a registry lookup is keyed on.
type RegistryIdentifiers struct {
	PlateNumber   string `json:"plateNumber"`
	EngineNumber  string `json:"engineNumber"`
	ChassisNumber string `json:"chassisNumber"`
	PolicyNumber  string `json:"policyNumber,omitempty"`
}

func (ids RegistryIdentifiers) Normalized() RegistryIdentifiers {
	return RegistryIdentifiers{
		PlateNumber:   utils.NormalizePlate(ids.PlateNumber),
		EngineNumber:  utils.NormalizeIdentifier(ids.EngineNumber),
		ChassisNumber: utils.NormalizeIdentifier(ids.ChassisNumber),
		PolicyNumber:  utils.NormalizeIdentifier(ids.PolicyNumber),
	}
}

func (ids RegistryIdentifiers) IsEmpty() bool {
	n := ids.Normalized()
	return n.PlateNumber == "" && n.EngineNumber == "" && n.ChassisNumber == "" && n.PolicyNumber == ""
}

// RegistryRecordStore reads one registry type from external_registry_records.
type RegistryRecordStore struct {
	db           *gorm.DB
	registryType RegistryType
}

func NewRegistryRecordStore(db *gorm.DB, registryType RegistryType) *RegistryRecordStore {
	return &RegistryRecordStore{db: db, registryType: registryType}
}

func (s *RegistryRecordStore) RegistryType() RegistryType {
	return s.registryType
}

// FindCandidates returns every record of the store's type sharing at least one
// normalized identifier with ids. Ranking is left to the caller.
func (s *RegistryRecordStore) FindCandidates(ctx context.Context, ids RegistryIdentifiers) ([]RegistryRecord, error) {
	n := ids.Normalized()
	var conds []string
	var args []interface{}
	if n.PlateNumber != "" {
		conds = append(conds, "plate_number_key = ?")
		args = append(args, n.PlateNumber)
	}
	if n.EngineNumber != "" {
		conds = append(conds, "engine_number_key = ?")
		args = append(args, n.EngineNumber)
	}
	if n.ChassisNumber != "" {
		conds = append(conds, "chassis_number_key = ?")
		args = append(args, n.ChassisNumber)
	}
	if n.PolicyNumber != "" {
		conds = append(conds, "policy_number_key = ?")
		args = append(args, n.PolicyNumber)
	}
	if len(conds) == 0 {
		return nil, nil
	}

	var records []RegistryRecord
	err := s.db.WithContext(ctx).
		Where("registry_type = ?", s.registryType).
		Where("("+strings.Join(conds, " OR ")+")", args...).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// CreateRegistryRecord appends a record. Registries are maintained by administrators;
// the engine itself never writes them.
func CreateRegistryRecord(ctx context.Context, db *gorm.DB, record *RegistryRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

type RegistryLookupStatus string

const (
	RegistryLookupValid    RegistryLookupStatus = "VALID"
	RegistryLookupFlagged  RegistryLookupStatus = "FLAGGED"
	RegistryLookupExpired  RegistryLookupStatus = "EXPIRED"
	RegistryLookupNotFound RegistryLookupStatus = "NOT_FOUND"
)

// RegistryLookupResult is the classified outcome of one registry lookup.
type RegistryLookupResult struct {
	RegistryType RegistryType         `json:"registryType"`
	Status       RegistryLookupStatus `json:"status"`
	SubStatus    RegistryRecordStatus `json:"subStatus,omitempty"`
	CanApprove   bool                 `json:"canApprove"`
	Reason       string               `json:"reason"`
	// MatchedBy names the identifier that selected Record (plateNumber, engineNumber, ...).
	MatchedBy                  string          `json:"matchedBy,omitempty"`
	Record                     *RegistryRecord `json:"record,omitempty"`
	RequiresManualVerification bool            `json:"requiresManualVerification"`
}
