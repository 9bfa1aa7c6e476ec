package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/vehicle_integrity/config"
	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/mmdatafocus/vehicle_integrity/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("vehicle-integrity/integrity")

// VehicleStore is the read side of the relational vehicle index.
type VehicleStore interface {
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	GetVehicleByVin(ctx context.Context, vin string) (*models.Vehicle, error)
}

// LedgerClient reads canonical records from the ledger.
// GetRecordByVin returns utils.ErrorNotOnLedger when the VIN has no record.
type LedgerClient interface {
	GetRecordByVin(ctx context.Context, vin string) (*models.LedgerRecord, error)
}

// Checker classifies one vehicle as VERIFIED, TAMPERED or NOT_REGISTERED.
type Checker struct {
	vehicles    VehicleStore
	ledger      LedgerClient
	comparator  *Comparator
	callTimeout time.Duration
	logger      *logrus.Logger
}

type CheckerOption func(*Checker)

// WithCallTimeout bounds each DB and ledger call. Zero disables the deadline.
func WithCallTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) { c.callTimeout = d }
}

func WithComparator(cmp *Comparator) CheckerOption {
	return func(c *Checker) {
		if cmp != nil {
			c.comparator = cmp
		}
	}
}

func WithLogger(logger *logrus.Logger) CheckerOption {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewChecker(vehicles VehicleStore, ledger LedgerClient, opts ...CheckerOption) *Checker {
	c := &Checker{
		vehicles:   vehicles,
		ledger:     ledger,
		comparator: NewComparator(""),
		logger:     config.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Vehicles exposes the store the checker reads from.
func (c *Checker) Vehicles() VehicleStore {
	return c.vehicles
}

// CheckByVin fetches the vehicle from the index, then its ledger record, and compares them.
// A vehicle missing from the index is a precondition error (utils.ErrorRecordNotFound).
// Collaborator failures are returned as errors; classifications never are.
func (c *Checker) CheckByVin(ctx context.Context, vin string) (*models.IntegrityCheckResult, error) {
	ctx, span := tracer.Start(ctx, "integrity.CheckByVin")
	span.SetAttributes(attribute.String("vehicle.vin", vin))
	defer span.End()

	vehicle, err := c.fetchVehicle(ctx, vin)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vehicle fetch failed")
		return nil, err
	}
	return c.check(ctx, vehicle, span.SetAttributes)
}

// CheckVehicle runs the ledger half of the check for a vehicle already read from the index.
func (c *Checker) CheckVehicle(ctx context.Context, vehicle *models.Vehicle) (*models.IntegrityCheckResult, error) {
	if vehicle == nil {
		return nil, utils.ErrorRecordNotFound
	}
	ctx, span := tracer.Start(ctx, "integrity.CheckVehicle")
	span.SetAttributes(attribute.String("vehicle.vin", vehicle.Vin))
	defer span.End()
	return c.check(ctx, vehicle, span.SetAttributes)
}

func (c *Checker) check(ctx context.Context, vehicle *models.Vehicle, annotate func(...attribute.KeyValue)) (*models.IntegrityCheckResult, error) {
	record, err := c.fetchLedger(ctx, vehicle.Vin)
	if errors.Is(err, utils.ErrorNotOnLedger) {
		annotate(attribute.String("integrity.status", string(models.IntegrityStatusNotRegistered)))
		return &models.IntegrityCheckResult{
			Vin:       vehicle.Vin,
			Status:    models.IntegrityStatusNotRegistered,
			Message:   models.IntegrityMessageNotRegistered,
			DbVehicle: vehicle,
		}, nil
	}
	if err != nil {
		config.LogError(c.logger, "integrity/checker.go", "check", "fetch ledger record", vehicle.Vin, err)
		return nil, fmt.Errorf("ledger lookup for %s: %w", vehicle.Vin, err)
	}

	entries := c.comparator.Compare(vehicle, record)
	if AllMatch(entries) {
		annotate(attribute.String("integrity.status", string(models.IntegrityStatusVerified)))
		return &models.IntegrityCheckResult{
			Vin:     vehicle.Vin,
			Status:  models.IntegrityStatusVerified,
			Message: models.IntegrityMessageVerified,
		}, nil
	}

	annotate(attribute.String("integrity.status", string(models.IntegrityStatusTampered)))
	c.logger.WithFields(logrus.Fields{
		"vin":        vehicle.Vin,
		"mismatches": mismatchedFields(entries),
	}).Warn("ledger mismatch detected")

	return &models.IntegrityCheckResult{
		Vin:           vehicle.Vin,
		Status:        models.IntegrityStatusTampered,
		Message:       models.IntegrityMessageTampered,
		Comparisons:   entries,
		DbVehicle:     vehicle,
		LedgerVehicle: record,
	}, nil
}

func (c *Checker) fetchVehicle(ctx context.Context, vin string) (*models.Vehicle, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	vehicle, err := c.vehicles.GetVehicleByVin(ctx, vin)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, fmt.Errorf("vehicle %s: %w", vin, utils.ErrorRecordNotFound)
		}
		return nil, fmt.Errorf("vehicle lookup for %s: %w", vin, err)
	}
	if vehicle == nil {
		return nil, fmt.Errorf("vehicle %s: %w", vin, utils.ErrorRecordNotFound)
	}
	return vehicle, nil
}

func (c *Checker) fetchLedger(ctx context.Context, vin string) (*models.LedgerRecord, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	record, err := c.ledger.GetRecordByVin(ctx, vin)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, utils.ErrorNotOnLedger
	}
	return record, nil
}

func (c *Checker) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

func mismatchedFields(entries []models.ComparisonEntry) []string {
	var out []string
	for _, e := range entries {
		if !e.Matches {
			out = append(out, e.Field)
		}
	}
	return out
}
