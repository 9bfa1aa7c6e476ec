package integritysync

import (
	"context"
	"errors"

	"github.com/mmdatafocus/vehicle_integrity/authenticity"
	"github.com/mmdatafocus/vehicle_integrity/config"
	"github.com/mmdatafocus/vehicle_integrity/integrity"
	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/mmdatafocus/vehicle_integrity/registry"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const syncLockName = "vehicle-integrity:full-sync"

// Engine exposes the four operations callers use.
type Engine struct {
	orchestrator *Orchestrator
	checker      *integrity.Checker
	scorer       *authenticity.Scorer
	registry     *registry.Service
}

func NewEngine(orchestrator *Orchestrator, checker *integrity.Checker, scorer *authenticity.Scorer, reg *registry.Service) *Engine {
	return &Engine{orchestrator: orchestrator, checker: checker, scorer: scorer, registry: reg}
}

// NewEngineFromConfig wires the GORM stores, the given ledger client and notifier
// with the lock and limits from cfg.
func NewEngineFromConfig(cfg *config.IntegrityConfig, db *gorm.DB, ledger integrity.LedgerClient, notifier Notifier, logger *logrus.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultIntegrityConfig()
	}
	if logger == nil {
		logger = config.GetLogger()
	}

	vehicles := models.NewVehicleStore(db)
	checker := integrity.NewChecker(vehicles, ledger,
		integrity.WithCallTimeout(cfg.CallTimeout),
		integrity.WithComparator(integrity.NewComparator(cfg.PhoneRegion)),
		integrity.WithLogger(logger),
	)

	reg := registry.NewService([]registry.Source{
		models.NewRegistryRecordStore(db, models.RegistryTypeInsurance),
		models.NewRegistryRecordStore(db, models.RegistryTypeEmission),
	}, registry.WithLogger(logger))

	scorer := authenticity.NewScorer(reg, cfg.MinFieldConfidence, logger)

	opts := []OrchestratorOption{
		WithConcurrency(cfg.SyncConcurrency),
		WithListTimeout(cfg.CallTimeout),
		WithOrchestratorLogger(logger),
	}
	switch cfg.DistributedLock {
	case config.DistributedLockRedis:
		locker := config.GetRedisLock()
		if locker == nil {
			return nil, errors.New("SYNC_DISTRIBUTED_LOCK=redis but redis is not connected")
		}
		opts = append(opts, WithDistributedLock(NewRedisLock(locker, syncLockName, cfg.LockTTL)))
	case config.DistributedLockMySQL:
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDistributedLock(NewMySQLLock(sqlDB, syncLockName)))
	}

	orchestrator := NewOrchestrator(vehicles, checker, notifier, opts...)
	return NewEngine(orchestrator, checker, scorer, reg), nil
}

func (e *Engine) RunFullSync(ctx context.Context) (models.SyncRun, error) {
	return e.orchestrator.RunFullSync(ctx)
}

// ReserveFullSync claims the sync guard now and returns the run to start later.
func (e *Engine) ReserveFullSync(ctx context.Context) (func(context.Context) (models.SyncRun, error), error) {
	return e.orchestrator.Reserve(ctx)
}

func (e *Engine) SyncRunning() bool {
	return e.orchestrator.Running()
}

func (e *Engine) CheckIntegrityByVin(ctx context.Context, vin string) (*models.IntegrityCheckResult, error) {
	return e.checker.CheckByVin(ctx, vin)
}

func (e *Engine) ScoreDocument(ctx context.Context, ext models.OCRExtraction, target *models.Vehicle) (*models.AuthenticityVerdict, error) {
	return e.scorer.ScoreDocument(ctx, ext, target)
}

// ScoreDocumentForVin loads the target vehicle from the index before scoring.
func (e *Engine) ScoreDocumentForVin(ctx context.Context, ext models.OCRExtraction, vin string) (*models.AuthenticityVerdict, error) {
	target, err := e.checker.Vehicles().GetVehicleByVin(ctx, vin)
	if err != nil {
		return nil, err
	}
	return e.scorer.ScoreDocument(ctx, ext, target)
}

func (e *Engine) LookupExternalRegistry(ctx context.Context, req registry.LookupRequest) (*models.RegistryLookupResult, error) {
	return e.registry.Lookup(ctx, req)
}
