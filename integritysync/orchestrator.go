package integritysync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/vehicle_integrity/config"
	"github.com/mmdatafocus/vehicle_integrity/integrity"
	"github.com/mmdatafocus/vehicle_integrity/metrics"
	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/mmdatafocus/vehicle_integrity/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("vehicle-integrity/integritysync")

// Notifier delivers discrepancy reports (mail relay, Pub/Sub, archive...).
type Notifier interface {
	Send(ctx context.Context, report AlertReport) error
}

// VehicleChecker classifies one vehicle already read from the index.
type VehicleChecker interface {
	CheckVehicle(ctx context.Context, vehicle *models.Vehicle) (*models.IntegrityCheckResult, error)
}

// Orchestrator runs full reconciliation passes over the vehicle index.
type Orchestrator struct {
	vehicles    integrity.VehicleStore
	checker     VehicleChecker
	notifier    Notifier
	guard       *Guard
	concurrency int
	callTimeout time.Duration
	now         func() time.Time
	logger      *logrus.Logger
}

type OrchestratorOption func(*Orchestrator)

// WithConcurrency bounds how many vehicles are checked at once. Values below 1 mean sequential.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithDistributedLock(lock DistributedLock) OrchestratorOption {
	return func(o *Orchestrator) { o.guard = NewGuard(lock) }
}

// WithListTimeout bounds the vehicle listing call.
func WithListTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.callTimeout = d }
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithOrchestratorLogger(logger *logrus.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewOrchestrator(vehicles integrity.VehicleStore, checker VehicleChecker, notifier Notifier, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		vehicles:    vehicles,
		checker:     checker,
		notifier:    notifier,
		guard:       NewGuard(nil),
		concurrency: 1,
		now:         time.Now,
		logger:      config.GetLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Running reports whether a full sync is in flight on this instance.
func (o *Orchestrator) Running() bool {
	return o.guard.Running()
}

// RunFullSync checks every indexed vehicle against the ledger.
// A concurrent call returns immediately with ErrSyncInProgress and does no work.
// Per-vehicle failures are counted, never fatal; mismatches do not make the run fail.
// The returned error is non-nil only when the run itself did not complete.
func (o *Orchestrator) RunFullSync(ctx context.Context) (models.SyncRun, error) {
	start, err := o.Reserve(ctx)
	if err != nil {
		run := models.SyncRun{Success: false, Error: err.Error()}
		if errors.Is(err, ErrSyncInProgress) {
			run.Error = SyncInProgressMessage
		}
		return run, err
	}
	return start(ctx)
}

// Reserve claims the single-flight guard without starting a run, so callers that run
// the sync in the background can report a conflict first. The returned func performs
// the run and releases the guard; it must be called exactly once.
func (o *Orchestrator) Reserve(ctx context.Context) (func(context.Context) (models.SyncRun, error), error) {
	claim, err := o.guard.TryAcquire(ctx)
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			metrics.SyncRunsTotal.WithLabelValues("rejected").Inc()
		} else {
			metrics.SyncRunsTotal.WithLabelValues("failed").Inc()
		}
		o.logger.WithField("error", err.Error()).Warn("integrity sync rejected")
		return nil, err
	}
	return func(ctx context.Context) (models.SyncRun, error) {
		defer claim.Release()
		return o.run(ctx, claim.Lost())
	}, nil
}

// run cancels the remaining checks when lost fires; the run then reports ErrLockLost.
func (o *Orchestrator) run(ctx context.Context, lost <-chan struct{}) (models.SyncRun, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var lockLost atomic.Bool
	if lost != nil {
		go func() {
			select {
			case <-lost:
				lockLost.Store(true)
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	ctx, span := tracer.Start(ctx, "integritysync.RunFullSync")
	defer span.End()

	started := o.now()
	run := models.SyncRun{StartedAt: &started}
	run.CorrelationId, _ = utils.GetCorrelationIdFromContext(ctx)
	if run.CorrelationId == "" {
		run.CorrelationId = uuid.NewString()
		ctx = utils.SetCorrelationIdInContext(ctx, run.CorrelationId)
	}
	run.TriggeredBy, _ = utils.GetTriggeredByFromContext(ctx)
	span.SetAttributes(attribute.String("sync.correlation_id", run.CorrelationId))

	vehicles, err := o.listVehicles(ctx)
	if err != nil {
		config.LogError(o.logger, "integritysync/orchestrator.go", "run", "list vehicles", run.CorrelationId, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "list vehicles failed")
		run.Success = false
		run.LockLost = lockLost.Load()
		run.Error = err.Error()
		o.finish(&run)
		metrics.SyncRunsTotal.WithLabelValues("failed").Inc()
		return run, fmt.Errorf("list vehicles: %w", err)
	}

	agg := newAggregate()
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i := range vehicles {
		if ctx.Err() != nil {
			break
		}
		vehicle := &vehicles[i]
		g.Go(func() error {
			res, err := o.checkOne(ctx, vehicle)
			agg.add(vehicle.Vin, res, err)
			return nil
		})
	}
	_ = g.Wait()

	agg.fill(&run)
	if lockLost.Load() {
		config.LogError(o.logger, "integritysync/orchestrator.go", "run", "distributed lock", run.CorrelationId, ErrLockLost)
		span.SetStatus(codes.Error, "distributed lock lost")
		run.Success = false
		run.LockLost = true
		run.Error = ErrLockLost.Error()
		o.finish(&run)
		metrics.SyncRunsTotal.WithLabelValues("failed").Inc()
		return run, ErrLockLost
	}
	run.Success = true

	if run.HasDiscrepancies {
		o.alert(ctx, &run, agg)
	}

	o.finish(&run)
	span.SetAttributes(
		attribute.Int("sync.total", run.TotalChecked),
		attribute.Int("sync.mismatched", run.Mismatched),
		attribute.Int("sync.not_on_blockchain", run.NotOnBlockchain),
		attribute.Int("sync.errors", run.Errors),
	)
	metrics.SyncRunsTotal.WithLabelValues("completed").Inc()
	metrics.SyncRunDuration.Observe(float64(run.DurationMs) / 1000)

	o.logger.WithFields(logrus.Fields{
		"correlationId":   run.CorrelationId,
		"triggeredBy":     run.TriggeredBy,
		"totalChecked":    run.TotalChecked,
		"matched":         run.Matched,
		"mismatched":      run.Mismatched,
		"notOnBlockchain": run.NotOnBlockchain,
		"errors":          run.Errors,
		"alertSent":       run.AlertSent,
		"durationMs":      run.DurationMs,
	}).Info("integrity sync finished")

	return run, nil
}

func (o *Orchestrator) listVehicles(ctx context.Context) ([]models.Vehicle, error) {
	if o.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}
	return o.vehicles.ListVehicles(ctx)
}

// checkOne turns a panicking check into a per-vehicle error.
func (o *Orchestrator) checkOne(ctx context.Context, vehicle *models.Vehicle) (res *models.IntegrityCheckResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("panic while checking %s: %v", vehicle.Vin, r)
		}
	}()
	return o.checker.CheckVehicle(ctx, vehicle)
}

func (o *Orchestrator) alert(ctx context.Context, run *models.SyncRun, agg *aggregate) {
	if o.notifier == nil {
		return
	}
	report, err := BuildAlertReport(*run, agg.tampered, agg.notRegistered, o.now())
	if err == nil {
		err = o.notifier.Send(ctx, report)
	}
	if err != nil {
		config.LogError(o.logger, "integritysync/orchestrator.go", "alert", "send discrepancy alert", run.CorrelationId, err)
		run.AlertError = err.Error()
		metrics.AlertsTotal.WithLabelValues("failed").Inc()
		return
	}
	run.AlertSent = true
	metrics.AlertsTotal.WithLabelValues("sent").Inc()
}

func (o *Orchestrator) finish(run *models.SyncRun) {
	finished := o.now()
	run.FinishedAt = &finished
	if run.StartedAt != nil {
		run.DurationMs = finished.Sub(*run.StartedAt).Milliseconds()
	}
}

// aggregate accumulates per-vehicle outcomes; counts are order-independent.
type aggregate struct {
	mu            sync.Mutex
	total         int
	matched       int
	errCount      int
	failed        map[string]string
	tampered      []models.IntegrityCheckResult
	notRegistered []models.IntegrityCheckResult
}

func newAggregate() *aggregate {
	return &aggregate{failed: map[string]string{}}
}

func (a *aggregate) add(vin string, res *models.IntegrityCheckResult, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++

	if err == nil && res == nil {
		err = errors.New("checker returned no result")
	}
	if err != nil {
		a.errCount++
		a.failed[vin] = err.Error()
		metrics.VehicleChecksTotal.WithLabelValues("ERROR").Inc()
		return
	}

	metrics.VehicleChecksTotal.WithLabelValues(string(res.Status)).Inc()
	switch res.Status {
	case models.IntegrityStatusVerified:
		a.matched++
	case models.IntegrityStatusTampered:
		a.tampered = append(a.tampered, *res)
	case models.IntegrityStatusNotRegistered:
		a.notRegistered = append(a.notRegistered, *res)
	default:
		a.errCount++
		a.failed[vin] = fmt.Sprintf("unknown integrity status %q", res.Status)
	}
}

func (a *aggregate) fill(run *models.SyncRun) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sort.Slice(a.tampered, func(i, j int) bool { return a.tampered[i].Vin < a.tampered[j].Vin })
	sort.Slice(a.notRegistered, func(i, j int) bool { return a.notRegistered[i].Vin < a.notRegistered[j].Vin })

	run.TotalChecked = a.total
	run.Matched = a.matched
	run.Mismatched = len(a.tampered)
	run.NotOnBlockchain = len(a.notRegistered)
	run.Errors = a.errCount
	run.HasDiscrepancies = run.Mismatched+run.NotOnBlockchain > 0

	run.MismatchedVins = nil
	for _, t := range a.tampered {
		run.MismatchedVins = append(run.MismatchedVins, t.Vin)
	}
	run.NotOnBlockchainVins = nil
	for _, n := range a.notRegistered {
		run.NotOnBlockchainVins = append(run.NotOnBlockchainVins, n.Vin)
	}
	if len(a.failed) > 0 {
		run.FailedVins = a.failed
	}
}
