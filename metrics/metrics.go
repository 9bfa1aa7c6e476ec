package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the reconciliation job and the document scorer
var (
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_sync_runs_total",
			Help: "Total number of full sync invocations by outcome (completed, failed, rejected)",
		},
		[]string{"outcome"},
	)

	SyncRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "integrity_sync_run_duration_seconds",
			Help:    "Duration of completed full sync runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	VehicleChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_vehicle_checks_total",
			Help: "Total number of per-vehicle integrity checks by result (VERIFIED, TAMPERED, NOT_REGISTERED, ERROR)",
		},
		[]string{"result"},
	)

	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_alerts_total",
			Help: "Total number of discrepancy alerts by delivery outcome",
		},
		[]string{"outcome"},
	)

	DocumentVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_authenticity_verdicts_total",
			Help: "Total number of document authenticity verdicts",
		},
		[]string{"authentic"},
	)

	RegistryLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_registry_lookups_total",
			Help: "Total number of external registry lookups by registry and status",
		},
		[]string{"registry", "status"},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics with the default registry.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SyncRunsTotal)
		prometheus.MustRegister(SyncRunDuration)
		prometheus.MustRegister(VehicleChecksTotal)
		prometheus.MustRegister(AlertsTotal)
		prometheus.MustRegister(DocumentVerdictsTotal)
		prometheus.MustRegister(RegistryLookupsTotal)
	})
}
