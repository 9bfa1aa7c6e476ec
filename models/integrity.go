package models

import "time"

type IntegrityStatus string

const (
	IntegrityStatusVerified      IntegrityStatus = "VERIFIED"
	IntegrityStatusTampered      IntegrityStatus = "TAMPERED"
	IntegrityStatusNotRegistered IntegrityStatus = "NOT_REGISTERED"
)

const (
	IntegrityMessageVerified      = "Vehicle data matches blockchain record"
	IntegrityMessageTampered      = "Data mismatch detected between database and blockchain"
	IntegrityMessageNotRegistered = "Vehicle not found on blockchain"
)

// ComparisonEntry is one field of evidence in a DB vs ledger comparison.
type ComparisonEntry struct {
	Field       string `json:"field"`
	DbValue     string `json:"dbValue"`
	LedgerValue string `json:"ledgerValue"`
	Matches     bool   `json:"matches"`
}

// IntegrityCheckResult is created per check and never persisted by the engine.
// Comparisons is set only for TAMPERED; snapshots only for non-VERIFIED results.
type IntegrityCheckResult struct {
	Vin           string            `json:"vin"`
	Status        IntegrityStatus   `json:"status"`
	Message       string            `json:"message"`
	Comparisons   []ComparisonEntry `json:"comparisons,omitempty"`
	DbVehicle     *Vehicle          `json:"dbVehicle,omitempty"`
	LedgerVehicle *LedgerRecord     `json:"ledgerVehicle,omitempty"`
}

// Mismatches returns the entries that did not match.
func (r IntegrityCheckResult) Mismatches() []ComparisonEntry {
	var out []ComparisonEntry
	for _, c := range r.Comparisons {
		if !c.Matches {
			out = append(out, c)
		}
	}
	return out
}

// SyncRun is the aggregate of one full reconciliation pass.
type SyncRun struct {
	TotalChecked     int  `json:"totalChecked"`
	Matched          int  `json:"matched"`
	Mismatched       int  `json:"mismatched"`
	NotOnBlockchain  int  `json:"notOnBlockchain"`
	Errors           int  `json:"errors"`
	HasDiscrepancies bool `json:"hasDiscrepancies"`
	Success          bool `json:"success"`
	// Error is set when the run itself did not complete (or was rejected).
	Error string `json:"error,omitempty"`

	CorrelationId       string            `json:"correlationId,omitempty"`
	TriggeredBy         string            `json:"triggeredBy,omitempty"`
	StartedAt           *time.Time        `json:"startedAt,omitempty"`
	FinishedAt          *time.Time        `json:"finishedAt,omitempty"`
	DurationMs          int64             `json:"durationMs"`
	MismatchedVins      []string          `json:"mismatchedVins,omitempty"`
	NotOnBlockchainVins []string          `json:"notOnBlockchainVins,omitempty"`
	FailedVins          map[string]string `json:"failedVins,omitempty"`
	AlertSent           bool              `json:"alertSent"`
	AlertError          string            `json:"alertError,omitempty"`
	// LockLost marks a run aborted because its distributed lock expired mid-run.
	LockLost bool `json:"lockLost,omitempty"`
}
