package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DistributedLockNone  = "none"
	DistributedLockRedis = "redis"
	DistributedLockMySQL = "mysql"
)

// IntegrityConfig controls the reconciliation job and the document scorer.
type IntegrityConfig struct {
	SyncConcurrency    int           // Max vehicles checked in parallel. Default 1 (sequential).
	CallTimeout        time.Duration // Deadline per DB/ledger call. 0 disables.
	DistributedLock    string        // none | redis | mysql. Default none.
	LockTTL            time.Duration // TTL of the distributed lock. Default 10m.
	AlertTopic         string        // Pub/Sub topic for discrepancy alerts.
	SyncTopic          string        // Pub/Sub topic for scheduled sync triggers.
	ReportBucket       string        // GCS bucket for archived reports. Empty disables archiving.
	MinFieldConfidence float64       // OCR fields below this confidence are treated as absent. Default 0.6.
	PhoneRegion        string        // Default region for owner contact numbers. Default PH.
}

func DefaultIntegrityConfig() *IntegrityConfig {
	return &IntegrityConfig{
		SyncConcurrency:    1,
		CallTimeout:        0,
		DistributedLock:    DistributedLockNone,
		LockTTL:            10 * time.Minute,
		AlertTopic:         "integrity-alerts",
		SyncTopic:          "integrity-sync",
		MinFieldConfidence: 0.6,
		PhoneRegion:        "PH",
	}
}

// LoadIntegrityConfig reads SYNC_CONCURRENCY, SYNC_CALL_TIMEOUT_SECONDS,
// SYNC_DISTRIBUTED_LOCK, SYNC_LOCK_TTL_SECONDS, INTEGRITY_ALERT_TOPIC,
// INTEGRITY_SYNC_TOPIC, INTEGRITY_REPORT_BUCKET, OCR_MIN_FIELD_CONFIDENCE
// and DEFAULT_PHONE_REGION.
func LoadIntegrityConfig() *IntegrityConfig {
	cfg := DefaultIntegrityConfig()

	if n := intFromEnv("SYNC_CONCURRENCY", 0); n > 0 {
		cfg.SyncConcurrency = n
	}
	if n := intFromEnv("SYNC_CALL_TIMEOUT_SECONDS", 0); n > 0 {
		cfg.CallTimeout = time.Duration(n) * time.Second
	}
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_DISTRIBUTED_LOCK"))); v {
	case DistributedLockRedis, DistributedLockMySQL:
		cfg.DistributedLock = v
	}
	if n := intFromEnv("SYNC_LOCK_TTL_SECONDS", 0); n > 0 {
		cfg.LockTTL = time.Duration(n) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("INTEGRITY_ALERT_TOPIC")); v != "" {
		cfg.AlertTopic = v
	}
	if v := strings.TrimSpace(os.Getenv("INTEGRITY_SYNC_TOPIC")); v != "" {
		cfg.SyncTopic = v
	}
	cfg.ReportBucket = strings.TrimSpace(os.Getenv("INTEGRITY_REPORT_BUCKET"))
	if v := strings.TrimSpace(os.Getenv("OCR_MIN_FIELD_CONFIDENCE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.MinFieldConfidence = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_PHONE_REGION")); v != "" {
		cfg.PhoneRegion = strings.ToUpper(v)
	}

	return cfg
}
