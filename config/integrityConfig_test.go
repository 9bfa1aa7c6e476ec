package config

import (
	"testing"
	"time"
)

func TestLoadIntegrityConfig_Defaults(t *testing.T) {
	for _, k := range []string{
		"SYNC_CONCURRENCY", "SYNC_CALL_TIMEOUT_SECONDS", "SYNC_DISTRIBUTED_LOCK", "SYNC_LOCK_TTL_SECONDS",
		"INTEGRITY_ALERT_TOPIC", "INTEGRITY_SYNC_TOPIC", "INTEGRITY_REPORT_BUCKET",
		"OCR_MIN_FIELD_CONFIDENCE", "DEFAULT_PHONE_REGION",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadIntegrityConfig()
	want := DefaultIntegrityConfig()
	if *cfg != *want {
		t.Fatalf("expected defaults %+v, got %+v", want, cfg)
	}
}

func TestLoadIntegrityConfig_Overrides(t *testing.T) {
	t.Setenv("SYNC_CONCURRENCY", "8")
	t.Setenv("SYNC_CALL_TIMEOUT_SECONDS", "15")
	t.Setenv("SYNC_DISTRIBUTED_LOCK", " MySQL ")
	t.Setenv("SYNC_LOCK_TTL_SECONDS", "120")
	t.Setenv("INTEGRITY_ALERT_TOPIC", "alerts")
	t.Setenv("INTEGRITY_SYNC_TOPIC", "sync")
	t.Setenv("INTEGRITY_REPORT_BUCKET", "reports")
	t.Setenv("OCR_MIN_FIELD_CONFIDENCE", "0.8")
	t.Setenv("DEFAULT_PHONE_REGION", "mm")

	cfg := LoadIntegrityConfig()
	if cfg.SyncConcurrency != 8 || cfg.CallTimeout != 15*time.Second || cfg.LockTTL != 2*time.Minute {
		t.Fatalf("unexpected numeric settings %+v", cfg)
	}
	if cfg.DistributedLock != DistributedLockMySQL {
		t.Fatalf("expected mysql lock, got %q", cfg.DistributedLock)
	}
	if cfg.AlertTopic != "alerts" || cfg.SyncTopic != "sync" || cfg.ReportBucket != "reports" {
		t.Fatalf("unexpected names %+v", cfg)
	}
	if cfg.MinFieldConfidence != 0.8 || cfg.PhoneRegion != "MM" {
		t.Fatalf("unexpected scorer settings %+v", cfg)
	}
}

func TestLoadIntegrityConfig_InvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(*IntegrityConfig) bool
	}{
		{"negative concurrency", "SYNC_CONCURRENCY", "-3", func(c *IntegrityConfig) bool { return c.SyncConcurrency == 1 }},
		{"garbage timeout", "SYNC_CALL_TIMEOUT_SECONDS", "soon", func(c *IntegrityConfig) bool { return c.CallTimeout == 0 }},
		{"unknown lock", "SYNC_DISTRIBUTED_LOCK", "zookeeper", func(c *IntegrityConfig) bool { return c.DistributedLock == DistributedLockNone }},
		{"confidence above one", "OCR_MIN_FIELD_CONFIDENCE", "60", func(c *IntegrityConfig) bool { return c.MinFieldConfidence == 0.6 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if cfg := LoadIntegrityConfig(); !tt.check(cfg) {
				t.Fatalf("%s=%q: unexpected config %+v", tt.key, tt.value, cfg)
			}
		})
	}
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{"0", true, false},
		{"off", true, false},
		{"", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Setenv("INTEGRITY_TEST_FLAG", tt.value)
		if got := EnvBool("INTEGRITY_TEST_FLAG", tt.def); got != tt.want {
			t.Fatalf("EnvBool(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}
