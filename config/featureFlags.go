package config

import (
	"os"
	"strings"
)

// EnvBool reads a boolean flag from env. Unset or unrecognized values return def.
func EnvBool(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

// SkipMigrations disables AutoMigrate on startup.
//
// Set via env:
// - SKIP_MIGRATIONS=true
func SkipMigrations() bool {
	return EnvBool("SKIP_MIGRATIONS", false)
}

// PubSubPushEndpointEnabled gates the scheduler push endpoint.
//
// Set via env:
// - ENABLE_INTEGRITY_PUBSUB_PUSH_ENDPOINT=false
func PubSubPushEndpointEnabled() bool {
	return EnvBool("ENABLE_INTEGRITY_PUBSUB_PUSH_ENDPOINT", true)
}

// MigrateVehicleTable lets dev environments create the vehicles table.
// The table is owned by the registration service in production.
//
// Set via env:
// - MIGRATE_VEHICLE_TABLE=true
func MigrateVehicleTable() bool {
	return EnvBool("MIGRATE_VEHICLE_TABLE", false)
}
