package models

import (
	"gorm.io/gorm"
)

// MigrateTable creates the engine's own tables. The vehicles table belongs to the
// registration service and is only migrated when withVehicles is set (dev/test).
func MigrateTable(db *gorm.DB, withVehicles bool) error {
	tables := []interface{}{&RegistryRecord{}}
	if withVehicles {
		tables = append(tables, &Vehicle{})
	}
	return db.AutoMigrate(tables...)
}
