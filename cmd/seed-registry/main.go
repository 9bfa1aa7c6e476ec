// seed-registry loads mock insurance and emission registry records for dev and staging.
//
// Usage:
//
//	go run ./cmd/seed-registry                       # built-in demo records
//	go run ./cmd/seed-registry -file records.json    # JSON array of registry records
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/vehicle_integrity/config"
	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func main() {
	file := flag.String("file", "", "Optional: JSON file with an array of registry records")
	reset := flag.Bool("reset", false, "Delete existing registry records before seeding")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := models.MigrateTable(db, false); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	records := demoRecords(time.Now().UTC())
	if *file != "" {
		raw, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
			os.Exit(1)
		}
		records = nil
		if err := json.Unmarshal(raw, &records); err != nil {
			fmt.Fprintf(os.Stderr, "parse %s: %v\n", *file, err)
			os.Exit(1)
		}
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if *reset {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.RegistryRecord{}).Error; err != nil {
				return err
			}
		}
		for i := range records {
			rec := records[i]
			if !rec.RegistryType.IsValid() {
				return fmt.Errorf("record %d: unknown registry type %q", i, rec.RegistryType)
			}
			if err := models.CreateRegistryRecord(ctx, tx, &rec); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d registry records\n", len(records))
}

func demoRecords(now time.Time) []models.RegistryRecord {
	date := func(d time.Duration) *time.Time {
		t := now.Add(d).Truncate(24 * time.Hour)
		return &t
	}
	year := 365 * 24 * time.Hour
	return []models.RegistryRecord{
		{RegistryType: models.RegistryTypeInsurance, PlateNumber: "NCR 1234", EngineNumber: "2NR-1234567", ChassisNumber: "NSP151-100001", PolicyNumber: "CTPL-2024-000101", Status: models.RegistryRecordStatusActive, Provider: "Pioneer Insurance", CoverageAmount: decimal.NewFromInt(100000), IssueDate: date(-90 * 24 * time.Hour), ExpiryDate: date(year - 90*24*time.Hour)},
		{RegistryType: models.RegistryTypeInsurance, PlateNumber: "ABC 5678", EngineNumber: "1NZ-7654321", PolicyNumber: "CTPL-2023-004512", Status: models.RegistryRecordStatusActive, Provider: "Malayan Insurance", CoverageAmount: decimal.NewFromInt(100000), IssueDate: date(-2 * year), ExpiryDate: date(-year)},
		{RegistryType: models.RegistryTypeInsurance, PlateNumber: "XYZ 9012", PolicyNumber: "CTPL-2024-009999", Status: models.RegistryRecordStatusFraudulent, Provider: "Unknown", FlagReason: "Policy number issued to a different vehicle"},
		{RegistryType: models.RegistryTypeInsurance, EngineNumber: "4D56-0001122", PolicyNumber: "CTPL-2024-007777", Status: models.RegistryRecordStatusCancelled, Provider: "Standard Insurance", FlagReason: "Cancelled for non-payment"},
		{RegistryType: models.RegistryTypeEmission, PlateNumber: "NCR 1234", EngineNumber: "2NR-1234567", PolicyNumber: "ETC-2024-55501", Status: models.RegistryRecordStatusPassed, Provider: "Greenline Emission Center", IssueDate: date(-30 * 24 * time.Hour), ExpiryDate: date(year - 30*24*time.Hour)},
		{RegistryType: models.RegistryTypeEmission, ChassisNumber: "KUN26-400222", PolicyNumber: "ETC-2024-55502", Status: models.RegistryRecordStatusTampered, Provider: "Greenline Emission Center", FlagReason: "Smoke opacity result altered after upload"},
		{RegistryType: models.RegistryTypeEmission, PlateNumber: "DEF 3456", PolicyNumber: "ETC-2022-10001", Status: models.RegistryRecordStatusExpired, Provider: "Metro Emission Testing"},
	}
}
