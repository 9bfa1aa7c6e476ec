package integritysync

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/xuri/excelize/v2"
)

func TestBuildAlertReport(t *testing.T) {
	run := models.SyncRun{TotalChecked: 3, Matched: 1, Mismatched: 1, NotOnBlockchain: 1, CorrelationId: "run-7"}
	tampered := []models.IntegrityCheckResult{{
		Vin:    "VIN-T",
		Status: models.IntegrityStatusTampered,
		Comparisons: []models.ComparisonEntry{
			{Field: "vin", DbValue: "VIN-T", LedgerValue: "VIN-T", Matches: true},
			{Field: "chassisNumber", DbValue: "<CH-1>", LedgerValue: "CH-2", Matches: false},
		},
	}}
	missing := []models.IntegrityCheckResult{{
		Vin:       "VIN-M",
		Status:    models.IntegrityStatusNotRegistered,
		DbVehicle: &models.Vehicle{Vin: "VIN-M", PlateNumber: "XYZ 1", Make: "Ford", Model: "Ranger", Year: 2020},
	}}

	r, err := BuildAlertReport(run, tampered, missing, time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildAlertReport: %v", err)
	}
	if r.Subject != "[Vehicle Integrity] 2 discrepancies detected (1 mismatched, 1 not on blockchain)" {
		t.Fatalf("unexpected subject %q", r.Subject)
	}
	if !strings.Contains(r.Body, "- VIN-T (fields: chassisNumber)") || !strings.Contains(r.Body, "- VIN-M") {
		t.Fatalf("unexpected body:\n%s", r.Body)
	}
	if !strings.Contains(r.HTML, "&lt;CH-1&gt;") {
		t.Fatalf("html must escape values:\n%s", r.HTML)
	}
	if !strings.Contains(r.HTML, "XYZ 1, Ford Ranger") {
		t.Fatalf("html must describe missing vehicles:\n%s", r.HTML)
	}
	if strings.Contains(r.HTML, ">vin<") {
		t.Fatalf("html must list only mismatched fields:\n%s", r.HTML)
	}

	data, err := r.XLSX()
	if err != nil {
		t.Fatalf("XLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Mismatched")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "VIN-T" || rows[1][1] != "chassisNumber" || rows[1][3] != "CH-2" {
		t.Fatalf("unexpected mismatch rows %v", rows)
	}
	rows, err = f.GetRows("NotOnBlockchain")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "VIN-M" || rows[1][4] != "2020" {
		t.Fatalf("unexpected missing rows %v", rows)
	}
}
