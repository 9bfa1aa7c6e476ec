package registry

import (
	"testing"
	"time"

	"github.com/mmdatafocus/vehicle_integrity/models"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestClassify_ProblemRecordMatchedByAnyIdentifier(t *testing.T) {
	candidates := []models.RegistryRecord{
		{ID: 1, RegistryType: models.RegistryTypeInsurance, PlateNumber: "XYZ 999", ChassisNumber: "CH-STOLEN", Status: models.RegistryRecordStatusFraudulent, FlagReason: "Reported stolen policy"},
	}
	ids := models.RegistryIdentifiers{PlateNumber: "ABC 1234", ChassisNumber: "ch-stolen"}

	res := Classify(models.RegistryTypeInsurance, ids, candidates, now)
	if res.Status != models.RegistryLookupFlagged {
		t.Fatalf("expected FLAGGED, got %s", res.Status)
	}
	if res.SubStatus != models.RegistryRecordStatusFraudulent || res.CanApprove {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.MatchedBy != "chassisNumber" {
		t.Fatalf("expected chassisNumber match, got %s", res.MatchedBy)
	}
	if res.Record == nil || res.Record.ID != 1 {
		t.Fatalf("expected record 1, got %+v", res.Record)
	}
}

func TestClassify_ProblemWinsOverValid(t *testing.T) {
	candidates := []models.RegistryRecord{
		{ID: 1, RegistryType: models.RegistryTypeInsurance, PlateNumber: "ABC 1234", Status: models.RegistryRecordStatusActive, ExpiryDate: date(2026, 1, 1)},
		{ID: 2, RegistryType: models.RegistryTypeInsurance, PolicyNumber: "POL-1", Status: models.RegistryRecordStatusCancelled},
	}
	ids := models.RegistryIdentifiers{PlateNumber: "ABC 1234", PolicyNumber: "pol-1"}

	res := Classify(models.RegistryTypeInsurance, ids, candidates, now)
	if res.Status != models.RegistryLookupFlagged || res.SubStatus != models.RegistryRecordStatusCancelled {
		t.Fatalf("expected FLAGGED/CANCELLED, got %s/%s", res.Status, res.SubStatus)
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	candidates := []models.RegistryRecord{
		{ID: 1, RegistryType: models.RegistryTypeEmission, EngineNumber: "ENG1", Status: models.RegistryRecordStatusPassed},
		{ID: 2, RegistryType: models.RegistryTypeEmission, PlateNumber: "ABC 1234", Status: models.RegistryRecordStatusPassed},
	}
	ids := models.RegistryIdentifiers{PlateNumber: "abc  1234", EngineNumber: "eng1"}

	res := Classify(models.RegistryTypeEmission, ids, candidates, now)
	if res.MatchedBy != "plateNumber" || res.Record.ID != 2 {
		t.Fatalf("expected plate match on record 2, got %s on %d", res.MatchedBy, res.Record.ID)
	}
	if res.Status != models.RegistryLookupValid || !res.CanApprove {
		t.Fatalf("expected VALID, got %+v", res)
	}
}

func TestClassify_ValidRecordPastExpiryDowngrades(t *testing.T) {
	candidates := []models.RegistryRecord{
		{ID: 1, RegistryType: models.RegistryTypeInsurance, EngineNumber: "ENG1", PolicyNumber: "POL-9", Status: models.RegistryRecordStatusActive, ExpiryDate: date(2025, 1, 31)},
	}
	res := Classify(models.RegistryTypeInsurance, models.RegistryIdentifiers{EngineNumber: "ENG1"}, candidates, now)
	if res.Status != models.RegistryLookupExpired || res.CanApprove {
		t.Fatalf("expected EXPIRED, got %+v", res)
	}
	if res.Reason != "Insurance record POL-9 expired on 2025-01-31" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestClassify_NotFoundRequestsManualVerification(t *testing.T) {
	candidates := []models.RegistryRecord{
		{ID: 1, RegistryType: models.RegistryTypeInsurance, EngineNumber: "OTHER", Status: models.RegistryRecordStatusActive},
	}
	res := Classify(models.RegistryTypeInsurance, models.RegistryIdentifiers{EngineNumber: "ENG1"}, candidates, now)
	if res.Status != models.RegistryLookupNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", res.Status)
	}
	if !res.CanApprove || !res.RequiresManualVerification {
		t.Fatalf("NOT_FOUND must stay approvable with manual verification: %+v", res)
	}
}

func TestClassify_EmptyIdentifiersNeverMatchEmptyFields(t *testing.T) {
	candidates := []models.RegistryRecord{
		{ID: 1, RegistryType: models.RegistryTypeInsurance, Status: models.RegistryRecordStatusFraudulent},
	}
	res := Classify(models.RegistryTypeInsurance, models.RegistryIdentifiers{EngineNumber: "ENG1"}, candidates, now)
	if res.Status != models.RegistryLookupNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", res.Status)
	}
}

func TestClassify_IgnoresOtherRegistryTypes(t *testing.T) {
	candidates := []models.RegistryRecord{
		{ID: 1, RegistryType: models.RegistryTypeEmission, EngineNumber: "ENG1", Status: models.RegistryRecordStatusFraudulent},
	}
	res := Classify(models.RegistryTypeInsurance, models.RegistryIdentifiers{EngineNumber: "ENG1"}, candidates, now)
	if res.Status != models.RegistryLookupNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", res.Status)
	}
}

func TestMostSevere(t *testing.T) {
	tests := []struct {
		name string
		in   []models.RegistryLookupStatus
		want models.RegistryLookupStatus
	}{
		{"flagged beats all", []models.RegistryLookupStatus{models.RegistryLookupValid, models.RegistryLookupFlagged, models.RegistryLookupExpired}, models.RegistryLookupFlagged},
		{"expired beats valid", []models.RegistryLookupStatus{models.RegistryLookupValid, models.RegistryLookupExpired}, models.RegistryLookupExpired},
		{"valid beats not found", []models.RegistryLookupStatus{models.RegistryLookupNotFound, models.RegistryLookupValid}, models.RegistryLookupValid},
		{"single", []models.RegistryLookupStatus{models.RegistryLookupNotFound}, models.RegistryLookupNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []models.RegistryLookupResult
			for _, s := range tt.in {
				results = append(results, models.RegistryLookupResult{Status: s})
			}
			got, ok := MostSevere(results)
			if !ok || got.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got.Status)
			}
		})
	}
	if _, ok := MostSevere(nil); ok {
		t.Fatalf("expected ok=false for empty input")
	}
}
