package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/mmdatafocus/vehicle_integrity/utils"
)

// matchKey is one identifier the matcher can select a record by.
type matchKey struct {
	name   string
	kind   utils.IdentifierKind
	lookup func(models.RegistryIdentifiers) string
	record func(*models.RegistryRecord) string
}

// matchPriority fixes the tie-break order: plate, engine, chassis, policy.
var matchPriority = []matchKey{
	{
		name:   "plateNumber",
		kind:   utils.IdentifierPlate,
		lookup: func(ids models.RegistryIdentifiers) string { return ids.PlateNumber },
		record: func(r *models.RegistryRecord) string { return r.PlateNumber },
	},
	{
		name:   "engineNumber",
		kind:   utils.IdentifierCompact,
		lookup: func(ids models.RegistryIdentifiers) string { return ids.EngineNumber },
		record: func(r *models.RegistryRecord) string { return r.EngineNumber },
	},
	{
		name:   "chassisNumber",
		kind:   utils.IdentifierCompact,
		lookup: func(ids models.RegistryIdentifiers) string { return ids.ChassisNumber },
		record: func(r *models.RegistryRecord) string { return r.ChassisNumber },
	},
	{
		name:   "policyNumber",
		kind:   utils.IdentifierCompact,
		lookup: func(ids models.RegistryIdentifiers) string { return ids.PolicyNumber },
		record: func(r *models.RegistryRecord) string { return r.PolicyNumber },
	},
}

// firstMatch walks the priority keys and, for each, the records in order.
// The first record sharing that identifier wins.
func firstMatch(ids models.RegistryIdentifiers, records []*models.RegistryRecord) (*models.RegistryRecord, string) {
	for _, key := range matchPriority {
		want := key.lookup(ids)
		if utils.Normalize(key.kind, want) == "" {
			continue
		}
		for _, r := range records {
			if utils.IdentifiersMatch(key.kind, want, key.record(r)) {
				return r, key.name
			}
		}
	}
	return nil, ""
}

// Classify ranks candidate records for one registry.
// Problem records (fraudulent, tampered, expired, cancelled) are searched first and
// win over any valid record, even one matched on a higher-priority identifier.
func Classify(registryType models.RegistryType, ids models.RegistryIdentifiers, candidates []models.RegistryRecord, now time.Time) models.RegistryLookupResult {
	var problems, valid []*models.RegistryRecord
	for i := range candidates {
		r := &candidates[i]
		if r.RegistryType != "" && r.RegistryType != registryType {
			continue
		}
		status := models.RegistryRecordStatus(strings.ToUpper(string(r.Status)))
		switch {
		case status.IsProblem():
			problems = append(problems, r)
		case status.IsValid():
			valid = append(valid, r)
		}
	}

	label := registryLabel(registryType)

	if rec, by := firstMatch(ids, problems); rec != nil {
		status := models.RegistryRecordStatus(strings.ToUpper(string(rec.Status)))
		reason := fmt.Sprintf("%s record is %s (matched by %s)", label, status, by)
		if rec.FlagReason != "" {
			reason += ": " + rec.FlagReason
		}
		return models.RegistryLookupResult{
			RegistryType: registryType,
			Status:       models.RegistryLookupFlagged,
			SubStatus:    status,
			CanApprove:   false,
			Reason:       reason,
			MatchedBy:    by,
			Record:       rec,
		}
	}

	if rec, by := firstMatch(ids, valid); rec != nil {
		status := models.RegistryRecordStatus(strings.ToUpper(string(rec.Status)))
		if rec.IsExpiredAt(now) {
			return models.RegistryLookupResult{
				RegistryType: registryType,
				Status:       models.RegistryLookupExpired,
				SubStatus:    status,
				CanApprove:   false,
				Reason:       fmt.Sprintf("%s %s expired on %s", label, recordRef(rec), rec.ExpiryDate.Format("2006-01-02")),
				MatchedBy:    by,
				Record:       rec,
			}
		}
		return models.RegistryLookupResult{
			RegistryType: registryType,
			Status:       models.RegistryLookupValid,
			SubStatus:    status,
			CanApprove:   true,
			Reason:       validReason(label, rec),
			MatchedBy:    by,
			Record:       rec,
		}
	}

	return models.RegistryLookupResult{
		RegistryType:               registryType,
		Status:                     models.RegistryLookupNotFound,
		CanApprove:                 true,
		Reason:                     fmt.Sprintf("No %s record found; manual verification of the submitted document is required", strings.ToLower(label)),
		RequiresManualVerification: true,
	}
}

func registryLabel(t models.RegistryType) string {
	switch t {
	case models.RegistryTypeInsurance:
		return "Insurance"
	case models.RegistryTypeEmission:
		return "Emission"
	}
	return "Registry"
}

func recordRef(r *models.RegistryRecord) string {
	if r.PolicyNumber != "" {
		return "record " + r.PolicyNumber
	}
	return "record"
}

func validReason(label string, r *models.RegistryRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s is %s", label, recordRef(r), strings.ToUpper(string(r.Status)))
	if r.Provider != "" {
		fmt.Fprintf(&b, " with %s", r.Provider)
	}
	if r.ExpiryDate != nil {
		fmt.Fprintf(&b, ", valid until %s", r.ExpiryDate.Format("2006-01-02"))
	}
	return b.String()
}

// severity orders lookup outcomes for picking the worst across registries.
func severity(s models.RegistryLookupStatus) int {
	switch s {
	case models.RegistryLookupFlagged:
		return 3
	case models.RegistryLookupExpired:
		return 2
	case models.RegistryLookupValid:
		return 1
	}
	return 0
}

// MostSevere returns the worst result: FLAGGED, then EXPIRED, then VALID, then NOT_FOUND.
// Earlier results win ties. ok is false for an empty slice.
func MostSevere(results []models.RegistryLookupResult) (models.RegistryLookupResult, bool) {
	if len(results) == 0 {
		return models.RegistryLookupResult{}, false
	}
	worst := results[0]
	for _, r := range results[1:] {
		if severity(r.Status) > severity(worst.Status) {
			worst = r
		}
	}
	return worst, true
}
