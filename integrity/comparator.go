package integrity

import (
	"strconv"

	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/mmdatafocus/vehicle_integrity/utils"
)

type FieldKind int

const (
	// FieldIdentifier is compared uppercased with all whitespace removed.
	FieldIdentifier FieldKind = iota
	// FieldPlate is compared uppercased with whitespace runs collapsed.
	FieldPlate
	// FieldPhone is compared in E.164 form.
	FieldPhone
	// FieldExact is compared byte for byte.
	FieldExact
)

// FieldSpec describes one compared field and how to read it from both sides.
type FieldSpec struct {
	Name   string
	Kind   FieldKind
	Db     func(*models.Vehicle) string
	Ledger func(*models.LedgerRecord) string
}

// DefaultFields is the security-relevant field set, in report order.
var DefaultFields = []FieldSpec{
	{
		Name:   "vin",
		Kind:   FieldIdentifier,
		Db:     func(v *models.Vehicle) string { return v.Vin },
		Ledger: func(l *models.LedgerRecord) string { return l.Vin },
	},
	{
		Name:   "plateNumber",
		Kind:   FieldPlate,
		Db:     func(v *models.Vehicle) string { return v.PlateNumber },
		Ledger: func(l *models.LedgerRecord) string { return l.PlateNumber },
	},
	{
		Name:   "engineNumber",
		Kind:   FieldIdentifier,
		Db:     func(v *models.Vehicle) string { return v.EngineNumber },
		Ledger: func(l *models.LedgerRecord) string { return l.EngineNumber },
	},
	{
		Name:   "chassisNumber",
		Kind:   FieldIdentifier,
		Db:     func(v *models.Vehicle) string { return v.ChassisNumber },
		Ledger: func(l *models.LedgerRecord) string { return l.ChassisNumber },
	},
	{
		Name:   "make",
		Kind:   FieldExact,
		Db:     func(v *models.Vehicle) string { return v.Make },
		Ledger: func(l *models.LedgerRecord) string { return l.Make },
	},
	{
		Name:   "model",
		Kind:   FieldExact,
		Db:     func(v *models.Vehicle) string { return v.Model },
		Ledger: func(l *models.LedgerRecord) string { return l.Model },
	},
	{
		Name:   "year",
		Kind:   FieldExact,
		Db:     func(v *models.Vehicle) string { return yearString(v.Year) },
		Ledger: func(l *models.LedgerRecord) string { return yearString(l.Year) },
	},
	{
		Name:   "color",
		Kind:   FieldExact,
		Db:     func(v *models.Vehicle) string { return v.Color },
		Ledger: func(l *models.LedgerRecord) string { return l.Color },
	},
	{
		Name:   "ownerName",
		Kind:   FieldExact,
		Db:     func(v *models.Vehicle) string { return v.OwnerName },
		Ledger: func(l *models.LedgerRecord) string { return l.OwnerName },
	},
	{
		Name:   "ownerContact",
		Kind:   FieldPhone,
		Db:     func(v *models.Vehicle) string { return v.OwnerContact },
		Ledger: func(l *models.LedgerRecord) string { return l.OwnerContact },
	},
}

func yearString(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

// Comparator diffs a vehicle index row against its ledger record.
// It is pure and safe for concurrent use.
type Comparator struct {
	fields      []FieldSpec
	phoneRegion string
}

// NewComparator uses DefaultFields when fields is empty.
func NewComparator(phoneRegion string, fields ...FieldSpec) *Comparator {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return &Comparator{fields: fields, phoneRegion: phoneRegion}
}

// Compare returns one entry per configured field, matching or not.
func (c *Comparator) Compare(db *models.Vehicle, ledger *models.LedgerRecord) []models.ComparisonEntry {
	entries := make([]models.ComparisonEntry, 0, len(c.fields))
	for _, f := range c.fields {
		dv, lv := f.Db(db), f.Ledger(ledger)
		entries = append(entries, models.ComparisonEntry{
			Field:       f.Name,
			DbValue:     dv,
			LedgerValue: lv,
			Matches:     c.matches(f.Kind, dv, lv),
		})
	}
	return entries
}

func (c *Comparator) matches(kind FieldKind, a, b string) bool {
	switch kind {
	case FieldIdentifier:
		return utils.IdentifiersMatch(utils.IdentifierCompact, a, b)
	case FieldPlate:
		return utils.IdentifiersMatch(utils.IdentifierPlate, a, b)
	case FieldPhone:
		return utils.NormalizePhone(a, c.phoneRegion) == utils.NormalizePhone(b, c.phoneRegion)
	default:
		return a == b
	}
}

// AllMatch reports whether every entry matched.
func AllMatch(entries []models.ComparisonEntry) bool {
	for _, e := range entries {
		if !e.Matches {
			return false
		}
	}
	return true
}
