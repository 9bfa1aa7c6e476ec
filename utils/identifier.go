package utils

import (
	"strings"
	"unicode"

	"github.com/ttacon/libphonenumber"
)

// IdentifierKind selects the canonical form used when comparing identifiers
// across the vehicle index, the ledger, registries and OCR output.
type IdentifierKind int

const (
	// IdentifierCompact strips all whitespace (VIN, engine, chassis, policy numbers).
	IdentifierCompact IdentifierKind = iota
	// IdentifierPlate keeps single internal spaces ("ABC  123" -> "ABC 123").
	IdentifierPlate
)

// NormalizeIdentifier uppercases, trims and removes all whitespace.
func NormalizeIdentifier(raw string) string {
	if raw == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// NormalizePlate uppercases, trims and collapses internal whitespace runs to one space.
func NormalizePlate(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.ToUpper(strings.Join(strings.Fields(raw), " "))
}

func Normalize(kind IdentifierKind, raw string) string {
	if kind == IdentifierPlate {
		return NormalizePlate(raw)
	}
	return NormalizeIdentifier(raw)
}

// IdentifiersMatch compares two raw identifiers in canonical form.
// Empty never matches, not even another empty value: missing data is not evidence of identity.
func IdentifiersMatch(kind IdentifierKind, a, b string) bool {
	na := Normalize(kind, a)
	if na == "" {
		return false
	}
	return na == Normalize(kind, b)
}

// NormalizePhone formats a contact number as E.164 using region for numbers
// without a country code. Unparseable input falls back to its digits.
func NormalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	p, err := libphonenumber.Parse(raw, region)
	if err == nil && libphonenumber.IsValidNumber(p) {
		return libphonenumber.Format(p, libphonenumber.E164)
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '+' {
			return r
		}
		return -1
	}, raw)
}
