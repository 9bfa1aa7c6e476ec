package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// OCRField is one value extracted by the OCR collaborator.
// Confidence is in [0,1]; collaborators that do not report one get 1.
type OCRField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Present    bool    `json:"present"`
}

// Usable reports whether the field is present, non-blank and at least minConfidence.
func (f OCRField) Usable(minConfidence float64) bool {
	return f.Present && strings.TrimSpace(f.Value) != "" && f.Confidence >= minConfidence
}

// OCRExtraction is the untrusted field set extracted from a submitted certificate.
type OCRExtraction struct {
	DocumentType      OCRField `json:"documentType"`
	Vin               OCRField `json:"vin"`
	PlateNumber       OCRField `json:"plateNumber"`
	EngineNumber      OCRField `json:"engineNumber"`
	ChassisNumber     OCRField `json:"chassisNumber"`
	PolicyNumber      OCRField `json:"policyNumber"`
	CertificateNumber OCRField `json:"certificateNumber"`
	IssueDate         OCRField `json:"issueDate"`
	ExpiryDate        OCRField `json:"expiryDate"`
}

// Key aliases seen from OCR providers, first match wins.
var ocrFieldAliases = map[string][]string{
	"documentType":      {"documentType", "document_type", "docType", "type"},
	"vin":               {"vin", "VIN", "vinNumber", "vin_number", "vehicleIdentificationNumber"},
	"plateNumber":       {"plateNumber", "plate_number", "plateNo", "plate_no", "plate"},
	"engineNumber":      {"engineNumber", "engine_number", "engineNo", "engine_no", "motorNumber"},
	"chassisNumber":     {"chassisNumber", "chassis_number", "chassisNo", "chassis_no"},
	"policyNumber":      {"policyNumber", "policy_number", "policyNo", "policy_no", "cocNumber"},
	"certificateNumber": {"certificateNumber", "certificate_number", "certificateNo", "certNo"},
	"issueDate":         {"issueDate", "issue_date", "dateIssued", "effectiveDate"},
	"expiryDate":        {"expiryDate", "expiry_date", "expirationDate", "validUntil"},
}

// DecodeOCRExtraction maps the collaborator's loose key/value output onto OCRExtraction.
// Values may be plain scalars or {"value": ..., "confidence": ...} objects.
func DecodeOCRExtraction(raw map[string]any) OCRExtraction {
	pick := func(name string) OCRField {
		for _, key := range ocrFieldAliases[name] {
			v, ok := raw[key]
			if !ok || v == nil {
				continue
			}
			if f, ok := decodeOCRValue(v); ok {
				return f
			}
		}
		return OCRField{}
	}
	return OCRExtraction{
		DocumentType:      pick("documentType"),
		Vin:               pick("vin"),
		PlateNumber:       pick("plateNumber"),
		EngineNumber:      pick("engineNumber"),
		ChassisNumber:     pick("chassisNumber"),
		PolicyNumber:      pick("policyNumber"),
		CertificateNumber: pick("certificateNumber"),
		IssueDate:         pick("issueDate"),
		ExpiryDate:        pick("expiryDate"),
	}
}

func decodeOCRValue(v any) (OCRField, bool) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return OCRField{}, false
		}
		return OCRField{Value: t, Confidence: 1, Present: true}, true
	case float64:
		return OCRField{Value: strconv.FormatFloat(t, 'f', -1, 64), Confidence: 1, Present: true}, true
	case int, int64, json.Number:
		return OCRField{Value: fmt.Sprint(t), Confidence: 1, Present: true}, true
	case map[string]any:
		value, ok := t["value"]
		if !ok {
			value = t["text"]
		}
		f, ok := decodeOCRValue(value)
		if !ok {
			return OCRField{}, false
		}
		if c, ok := confidenceOf(t["confidence"]); ok {
			f.Confidence = c
		}
		return f, true
	}
	return OCRField{}, false
}

// confidenceOf accepts 0..1 fractions or 0..100 percentages.
func confidenceOf(v any) (float64, bool) {
	var c float64
	switch t := v.(type) {
	case float64:
		c = t
	case int:
		c = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		c = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		c = f
	default:
		return 0, false
	}
	if c > 1 {
		c = c / 100
	}
	if c < 0 || c > 1 {
		return 0, false
	}
	return c, true
}

// Identifiers returns the registry identifiers carried by the document.
func (e OCRExtraction) Identifiers(minConfidence float64) RegistryIdentifiers {
	value := func(f OCRField) string {
		if f.Usable(minConfidence) {
			return f.Value
		}
		return ""
	}
	policy := value(e.PolicyNumber)
	if policy == "" {
		policy = value(e.CertificateNumber)
	}
	return RegistryIdentifiers{
		PlateNumber:   value(e.PlateNumber),
		EngineNumber:  value(e.EngineNumber),
		ChassisNumber: value(e.ChassisNumber),
		PolicyNumber:  policy,
	}
}
