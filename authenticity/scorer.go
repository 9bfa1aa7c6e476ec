package authenticity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmdatafocus/vehicle_integrity/config"
	"github.com/mmdatafocus/vehicle_integrity/metrics"
	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/mmdatafocus/vehicle_integrity/registry"
	"github.com/mmdatafocus/vehicle_integrity/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("vehicle-integrity/authenticity")

const (
	ScoreAuthentic = 100
	ScoreExpired   = 40
	ScoreCancelled = 20
	ScoreFraud     = 0
)

// RegistryLookup is the part of registry.Service the scorer needs.
type RegistryLookup interface {
	Types() []models.RegistryType
	LookupType(ctx context.Context, t models.RegistryType, ids models.RegistryIdentifiers) (*models.RegistryLookupResult, error)
}

// Scorer decides whether a submitted certificate belongs to and accurately describes a vehicle.
type Scorer struct {
	registry      RegistryLookup
	minConfidence float64
	logger        *logrus.Logger
}

func NewScorer(reg RegistryLookup, minConfidence float64, logger *logrus.Logger) *Scorer {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Scorer{registry: reg, minConfidence: minConfidence, logger: logger}
}

// ScoreDocument starts from authentic/100. An embedded VIN that differs from the
// target's is an absolute override to score 0 and the registries are not consulted.
// Otherwise the worst registry result decides; NOT_FOUND keeps the score.
func (s *Scorer) ScoreDocument(ctx context.Context, ext models.OCRExtraction, target *models.Vehicle) (*models.AuthenticityVerdict, error) {
	if target == nil {
		return nil, utils.ErrorRecordNotFound
	}
	ctx, span := tracer.Start(ctx, "authenticity.ScoreDocument")
	span.SetAttributes(attribute.String("vehicle.vin", target.Vin))
	defer span.End()

	verdict, err := s.score(ctx, ext, target)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("document.authentic", verdict.Authentic),
		attribute.Int("document.score", verdict.AuthenticityScore),
	)
	metrics.DocumentVerdictsTotal.WithLabelValues(strconv.FormatBool(verdict.Authentic)).Inc()
	return verdict, nil
}

func (s *Scorer) score(ctx context.Context, ext models.OCRExtraction, target *models.Vehicle) (*models.AuthenticityVerdict, error) {
	if ext.Vin.Usable(s.minConfidence) && !utils.IdentifiersMatch(utils.IdentifierCompact, ext.Vin.Value, target.Vin) {
		s.logger.WithFields(logrus.Fields{
			"targetVin":   target.Vin,
			"documentVin": ext.Vin.Value,
		}).Warn("document bound to a different vehicle")
		return &models.AuthenticityVerdict{
			Authentic:         false,
			AuthenticityScore: ScoreFraud,
			Reason: fmt.Sprintf("VIN Mismatch: Certificate belongs to vehicle %s, not %s",
				utils.NormalizeIdentifier(ext.Vin.Value), target.Vin),
		}, nil
	}

	// Only identifiers printed on the document are looked up; problem records match on any of them.
	ids := ext.Identifiers(s.minConfidence)
	if ids.IsEmpty() {
		return &models.AuthenticityVerdict{
			Authentic:         true,
			AuthenticityScore: ScoreAuthentic,
			Reason:            "No identifiers available for registry lookup; manual verification of the submitted document is required",
		}, nil
	}

	types := registryTypesFor(ext.DocumentType.Value, s.registry.Types())
	var results []models.RegistryLookupResult
	for _, t := range types {
		res, err := s.registry.LookupType(ctx, t, ids)
		if err != nil {
			if errors.Is(err, utils.ErrorInvalidIdentifiers) {
				continue
			}
			config.LogError(s.logger, "authenticity/scorer.go", "score", "registry lookup", t, err)
			return nil, err
		}
		results = append(results, *res)
	}

	worst, ok := registry.MostSevere(results)
	if !ok {
		return &models.AuthenticityVerdict{
			Authentic:         true,
			AuthenticityScore: ScoreAuthentic,
			Reason:            "No registry configured for this document; manual verification of the submitted document is required",
		}, nil
	}

	return &models.AuthenticityVerdict{
		Authentic:             worst.CanApprove,
		AuthenticityScore:     scoreFor(worst),
		Reason:                worst.Reason,
		MatchedRegistryRecord: worst.Record,
		RegistryResults:       results,
	}, nil
}

// registryTypesFor maps the OCR document type onto registries.
// Unknown types are checked against every configured registry.
func registryTypesFor(documentType string, configured []models.RegistryType) []models.RegistryType {
	dt := strings.ToUpper(documentType)
	var want models.RegistryType
	switch {
	case strings.Contains(dt, "INSUR"), strings.Contains(dt, "POLICY"), strings.Contains(dt, "COC"):
		want = models.RegistryTypeInsurance
	case strings.Contains(dt, "EMISSION"), strings.Contains(dt, "SMOKE"):
		want = models.RegistryTypeEmission
	default:
		return configured
	}
	for _, t := range configured {
		if t == want {
			return []models.RegistryType{want}
		}
	}
	return configured
}

func scoreFor(res models.RegistryLookupResult) int {
	switch res.Status {
	case models.RegistryLookupFlagged:
		switch res.SubStatus {
		case models.RegistryRecordStatusCancelled:
			return ScoreCancelled
		case models.RegistryRecordStatusExpired:
			return ScoreExpired
		}
		return ScoreFraud
	case models.RegistryLookupExpired:
		return ScoreExpired
	}
	return ScoreAuthentic
}
