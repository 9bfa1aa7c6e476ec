package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/vehicle_integrity/config"
	"github.com/mmdatafocus/vehicle_integrity/metrics"
	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/mmdatafocus/vehicle_integrity/utils"
	"github.com/sirupsen/logrus"
)

// Source is one external registry. FindCandidates may over-return;
// ranking happens in Classify.
type Source interface {
	RegistryType() models.RegistryType
	FindCandidates(ctx context.Context, ids models.RegistryIdentifiers) ([]models.RegistryRecord, error)
}

// LookupRequest is the input of a single-registry lookup.
type LookupRequest struct {
	RegistryType  models.RegistryType `json:"registryType" validate:"required,oneof=INSURANCE EMISSION"`
	PlateNumber   string              `json:"plateNumber" validate:"omitempty,max=20"`
	EngineNumber  string              `json:"engineNumber" validate:"omitempty,max=64"`
	ChassisNumber string              `json:"chassisNumber" validate:"omitempty,max=64"`
	PolicyNumber  string              `json:"policyNumber" validate:"omitempty,max=64"`
}

func (r LookupRequest) Identifiers() models.RegistryIdentifiers {
	return models.RegistryIdentifiers{
		PlateNumber:   r.PlateNumber,
		EngineNumber:  r.EngineNumber,
		ChassisNumber: r.ChassisNumber,
		PolicyNumber:  r.PolicyNumber,
	}
}

// Service answers registry lookups over a set of sources. It never writes.
type Service struct {
	sources  map[models.RegistryType]Source
	validate *validator.Validate
	now      func() time.Time
	logger   *logrus.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(sources []Source, opts ...Option) *Service {
	s := &Service{
		sources:  make(map[models.RegistryType]Source, len(sources)),
		validate: validator.New(),
		now:      time.Now,
		logger:   config.GetLogger(),
	}
	for _, src := range sources {
		s.sources[src.RegistryType()] = src
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Types lists the configured registries in a stable order.
func (s *Service) Types() []models.RegistryType {
	types := make([]models.RegistryType, 0, len(s.sources))
	for t := range s.sources {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Lookup validates req and classifies it against the requested registry.
// Validation failures are returned as validator.ValidationErrors.
func (s *Service) Lookup(ctx context.Context, req LookupRequest) (*models.RegistryLookupResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	ids := req.Identifiers()
	if ids.IsEmpty() {
		return nil, utils.ErrorInvalidIdentifiers
	}
	return s.lookup(ctx, req.RegistryType, ids)
}

// LookupAll queries every configured registry for ids.
func (s *Service) LookupAll(ctx context.Context, ids models.RegistryIdentifiers) ([]models.RegistryLookupResult, error) {
	if ids.IsEmpty() {
		return nil, utils.ErrorInvalidIdentifiers
	}
	var results []models.RegistryLookupResult
	for _, t := range s.Types() {
		res, err := s.lookup(ctx, t, ids)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// LookupType classifies ids against one registry without request validation.
func (s *Service) LookupType(ctx context.Context, t models.RegistryType, ids models.RegistryIdentifiers) (*models.RegistryLookupResult, error) {
	if ids.IsEmpty() {
		return nil, utils.ErrorInvalidIdentifiers
	}
	return s.lookup(ctx, t, ids)
}

func (s *Service) lookup(ctx context.Context, t models.RegistryType, ids models.RegistryIdentifiers) (*models.RegistryLookupResult, error) {
	src, ok := s.sources[t]
	if !ok {
		return nil, fmt.Errorf("registry %s is not configured", t)
	}
	candidates, err := src.FindCandidates(ctx, ids)
	if err != nil {
		config.LogError(s.logger, "registry/service.go", "lookup", "find candidates", ids, err)
		return nil, fmt.Errorf("%s registry lookup: %w", t, err)
	}
	res := Classify(t, ids, candidates, s.now())
	metrics.RegistryLookupsTotal.WithLabelValues(string(t), string(res.Status)).Inc()
	s.logger.WithFields(logrus.Fields{
		"registryType": t,
		"status":       res.Status,
		"matchedBy":    res.MatchedBy,
		"candidates":   len(candidates),
	}).Info("registry lookup")
	return &res, nil
}
