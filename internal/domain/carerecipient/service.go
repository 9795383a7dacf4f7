package carerecipient

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hans/hans/internal/domain/careprovider"
	"github.com/hans/hans/internal/platform/metrics"
)

const defaultMaxImportLines = 1000

// Service is the entry point for the care recipient workflows.
type Service struct {
	repo      Repository
	locations LocationLookup
	builder   *Builder
	importer  *Importer
	deleter   *Deleter
}

type options struct {
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	maxLines int
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMaxImportLines caps the number of data rows in one import file.
func WithMaxImportLines(n int) Option {
	return func(o *options) { o.maxLines = n }
}

func NewService(repo Repository, locations LocationLookup, hasher IdentifierHasher, gateway SubscriptionGateway, opts ...Option) (*Service, error) {
	switch {
	case repo == nil:
		return nil, errors.New("care recipient repository is required")
	case locations == nil:
		return nil, errors.New("location lookup is required")
	case hasher == nil:
		return nil, errors.New("identifier hasher is required")
	case gateway == nil:
		return nil, errors.New("subscription gateway is required")
	}

	o := options{logger: zerolog.Nop(), maxLines: defaultMaxImportLines}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxLines <= 0 {
		return nil, errors.New("max import lines must be positive")
	}

	builder := NewBuilder(repo, locations, hasher, gateway, o.logger, o.metrics)
	return &Service{
		repo:      repo,
		locations: locations,
		builder:   builder,
		importer:  NewImporter(builder, locations, o.maxLines, o.logger, o.metrics),
		deleter:   NewDeleter(repo, gateway, o.logger, o.metrics),
	}, nil
}

func (s *Service) Create(ctx context.Context, in Input) (*CareRecipient, error) {
	return s.builder.Create(ctx, in)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*CareRecipient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*CareRecipient, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

func (s *Service) Import(ctx context.Context, locationID uuid.UUID, filename string, file io.Reader) (*ImportResult, error) {
	return s.importer.Import(ctx, locationID, filename, file)
}

func (s *Service) Delete(ctx context.Context, ids []uuid.UUID) *DeletionReport {
	return s.deleter.Delete(ctx, ids)
}

func (s *Service) Location(ctx context.Context, id uuid.UUID) (*careprovider.CareProviderLocation, error) {
	return s.locations.GetLocation(ctx, id)
}
