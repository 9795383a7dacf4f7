package careprovider

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hans/hans/internal/platform/auth"
	"github.com/hans/hans/internal/platform/db"
)

const (
	maxNameLength     = 64
	maxLocationLength = 255
)

type Service struct {
	tx       db.Beginner
	managers ManagerRepository
	locs     LocationRepository
	logger   zerolog.Logger
}

// NewService wires the reference-data service. tx may be nil, in which case
// multi-step writes run without a surrounding transaction.
func NewService(tx db.Beginner, managers ManagerRepository, locs LocationRepository, logger zerolog.Logger) *Service {
	return &Service{tx: tx, managers: managers, locs: locs, logger: logger}
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return db.RunInTx(ctx, s.tx, fn)
}

// -- RegisteredManager --

func (s *Service) CreateManager(ctx context.Context, m *RegisteredManager) error {
	normalizeManager(m)
	if err := validateManager(m); err != nil {
		return err
	}
	m.CreatedBy, m.UpdatedBy = "", ""
	stampAudit(&m.CreatedBy, &m.UpdatedBy, auth.ActorFromContext(ctx), true)
	if err := s.managers.Create(ctx, m); err != nil {
		return err
	}
	s.logger.Info().Str("registered_manager_id", m.ID.String()).Msg("registered manager created")
	return nil
}

func (s *Service) GetManager(ctx context.Context, id uuid.UUID) (*RegisteredManager, error) {
	return s.managers.GetByID(ctx, id)
}

func (s *Service) ListManagers(ctx context.Context, limit, offset int) ([]*RegisteredManager, int, error) {
	return s.managers.List(ctx, limit, offset)
}

func (s *Service) UpdateManager(ctx context.Context, m *RegisteredManager) error {
	normalizeManager(m)
	if err := validateManager(m); err != nil {
		return err
	}
	return s.inTx(ctx, func(ctx context.Context) error {
		existing, err := s.managers.GetByID(ctx, m.ID)
		if err != nil {
			return err
		}
		changed := existing.GivenName != m.GivenName ||
			existing.FamilyName != m.FamilyName ||
			strPtrVal(existing.CQCRegisteredManagerID) != strPtrVal(m.CQCRegisteredManagerID)
		m.CreatedBy, m.UpdatedBy, m.CreatedAt = existing.CreatedBy, existing.UpdatedBy, existing.CreatedAt
		stampAudit(&m.CreatedBy, &m.UpdatedBy, auth.ActorFromContext(ctx), changed)
		return s.managers.Update(ctx, m)
	})
}

func normalizeManager(m *RegisteredManager) {
	m.GivenName = strings.TrimSpace(m.GivenName)
	m.FamilyName = strings.TrimSpace(m.FamilyName)
	m.CQCRegisteredManagerID = trimOptional(m.CQCRegisteredManagerID)
}

func validateManager(m *RegisteredManager) error {
	if m.GivenName == "" {
		return invalid("given_name", "is required")
	}
	if utf8.RuneCountInString(m.GivenName) > maxNameLength {
		return invalid("given_name", "must be at most %d characters", maxNameLength)
	}
	if m.FamilyName == "" {
		return invalid("family_name", "is required")
	}
	if utf8.RuneCountInString(m.FamilyName) > maxNameLength {
		return invalid("family_name", "must be at most %d characters", maxNameLength)
	}
	return nil
}

// -- CareProviderLocation --

func (s *Service) CreateLocation(ctx context.Context, loc *CareProviderLocation) error {
	normalizeLocation(loc)
	if err := validateLocation(loc); err != nil {
		return err
	}
	loc.CreatedBy, loc.UpdatedBy = "", ""
	stampAudit(&loc.CreatedBy, &loc.UpdatedBy, auth.ActorFromContext(ctx), true)

	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.requireManager(ctx, loc.RegisteredManagerID); err != nil {
			return err
		}
		return s.locs.Create(ctx, loc)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("location_id", loc.ID.String()).Msg("care provider location created")
	return nil
}

func (s *Service) GetLocation(ctx context.Context, id uuid.UUID) (*CareProviderLocation, error) {
	return s.locs.GetByID(ctx, id)
}

func (s *Service) ListLocations(ctx context.Context, limit, offset int) ([]*CareProviderLocation, int, error) {
	return s.locs.List(ctx, limit, offset)
}

func (s *Service) UpdateLocation(ctx context.Context, loc *CareProviderLocation) error {
	normalizeLocation(loc)
	if err := validateLocation(loc); err != nil {
		return err
	}
	return s.inTx(ctx, func(ctx context.Context) error {
		existing, err := s.locs.GetByID(ctx, loc.ID)
		if err != nil {
			return err
		}
		if existing.RegisteredManagerID != loc.RegisteredManagerID {
			if err := s.requireManager(ctx, loc.RegisteredManagerID); err != nil {
				return err
			}
		}
		changed := existing.Name != loc.Name ||
			existing.RegisteredManagerID != loc.RegisteredManagerID ||
			strPtrVal(existing.Email) != strPtrVal(loc.Email) ||
			strPtrVal(existing.ODSCode) != strPtrVal(loc.ODSCode) ||
			strPtrVal(existing.CQCLocationID) != strPtrVal(loc.CQCLocationID)
		loc.CreatedBy, loc.UpdatedBy, loc.CreatedAt = existing.CreatedBy, existing.UpdatedBy, existing.CreatedAt
		stampAudit(&loc.CreatedBy, &loc.UpdatedBy, auth.ActorFromContext(ctx), changed)
		return s.locs.Update(ctx, loc)
	})
}

// FindLocationByRecipientPseudonym resolves the location caring for the
// recipient stored under the given pseudonym.
func (s *Service) FindLocationByRecipientPseudonym(ctx context.Context, pseudonym string) (*CareProviderLocation, error) {
	pseudonym = strings.TrimSpace(pseudonym)
	if pseudonym == "" {
		return nil, invalid("_careRecipientPseudoId", "is required")
	}
	return s.locs.GetByRecipientPseudonym(ctx, pseudonym)
}

func (s *Service) requireManager(ctx context.Context, id uuid.UUID) error {
	if _, err := s.managers.GetByID(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalid("registered_manager_id", "registered manager %s does not exist", id)
		}
		return err
	}
	return nil
}

func normalizeLocation(loc *CareProviderLocation) {
	loc.Name = strings.TrimSpace(loc.Name)
	loc.Email = trimOptional(loc.Email)
	loc.ODSCode = trimOptional(loc.ODSCode)
	loc.CQCLocationID = trimOptional(loc.CQCLocationID)
}

func validateLocation(loc *CareProviderLocation) error {
	if loc.Name == "" {
		return invalid("name", "is required")
	}
	if utf8.RuneCountInString(loc.Name) > maxLocationLength {
		return invalid("name", "must be at most %d characters", maxLocationLength)
	}
	if loc.RegisteredManagerID == uuid.Nil {
		return invalid("registered_manager_id", "is required")
	}
	if loc.Email != nil {
		if _, err := mail.ParseAddress(*loc.Email); err != nil {
			return invalid("email", "is not a valid email address")
		}
	}
	return nil
}

// trimOptional trims s and collapses blank values to nil.
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
