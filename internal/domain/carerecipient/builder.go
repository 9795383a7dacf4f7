package carerecipient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hans/hans/internal/domain/careprovider"
	"github.com/hans/hans/internal/platform/auth"
	"github.com/hans/hans/internal/platform/managementapi"
	"github.com/hans/hans/internal/platform/metrics"
)

const (
	maxNameLength              = 64
	maxNHSNumberLength         = 12
	maxProviderReferenceLength = 255

	// BirthDateLayout is both the accepted input format and the hashing salt.
	BirthDateLayout = "2006-01-02"
)

// Builder turns raw input into a persisted CareRecipient. The steps run in a
// fixed order and each one only runs if the previous succeeded: field
// validation, pseudonym derivation, duplicate check, subscription creation,
// insert.
type Builder struct {
	repo      Repository
	locations LocationLookup
	hasher    IdentifierHasher
	gateway   SubscriptionGateway
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewBuilder(repo Repository, locations LocationLookup, hasher IdentifierHasher, gateway SubscriptionGateway, logger zerolog.Logger, m *metrics.Metrics) *Builder {
	return &Builder{
		repo:      repo,
		locations: locations,
		hasher:    hasher,
		gateway:   gateway,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// normalized holds the cleaned input for one record.
type normalized struct {
	providerReferenceID string
	givenNames          []string
	familyName          string
	nhsNumber           string
	birthDate           time.Time
	location            *careprovider.CareProviderLocation
}

// Create validates in and, if it passes, registers the subscription and
// stores the record. A failure after the subscription exists leaves that
// subscription in place.
func (b *Builder) Create(ctx context.Context, in Input) (*CareRecipient, error) {
	n, err := b.validate(ctx, in)
	if err != nil {
		return nil, err
	}

	hash, err := Pseudonym(b.hasher, n.nhsNumber, n.birthDate)
	if err != nil {
		return nil, err
	}

	existing, err := b.repo.FindByHash(ctx, hash)
	switch {
	case err == nil:
		return nil, &DuplicateIdentifierError{ProviderReferenceID: existing.ProviderReferenceID}
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("look up pseudonym: %w", err)
	}

	taken, err := b.repo.ExistsByProviderReference(ctx, n.providerReferenceID)
	if err != nil {
		return nil, fmt.Errorf("look up provider reference: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("%w: provider reference %s is already in use", ErrAlreadyExists, n.providerReferenceID)
	}

	subscriptionID, err := b.gateway.CreateSubscription(ctx, managementapi.PatientDetails{
		GivenNames: n.givenNames,
		FamilyName: n.familyName,
		NHSNumber:  n.nhsNumber,
		BirthDate:  n.birthDate,
	})
	if err != nil {
		ve := &ValidationError{Err: err}
		ve.add("", "%s", err.Error())
		return nil, ve
	}

	r := &CareRecipient{
		CareProviderLocationID: n.location.ID,
		LocationName:           n.location.Name,
		ProviderReferenceID:    n.providerReferenceID,
		NHSNumberHash:          hash,
		SubscriptionID:         subscriptionID,
		CreatedBy:              auth.ActorFromContext(ctx),
	}
	if err := b.repo.Create(ctx, r); err != nil {
		// The subscription now has no local record.
		b.logger.Error().Err(err).
			Str("provider_reference_id", n.providerReferenceID).
			Str("subscription_id", subscriptionID.String()).
			Msg("care recipient not stored after subscription was created")
		if errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("store care recipient: %w", err)
	}

	b.metrics.IncrementCreated()
	b.logger.Info().
		Str("care_recipient_id", r.ID.String()).
		Str("provider_reference_id", r.ProviderReferenceID).
		Msg("care recipient created")
	return r, nil
}

// Pseudonym derives the stored lookup key for an NHS number. Whitespace in
// the number is ignored.
func Pseudonym(h IdentifierHasher, nhsNumber string, birthDate time.Time) (string, error) {
	hash, err := h.Hash(StripWhitespace(nhsNumber), birthDate.Format(BirthDateLayout))
	if err != nil {
		return "", fmt.Errorf("derive pseudonym: %w", err)
	}
	return hash, nil
}

// StripWhitespace removes every whitespace rune, so "943 476 5919" and
// "9434765919" compare equal.
func StripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func (b *Builder) validate(ctx context.Context, in Input) (*normalized, error) {
	ve := &ValidationError{}
	n := &normalized{
		providerReferenceID: strings.TrimSpace(in.ProviderReferenceID),
		givenNames:          strings.Fields(in.GivenName),
		familyName:          strings.TrimSpace(in.FamilyName),
	}

	switch {
	case n.providerReferenceID == "":
		ve.add("provider_reference_id", "is required")
	case utf8.RuneCountInString(n.providerReferenceID) > maxProviderReferenceLength:
		ve.add("provider_reference_id", "must be at most %d characters", maxProviderReferenceLength)
	}

	given := strings.TrimSpace(in.GivenName)
	switch {
	case given == "":
		ve.add("given_name", "is required")
	case utf8.RuneCountInString(given) > maxNameLength:
		ve.add("given_name", "must be at most %d characters", maxNameLength)
	}

	switch {
	case n.familyName == "":
		ve.add("family_name", "is required")
	case utf8.RuneCountInString(n.familyName) > maxNameLength:
		ve.add("family_name", "must be at most %d characters", maxNameLength)
	}

	rawNHS := strings.TrimSpace(in.NHSNumber)
	n.nhsNumber = StripWhitespace(rawNHS)
	switch {
	case rawNHS == "":
		ve.add("nhs_number", "is required")
	case utf8.RuneCountInString(rawNHS) > maxNHSNumberLength:
		ve.add("nhs_number", "must be at most %d characters", maxNHSNumberLength)
	case !isDigits(n.nhsNumber):
		ve.add("nhs_number", "must contain only digits and spaces")
	}

	rawBirth := strings.TrimSpace(in.BirthDate)
	if rawBirth == "" {
		ve.add("birth_date", "is required")
	} else if d, err := time.Parse(BirthDateLayout, rawBirth); err != nil {
		ve.add("birth_date", "must be a date in YYYY-MM-DD format")
	} else if d.After(b.now()) {
		ve.add("birth_date", "must not be in the future")
	} else {
		n.birthDate = d
	}

	if in.CareProviderLocationID == uuid.Nil {
		ve.add("care_provider_location_id", "is required")
	} else {
		loc, err := b.locations.GetLocation(ctx, in.CareProviderLocationID)
		switch {
		case errors.Is(err, careprovider.ErrNotFound):
			ve.add("care_provider_location_id", "location %s does not exist", in.CareProviderLocationID)
		case err != nil:
			return nil, fmt.Errorf("look up location: %w", err)
		default:
			n.location = loc
		}
	}

	if len(ve.Fields) > 0 {
		return nil, ve
	}
	return n, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
