package carerecipient

import (
	"context"

	"github.com/google/uuid"

	"github.com/hans/hans/internal/domain/careprovider"
	"github.com/hans/hans/internal/platform/managementapi"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

type Repository interface {
	// Create inserts r. A unique violation yields ErrAlreadyExists.
	Create(ctx context.Context, r *CareRecipient) error
	GetByID(ctx context.Context, id uuid.UUID) (*CareRecipient, error)
	FindByHash(ctx context.Context, nhsNumberHash string) (*CareRecipient, error)
	ExistsByProviderReference(ctx context.Context, providerReferenceID string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*CareRecipient, int, error)
}

// SubscriptionGateway creates and removes the downstream notification
// subscription for a patient.
type SubscriptionGateway interface {
	CreateSubscription(ctx context.Context, p managementapi.PatientDetails) (uuid.UUID, error)
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
}

type IdentifierHasher interface {
	Hash(identifier, salt string) (string, error)
}

type LocationLookup interface {
	GetLocation(ctx context.Context, id uuid.UUID) (*careprovider.CareProviderLocation, error)
}
