package careprovider

import (
	"context"

	"github.com/google/uuid"
)

type ManagerRepository interface {
	Create(ctx context.Context, m *RegisteredManager) error
	GetByID(ctx context.Context, id uuid.UUID) (*RegisteredManager, error)
	Update(ctx context.Context, m *RegisteredManager) error
	List(ctx context.Context, limit, offset int) ([]*RegisteredManager, int, error)
}

type LocationRepository interface {
	Create(ctx context.Context, loc *CareProviderLocation) error
	GetByID(ctx context.Context, id uuid.UUID) (*CareProviderLocation, error)
	Update(ctx context.Context, loc *CareProviderLocation) error
	List(ctx context.Context, limit, offset int) ([]*CareProviderLocation, int, error)
	// GetByRecipientPseudonym returns the location that owns the care
	// recipient stored under nhsNumberHash.
	GetByRecipientPseudonym(ctx context.Context, nhsNumberHash string) (*CareProviderLocation, error)
}
