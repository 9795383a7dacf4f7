package carerecipient

import (
	"time"

	"github.com/google/uuid"
)

// CareRecipient maps to the care_recipient table. Identifying fields never
// reach this struct; only their pseudonym does.
type CareRecipient struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	CareProviderLocationID uuid.UUID `db:"care_provider_location_id" json:"care_provider_location_id"`
	LocationName           string    `db:"-" json:"care_provider_location_name,omitempty"`
	ProviderReferenceID    string    `db:"provider_reference_id" json:"provider_reference_id"`
	NHSNumberHash          string    `db:"nhs_number_hash" json:"nhs_number_hash"`
	SubscriptionID         uuid.UUID `db:"subscription_id" json:"subscription_id"`
	CreatedBy              string    `db:"created_by" json:"created_by"`
	UpdatedBy              string    `db:"updated_by" json:"updated_by"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// Input is a care recipient as entered on the form or in an import row.
// It lives for one request only.
type Input struct {
	ProviderReferenceID    string    `json:"provider_reference_id"`
	GivenName              string    `json:"given_name"`
	FamilyName             string    `json:"family_name"`
	NHSNumber              string    `json:"nhs_number"`
	BirthDate              string    `json:"birth_date"`
	CareProviderLocationID uuid.UUID `json:"care_provider_location_id"`
}

// ListFilter narrows a recipient listing. Query matches the pseudonym or the
// provider reference.
type ListFilter struct {
	Query      string
	LocationID *uuid.UUID
}
