package careprovider

import (
	"time"

	"github.com/google/uuid"

	"github.com/hans/hans/internal/platform/fhir"
)

const (
	odsCodeSystem       = "https://fhir.nhs.uk/Id/ods-organization-code"
	cqcLocationIDSystem = "https://cqc.org.uk/location-id"
)

// RegisteredManager maps to the registered_manager table.
type RegisteredManager struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	GivenName              string    `db:"given_name" json:"given_name"`
	FamilyName             string    `db:"family_name" json:"family_name"`
	CQCRegisteredManagerID *string   `db:"cqc_registered_manager_id" json:"cqc_registered_manager_id,omitempty"`
	CreatedBy              string    `db:"created_by" json:"created_by"`
	UpdatedBy              string    `db:"updated_by" json:"updated_by"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// FullName is the display form used in listings.
func (m *RegisteredManager) FullName() string {
	return m.GivenName + " " + m.FamilyName
}

// CareProviderLocation maps to the care_provider_location table.
type CareProviderLocation struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	RegisteredManagerID uuid.UUID `db:"registered_manager_id" json:"registered_manager_id"`
	Name                string    `db:"name" json:"name"`
	Email               *string   `db:"email" json:"email,omitempty"`
	ODSCode             *string   `db:"ods_code" json:"ods_code,omitempty"`
	CQCLocationID       *string   `db:"cqc_location_id" json:"cqc_location_id,omitempty"`
	CreatedBy           string    `db:"created_by" json:"created_by"`
	UpdatedBy           string    `db:"updated_by" json:"updated_by"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

func (l *CareProviderLocation) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Location",
		"id":           l.ID.String(),
		"status":       "active",
		"name":         l.Name,
		"meta":         fhir.Meta{LastUpdated: l.UpdatedAt},
	}

	var identifiers []fhir.Identifier
	if l.ODSCode != nil && *l.ODSCode != "" {
		identifiers = append(identifiers, fhir.Identifier{System: odsCodeSystem, Value: *l.ODSCode})
	}
	if l.CQCLocationID != nil && *l.CQCLocationID != "" {
		identifiers = append(identifiers, fhir.Identifier{System: cqcLocationIDSystem, Value: *l.CQCLocationID})
	}
	if len(identifiers) > 0 {
		result["identifier"] = identifiers
	}

	if l.Email != nil && *l.Email != "" {
		result["telecom"] = []fhir.ContactPoint{{System: "email", Value: *l.Email, Use: "work"}}
	}

	return result
}

// stampAudit records who touched a reference-data row. A row without a
// creator is claimed by actor; otherwise updated_by moves only when a field
// actually changed.
func stampAudit(createdBy, updatedBy *string, actor string, changed bool) {
	if actor == "" {
		return
	}
	if *createdBy == "" {
		*createdBy = actor
		return
	}
	if changed {
		*updatedBy = actor
	}
}

func strPtrVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
