package models

import (
	"time"

	"github.com/google/uuid"
)

// ContractingAuthority is the public body (órgano de contratación) that issues tenders.
type ContractingAuthority struct {
	ID                 uuid.UUID `json:"id"`
	TaxID              string    `json:"tax_id"`
	Name               string    `json:"name"`
	DIR3               string    `json:"dir3,omitempty"`
	PlatformID         string    `json:"platform_id,omitempty"`
	AdministrationType string    `json:"administration_type,omitempty"`
	ActivityCode       string    `json:"activity_code,omitempty"`
	Street             string    `json:"street,omitempty"`
	PostalCode         string    `json:"postal_code,omitempty"`
	City               string    `json:"city,omitempty"`
	Province           string    `json:"province,omitempty"`
	Email              string    `json:"email,omitempty"`
	Phone              string    `json:"phone,omitempty"`
	ProfileURL         string    `json:"profile_url,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
