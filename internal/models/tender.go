package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AwardCriterion is one awarding criterion published with a tender.
type AwardCriterion struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Weight      string `json:"weight,omitempty"`
}

// DocumentRef points at a tender document (pliego) hosted by the platform.
type DocumentRef struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
	Hash string `json:"hash,omitempty"`
}

// TenderData holds every field extracted from a feed entry. It is replaced
// wholesale on each sighting of the tender.
type TenderData struct {
	FolderCode              string              `json:"folder_code"`
	Title                   string              `json:"title"`
	StatusCode              string              `json:"status_code"`
	StatusDescription       string              `json:"status_description"`
	ContractTypeCode        string              `json:"contract_type_code"`
	ContractTypeDescription string              `json:"contract_type_description"`
	Subtype                 string              `json:"subtype,omitempty"`
	AmountExclTax           decimal.NullDecimal `json:"amount_excl_tax"`
	AmountInclTax           decimal.NullDecimal `json:"amount_incl_tax"`
	CPVCodes                []string            `json:"cpv_codes"`
	Region                  string              `json:"region,omitempty"`
	RegionCode              string              `json:"region_code,omitempty"`
	ProcedureCode           string              `json:"procedure_code,omitempty"`
	ProcedureDescription    string              `json:"procedure_description"`
	PublishedAt             *time.Time          `json:"published_at,omitempty"`
	DeadlineAt              *time.Time          `json:"deadline_at,omitempty"`
	DurationMonths          *int                `json:"duration_months,omitempty"`
	URL                     string              `json:"url,omitempty"`
	Description             string              `json:"description,omitempty"`
	AwardCriteria           []AwardCriterion    `json:"award_criteria"`
	Documents               []DocumentRef       `json:"documents"`
	AwardedAt               *time.Time          `json:"awarded_at,omitempty"`
	OfferCount              *int                `json:"offer_count,omitempty"`
	AwardeeName             string              `json:"awardee_name,omitempty"`
	AwardeeTaxID            string              `json:"awardee_tax_id,omitempty"`
	AwardAmount             decimal.NullDecimal `json:"award_amount"`
}

// Tender is a persisted procurement announcement keyed by its feed entry id.
type Tender struct {
	ID         uuid.UUID `json:"id"`
	externalID string

	TenderData

	AuthorityID *uuid.UUID            `json:"authority_id,omitempty"`
	Authority   *ContractingAuthority `json:"-"`
	RawXML      string                `json:"-"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// NewTender returns a tender bound to externalID. The id cannot change afterwards.
func NewTender(externalID string) *Tender {
	return &Tender{externalID: externalID}
}

func (t *Tender) ExternalID() string { return t.externalID }

// AttachAuthority links the tender to a, keeping the current link when a is nil.
func (t *Tender) AttachAuthority(a *ContractingAuthority) {
	if a == nil {
		return
	}
	t.Authority = a
	if a.ID != uuid.Nil {
		id := a.ID
		t.AuthorityID = &id
	}
}
