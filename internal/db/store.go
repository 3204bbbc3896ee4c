package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/david/place-sync/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// tenderCols is the column list shared by every tender query. Amounts are read
// as text to keep their exact decimal value.
const tenderCols = `id, external_id, folder_code, title, status_code, status_description,
	contract_type_code, contract_type_description, subtype,
	amount_excl_tax::text, amount_incl_tax::text, cpv_codes, region, region_code,
	procedure_code, procedure_description, published_at, deadline_at, duration_months,
	url, description, award_criteria, documents, awarded_at, offer_count,
	awardee_name, awardee_tax_id, award_amount::text, authority_id, raw_xml,
	created_at, updated_at`

func scanTender(scan func(dest ...interface{}) error) (*models.Tender, error) {
	var (
		id                                  uuid.UUID
		externalID                          string
		d                                   models.TenderData
		subtype, region, regionCode         *string
		procedureCode, procedureDescription *string
		amountExcl, amountIncl, awardAmount *string
		url, description, rawXML            *string
		awardeeName, awardeeTaxID           *string
		criteriaRaw, documentsRaw           []byte
		authorityID                         *uuid.UUID
		t                                   models.Tender
	)

	err := scan(
		&id, &externalID, &d.FolderCode, &d.Title, &d.StatusCode, &d.StatusDescription,
		&d.ContractTypeCode, &d.ContractTypeDescription, &subtype,
		&amountExcl, &amountIncl, &d.CPVCodes, &region, &regionCode,
		&procedureCode, &procedureDescription, &d.PublishedAt, &d.DeadlineAt, &d.DurationMonths,
		&url, &description, &criteriaRaw, &documentsRaw, &d.AwardedAt, &d.OfferCount,
		&awardeeName, &awardeeTaxID, &awardAmount, &authorityID, &rawXML,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Subtype = deref(subtype)
	d.Region = deref(region)
	d.RegionCode = deref(regionCode)
	d.ProcedureCode = deref(procedureCode)
	d.ProcedureDescription = deref(procedureDescription)
	d.URL = deref(url)
	d.Description = deref(description)
	d.AwardeeName = deref(awardeeName)
	d.AwardeeTaxID = deref(awardeeTaxID)
	d.AmountExclTax = scanDecimal(amountExcl)
	d.AmountInclTax = scanDecimal(amountIncl)
	d.AwardAmount = scanDecimal(awardAmount)
	if len(criteriaRaw) > 0 {
		if err := json.Unmarshal(criteriaRaw, &d.AwardCriteria); err != nil {
			return nil, fmt.Errorf("decode award criteria of %s: %w", externalID, err)
		}
	}
	if len(documentsRaw) > 0 {
		if err := json.Unmarshal(documentsRaw, &d.Documents); err != nil {
			return nil, fmt.Errorf("decode documents of %s: %w", externalID, err)
		}
	}

	tender := models.NewTender(externalID)
	tender.ID = id
	tender.TenderData = d
	tender.AuthorityID = authorityID
	tender.RawXML = deref(rawXML)
	tender.CreatedAt = t.CreatedAt
	tender.UpdatedAt = t.UpdatedAt
	return tender, nil
}

const authorityCols = `id, tax_id, name, dir3, platform_id, administration_type, activity_code,
	street, postal_code, city, province, email, phone, profile_url, created_at, updated_at`

func scanAuthority(scan func(dest ...interface{}) error) (*models.ContractingAuthority, error) {
	var a models.ContractingAuthority
	var dir3, platformID, adminType, activity, street, postal, city, province, email, phone, profile *string

	err := scan(&a.ID, &a.TaxID, &a.Name, &dir3, &platformID, &adminType, &activity,
		&street, &postal, &city, &province, &email, &phone, &profile, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.DIR3 = deref(dir3)
	a.PlatformID = deref(platformID)
	a.AdministrationType = deref(adminType)
	a.ActivityCode = deref(activity)
	a.Street = deref(street)
	a.PostalCode = deref(postal)
	a.City = deref(city)
	a.Province = deref(province)
	a.Email = deref(email)
	a.Phone = deref(phone)
	a.ProfileURL = deref(profile)
	return &a, nil
}

// GetTender loads a committed tender by its feed entry id. It returns
// (nil, nil) when none exists.
func (s *Store) GetTender(ctx context.Context, externalID string) (*models.Tender, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+tenderCols+" FROM tenders WHERE external_id = $1", externalID)
	t, err := scanTender(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tender %s: %w", externalID, err)
	}
	return t, nil
}

// nilIfEmpty maps "" to SQL NULL.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// decimalParam renders an amount for a $n::text::numeric placeholder.
func decimalParam(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	v := d.Decimal.String()
	return &v
}

func scanDecimal(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// jsonArray encodes a slice for a JSONB column, writing [] for nil.
func jsonArray(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte("[]"), nil
	}
	return b, nil
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
