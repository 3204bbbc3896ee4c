package ingest

import (
	"context"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/david/place-sync/internal/models"
)

// AuthorityResolver maps the contracting party of an entry to a single
// ContractingAuthority per tax id for the lifetime of one run.
type AuthorityResolver struct {
	store Store
	cache map[string]*models.ContractingAuthority
	now   func() time.Time
}

func NewAuthorityResolver(store Store, now func() time.Time) *AuthorityResolver {
	if now == nil {
		now = time.Now
	}
	return &AuthorityResolver{
		store: store,
		cache: make(map[string]*models.ContractingAuthority),
		now:   now,
	}
}

// authorityIdentity reads the tax id and name of the contracting party. NIF/CIF
// identifiers are preferred; when either value is missing the first identifier
// of any scheme is used instead.
func authorityIdentity(entry *xmlquery.Node) (taxID, name string) {
	taxID = textAt(entry, xAuthorityTaxIDNIF)
	name = textAt(entry, xAuthorityName)
	if taxID == "" || name == "" {
		taxID = textAt(entry, xAuthorityTaxIDAny)
		name = textAt(entry, xAuthorityName)
	}
	return taxID, name
}

// Resolve returns the entry's authority, or nil when the entry has no usable
// tax id. A tax id already seen in this run returns the cached instance
// without touching the store.
func (r *AuthorityResolver) Resolve(ctx context.Context, entry *xmlquery.Node) (*models.ContractingAuthority, error) {
	taxID, name := authorityIdentity(entry)
	if taxID == "" {
		return nil, nil
	}
	if a, ok := r.cache[taxID]; ok {
		return a, nil
	}

	a, err := r.store.FindAuthority(ctx, taxID)
	if err != nil {
		return nil, errorf("find authority %s: %w", taxID, err)
	}
	if a == nil {
		a = &models.ContractingAuthority{
			TaxID: taxID,
			Name:  firstNonEmpty(name, unnamedAuthority),
		}
	}

	applyAuthorityFields(a, entry)
	a.UpdatedAt = r.now()

	if err := r.store.SaveAuthority(ctx, a); err != nil {
		return nil, errorf("save authority %s: %w", taxID, err)
	}
	r.cache[taxID] = a
	return a, nil
}

// Len reports how many authorities the run has resolved so far.
func (r *AuthorityResolver) Len() int { return len(r.cache) }

// applyAuthorityFields overwrites only the fields the entry actually carries.
func applyAuthorityFields(a *models.ContractingAuthority, entry *xmlquery.Node) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&a.DIR3, textAt(entry, xAuthorityDIR3))
	set(&a.PlatformID, textAt(entry, xAuthorityPlatformID))
	set(&a.AdministrationType, textAt(entry, xAuthorityAdminType))
	set(&a.ActivityCode, textAt(entry, xAuthorityActivity))
	set(&a.Street, textAt(entry, xAuthorityStreet))
	set(&a.PostalCode, textAt(entry, xAuthorityPostalCode))
	set(&a.City, textAt(entry, xAuthorityCity))
	set(&a.Province, textAt(entry, xAuthorityProvince))
	set(&a.Email, textAt(entry, xAuthorityEmail))
	set(&a.Phone, textAt(entry, xAuthorityPhone))
	set(&a.ProfileURL, textAt(entry, xAuthorityProfileURL))
}
