package ingest

import (
	"context"
	"time"

	"github.com/david/place-sync/internal/models"
)

// Upserter writes extracted tender data keyed by the feed entry id.
type Upserter struct {
	Store Store
	Now   func() time.Time
}

func NewUpserter(store Store, now func() time.Time) *Upserter {
	if now == nil {
		now = time.Now
	}
	return &Upserter{Store: store, Now: now}
}

// Upsert replaces every extracted field of the tender identified by externalID,
// creating it on first sighting. created reports whether the tender is new.
func (u *Upserter) Upsert(ctx context.Context, externalID string, data models.TenderData, authority *models.ContractingAuthority, raw string) (t *models.Tender, created bool, err error) {
	t, err = u.Store.FindTender(ctx, externalID)
	if err != nil {
		return nil, false, errorf("find tender: %w", err)
	}
	if t == nil {
		t = models.NewTender(externalID)
		created = true
	}

	data.CPVCodes = uniqueCodes(data.CPVCodes)
	t.TenderData = data
	t.AttachAuthority(authority)
	t.UpdatedAt = u.Now()
	t.RawXML = raw

	if err := u.Store.SaveTender(ctx, t); err != nil {
		return nil, false, errorf("save tender: %w", err)
	}
	return t, created, nil
}
