package ingest

import (
	"context"

	"github.com/david/place-sync/internal/models"
)

// Store is the unit of work a sync run writes through. Reads observe writes
// made earlier in the same run, flushed or not.
type Store interface {
	// FindTender returns (nil, nil) when no tender has externalID.
	FindTender(ctx context.Context, externalID string) (*models.Tender, error)
	// FindAuthority returns (nil, nil) when no authority has taxID.
	FindAuthority(ctx context.Context, taxID string) (*models.ContractingAuthority, error)
	// SaveAuthority creates or updates a, assigning a.ID on creation.
	SaveAuthority(ctx context.Context, a *models.ContractingAuthority) error
	// SaveTender creates or updates t, assigning t.ID on creation.
	SaveTender(ctx context.Context, t *models.Tender) error
	// Flush commits everything saved since the previous flush.
	Flush(ctx context.Context) error
	// Usable reports whether the store can still accept writes.
	Usable() bool
	// Close discards unflushed work and releases the store.
	Close(ctx context.Context) error
}

// StoreOpener starts a new unit of work for one run.
type StoreOpener func(ctx context.Context) (Store, error)
