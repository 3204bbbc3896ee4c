package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/david/place-sync/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultBatchSize is the number of stored entries between flushes.
const DefaultBatchSize = 50

// Stats holds the counters of a sync run. Errors counts failed entries only: a
// failed flush is reported by Finish, so New+Updated+Errors never exceeds Total.
type Stats struct {
	Total   int `json:"total"`
	New     int `json:"new"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// EntryOutcome classifies what happened to one feed entry.
type EntryOutcome int

const (
	OutcomeSkipped EntryOutcome = iota
	OutcomeCreated
	OutcomeUpdated
	OutcomeFailed
)

func (o EntryOutcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "failed"
	}
}

// EntryResult is the outcome of processing one feed entry.
type EntryResult struct {
	ExternalID string
	Outcome    EntryOutcome
	Tender     *models.Tender
	Err        *EntryError
}

// BatchController stores feed entries one by one, flushing every BatchSize
// stored entries. A failing entry is counted and skipped unless the store has
// become unusable, which aborts the run.
type BatchController struct {
	Store     Store
	Extractor *Extractor
	Logger    *logrus.Logger
	BatchSize int
	// Limit caps the number of entries examined; zero means no cap.
	Limit      int
	OnProgress func(processed int)
	OnTender   func(t *models.Tender, created bool)

	resolver  *AuthorityResolver
	upserter  *Upserter
	stats     Stats
	processed int
	aborted   error
	flushErrs []error
}

// NewBatchController returns a controller for a single run. Its authority
// cache starts empty and lives as long as the controller.
func NewBatchController(store Store, extractor *Extractor, logger *logrus.Logger) *BatchController {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if extractor == nil {
		extractor = NewExtractor(time.UTC)
	}
	return &BatchController{
		Store:     store,
		Extractor: extractor,
		Logger:    logger,
		BatchSize: DefaultBatchSize,
		resolver:  NewAuthorityResolver(store, time.Now),
		upserter:  NewUpserter(store, time.Now),
	}
}

// Stats returns the counters accumulated so far.
func (b *BatchController) Stats() Stats { return b.stats }

// LimitReached reports whether Limit entries have been examined.
func (b *BatchController) LimitReached() bool {
	return b.Limit > 0 && b.stats.Total >= b.Limit
}

// Process stores entries in document order. It returns a non-nil error only
// when the run has to stop because the store broke.
func (b *BatchController) Process(ctx context.Context, entries []*xmlquery.Node) error {
	if b.aborted != nil {
		return b.aborted
	}
	batchSize := b.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for _, entry := range entries {
		if b.LimitReached() {
			return nil
		}
		b.stats.Total++

		res := b.processEntry(ctx, entry)
		switch res.Outcome {
		case OutcomeSkipped:
			continue
		case OutcomeFailed:
			b.stats.Errors++
			if b.recordFailure(res.Err) {
				return b.aborted
			}
			continue
		case OutcomeCreated:
			b.stats.New++
		case OutcomeUpdated:
			b.stats.Updated++
		}

		if b.OnTender != nil {
			b.OnTender(res.Tender, res.Outcome == OutcomeCreated)
		}

		b.processed++
		if b.processed%batchSize != 0 {
			continue
		}
		if err := b.Store.Flush(ctx); err != nil {
			if b.recordFailure(newEntryError(res.ExternalID, "flush", err)) {
				return b.aborted
			}
			b.flushErrs = append(b.flushErrs, fmt.Errorf("flush after %d tenders: %w", b.processed, err))
			continue
		}
		b.Logger.WithField("processed", b.processed).Infof("Processed %d tenders", b.processed)
		if b.OnProgress != nil {
			b.OnProgress(b.processed)
		}
	}
	return nil
}

// Finish commits the last partial batch if the store is still usable. Earlier
// flush failures are returned alongside the final one.
func (b *BatchController) Finish(ctx context.Context) (Stats, error) {
	errs := b.flushErrs
	if b.Store.Usable() {
		if err := b.Store.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("final flush: %w", err))
		}
	}
	if b.aborted != nil {
		return b.stats, b.aborted
	}
	return b.stats, errors.Join(errs...)
}

func (b *BatchController) processEntry(ctx context.Context, entry *xmlquery.Node) EntryResult {
	id := EntryID(entry)
	if id == "" {
		return EntryResult{Outcome: OutcomeSkipped}
	}

	authority, err := b.resolver.Resolve(ctx, entry)
	if err != nil {
		return b.failed(newEntryError(id, "authority", err))
	}

	data, err := b.Extractor.Extract(entry)
	if err != nil {
		return b.failed(newEntryError(id, "extract", err))
	}

	t, created, err := b.upserter.Upsert(ctx, id, data, authority, RawFragment(entry))
	if err != nil {
		return b.failed(newEntryError(id, "upsert", err))
	}

	outcome := OutcomeUpdated
	if created {
		outcome = OutcomeCreated
	}
	return EntryResult{ExternalID: id, Outcome: outcome, Tender: t}
}

func (b *BatchController) failed(e *EntryError) EntryResult {
	e.Fatal = !b.Store.Usable() || errors.Is(e.Err, ErrStoreBroken)
	return EntryResult{ExternalID: e.ExternalID, Outcome: OutcomeFailed, Err: e}
}

// recordFailure logs e and reports whether the run must stop.
func (b *BatchController) recordFailure(e *EntryError) bool {
	if !e.Fatal {
		e.Fatal = !b.Store.Usable()
	}
	b.Logger.WithFields(logrus.Fields{
		"external_id": e.ExternalID,
		"stage":       e.Stage,
		"location":    e.Location,
	}).WithError(e.Err).Warn("Failed to process entry")

	if !e.Fatal {
		return false
	}
	b.Logger.WithFields(logrus.Fields{
		"external_id": e.ExternalID,
		"total":       b.stats.Total,
		"errors":      b.stats.Errors,
	}).WithError(e.Err).Error("Store unusable, aborting sync")
	b.aborted = fmt.Errorf("%w: %v", ErrStoreBroken, e)
	return true
}
