package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/david/place-sync/internal/db"
	"github.com/david/place-sync/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

var xFeedRoot = mustCompile("/atom:feed")

// Pipeline runs sync runs: fetch the feed, store every entry, report stats.
type Pipeline struct {
	OpenStore StoreOpener
	Runs      RunRecorder
	// Fetcher overrides the transport configured for the feed.
	Fetcher   Fetcher
	Extractor *Extractor
	Logger    *logrus.Logger
	BatchSize int
	Hooks     []RunHook
}

// NewPipeline wires a pipeline to PostgreSQL.
func NewPipeline(pool *pgxpool.Pool, logger *logrus.Logger, loc *time.Location) *Pipeline {
	store := db.NewStore(pool)
	return &Pipeline{
		OpenStore: func(ctx context.Context) (Store, error) {
			s, err := store.Begin(ctx)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Runs:      runRecorder{store: store},
		Extractor: NewExtractor(loc),
		Logger:    logger,
		BatchSize: DefaultBatchSize,
	}
}

// SyncFeed runs one sync of feed. On failure the returned error is a
// *SyncError carrying the counters reached before the abort.
func (p *Pipeline) SyncFeed(ctx context.Context, feed FeedConfig, opts SyncOptions) (stats Stats, err error) {
	logger := p.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	runID := uuid.NewString()
	log := logger.WithFields(logrus.Fields{"feed": feed.ID, "run_id": runID})
	log.WithField("url", feed.URL).Info("Starting PLACE feed sync")

	start := time.Now()
	recorded := false
	if p.Runs != nil {
		if err := p.Runs.StartRun(ctx, runID, feed.ID); err != nil {
			log.WithError(err).Warn("Failed to create sync run")
		} else {
			recorded = true
		}
	}

	defer func() {
		final := stats
		var syncErr *SyncError
		if errors.As(err, &syncErr) {
			final = syncErr.Stats
		}
		if recorded {
			if execErr := p.Runs.FinishRun(context.WithoutCancel(ctx), runID, final, err); execErr != nil {
				log.WithError(execErr).Warn("Failed to update sync run")
			}
		}

		fields := logrus.Fields{
			"total":    final.Total,
			"new":      final.New,
			"updated":  final.Updated,
			"errors":   final.Errors,
			"duration": time.Since(start).Round(time.Millisecond).String(),
		}
		if err != nil {
			log.WithFields(fields).WithError(err).Error("PLACE feed sync failed")
			return
		}
		log.WithFields(fields).Info("PLACE feed sync completed")
	}()

	fail := func(partial Stats, cause error) (Stats, error) {
		return Stats{}, &SyncError{Feed: feed.ID, Stats: partial, Err: cause}
	}

	hooks := p.startHooks(ctx, runID, log)

	store, err := p.OpenStore(ctx)
	if err != nil {
		return fail(Stats{}, fmt.Errorf("%w: open store: %v", ErrStoreBroken, err))
	}
	defer store.Close(context.WithoutCancel(ctx))

	batch := NewBatchController(store, p.Extractor, logger)
	if p.BatchSize > 0 {
		batch.BatchSize = p.BatchSize
	}
	batch.Limit = opts.Limit
	if len(hooks) > 0 {
		batch.OnTender = func(t *models.Tender, created bool) {
			for _, h := range hooks {
				h.OnTender(t, created)
			}
		}
	}

	maxPages := feed.MaxPages
	if opts.MaxPages > 0 {
		maxPages = opts.MaxPages
	}
	if maxPages <= 0 {
		maxPages = 1
	}

	fetcher := p.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(feed.Fetch, logger)
	}

	pageURL := feed.URL
	for page := 1; page <= maxPages && pageURL != ""; page++ {
		doc, fetchErr := p.fetchDocument(ctx, fetcher, feed, pageURL)
		if fetchErr != nil {
			// Keep whatever earlier pages stored; upserts are idempotent.
			partial, _ := batch.Finish(ctx)
			return fail(partial, fetchErr)
		}

		entries := xmlquery.QuerySelectorAll(doc, xEntries)
		log.WithFields(logrus.Fields{"page": page, "entries": len(entries)}).Debug("Feed page parsed")

		if procErr := batch.Process(ctx, entries); procErr != nil || batch.LimitReached() {
			break
		}
		pageURL = nextPage(doc, pageURL)
	}

	stats, err = batch.Finish(ctx)
	if err != nil {
		return fail(stats, err)
	}

	for _, h := range hooks {
		if hookErr := h.AfterRun(ctx, runID, stats); hookErr != nil {
			log.WithError(hookErr).Warn("Run hook failed")
		}
	}
	return stats, nil
}

func (p *Pipeline) startHooks(ctx context.Context, runID string, log *logrus.Entry) []RunHook {
	var active []RunHook
	for _, h := range p.Hooks {
		if err := h.BeforeRun(ctx, runID); err != nil {
			log.WithError(err).Warn("Run hook disabled for this run")
			continue
		}
		active = append(active, h)
	}
	return active
}

// fetchDocument downloads and parses one feed page. The feed timeout covers
// both the request and reading the body.
func (p *Pipeline) fetchDocument(ctx context.Context, fetcher Fetcher, feed FeedConfig, pageURL string) (*xmlquery.Node, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, feed.Fetch.Timeout())
	defer cancel()

	doc, err := fetcher.Fetch(fetchCtx, pageURL)
	if err != nil {
		if !errors.Is(err, ErrFetch) {
			err = fmt.Errorf("%w: %v", ErrFetch, err)
		}
		return nil, err
	}
	defer doc.Body.Close()

	root, err := xmlquery.Parse(doc.Body)
	if err != nil {
		if fetchCtx.Err() != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrFetch, pageURL, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFeed, pageURL, err)
	}
	if xmlquery.QuerySelector(root, xFeedRoot) == nil {
		return nil, fmt.Errorf("%w: %s: document root is not an ATOM feed", ErrMalformedFeed, pageURL)
	}
	return root, nil
}

// nextPage resolves the feed's rel="next" link against the current page URL.
// It returns "" when there is no further page.
func nextPage(doc *xmlquery.Node, current string) string {
	link := xmlquery.QuerySelector(doc, xNextLink)
	if link == nil {
		return ""
	}
	href := link.SelectAttr("href")
	if href == "" {
		return ""
	}
	base, err := url.Parse(current)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	next := base.ResolveReference(ref).String()
	if next == current {
		return ""
	}
	return next
}

// runRecorder stores run audit records in sync_runs.
type runRecorder struct {
	store *db.Store
}

func (r runRecorder) StartRun(ctx context.Context, runID, feedID string) error {
	return r.store.StartRun(ctx, runID, feedID)
}

func (r runRecorder) FinishRun(ctx context.Context, runID string, stats Stats, runErr error) error {
	run := models.SyncRun{
		RunID:   runID,
		Status:  "completed",
		Total:   stats.Total,
		New:     stats.New,
		Updated: stats.Updated,
		Errors:  stats.Errors,
	}
	if runErr != nil {
		run.Status = "failed"
		run.Error = runErr.Error()
	}
	return r.store.FinishRun(ctx, run)
}
