package ingest

import (
	"context"
	"io"
	"time"

	"github.com/david/place-sync/internal/models"
)

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// RunRecorder persists the audit record of a sync run.
type RunRecorder interface {
	StartRun(ctx context.Context, runID, feedID string) error
	FinishRun(ctx context.Context, runID string, stats Stats, runErr error) error
}

// RunHook observes a sync run. All methods are called from the sync goroutine.
type RunHook interface {
	// BeforeRun prepares the hook; an error disables it for this run.
	BeforeRun(ctx context.Context, runID string) error
	// OnTender is called once for every tender stored by the run.
	OnTender(t *models.Tender, created bool)
	// AfterRun is called once the run completed successfully.
	AfterRun(ctx context.Context, runID string, stats Stats) error
}

// SyncOptions tunes a single run.
type SyncOptions struct {
	// Limit caps the number of feed entries examined; zero means no cap.
	Limit int
	// MaxPages overrides the feed's configured page count when positive.
	MaxPages int
}
