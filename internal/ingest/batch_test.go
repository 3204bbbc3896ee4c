package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/david/place-sync/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedEntries(t *testing.T, n int, tweak func(i int, f *fixture)) []*xmlquery.Node {
	t.Helper()
	fixtures := make([]fixture, 0, n)
	for i := 1; i <= n; i++ {
		f := fixture{
			ID:         tenderID(i),
			Title:      "Licitación",
			TaxID:      "P2807900B",
			Authority:  "Ayuntamiento de Madrid",
			AmountExcl: "1000.00",
			CPV:        []string{"72000000"},
		}
		if tweak != nil {
			tweak(i, &f)
		}
		fixtures = append(fixtures, f)
	}
	return parseEntries(t, feed("", fixtures...))
}

func newTestBatch(store Store) (*BatchController, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewBatchController(store, NewExtractor(nil), logger), hook
}

func TestBatchFlushCadence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	b, hook := newTestBatch(store)

	var progress []int
	b.OnProgress = func(n int) { progress = append(progress, n) }

	require.NoError(t, b.Process(ctx, numberedEntries(t, 120, nil)))
	assert.Equal(t, 2, store.flushes)

	stats, err := b.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, store.flushes)
	assert.Equal(t, Stats{Total: 120, New: 120}, stats)
	assert.Equal(t, []int{50, 100}, progress)
	assert.Equal(t, 1, store.findAuthority, "one authority lookup per run")

	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Processed 50 tenders")
	assert.Contains(t, messages, "Processed 100 tenders")
}

func TestBatchMalformedEntryIsCounted(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	b, hook := newTestBatch(store)

	entries := numberedEntries(t, 10, func(i int, f *fixture) {
		if i == 4 {
			f.AmountExcl = "no es un número"
		}
	})
	require.NoError(t, b.Process(ctx, entries))
	stats, err := b.Finish(ctx)

	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 10, New: 9, Errors: 1}, stats)
	assert.NotContains(t, store.tenders, tenderID(4))
	assert.Contains(t, store.tenders, tenderID(5))

	var warned *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = e
		}
	}
	require.NotNil(t, warned)
	assert.Equal(t, tenderID(4), warned.Data["external_id"])
	assert.Equal(t, "extract", warned.Data["stage"])
	assert.Contains(t, warned.Data["location"], "extractor.go:", "location points at the failing field")
}

func TestBatchSkipsEntriesWithoutID(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	b, _ := newTestBatch(store)
	b.BatchSize = 2

	entries := numberedEntries(t, 3, func(i int, f *fixture) {
		if i == 2 {
			f.ID = ""
		}
	})
	require.NoError(t, b.Process(ctx, entries))
	assert.Equal(t, 1, store.flushes, "skipped entries do not advance the flush cadence")

	stats, err := b.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, New: 2}, stats)
}

func TestBatchSecondRunUpdates(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	entries := numberedEntries(t, 5, nil)

	first, _ := newTestBatch(store)
	require.NoError(t, first.Process(ctx, entries))
	_, err := first.Finish(ctx)
	require.NoError(t, err)

	second, _ := newTestBatch(store)
	require.NoError(t, second.Process(ctx, entries))
	stats, err := second.Finish(ctx)
	require.NoError(t, err)

	assert.Equal(t, Stats{Total: 5, Updated: 5}, stats)
	assert.Len(t, store.tenders, 5)
}

func TestBatchDuplicateEntryInSameRun(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	b, _ := newTestBatch(store)

	entries := numberedEntries(t, 3, func(i int, f *fixture) {
		if i == 3 {
			f.ID = tenderID(1)
			f.Title = "Rectificada"
		}
	})
	require.NoError(t, b.Process(ctx, entries))
	stats, err := b.Finish(ctx)
	require.NoError(t, err)

	assert.Equal(t, Stats{Total: 3, New: 2, Updated: 1}, stats)
	assert.Equal(t, "Rectificada", store.tenders[tenderID(1)].Title)
}

func TestBatchLimit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	b, _ := newTestBatch(store)
	b.Limit = 30

	require.NoError(t, b.Process(ctx, numberedEntries(t, 120, nil)))
	assert.True(t, b.LimitReached())

	stats, err := b.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, stats.Total)
	assert.Len(t, store.tenders, 30)
}

func TestBatchOnTender(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	b, _ := newTestBatch(store)

	var seen []string
	b.OnTender = func(t *models.Tender, created bool) {
		seen = append(seen, t.ExternalID())
	}
	require.NoError(t, b.Process(ctx, numberedEntries(t, 3, nil)))
	assert.Equal(t, []string{tenderID(1), tenderID(2), tenderID(3)}, seen)
}

func TestBatchAbortsWhenStoreBreaks(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failFlush = errors.New("connection reset by peer")
	store.breakOnFlush = true
	b, _ := newTestBatch(store)
	b.BatchSize = 2

	err := b.Process(ctx, numberedEntries(t, 5, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreBroken))

	stats, err := b.Finish(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreBroken))
	assert.Equal(t, Stats{Total: 2, New: 2}, stats)
	assert.LessOrEqual(t, stats.New+stats.Updated+stats.Errors, stats.Total)

	assert.Error(t, b.Process(ctx, numberedEntries(t, 1, nil)), "an aborted controller stays aborted")
}

func TestBatchFlushFailureWithUsableStore(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failFlush = errors.New("deadlock detected")
	b, _ := newTestBatch(store)
	b.BatchSize = 2

	require.NoError(t, b.Process(ctx, numberedEntries(t, 4, nil)))
	assert.Equal(t, Stats{Total: 4, New: 4}, b.Stats(), "flushes are not entry errors")

	_, err := b.Finish(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush after 2 tenders")
	assert.Contains(t, err.Error(), "flush after 4 tenders")
	assert.Contains(t, err.Error(), "final flush")
}

func TestBatchUpsertFailureLocation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failSaveTender = map[string]error{tenderID(2): errors.New("value too long")}
	b, hook := newTestBatch(store)

	require.NoError(t, b.Process(ctx, numberedEntries(t, 3, nil)))
	assert.Equal(t, Stats{Total: 3, New: 2, Errors: 1}, b.Stats())

	var warned *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = e
		}
	}
	require.NotNil(t, warned)
	assert.Equal(t, "upsert", warned.Data["stage"])
	assert.Contains(t, warned.Data["location"], "upsert.go:")
}
