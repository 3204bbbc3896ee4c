package db

import (
	"context"
	"fmt"

	"github.com/david/place-sync/internal/models"
	"github.com/google/uuid"
)

// StartRun inserts a sync_runs row in the running state.
func (s *Store) StartRun(ctx context.Context, runID, feedID string) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO sync_runs (run_id, feed_id, status) VALUES ($1, $2, 'running')",
		id, feedID)
	return err
}

// FinishRun stores the final counters and status of a run.
func (s *Store) FinishRun(ctx context.Context, run models.SyncRun) error {
	id, err := uuid.Parse(run.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.RunID, err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE sync_runs SET
			status = $1,
			total = $2,
			new_count = $3,
			updated_count = $4,
			errors = $5,
			error = $6,
			completed_at = NOW()
		WHERE run_id = $7`,
		run.Status, run.Total, run.New, run.Updated, run.Errors, nilIfEmpty(run.Error), id,
	)
	return err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, feed_id, status, total, new_count, updated_count, errors, error, started_at, completed_at
		FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var r models.SyncRun
		var id uuid.UUID
		var runErr *string
		if err := rows.Scan(&id, &r.FeedID, &r.Status, &r.Total, &r.New, &r.Updated, &r.Errors,
			&runErr, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.RunID = id.String()
		r.Error = deref(runErr)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
