package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/david/place-sync/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const alertCols = `id, user_id, name, cpv_prefixes, contract_types, regions,
	min_amount::text, max_amount::text, keywords, active, notify_email,
	last_notified_at, notification_count, created_at, updated_at`

func scanAlert(scan func(dest ...interface{}) error) (models.Alert, error) {
	var a models.Alert
	var minAmount, maxAmount, keywords *string

	err := scan(&a.ID, &a.UserID, &a.Name, &a.CPVPrefixes, &a.ContractTypes, &a.Regions,
		&minAmount, &maxAmount, &keywords, &a.Active, &a.NotifyEmail,
		&a.LastNotifiedAt, &a.NotificationCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.MinAmount = scanDecimal(minAmount)
	a.MaxAmount = scanDecimal(maxAmount)
	a.Keywords = deref(keywords)
	return a, nil
}

// ListActiveAlerts returns the alerts that want email notifications.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]models.Alert, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+alertCols+" FROM alerts WHERE active = true AND notify_email = true ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// GetAlert loads one alert. It returns (nil, nil) when none exists.
func (s *Store) GetAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx, "SELECT "+alertCols+" FROM alerts WHERE id = $1", id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	return &a, nil
}

// CreateAlert inserts a, assigning its id and timestamps.
func (s *Store) CreateAlert(ctx context.Context, a *models.Alert) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO alerts (user_id, name, cpv_prefixes, contract_types, regions,
			min_amount, max_amount, keywords, active, notify_email)
		VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7::text::numeric, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		a.UserID, a.Name, nonNilStrings(a.CPVPrefixes), nonNilStrings(a.ContractTypes), nonNilStrings(a.Regions),
		decimalParam(a.MinAmount), decimalParam(a.MaxAmount), nilIfEmpty(a.Keywords), a.Active, a.NotifyEmail,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// RecordNotifications persists the notification counters of alerts in one batch.
func (s *Store) RecordNotifications(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range alerts {
		batch.Queue(`UPDATE alerts SET notification_count = $2, last_notified_at = $3, updated_at = NOW() WHERE id = $1`,
			a.ID, a.NotificationCount, a.LastNotifiedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, a := range alerts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("record notification for alert %s: %w", a.ID, err)
		}
	}
	return nil
}
