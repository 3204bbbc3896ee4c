package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Alert is a user's saved tender filter. Empty lists and unset bounds do not restrict.
type Alert struct {
	ID                uuid.UUID           `json:"id"`
	UserID            uuid.UUID           `json:"user_id"`
	Name              string              `json:"name"`
	CPVPrefixes       []string            `json:"cpv_prefixes"`
	ContractTypes     []string            `json:"contract_types"`
	Regions           []string            `json:"regions"`
	MinAmount         decimal.NullDecimal `json:"min_amount"`
	MaxAmount         decimal.NullDecimal `json:"max_amount"`
	Keywords          string              `json:"keywords,omitempty"`
	Active            bool                `json:"active"`
	NotifyEmail       bool                `json:"notify_email"`
	LastNotifiedAt    *time.Time          `json:"last_notified_at,omitempty"`
	NotificationCount int                 `json:"notification_count"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// RecordNotification bumps the lifetime counter and stamps the notification time.
func (a *Alert) RecordNotification(at time.Time) {
	a.NotificationCount++
	a.LastNotifiedAt = &at
}
