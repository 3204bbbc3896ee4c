package models

import "time"

// SyncRun is the audit record of one sync run.
type SyncRun struct {
	RunID       string     `json:"run_id"`
	FeedID      string     `json:"feed_id"`
	Status      string     `json:"status"` // running, completed, failed
	Total       int        `json:"total"`
	New         int        `json:"new"`
	Updated     int        `json:"updated"`
	Errors      int        `json:"errors"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
