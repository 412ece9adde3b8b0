package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WatchlistEntry is a durable record of a source the scheduler re-checks
// periodically. Channel identity fields are discovered on the first
// successful check and refreshed afterwards.
type WatchlistEntry struct {
	ID              string     `json:"id" badgerhold:"key"`
	ChannelURL      string     `json:"channel_url"`
	ChannelID       string     `json:"channel_id,omitempty"`
	ChannelTitle    string     `json:"channel_title,omitempty"`
	IntervalMinutes int        `json:"interval_minutes,omitempty"` // 0 = scheduler default
	Enabled         bool       `json:"enabled"`
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty"`
	LastRunID       string     `json:"last_run_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewWatchlistID generates a unique watchlist entry ID with the "watch_" prefix
func NewWatchlistID() string {
	return "watch_" + uuid.New().String()
}

// Validate checks required fields on registration
func (e *WatchlistEntry) Validate() error {
	if strings.TrimSpace(e.ChannelURL) == "" {
		return fmt.Errorf("%w: channel_url is required", ErrInvalidRequest)
	}
	if e.IntervalMinutes < 0 {
		return fmt.Errorf("%w: interval_minutes cannot be negative", ErrInvalidRequest)
	}
	return nil
}

// Due reports whether the entry should be checked again, given its own
// interval (or the supplied default) and the current time.
func (e *WatchlistEntry) Due(defaultInterval time.Duration, now time.Time) bool {
	if e.LastCheckedAt == nil {
		return true
	}
	interval := defaultInterval
	if e.IntervalMinutes > 0 {
		interval = time.Duration(e.IntervalMinutes) * time.Minute
	}
	return now.Sub(*e.LastCheckedAt) >= interval
}
