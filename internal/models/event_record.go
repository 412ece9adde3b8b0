package models

import (
	"fmt"
	"time"
)

// EventRecord is the persisted form of one run event. Records are keyed so
// that a run's events sort in append order, which lets reload rebuild the
// in-memory log exactly as it was.
type EventRecord struct {
	Key       string    `badgerhold:"key" json:"key"`
	RunID     string    `badgerhold:"index" json:"run_id"`
	EventID   uint64    `json:"event_id"`
	Event     RunEvent  `json:"event"`
	CreatedAt time.Time `json:"created_at"`
}

// EventRecordKey builds the storage key for a run event. The zero-padded
// sequence keeps lexicographic order equal to numeric order.
func EventRecordKey(runID string, eventID uint64) string {
	return fmt.Sprintf("%s:%020d", runID, eventID)
}
