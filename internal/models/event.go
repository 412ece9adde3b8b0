package models

import "time"

// RunEventType classifies events emitted during run execution.
// The set is closed: consumers switch over every constant below, so adding a
// kind means updating each switch rather than risking a silent string typo.
type RunEventType string

const (
	EventRunStart     RunEventType = "run_start"
	EventItemStart    RunEventType = "item_start"
	EventItemDone     RunEventType = "item_done"
	EventItemSkipped  RunEventType = "item_skipped"
	EventItemError    RunEventType = "item_error"
	EventRunProgress  RunEventType = "run_progress"
	EventRunDone      RunEventType = "run_done"
	EventRunError     RunEventType = "run_error"
	EventRunCancelled RunEventType = "run_cancelled"
	EventLog          RunEventType = "log"

	// Global stream envelopes emitted by the run manager
	EventRunCreated RunEventType = "run_created"
	EventRunUpdated RunEventType = "run_updated"
)

// RunEvent is one entry in a run's progress stream. Fields beyond Type and
// Timestamp are populated per kind: run_start carries channel identity,
// item_* carry video identity, terminal kinds carry stats or an error.
type RunEvent struct {
	Type      RunEventType `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	RunID     string       `json:"run_id,omitempty"`

	// run_start
	ChannelID      string `json:"channel_id,omitempty"`
	ChannelTitle   string `json:"channel_title,omitempty"`
	ChannelDirName string `json:"channel_dir_name,omitempty"`

	// item_start / item_done / item_skipped / item_error
	VideoID    string `json:"video_id,omitempty"`
	VideoTitle string `json:"video_title,omitempty"`

	// run_progress
	Completed int `json:"completed,omitempty"`
	Total     int `json:"total,omitempty"`

	// run_done / run_cancelled
	Stats *RunStats `json:"stats,omitempty"`

	// run_error / item_error
	Error string `json:"error,omitempty"`

	// log
	Message string `json:"message,omitempty"`

	// run_created / run_updated (global stream)
	Run *Run `json:"run,omitempty"`
}

// IsTerminal reports whether the event ends a run's execution
func (e RunEvent) IsTerminal() bool {
	switch e.Type {
	case EventRunDone, EventRunError, EventRunCancelled:
		return true
	case EventRunStart, EventItemStart, EventItemDone, EventItemSkipped,
		EventItemError, EventRunProgress, EventLog, EventRunCreated, EventRunUpdated:
		return false
	}
	return false
}

// NewRunEvent creates an event of the given kind stamped with the current time
func NewRunEvent(eventType RunEventType, runID string) RunEvent {
	return RunEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
	}
}
