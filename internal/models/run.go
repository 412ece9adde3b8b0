package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a run
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusDone      RunStatus = "done"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunStats summarizes item outcomes once a run reaches a terminal state
type RunStats struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

// Run represents one execution of the transcription pipeline against a source.
// The run manager owns every instance; mutation outside its methods is a bug.
// Once Status reaches a terminal value the record is immutable except for
// best-effort preview enrichment.
type Run struct {
	ID              string     `json:"id" badgerhold:"key"`
	Status          RunStatus  `json:"status"`
	InputURL        string     `json:"input_url"`
	Force           bool       `json:"force"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	CancelRequested bool       `json:"cancel_requested,omitempty"`
	Error           string     `json:"error,omitempty"`
	CallbackURL     string     `json:"callback_url,omitempty"`

	// Overrides holds the sanitized per-run transcription settings. Only
	// allow-listed request fields ever land here.
	Overrides *TranscribeOptions `json:"overrides,omitempty"`

	// Enrichment fields populated as events arrive
	ChannelID      string    `json:"channel_id,omitempty"`
	ChannelTitle   string    `json:"channel_title,omitempty"`
	ChannelDirName string    `json:"channel_dir_name,omitempty"`
	PreviewVideoID string    `json:"preview_video_id,omitempty"`
	PreviewTitle   string    `json:"preview_title,omitempty"`
	Stats          *RunStats `json:"stats,omitempty"`
}

// NewRunID generates a unique run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// IsTerminal returns true if the run is in a terminal state
func (r *Run) IsTerminal() bool {
	return r.Status == RunStatusDone || r.Status == RunStatusError || r.Status == RunStatusCancelled
}

// Clone returns a copy of the run safe to hand to callers
func (r *Run) Clone() *Run {
	clone := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		clone.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		clone.FinishedAt = &t
	}
	if r.Stats != nil {
		s := *r.Stats
		clone.Stats = &s
	}
	if r.Overrides != nil {
		o := *r.Overrides
		o.Formats = append([]string(nil), r.Overrides.Formats...)
		clone.Overrides = &o
	}
	return &clone
}

// AudioInputPrefix marks a run created from an uploaded audio asset rather
// than an enumerable source URL.
const AudioInputPrefix = "audio:"

// RunRequest is the caller-supplied payload for creating a run.
// Exactly one of URL or AudioID must be present.
type RunRequest struct {
	URL         string                 `json:"url,omitempty" validate:"omitempty,url"`
	AudioID     string                 `json:"audio_id,omitempty"`
	Force       bool                   `json:"force,omitempty"`
	CallbackURL string                 `json:"callback_url,omitempty" validate:"omitempty,url"`
	Overrides   map[string]interface{} `json:"overrides,omitempty"`
}

// Validate enforces the exactly-one-of source/audio invariant
func (req *RunRequest) Validate() error {
	hasURL := strings.TrimSpace(req.URL) != ""
	hasAudio := strings.TrimSpace(req.AudioID) != ""
	if hasURL == hasAudio {
		return fmt.Errorf("%w: exactly one of url or audio_id is required", ErrInvalidRequest)
	}
	return nil
}

// InputURL returns the canonical input reference for the run record
func (req *RunRequest) InputURL() string {
	if req.AudioID != "" {
		return AudioInputPrefix + req.AudioID
	}
	return req.URL
}

// IsAudioInput reports whether an input URL references an uploaded audio asset
func IsAudioInput(inputURL string) bool {
	return strings.HasPrefix(inputURL, AudioInputPrefix)
}
