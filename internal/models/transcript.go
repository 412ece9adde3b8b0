package models

import "time"

// TranscriptSegment is one timed span of recognized speech
type TranscriptSegment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Transcript is the result of transcribing one media item
type Transcript struct {
	ItemID   string              `json:"item_id"`
	Language string              `json:"language,omitempty"`
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments,omitempty"`
	Duration time.Duration       `json:"duration,omitempty"`
}

// TranscribeOptions are the per-run knobs forwarded to the transcription
// provider. Only fields a caller may override live here; credentials and
// endpoints stay in service configuration.
type TranscribeOptions struct {
	Language string   `json:"language,omitempty"`
	Formats  []string `json:"formats,omitempty"`
}
