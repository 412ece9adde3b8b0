package interfaces

import (
	"context"

	"github.com/ternarybob/scribo/internal/models"
)

// Enumerator lists the items of a media source. A limit above zero asks for
// only the newest entries; zero or negative means the full listing.
type Enumerator interface {
	Enumerate(ctx context.Context, sourceURL string, limit int) (*models.Catalog, error)
}

// Fetcher downloads the audio track of one media item and returns the local
// file path.
type Fetcher interface {
	FetchAudio(ctx context.Context, itemURL, destDir string) (string, error)
}

// Transcriber converts one audio file into a transcript
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts models.TranscribeOptions) (*models.Transcript, error)
}
