package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/models"
)

// Enumerator lists sources with yt-dlp's flat playlist mode. It is the only
// place the catalog layer touches the downloader binary.
type Enumerator struct {
	config *common.MediaConfig
	logger arbor.ILogger
	runCmd func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewEnumerator creates the yt-dlp source enumerator
func NewEnumerator(config *common.MediaConfig, logger arbor.ILogger) *Enumerator {
	return &Enumerator{
		config: config,
		logger: logger,
		runCmd: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// flatPlaylist mirrors the fields of yt-dlp -J --flat-playlist output that
// the catalog needs
type flatPlaylist struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Channel  string `json:"channel"`
	Uploader string `json:"uploader"`
	Entries  []struct {
		ID       string  `json:"id"`
		Title    string  `json:"title"`
		URL      string  `json:"url"`
		Duration float64 `json:"duration"`
	} `json:"entries"`
	// Single-video fields when the URL is not a playlist
	Duration   float64 `json:"duration"`
	WebpageURL string  `json:"webpage_url"`
}

// Enumerate lists a source newest-first. A positive limit fetches only that
// many leading entries; zero or negative fetches everything.
func (e *Enumerator) Enumerate(ctx context.Context, sourceURL string, limit int) (*models.Catalog, error) {
	if e.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.FetchTimeout)
		defer cancel()
	}

	args := []string{"--flat-playlist", "-J"}
	if limit > 0 {
		args = append(args, "--playlist-end", fmt.Sprintf("%d", limit))
	}
	args = append(args, sourceURL)

	started := time.Now()
	output, err := e.runCmd(ctx, e.config.DownloaderPath, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s: %w", sourceURL, err)
	}

	var listing flatPlaylist
	if err := json.Unmarshal(output, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse enumeration output: %w", err)
	}

	catalog := &models.Catalog{
		SourceID:    listing.ID,
		SourceTitle: listing.Title,
	}
	if catalog.SourceTitle == "" {
		catalog.SourceTitle = listing.Channel
	}
	if catalog.SourceTitle == "" {
		catalog.SourceTitle = listing.Uploader
	}

	if len(listing.Entries) == 0 && listing.ID != "" && listing.WebpageURL != "" {
		// Single video: the listing itself is the only item
		catalog.Items = []models.CatalogItem{{
			ID:       listing.ID,
			Title:    listing.Title,
			Duration: int(listing.Duration),
			URL:      listing.WebpageURL,
		}}
	} else {
		catalog.Items = make([]models.CatalogItem, 0, len(listing.Entries))
		for _, entry := range listing.Entries {
			if entry.ID == "" {
				continue
			}
			catalog.Items = append(catalog.Items, models.CatalogItem{
				ID:       entry.ID,
				Title:    entry.Title,
				Duration: int(entry.Duration),
				URL:      entry.URL,
			})
		}
	}

	e.logger.Debug().
		Str("source", sourceURL).
		Int("items", len(catalog.Items)).
		Int("limit", limit).
		Dur("took", time.Since(started)).
		Msg("Source enumerated")

	return catalog, nil
}
