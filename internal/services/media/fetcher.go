package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/models"
)

// Fetcher extracts the audio track of one item with yt-dlp. Uploaded audio
// assets skip the downloader and resolve to their local path.
type Fetcher struct {
	config *common.MediaConfig
	logger arbor.ILogger
}

// NewFetcher creates the yt-dlp audio fetcher
func NewFetcher(config *common.MediaConfig, logger arbor.ILogger) *Fetcher {
	return &Fetcher{
		config: config,
		logger: logger,
	}
}

// FetchAudio downloads the item's audio into destDir and returns the file
// path. For "audio:" inputs it just resolves the uploaded asset.
func (f *Fetcher) FetchAudio(ctx context.Context, itemURL, destDir string) (string, error) {
	if models.IsAudioInput(itemURL) {
		return f.resolveUpload(itemURL)
	}

	if f.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.FetchTimeout)
		defer cancel()
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create audio directory: %w", err)
	}

	outTemplate := filepath.Join(destDir, "%(id)s.%(ext)s")
	args := []string{
		"-x",
		"--audio-format", "mp3",
		"--no-playlist",
		"-o", outTemplate,
		"--print", "after_move:filepath",
		"--no-simulate",
		itemURL,
	}

	// Capture the printed filepath via Output-style run
	path, err := f.runAndCapture(ctx, args)
	if err != nil {
		return "", fmt.Errorf("failed to fetch audio for %s: %w", itemURL, err)
	}
	return path, nil
}

// runAndCapture runs yt-dlp and returns the final printed file path
func (f *Fetcher) runAndCapture(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, f.config.DownloaderPath, args...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("downloader failed: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	path := strings.TrimSpace(lines[len(lines)-1])
	if path == "" {
		return "", fmt.Errorf("downloader reported no output file")
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("downloaded audio missing: %w", err)
	}
	return path, nil
}

// resolveUpload maps an "audio:<id>" input to its uploaded file
func (f *Fetcher) resolveUpload(input string) (string, error) {
	id := strings.TrimPrefix(input, models.AudioInputPrefix)
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid audio asset ID: %q", id)
	}

	pattern := filepath.Join(f.config.WorkDir, "uploads", id+".*")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("audio asset not found: %s", id)
	}
	return matches[0], nil
}
