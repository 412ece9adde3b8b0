package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/ternarybob/scribo/internal/storage"
)

// Executor drives one run end to end: plan the source, fetch each item's
// audio, transcribe it, write the output files, and archive the item. All
// progress flows through the event sink; the executor never touches run
// records or buffers directly.
type Executor struct {
	planner     interfaces.Planner
	fetcher     interfaces.Fetcher
	transcriber interfaces.Transcriber
	writer      *storage.Writer
	sink        interfaces.EventSink
	runs        *common.RunsConfig
	media       *common.MediaConfig
	logger      arbor.ILogger
}

// NewExecutor creates a run executor
func NewExecutor(planner interfaces.Planner, fetcher interfaces.Fetcher, transcriber interfaces.Transcriber,
	writer *storage.Writer, runsConfig *common.RunsConfig, mediaConfig *common.MediaConfig, logger arbor.ILogger) *Executor {
	return &Executor{
		planner:     planner,
		fetcher:     fetcher,
		transcriber: transcriber,
		writer:      writer,
		runs:        runsConfig,
		media:       mediaConfig,
		logger:      logger,
	}
}

// SetSink wires the event sink. The run manager and the executor reference
// each other, so the sink is attached after both exist.
func (e *Executor) SetSink(sink interfaces.EventSink) {
	e.sink = sink
}

// Execute blocks until the run finishes or ctx is cancelled. It always emits
// a terminal event unless it returns an error.
func (e *Executor) Execute(ctx context.Context, run *models.Run) error {
	if e.sink == nil {
		return fmt.Errorf("executor has no event sink")
	}

	var plan *models.RunPlan
	if models.IsAudioInput(run.InputURL) {
		plan = audioAssetPlan(run.InputURL)
	} else {
		var err error
		plan, err = e.planner.Plan(ctx, run.InputURL, run.Force)
		if err != nil {
			return fmt.Errorf("failed to plan run: %w", err)
		}
	}

	start := models.NewRunEvent(models.EventRunStart, run.ID)
	start.ChannelID = plan.SourceID
	start.ChannelTitle = plan.SourceTitle
	start.ChannelDirName = plan.DirName
	e.sink.Emit(start)

	if plan.FullyProcessed() {
		done := models.NewRunEvent(models.EventRunDone, run.ID)
		done.Stats = &models.RunStats{Skipped: plan.Skipped, Total: plan.Total}
		e.sink.Emit(done)
		return nil
	}

	stats := e.processItems(ctx, run, plan)
	stats.Skipped = plan.Skipped
	stats.Total = plan.Total

	switch {
	case ctx.Err() != nil:
		cancelled := models.NewRunEvent(models.EventRunCancelled, run.ID)
		cancelled.Stats = stats
		e.sink.Emit(cancelled)
	case stats.Succeeded == 0 && stats.Failed > 0:
		// Every item failing usually means the cached listing went stale;
		// the next refresh of this source re-enumerates from scratch
		if plan.SourceKind != models.SourceKindAudio {
			e.planner.InvalidateSource(ctx, plan.SourceID)
		}
		failed := models.NewRunEvent(models.EventRunError, run.ID)
		failed.Error = fmt.Sprintf("all %d items failed", stats.Failed)
		failed.Stats = stats
		e.sink.Emit(failed)
	default:
		done := models.NewRunEvent(models.EventRunDone, run.ID)
		done.Stats = stats
		e.sink.Emit(done)
	}
	return nil
}

// audioAssetPlan builds a single-item plan for an uploaded audio asset.
// Uploads bypass enumeration and the processed-item archive.
func audioAssetPlan(inputURL string) *models.RunPlan {
	id := strings.TrimPrefix(inputURL, models.AudioInputPrefix)
	return &models.RunPlan{
		SourceID:    inputURL,
		SourceTitle: id,
		SourceKind:  models.SourceKindAudio,
		DirName:     "uploads",
		NewItems:    []models.CatalogItem{{ID: id, Title: id, URL: inputURL}},
		Total:       1,
	}
}

// processItems works through the plan's new items with up to ItemConcurrency
// workers. Cancellation stops the feed; items already handed to a worker run
// to completion of their current step.
func (e *Executor) processItems(ctx context.Context, run *models.Run, plan *models.RunPlan) *models.RunStats {
	workers := e.runs.ItemConcurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(plan.NewItems) {
		workers = len(plan.NewItems)
	}

	var (
		mu        sync.Mutex
		stats     models.RunStats
		completed int
	)
	items := make(chan models.CatalogItem)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		common.SafeGo(e.logger, "run-item-worker", func() {
			defer wg.Done()
			for item := range items {
				err := e.processItem(ctx, run, plan, item)

				mu.Lock()
				if err != nil {
					stats.Failed++
				} else {
					stats.Succeeded++
				}
				completed++
				progressCount := completed
				mu.Unlock()

				progress := models.NewRunEvent(models.EventRunProgress, run.ID)
				progress.Completed = progressCount
				progress.Total = len(plan.NewItems)
				e.sink.Emit(progress)
			}
		})
	}

feed:
	for _, item := range plan.NewItems {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case items <- item:
		}
	}
	close(items)
	wg.Wait()

	return &stats
}

func (e *Executor) processItem(ctx context.Context, run *models.Run, plan *models.RunPlan, item models.CatalogItem) error {
	start := models.NewRunEvent(models.EventItemStart, run.ID)
	start.VideoID = item.ID
	start.VideoTitle = item.Title
	e.sink.Emit(start)

	if err := e.transcribeItem(ctx, run, plan, item); err != nil {
		if ctx.Err() != nil {
			// Aborted mid-item; the run-level cancelled event covers it
			return err
		}
		e.logger.Warn().Err(err).
			Str("run_id", run.ID).
			Str("video_id", item.ID).
			Msg("Item processing failed")

		itemErr := models.NewRunEvent(models.EventItemError, run.ID)
		itemErr.VideoID = item.ID
		itemErr.VideoTitle = item.Title
		itemErr.Error = err.Error()
		e.sink.Emit(itemErr)
		return err
	}

	done := models.NewRunEvent(models.EventItemDone, run.ID)
	done.VideoID = item.ID
	done.VideoTitle = item.Title
	e.sink.Emit(done)
	return nil
}

func (e *Executor) transcribeItem(ctx context.Context, run *models.Run, plan *models.RunPlan, item models.CatalogItem) error {
	itemURL := item.URL
	if itemURL == "" {
		itemURL = "https://www.youtube.com/watch?v=" + item.ID
	}

	audioDir := filepath.Join(e.media.WorkDir, run.ID)
	audioPath, err := e.fetcher.FetchAudio(ctx, itemURL, audioDir)
	if err != nil {
		return fmt.Errorf("audio fetch failed: %w", err)
	}
	if !models.IsAudioInput(itemURL) {
		// Downloaded audio is an intermediate; uploads stay where they are
		defer os.Remove(audioPath)
	}

	var opts models.TranscribeOptions
	if run.Overrides != nil {
		opts = *run.Overrides
	}
	transcript, err := e.transcriber.Transcribe(ctx, audioPath, opts)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	transcript.ItemID = item.ID

	formats := e.runs.OutputFormats
	if len(opts.Formats) > 0 {
		formats = opts.Formats
	}
	outDir := filepath.Join(e.runs.OutputDir, plan.DirName)
	if err := writeOutputs(outDir, item, transcript, formats); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}

	if plan.SourceKind != models.SourceKindAudio {
		e.writer.MarkProcessed(plan.SourceID, item.ID)
	}
	return nil
}
