package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/ternarybob/scribo/internal/storage"
)

// stubPlanner returns a fixed plan
type stubPlanner struct {
	plan        *models.RunPlan
	err         error
	calls       int
	invalidated []string
}

func (p *stubPlanner) Plan(ctx context.Context, sourceURL string, force bool) (*models.RunPlan, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.plan, nil
}

func (p *stubPlanner) InvalidateSource(ctx context.Context, sourceID string) {
	p.invalidated = append(p.invalidated, sourceID)
}

// stubFetcher writes a placeholder audio file into destDir
type stubFetcher struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
	onFetch func(itemURL string)
}

func (f *stubFetcher) FetchAudio(ctx context.Context, itemURL, destDir string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, itemURL)
	f.mu.Unlock()
	if f.onFetch != nil {
		f.onFetch(itemURL)
	}
	if err, ok := f.failFor[itemURL]; ok {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	name := strings.NewReplacer("/", "_", ":", "_").Replace(itemURL)
	path := filepath.Join(destDir, name+".mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// stubTranscriber returns a canned transcript per audio file
type stubTranscriber struct {
	mu     sync.Mutex
	opts   []models.TranscribeOptions
	failIf func(audioPath string) error
	calls  int
}

func (t *stubTranscriber) Transcribe(ctx context.Context, audioPath string, opts models.TranscribeOptions) (*models.Transcript, error) {
	t.mu.Lock()
	t.calls++
	t.opts = append(t.opts, opts)
	t.mu.Unlock()
	if t.failIf != nil {
		if err := t.failIf(audioPath); err != nil {
			return nil, err
		}
	}
	return &models.Transcript{
		Text:     "hello world",
		Language: "en",
		Segments: []models.TranscriptSegment{
			{Start: 0, End: 2 * time.Second, Text: "hello"},
			{Start: 2 * time.Second, End: 4 * time.Second, Text: "world"},
		},
	}, nil
}

// recordingSink collects events in order
type recordingSink struct {
	mu     sync.Mutex
	events []models.RunEvent
}

func (s *recordingSink) Emit(event models.RunEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) byType(eventType models.RunEventType) []models.RunEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RunEvent
	for _, event := range s.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// memArchiveStorage is an in-memory ArchiveStorage
type memArchiveStorage struct {
	mu    sync.Mutex
	items map[string]map[string]struct{}
}

func newMemArchiveStorage() *memArchiveStorage {
	return &memArchiveStorage{items: make(map[string]map[string]struct{})}
}

func (m *memArchiveStorage) MarkProcessed(ctx context.Context, sourceID, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items[sourceID] == nil {
		m.items[sourceID] = make(map[string]struct{})
	}
	m.items[sourceID][itemID] = struct{}{}
	return nil
}

func (m *memArchiveStorage) IsProcessed(ctx context.Context, sourceID, itemID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[sourceID][itemID]
	return ok, nil
}

func (m *memArchiveStorage) ProcessedItems(ctx context.Context, sourceID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.items[sourceID]))
	for id := range m.items[sourceID] {
		out[id] = struct{}{}
	}
	return out, nil
}

// memStore backs a storage.Writer; only the archive is exercised here
type memStore struct {
	archive *memArchiveStorage
}

func (m *memStore) RunStorage() interfaces.RunStorage             { return nil }
func (m *memStore) EventLogStorage() interfaces.EventLogStorage   { return nil }
func (m *memStore) WatchlistStorage() interfaces.WatchlistStorage { return nil }
func (m *memStore) CatalogStorage() interfaces.CatalogStorage     { return nil }
func (m *memStore) ArchiveStorage() interfaces.ArchiveStorage     { return m.archive }
func (m *memStore) Close() error                                  { return nil }

type fixture struct {
	executor    *Executor
	planner     *stubPlanner
	fetcher     *stubFetcher
	transcriber *stubTranscriber
	sink        *recordingSink
	archive     *memArchiveStorage
	writer      *storage.Writer
	outputDir   string
}

func newFixture(t *testing.T, plan *models.RunPlan, concurrency int) *fixture {
	t.Helper()
	logger := common.GetLogger()
	archive := newMemArchiveStorage()
	writer := storage.NewWriter(&memStore{archive: archive}, logger)
	t.Cleanup(writer.Stop)

	outputDir := t.TempDir()
	runsConfig := &common.RunsConfig{
		OutputDir:       outputDir,
		OutputFormats:   []string{"text", "markdown"},
		ItemConcurrency: concurrency,
	}
	mediaConfig := &common.MediaConfig{WorkDir: t.TempDir()}

	f := &fixture{
		planner:     &stubPlanner{plan: plan},
		fetcher:     &stubFetcher{},
		transcriber: &stubTranscriber{},
		sink:        &recordingSink{},
		archive:     archive,
		writer:      writer,
		outputDir:   outputDir,
	}
	f.executor = NewExecutor(f.planner, f.fetcher, f.transcriber, writer, runsConfig, mediaConfig, logger)
	f.executor.SetSink(f.sink)
	return f
}

func channelPlan(items ...models.CatalogItem) *models.RunPlan {
	return &models.RunPlan{
		SourceID:    "UC123",
		SourceTitle: "Test Channel",
		SourceKind:  models.SourceKindChannel,
		DirName:     "Test_Channel",
		NewItems:    items,
		Total:       len(items),
	}
}

func testRun(inputURL string) *models.Run {
	return &models.Run{
		ID:       models.NewRunID(),
		Status:   models.RunStatusRunning,
		InputURL: inputURL,
	}
}

func TestExecuteTranscribesNewItems(t *testing.T) {
	plan := channelPlan(
		models.CatalogItem{ID: "vid1", Title: "First", URL: "https://www.youtube.com/watch?v=vid1"},
		models.CatalogItem{ID: "vid2", Title: "Second", URL: "https://www.youtube.com/watch?v=vid2"},
	)
	f := newFixture(t, plan, 1)
	run := testRun("https://www.youtube.com/@test")

	err := f.executor.Execute(context.Background(), run)
	require.NoError(t, err)

	starts := f.sink.byType(models.EventRunStart)
	require.Len(t, starts, 1)
	assert.Equal(t, "UC123", starts[0].ChannelID)
	assert.Equal(t, "Test Channel", starts[0].ChannelTitle)
	assert.Equal(t, "Test_Channel", starts[0].ChannelDirName)

	assert.Len(t, f.sink.byType(models.EventItemStart), 2)
	assert.Len(t, f.sink.byType(models.EventItemDone), 2)
	assert.Empty(t, f.sink.byType(models.EventItemError))

	progress := f.sink.byType(models.EventRunProgress)
	require.Len(t, progress, 2)
	assert.Equal(t, 2, progress[1].Completed)
	assert.Equal(t, 2, progress[1].Total)

	done := f.sink.byType(models.EventRunDone)
	require.Len(t, done, 1)
	require.NotNil(t, done[0].Stats)
	assert.Equal(t, 2, done[0].Stats.Succeeded)
	assert.Equal(t, 0, done[0].Stats.Failed)
	assert.Equal(t, 2, done[0].Stats.Total)

	for _, id := range []string{"vid1", "vid2"} {
		assert.FileExists(t, filepath.Join(f.outputDir, "Test_Channel", id+".txt"))
		assert.FileExists(t, filepath.Join(f.outputDir, "Test_Channel", id+".md"))
	}

	require.True(t, f.writer.Flush(time.Second))
	processed, err := f.archive.ProcessedItems(context.Background(), "UC123")
	require.NoError(t, err)
	assert.Len(t, processed, 2)
}

func TestExecuteFullyProcessedSkipsWork(t *testing.T) {
	plan := &models.RunPlan{
		SourceID:    "UC123",
		SourceTitle: "Test Channel",
		SourceKind:  models.SourceKindChannel,
		DirName:     "Test_Channel",
		Total:       3,
		Skipped:     3,
	}
	f := newFixture(t, plan, 2)

	err := f.executor.Execute(context.Background(), testRun("https://www.youtube.com/@test"))
	require.NoError(t, err)

	assert.Empty(t, f.fetcher.calls)
	done := f.sink.byType(models.EventRunDone)
	require.Len(t, done, 1)
	require.NotNil(t, done[0].Stats)
	assert.Equal(t, 3, done[0].Stats.Skipped)
	assert.Equal(t, 3, done[0].Stats.Total)
	assert.Equal(t, 0, done[0].Stats.Succeeded)
}

func TestExecuteItemFailureContinues(t *testing.T) {
	plan := channelPlan(
		models.CatalogItem{ID: "bad", Title: "Bad", URL: "https://www.youtube.com/watch?v=bad"},
		models.CatalogItem{ID: "good", Title: "Good", URL: "https://www.youtube.com/watch?v=good"},
	)
	f := newFixture(t, plan, 1)
	f.transcriber.failIf = func(audioPath string) error {
		if strings.Contains(audioPath, "bad") {
			return fmt.Errorf("provider unavailable")
		}
		return nil
	}

	err := f.executor.Execute(context.Background(), testRun("https://www.youtube.com/@test"))
	require.NoError(t, err)

	itemErrors := f.sink.byType(models.EventItemError)
	require.Len(t, itemErrors, 1)
	assert.Equal(t, "bad", itemErrors[0].VideoID)
	assert.Contains(t, itemErrors[0].Error, "provider unavailable")

	done := f.sink.byType(models.EventRunDone)
	require.Len(t, done, 1)
	assert.Equal(t, 1, done[0].Stats.Succeeded)
	assert.Equal(t, 1, done[0].Stats.Failed)
}

func TestExecuteAllItemsFailedReportsError(t *testing.T) {
	plan := channelPlan(
		models.CatalogItem{ID: "vid1", URL: "https://www.youtube.com/watch?v=vid1"},
		models.CatalogItem{ID: "vid2", URL: "https://www.youtube.com/watch?v=vid2"},
	)
	f := newFixture(t, plan, 1)
	f.transcriber.failIf = func(string) error { return fmt.Errorf("provider unavailable") }

	err := f.executor.Execute(context.Background(), testRun("https://www.youtube.com/@test"))
	require.NoError(t, err)

	assert.Empty(t, f.sink.byType(models.EventRunDone))
	runErrors := f.sink.byType(models.EventRunError)
	require.Len(t, runErrors, 1)
	assert.Contains(t, runErrors[0].Error, "all 2 items failed")
	assert.Equal(t, 2, runErrors[0].Stats.Failed)

	// A fully failed run distrusts the cached listing
	assert.Equal(t, []string{plan.SourceID}, f.planner.invalidated)
}

func TestExecutePlannerFailureReturnsError(t *testing.T) {
	f := newFixture(t, nil, 1)
	f.planner.err = fmt.Errorf("enumeration failed")

	err := f.executor.Execute(context.Background(), testRun("https://www.youtube.com/@test"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enumeration failed")
	assert.Empty(t, f.sink.byType(models.EventRunStart))
}

func TestExecuteCancelledBetweenItems(t *testing.T) {
	plan := channelPlan(
		models.CatalogItem{ID: "vid1", URL: "https://www.youtube.com/watch?v=vid1"},
		models.CatalogItem{ID: "vid2", URL: "https://www.youtube.com/watch?v=vid2"},
		models.CatalogItem{ID: "vid3", URL: "https://www.youtube.com/watch?v=vid3"},
	)
	f := newFixture(t, plan, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.fetcher.onFetch = func(itemURL string) {
		if strings.Contains(itemURL, "vid1") {
			cancel()
		}
	}

	err := f.executor.Execute(ctx, testRun("https://www.youtube.com/@test"))
	require.NoError(t, err)

	cancelled := f.sink.byType(models.EventRunCancelled)
	require.Len(t, cancelled, 1)
	require.NotNil(t, cancelled[0].Stats)
	assert.Equal(t, 1, cancelled[0].Stats.Succeeded)
	assert.Empty(t, f.sink.byType(models.EventRunDone))

	// Items after the cancellation point never started
	assert.Len(t, f.fetcher.calls, 1)
}

func TestExecuteAudioAssetInput(t *testing.T) {
	f := newFixture(t, nil, 1)
	run := testRun("audio:upload123")

	err := f.executor.Execute(context.Background(), run)
	require.NoError(t, err)

	assert.Zero(t, f.planner.calls)
	require.Len(t, f.fetcher.calls, 1)
	assert.Equal(t, "audio:upload123", f.fetcher.calls[0])

	done := f.sink.byType(models.EventRunDone)
	require.Len(t, done, 1)
	assert.Equal(t, 1, done[0].Stats.Succeeded)
	assert.Equal(t, 1, done[0].Stats.Total)

	assert.FileExists(t, filepath.Join(f.outputDir, "uploads", "upload123.txt"))

	// Uploads never enter the processed-item archive
	require.True(t, f.writer.Flush(time.Second))
	processed, err := f.archive.ProcessedItems(context.Background(), "audio:upload123")
	require.NoError(t, err)
	assert.Empty(t, processed)
}

func TestExecuteOverridesSelectFormatsAndLanguage(t *testing.T) {
	plan := channelPlan(models.CatalogItem{ID: "vid1", URL: "https://www.youtube.com/watch?v=vid1"})
	f := newFixture(t, plan, 1)
	run := testRun("https://www.youtube.com/@test")
	run.Overrides = &models.TranscribeOptions{Language: "de", Formats: []string{"csv"}}

	err := f.executor.Execute(context.Background(), run)
	require.NoError(t, err)

	require.Len(t, f.transcriber.opts, 1)
	assert.Equal(t, "de", f.transcriber.opts[0].Language)

	assert.FileExists(t, filepath.Join(f.outputDir, "Test_Channel", "vid1.csv"))
	assert.NoFileExists(t, filepath.Join(f.outputDir, "Test_Channel", "vid1.txt"))
}

func TestExecuteConcurrentItems(t *testing.T) {
	items := make([]models.CatalogItem, 6)
	for i := range items {
		id := fmt.Sprintf("vid%d", i)
		items[i] = models.CatalogItem{ID: id, URL: "https://www.youtube.com/watch?v=" + id}
	}
	f := newFixture(t, channelPlan(items...), 3)

	err := f.executor.Execute(context.Background(), testRun("https://www.youtube.com/@test"))
	require.NoError(t, err)

	done := f.sink.byType(models.EventRunDone)
	require.Len(t, done, 1)
	assert.Equal(t, 6, done[0].Stats.Succeeded)

	progress := f.sink.byType(models.EventRunProgress)
	require.Len(t, progress, 6)
	final := progress[len(progress)-1]
	assert.Equal(t, 6, final.Completed)
}

func TestWriteOutputsRendersEachFormat(t *testing.T) {
	dir := t.TempDir()
	item := models.CatalogItem{ID: "vid1", Title: "My Video"}
	transcript := &models.Transcript{
		Text:     "hello world",
		Language: "en",
		Segments: []models.TranscriptSegment{
			{Start: 0, End: 2 * time.Second, Text: "hello"},
			{Start: 62 * time.Second, End: 64 * time.Second, Text: "world"},
		},
	}

	err := writeOutputs(dir, item, transcript, []string{"text", "markdown", "csv", "jsonl", "bogus"})
	require.NoError(t, err)

	text, err := os.ReadFile(filepath.Join(dir, "vid1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(text))

	md, err := os.ReadFile(filepath.Join(dir, "vid1.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# My Video")
	assert.Contains(t, string(md), "**[0:00]** hello")
	assert.Contains(t, string(md), "**[1:02]** world")

	csvOut, err := os.ReadFile(filepath.Join(dir, "vid1.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvOut)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "start,end,text", lines[0])
	assert.Equal(t, "0.00,2.00,hello", lines[1])

	jsonl, err := os.ReadFile(filepath.Join(dir, "vid1.jsonl"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(jsonl)), "\n"), 2)

	// Unknown formats are ignored, not written
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}
