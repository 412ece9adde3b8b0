package storage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
)

const writerQueueSize = 1024

// Writer serializes all persistence writes onto one background goroutine so
// that a run's state and event updates land in the order they happened.
// Writes are best-effort: a storage failure is logged and the service keeps
// going on its in-memory state.
type Writer struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
	queue   chan func(ctx context.Context)
	done    chan struct{}
	closed  sync.Once
}

// NewWriter starts the write queue against the given storage
func NewWriter(storage interfaces.StorageManager, logger arbor.ILogger) *Writer {
	w := &Writer{
		storage: storage,
		logger:  logger,
		queue:   make(chan func(ctx context.Context), writerQueueSize),
		done:    make(chan struct{}),
	}
	common.SafeGo(logger, "storage-writer", w.loop)
	return w
}

// SaveRun queues a snapshot of the run for persistence
func (w *Writer) SaveRun(run *models.Run) {
	snapshot := run.Clone()
	w.enqueue(func(ctx context.Context) {
		if err := w.storage.RunStorage().SaveRun(ctx, snapshot); err != nil {
			w.logger.Warn().Err(err).Str("run_id", snapshot.ID).Msg("Failed to persist run")
		}
	})
}

// AppendEvent queues one run event for the durable log
func (w *Writer) AppendEvent(runID string, eventID uint64, event models.RunEvent) {
	record := &models.EventRecord{
		Key:       models.EventRecordKey(runID, eventID),
		RunID:     runID,
		EventID:   eventID,
		Event:     event,
		CreatedAt: time.Now(),
	}
	w.enqueue(func(ctx context.Context) {
		if err := w.storage.EventLogStorage().AppendEvent(ctx, record); err != nil {
			w.logger.Warn().Err(err).Str("run_id", runID).Str("event_id", strconv.FormatUint(eventID, 10)).Msg("Failed to persist event")
		}
	})
}

// SaveCatalog queues a catalog snapshot for persistence
func (w *Writer) SaveCatalog(catalog *models.Catalog) {
	snapshot := *catalog
	snapshot.Items = append([]models.CatalogItem(nil), catalog.Items...)
	w.enqueue(func(ctx context.Context) {
		if err := w.storage.CatalogStorage().SaveCatalog(ctx, &snapshot); err != nil {
			w.logger.Warn().Err(err).Str("source_id", snapshot.SourceID).Msg("Failed to persist catalog")
		}
	})
}

// MarkProcessed queues an archive entry for one finished item
func (w *Writer) MarkProcessed(sourceID, itemID string) {
	w.enqueue(func(ctx context.Context) {
		if err := w.storage.ArchiveStorage().MarkProcessed(ctx, sourceID, itemID); err != nil {
			w.logger.Warn().Err(err).Str("source_id", sourceID).Str("item_id", itemID).Msg("Failed to archive item")
		}
	})
}

// SaveWatchlistEntry queues a watchlist entry for persistence
func (w *Writer) SaveWatchlistEntry(entry *models.WatchlistEntry) {
	snapshot := *entry
	w.enqueue(func(ctx context.Context) {
		if err := w.storage.WatchlistStorage().SaveEntry(ctx, &snapshot); err != nil {
			w.logger.Warn().Err(err).Str("entry_id", snapshot.ID).Msg("Failed to persist watchlist entry")
		}
	})
}

// Flush blocks until every write queued before the call has been applied,
// or the timeout elapses.
func (w *Writer) Flush(timeout time.Duration) bool {
	marker := make(chan struct{})
	w.enqueue(func(ctx context.Context) {
		close(marker)
	})

	select {
	case <-marker:
		return true
	case <-time.After(timeout):
		return false
	case <-w.done:
		return false
	}
}

// Stop drains the queue and shuts the writer down
func (w *Writer) Stop() {
	w.closed.Do(func() {
		close(w.queue)
		<-w.done
	})
}

func (w *Writer) enqueue(op func(ctx context.Context)) {
	defer func() {
		// Enqueue after Stop loses the write; in-memory state stays authoritative
		if recover() != nil {
			w.logger.Warn().Msg("Write dropped: storage writer stopped")
		}
	}()

	select {
	case w.queue <- op:
	default:
		w.logger.Warn().Msg("Write dropped: storage queue full")
	}
}

func (w *Writer) loop() {
	defer close(w.done)
	ctx := context.Background()
	for op := range w.queue {
		op(ctx)
	}
}
