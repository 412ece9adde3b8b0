package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ArchiveStorage implements the ArchiveStorage interface for Badger
type ArchiveStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArchiveStorage creates a new ArchiveStorage instance
func NewArchiveStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArchiveStorage {
	return &ArchiveStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ArchiveStorage) MarkProcessed(ctx context.Context, sourceID, itemID string) error {
	if sourceID == "" || itemID == "" {
		return fmt.Errorf("source ID and item ID are required")
	}
	item := &models.ArchivedItem{
		Key:         models.ArchiveKey(sourceID, itemID),
		SourceID:    sourceID,
		ItemID:      itemID,
		ProcessedAt: time.Now(),
	}
	if err := s.db.Store().Upsert(item.Key, item); err != nil {
		return fmt.Errorf("failed to mark item processed: %w", err)
	}
	return nil
}

func (s *ArchiveStorage) IsProcessed(ctx context.Context, sourceID, itemID string) (bool, error) {
	var item models.ArchivedItem
	if err := s.db.Store().Get(models.ArchiveKey(sourceID, itemID), &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check archive: %w", err)
	}
	return true, nil
}

func (s *ArchiveStorage) ProcessedItems(ctx context.Context, sourceID string) (map[string]struct{}, error) {
	var items []models.ArchivedItem
	if err := s.db.Store().Find(&items, badgerhold.Where("SourceID").Eq(sourceID).Index("SourceID")); err != nil {
		return nil, fmt.Errorf("failed to load archive: %w", err)
	}

	processed := make(map[string]struct{}, len(items))
	for _, item := range items {
		processed[item.ItemID] = struct{}{}
	}
	return processed, nil
}
