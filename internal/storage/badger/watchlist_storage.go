package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// WatchlistStorage implements the WatchlistStorage interface for Badger
type WatchlistStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWatchlistStorage creates a new WatchlistStorage instance
func NewWatchlistStorage(db *BadgerDB, logger arbor.ILogger) interfaces.WatchlistStorage {
	return &WatchlistStorage{
		db:     db,
		logger: logger,
	}
}

func (s *WatchlistStorage) SaveEntry(ctx context.Context, entry *models.WatchlistEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("watchlist entry ID is required")
	}
	if err := s.db.Store().Upsert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to save watchlist entry: %w", err)
	}
	return nil
}

func (s *WatchlistStorage) GetEntry(ctx context.Context, id string) (*models.WatchlistEntry, error) {
	var entry models.WatchlistEntry
	if err := s.db.Store().Get(id, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownEntry, id)
		}
		return nil, fmt.Errorf("failed to get watchlist entry: %w", err)
	}
	return &entry, nil
}

func (s *WatchlistStorage) ListEntries(ctx context.Context) ([]*models.WatchlistEntry, error) {
	var entries []models.WatchlistEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list watchlist entries: %w", err)
	}

	result := make([]*models.WatchlistEntry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}

func (s *WatchlistStorage) DeleteEntry(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.WatchlistEntry{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete watchlist entry: %w", err)
	}
	return nil
}
