package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CatalogStorage implements the CatalogStorage interface for Badger
type CatalogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCatalogStorage creates a new CatalogStorage instance
func NewCatalogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CatalogStorage {
	return &CatalogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CatalogStorage) SaveCatalog(ctx context.Context, catalog *models.Catalog) error {
	if catalog.SourceID == "" {
		return fmt.Errorf("catalog source ID is required")
	}
	if err := s.db.Store().Upsert(catalog.SourceID, catalog); err != nil {
		return fmt.Errorf("failed to save catalog: %w", err)
	}
	return nil
}

func (s *CatalogStorage) GetCatalog(ctx context.Context, sourceID string) (*models.Catalog, error) {
	var catalog models.Catalog
	if err := s.db.Store().Get(sourceID, &catalog); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}
	return &catalog, nil
}

func (s *CatalogStorage) DeleteCatalog(ctx context.Context, sourceID string) error {
	if err := s.db.Store().Delete(sourceID, &models.Catalog{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete catalog: %w", err)
	}
	return nil
}
