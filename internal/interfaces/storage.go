package interfaces

import (
	"context"

	"github.com/ternarybob/scribo/internal/models"
)

// RunListOptions filters and pages run listings
type RunListOptions struct {
	Status models.RunStatus
	Limit  int
	Offset int
}

// RunStorage - interface for run persistence
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, opts *RunListOptions) ([]*models.Run, error)
	CountRuns(ctx context.Context) (int, error)
}

// EventLogStorage - interface for the durable run event log
type EventLogStorage interface {
	AppendEvent(ctx context.Context, record *models.EventRecord) error
	GetEvents(ctx context.Context, runID string) ([]*models.EventRecord, error)
	MaxEventID(ctx context.Context, runID string) (uint64, error)
}

// WatchlistStorage - interface for watchlist persistence
type WatchlistStorage interface {
	SaveEntry(ctx context.Context, entry *models.WatchlistEntry) error
	GetEntry(ctx context.Context, id string) (*models.WatchlistEntry, error)
	ListEntries(ctx context.Context) ([]*models.WatchlistEntry, error)
	DeleteEntry(ctx context.Context, id string) error
}

// CatalogStorage - interface for cached source catalogs
type CatalogStorage interface {
	SaveCatalog(ctx context.Context, catalog *models.Catalog) error
	GetCatalog(ctx context.Context, sourceID string) (*models.Catalog, error)
	DeleteCatalog(ctx context.Context, sourceID string) error
}

// ArchiveStorage - interface for the processed-item archive that backs
// incremental planning
type ArchiveStorage interface {
	MarkProcessed(ctx context.Context, sourceID, itemID string) error
	IsProcessed(ctx context.Context, sourceID, itemID string) (bool, error)
	ProcessedItems(ctx context.Context, sourceID string) (map[string]struct{}, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	RunStorage() RunStorage
	EventLogStorage() EventLogStorage
	WatchlistStorage() WatchlistStorage
	CatalogStorage() CatalogStorage
	ArchiveStorage() ArchiveStorage
	Close() error
}
