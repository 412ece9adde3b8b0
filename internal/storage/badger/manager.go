package badger

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/interfaces"
)

// Manager implements interfaces.StorageManager over a single Badger database
type Manager struct {
	db        *BadgerDB
	runs      interfaces.RunStorage
	events    interfaces.EventLogStorage
	watchlist interfaces.WatchlistStorage
	catalogs  interfaces.CatalogStorage
	archive   interfaces.ArchiveStorage
	logger    arbor.ILogger
}

// NewManager opens the database and wires up all stores
func NewManager(config *common.BadgerConfig, logger arbor.ILogger) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize badger storage: %w", err)
	}

	return &Manager{
		db:        db,
		runs:      NewRunStorage(db, logger),
		events:    NewEventLogStorage(db, logger),
		watchlist: NewWatchlistStorage(db, logger),
		catalogs:  NewCatalogStorage(db, logger),
		archive:   NewArchiveStorage(db, logger),
		logger:    logger,
	}, nil
}

func (m *Manager) RunStorage() interfaces.RunStorage             { return m.runs }
func (m *Manager) EventLogStorage() interfaces.EventLogStorage   { return m.events }
func (m *Manager) WatchlistStorage() interfaces.WatchlistStorage { return m.watchlist }
func (m *Manager) CatalogStorage() interfaces.CatalogStorage     { return m.catalogs }
func (m *Manager) ArchiveStorage() interfaces.ArchiveStorage     { return m.archive }

// Close shuts down the underlying database
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing badger storage")
	return m.db.Close()
}
