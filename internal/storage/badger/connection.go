package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerDB owns the embedded store backing runs, the event log, the
// processed-item archive, catalogs and watchlist entries.
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
}

// NewBadgerDB opens the store at the configured path, creating the
// directory if needed. With reset_on_startup set, any existing data
// directory is wiped first.
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("Removing previous data directory (reset_on_startup)")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to remove data directory")
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Opening Badger store")

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // Badger's own logger is noisy; arbor covers it

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Badger store ready")

	return &BadgerDB{
		store:  store,
		logger: logger,
		config: config,
	}, nil
}

// Store exposes the badgerhold handle the typed storage layers wrap.
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Close shuts the store down, flushing pending writes.
func (b *BadgerDB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
