package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// EventLogStorage implements the EventLogStorage interface for Badger
type EventLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEventLogStorage creates a new EventLogStorage instance
func NewEventLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EventLogStorage {
	return &EventLogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *EventLogStorage) AppendEvent(ctx context.Context, record *models.EventRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("event record run ID is required")
	}
	if record.Key == "" {
		record.Key = models.EventRecordKey(record.RunID, record.EventID)
	}
	if err := s.db.Store().Upsert(record.Key, record); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *EventLogStorage) GetEvents(ctx context.Context, runID string) ([]*models.EventRecord, error) {
	var records []models.EventRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("RunID").Eq(runID).Index("RunID")); err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].EventID < records[j].EventID
	})

	result := make([]*models.EventRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

func (s *EventLogStorage) MaxEventID(ctx context.Context, runID string) (uint64, error) {
	records, err := s.GetEvents(ctx, runID)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return records[len(records)-1].EventID, nil
}
