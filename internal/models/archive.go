package models

import "time"

// ArchivedItem records that one catalog item of a source has been fully
// processed. The archive is what makes repeat runs incremental: planning
// skips any item present here unless the run forces reprocessing.
type ArchivedItem struct {
	Key         string    `badgerhold:"key" json:"key"`
	SourceID    string    `badgerhold:"index" json:"source_id"`
	ItemID      string    `json:"item_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ArchiveKey builds the storage key for a processed item
func ArchiveKey(sourceID, itemID string) string {
	return sourceID + ":" + itemID
}
