package models

import (
	"strings"
	"time"
)

// SourceKind classifies an input URL by what it enumerates
type SourceKind string

const (
	SourceKindChannel  SourceKind = "channel"
	SourceKindPlaylist SourceKind = "playlist"
	SourceKindVideo    SourceKind = "video"
	SourceKindAudio    SourceKind = "audio"
	SourceKindUnknown  SourceKind = "unknown"
)

// SupportsIncremental reports whether the kind enumerates a newest-first list
// that the catalog cache can refresh with a prefix fetch. Single-item kinds
// bypass the cache entirely.
func (k SourceKind) SupportsIncremental() bool {
	return k == SourceKindChannel || k == SourceKindPlaylist
}

// Schedulable reports whether the kind is eligible for unattended watchlist
// checks. Single videos and audio uploads are one-shot inputs.
func (k SourceKind) Schedulable() bool {
	return k == SourceKindChannel || k == SourceKindPlaylist
}

// ClassifySource determines the kind of an input URL
func ClassifySource(inputURL string) SourceKind {
	if IsAudioInput(inputURL) {
		return SourceKindAudio
	}
	lower := strings.ToLower(inputURL)
	switch {
	case strings.Contains(lower, "/playlist") || strings.Contains(lower, "list="):
		return SourceKindPlaylist
	case strings.Contains(lower, "/channel/") || strings.Contains(lower, "/@") ||
		strings.Contains(lower, "/c/") || strings.Contains(lower, "/user/"):
		return SourceKindChannel
	case strings.Contains(lower, "watch?v=") || strings.Contains(lower, "youtu.be/") ||
		strings.Contains(lower, "/shorts/"):
		return SourceKindVideo
	}
	return SourceKindUnknown
}

// CatalogItem is one enumerable item of a source
type CatalogItem struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Duration int    `json:"duration,omitempty"` // seconds
	URL      string `json:"url,omitempty"`
}

// Catalog is the cached enumeration of a source, newest-first.
// Complete=false forces a full re-fetch on next access.
type Catalog struct {
	SourceID    string        `json:"source_id" badgerhold:"key"`
	SourceTitle string        `json:"source_title,omitempty"`
	RetrievedAt time.Time     `json:"retrieved_at"`
	Complete    bool          `json:"complete"`
	Items       []CatalogItem `json:"items"`
}

// Age returns how long ago the catalog was retrieved
func (c *Catalog) Age(now time.Time) time.Duration {
	return now.Sub(c.RetrievedAt)
}

// MergeItems merges a freshly fetched newest-first prefix into a previously
// cached newest-first list. Fresh items are prepended; items present in both
// keep the freshly fetched copy; relative order is preserved. The merge is a
// pure function over the two slices, so a cached catalog is never left
// partially updated.
func MergeItems(fresh, cached []CatalogItem) []CatalogItem {
	seen := make(map[string]struct{}, len(fresh))
	merged := make([]CatalogItem, 0, len(fresh)+len(cached))
	for _, item := range fresh {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		merged = append(merged, item)
	}
	for _, item := range cached {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		merged = append(merged, item)
	}
	return merged
}

// ContainsItem reports whether any item in the list carries the given ID
func ContainsItem(items []CatalogItem, id string) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}
