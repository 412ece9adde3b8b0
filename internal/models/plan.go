package models

// RunPlan is the outcome of comparing a source's catalog against the archive
// of already-processed items. It is what an executor actually works through.
type RunPlan struct {
	SourceID    string        `json:"source_id"`
	SourceTitle string        `json:"source_title,omitempty"`
	SourceKind  SourceKind    `json:"source_kind"`
	DirName     string        `json:"dir_name,omitempty"`
	NewItems    []CatalogItem `json:"new_items"`
	Total       int           `json:"total"`   // items in the catalog
	Skipped     int           `json:"skipped"` // already processed, left out of NewItems
}

// FullyProcessed reports whether nothing remains to do for this source
func (p *RunPlan) FullyProcessed() bool {
	return p.Total > 0 && len(p.NewItems) == 0
}
