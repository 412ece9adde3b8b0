package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
)

// Planner turns a source URL into the concrete list of items a run still has
// to process, by comparing the refreshed catalog against the archive of
// already-processed items.
type Planner struct {
	catalogs *Service
	archive  interfaces.ArchiveStorage
	logger   arbor.ILogger
}

// NewPlanner creates the run planner
func NewPlanner(catalogs *Service, archive interfaces.ArchiveStorage, logger arbor.ILogger) *Planner {
	return &Planner{
		catalogs: catalogs,
		archive:  archive,
		logger:   logger,
	}
}

// Plan refreshes the source's catalog and filters out items the archive
// already holds. force reprocesses everything regardless of the archive.
func (p *Planner) Plan(ctx context.Context, sourceURL string, force bool) (*models.RunPlan, error) {
	catalog, err := p.catalogs.Refresh(ctx, sourceURL, force)
	if err != nil {
		return nil, err
	}

	plan := &models.RunPlan{
		SourceID:    catalog.SourceID,
		SourceTitle: catalog.SourceTitle,
		SourceKind:  models.ClassifySource(sourceURL),
		DirName:     dirNameFor(catalog),
		Total:       len(catalog.Items),
	}

	if force {
		plan.NewItems = append([]models.CatalogItem(nil), catalog.Items...)
		return plan, nil
	}

	// Single-item sources need one point lookup, not the whole archive
	if len(catalog.Items) == 1 {
		item := catalog.Items[0]
		done, err := p.archive.IsProcessed(ctx, catalog.SourceID, item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check archive: %w", err)
		}
		if done {
			plan.Skipped = 1
		} else {
			plan.NewItems = []models.CatalogItem{item}
		}
		return plan, nil
	}

	processed, err := p.archive.ProcessedItems(ctx, catalog.SourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed items: %w", err)
	}

	for _, item := range catalog.Items {
		if _, done := processed[item.ID]; done {
			plan.Skipped++
			continue
		}
		plan.NewItems = append(plan.NewItems, item)
	}

	p.logger.Debug().
		Str("source_id", plan.SourceID).
		Int("total", plan.Total).
		Int("new", len(plan.NewItems)).
		Int("skipped", plan.Skipped).
		Msg("Run planned")

	return plan, nil
}

// InvalidateSource marks a source's cached catalog incomplete so the next
// refresh re-enumerates it fully
func (p *Planner) InvalidateSource(ctx context.Context, sourceID string) {
	p.catalogs.Invalidate(ctx, sourceID)
}

// dirNameFor derives a filesystem-safe directory name for a source's output
func dirNameFor(catalog *models.Catalog) string {
	name := catalog.SourceTitle
	if name == "" {
		name = catalog.SourceID
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		cleaned = "source"
	}
	return filepath.Clean(cleaned)
}
