package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/ternarybob/scribo/internal/storage"
)

// Service maintains the per-source catalog cache. Repeat access to a source
// costs a small newest-first probe instead of a full enumeration: the probe
// is grown by doubling until it overlaps the cached list, then the two are
// merged. Sources that cannot be enumerated incrementally bypass the cache.
type Service struct {
	mu         sync.Mutex
	enumerator interfaces.Enumerator
	catalogs   interfaces.CatalogStorage
	writer     *storage.Writer
	config     *common.CatalogConfig
	logger     arbor.ILogger
	now        func() time.Time
}

// NewService creates the catalog service
func NewService(enumerator interfaces.Enumerator, catalogs interfaces.CatalogStorage, writer *storage.Writer, config *common.CatalogConfig, logger arbor.ILogger) *Service {
	return &Service{
		enumerator: enumerator,
		catalogs:   catalogs,
		writer:     writer,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// Refresh returns an up-to-date catalog for the source, consulting the cache
// where the source kind allows it. force skips the cache entirely.
func (s *Service) Refresh(ctx context.Context, sourceURL string, force bool) (*models.Catalog, error) {
	kind := models.ClassifySource(sourceURL)
	if !kind.SupportsIncremental() {
		// Single items are cheap to enumerate; caching them buys nothing
		return s.enumerator.Enumerate(ctx, sourceURL, 0)
	}

	// One enumeration per source at a time; concurrent refreshes of different
	// sources still serialize here, which matches how slow the enumerator is
	s.mu.Lock()
	defer s.mu.Unlock()

	probe, err := s.enumerator.Enumerate(ctx, sourceURL, s.config.ChunkStart)
	if err != nil {
		return nil, fmt.Errorf("failed to probe source: %w", err)
	}

	cached, err := s.catalogs.GetCatalog(ctx, probe.SourceID)
	if err != nil {
		s.logger.Warn().Err(err).Str("source_id", probe.SourceID).Msg("Catalog cache read failed, fetching full listing")
		cached = nil
	}

	if force || !s.usable(cached) {
		return s.fetchFull(ctx, sourceURL)
	}

	// The probe already covers the whole source
	if len(probe.Items) < s.config.ChunkStart {
		return s.store(probe, true)
	}

	// Grow the probe until its oldest item appears in the cache. That overlap
	// means nothing between the probe and the cached list was missed.
	chunk := s.config.ChunkStart
	for {
		oldest := probe.Items[len(probe.Items)-1]
		if models.ContainsItem(cached.Items, oldest.ID) {
			merged := probe
			merged.Items = models.MergeItems(probe.Items, cached.Items)
			return s.store(merged, true)
		}

		chunk *= 2
		if chunk > s.config.ChunkMax {
			return s.fetchFull(ctx, sourceURL)
		}

		probe, err = s.enumerator.Enumerate(ctx, sourceURL, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to probe source: %w", err)
		}
		if len(probe.Items) < chunk {
			// Source is smaller than the probe; the listing is complete
			return s.store(probe, true)
		}
	}
}

// Invalidate marks a source's cache incomplete so the next refresh does a
// full fetch.
func (s *Service) Invalidate(ctx context.Context, sourceID string) {
	cached, err := s.catalogs.GetCatalog(ctx, sourceID)
	if err != nil || cached == nil {
		return
	}
	cached.Complete = false
	s.writer.SaveCatalog(cached)
}

func (s *Service) usable(cached *models.Catalog) bool {
	if cached == nil || !cached.Complete {
		return false
	}
	if s.config.TTL > 0 && cached.Age(s.now()) > s.config.TTL {
		return false
	}
	return true
}

func (s *Service) fetchFull(ctx context.Context, sourceURL string) (*models.Catalog, error) {
	catalog, err := s.enumerator.Enumerate(ctx, sourceURL, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate source: %w", err)
	}
	return s.store(catalog, true)
}

func (s *Service) store(catalog *models.Catalog, complete bool) (*models.Catalog, error) {
	catalog.Complete = complete
	catalog.RetrievedAt = s.now()
	s.writer.SaveCatalog(catalog)
	s.logger.Debug().
		Str("source_id", catalog.SourceID).
		Int("items", len(catalog.Items)).
		Msg("Catalog refreshed")
	return catalog, nil
}
