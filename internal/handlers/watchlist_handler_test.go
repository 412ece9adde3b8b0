package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/models"
)

// stubWatchlistStore backs handler tests with in-memory entries
type stubWatchlistStore struct {
	entries map[string]*models.WatchlistEntry
	deleted []string
}

func newStubWatchlistStore() *stubWatchlistStore {
	return &stubWatchlistStore{entries: make(map[string]*models.WatchlistEntry)}
}

func (s *stubWatchlistStore) SaveEntry(ctx context.Context, entry *models.WatchlistEntry) error {
	s.entries[entry.ID] = entry
	return nil
}

func (s *stubWatchlistStore) GetEntry(ctx context.Context, id string) (*models.WatchlistEntry, error) {
	entry, ok := s.entries[id]
	if !ok {
		return nil, models.ErrUnknownEntry
	}
	return entry, nil
}

func (s *stubWatchlistStore) ListEntries(ctx context.Context) ([]*models.WatchlistEntry, error) {
	var out []*models.WatchlistEntry
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	return out, nil
}

func (s *stubWatchlistStore) DeleteEntry(ctx context.Context, id string) error {
	if _, ok := s.entries[id]; !ok {
		return models.ErrUnknownEntry
	}
	delete(s.entries, id)
	s.deleted = append(s.deleted, id)
	return nil
}

// stubCatalogStore records which cached catalogs got dropped
type stubCatalogStore struct {
	deleted []string
}

func (s *stubCatalogStore) SaveCatalog(ctx context.Context, catalog *models.Catalog) error {
	return nil
}

func (s *stubCatalogStore) GetCatalog(ctx context.Context, sourceID string) (*models.Catalog, error) {
	return nil, nil
}

func (s *stubCatalogStore) DeleteCatalog(ctx context.Context, sourceID string) error {
	s.deleted = append(s.deleted, sourceID)
	return nil
}

type stubSchedulerService struct {
	checked []string
}

func (s *stubSchedulerService) Start() error { return nil }
func (s *stubSchedulerService) Stop()        {}

func (s *stubSchedulerService) TriggerOnce(ctx context.Context) (checked, started int, err error) {
	return 0, 0, nil
}

func (s *stubSchedulerService) CheckNow(ctx context.Context, entryID string) (bool, error) {
	s.checked = append(s.checked, entryID)
	return true, nil
}

type watchlistFixture struct {
	watchlist *stubWatchlistStore
	catalogs  *stubCatalogStore
	scheduler *stubSchedulerService
	handler   *WatchlistHandler
}

func newWatchlistFixture() *watchlistFixture {
	f := &watchlistFixture{
		watchlist: newStubWatchlistStore(),
		catalogs:  &stubCatalogStore{},
		scheduler: &stubSchedulerService{},
	}
	f.handler = NewWatchlistHandler(f.watchlist, f.catalogs, f.scheduler, common.GetLogger())
	return f
}

func (f *watchlistFixture) seed(channelID string) *models.WatchlistEntry {
	entry := &models.WatchlistEntry{
		ID:              models.NewWatchlistID(),
		ChannelURL:      "https://www.youtube.com/@test",
		ChannelID:       channelID,
		IntervalMinutes: 60,
		Enabled:         true,
		CreatedAt:       time.Now().UTC(),
	}
	f.watchlist.entries[entry.ID] = entry
	return entry
}

func TestDeleteWatchlistEntryDropsCachedCatalog(t *testing.T) {
	f := newWatchlistFixture()
	entry := f.seed("UCabc123")

	req := httptest.NewRequest(http.MethodDelete, "/api/watchlist/"+entry.ID, nil)
	rec := httptest.NewRecorder()
	f.handler.DeleteHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{entry.ID}, f.watchlist.deleted)
	assert.Equal(t, []string{"UCabc123"}, f.catalogs.deleted)
}

func TestDeleteWatchlistEntryWithoutDiscoveredChannel(t *testing.T) {
	f := newWatchlistFixture()
	entry := f.seed("")

	req := httptest.NewRequest(http.MethodDelete, "/api/watchlist/"+entry.ID, nil)
	rec := httptest.NewRecorder()
	f.handler.DeleteHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.catalogs.deleted)
}

func TestDeleteWatchlistEntryUnknown(t *testing.T) {
	f := newWatchlistFixture()

	req := httptest.NewRequest(http.MethodDelete, "/api/watchlist/wl_missing", nil)
	rec := httptest.NewRecorder()
	f.handler.DeleteHandler(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.catalogs.deleted)
}

func TestCheckWatchlistEntryHandler(t *testing.T) {
	f := newWatchlistFixture()
	entry := f.seed("UCabc123")

	req := httptest.NewRequest(http.MethodPost, "/api/watchlist/"+entry.ID+"/check", nil)
	rec := httptest.NewRecorder()
	f.handler.CheckHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{entry.ID}, f.scheduler.checked)
	assert.Contains(t, rec.Body.String(), `"started":true`)
}
