package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
)

// WatchlistHandler serves watchlist CRUD plus the manual check trigger
type WatchlistHandler struct {
	watchlist interfaces.WatchlistStorage
	catalogs  interfaces.CatalogStorage
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

// NewWatchlistHandler creates a watchlist API handler
func NewWatchlistHandler(watchlist interfaces.WatchlistStorage, catalogs interfaces.CatalogStorage, scheduler interfaces.SchedulerService, logger arbor.ILogger) *WatchlistHandler {
	return &WatchlistHandler{
		watchlist: watchlist,
		catalogs:  catalogs,
		scheduler: scheduler,
		logger:    logger,
	}
}

// ListHandler handles GET /api/watchlist
func (h *WatchlistHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.watchlist.ListEntries(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// CreateHandler handles POST /api/watchlist. New entries are enabled unless
// the request says otherwise.
func (h *WatchlistHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelURL      string `json:"channel_url"`
		IntervalMinutes int    `json:"interval_minutes"`
		Enabled         *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	entry := models.WatchlistEntry{
		ID:              models.NewWatchlistID(),
		ChannelURL:      req.ChannelURL,
		IntervalMinutes: req.IntervalMinutes,
		Enabled:         enabled,
		CreatedAt:       time.Now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		WriteServiceError(w, err)
		return
	}

	if err := h.watchlist.SaveEntry(r.Context(), &entry); err != nil {
		WriteServiceError(w, err)
		return
	}

	h.logger.Info().
		Str("entry_id", entry.ID).
		Str("channel_url", entry.ChannelURL).
		Msg("Watchlist entry created")
	WriteJSON(w, http.StatusCreated, &entry)
}

// GetHandler handles GET /api/watchlist/{id}
func (h *WatchlistHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := h.watchlist.GetEntry(r.Context(), pathEntryID(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, entry)
}

// UpdateHandler handles PUT /api/watchlist/{id}. The caller controls the
// mutable fields; discovery and bookkeeping fields survive the update.
func (h *WatchlistHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := h.watchlist.GetEntry(r.Context(), pathEntryID(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	var update struct {
		ChannelURL      *string `json:"channel_url"`
		IntervalMinutes *int    `json:"interval_minutes"`
		Enabled         *bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if update.ChannelURL != nil {
		entry.ChannelURL = *update.ChannelURL
	}
	if update.IntervalMinutes != nil {
		entry.IntervalMinutes = *update.IntervalMinutes
	}
	if update.Enabled != nil {
		entry.Enabled = *update.Enabled
	}
	if err := entry.Validate(); err != nil {
		WriteServiceError(w, err)
		return
	}

	if err := h.watchlist.SaveEntry(r.Context(), entry); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, entry)
}

// DeleteHandler handles DELETE /api/watchlist/{id}
func (h *WatchlistHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id := pathEntryID(r)
	entry, err := h.watchlist.GetEntry(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if err := h.watchlist.DeleteEntry(r.Context(), id); err != nil {
		WriteServiceError(w, err)
		return
	}
	// Drop the cached listing the watchlist was maintaining for this channel
	if entry.ChannelID != "" {
		if err := h.catalogs.DeleteCatalog(r.Context(), entry.ChannelID); err != nil {
			h.logger.Warn().Err(err).Str("source_id", entry.ChannelID).Msg("Failed to delete cached catalog")
		}
	}
	WriteSuccess(w, "watchlist entry deleted")
}

// CheckHandler handles POST /api/watchlist/{id}/check, forcing an immediate
// check regardless of the entry's interval.
func (h *WatchlistHandler) CheckHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(pathEntryID(r), "/check")
	started, err := h.scheduler.CheckNow(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	entry, err := h.watchlist.GetEntry(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"started": started,
		"entry":   entry,
	})
}

func pathEntryID(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/api/watchlist/")
}
