package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/events"
	"github.com/ternarybob/scribo/internal/interfaces"
)

const keepAliveInterval = 15 * time.Second

// EventsHandler streams run progress over Server-Sent Events. Reconnecting
// clients resume from their last seen event via the Last-Event-ID header or
// the `after` query parameter; everything newer is replayed from the buffer
// before the live stream takes over.
type EventsHandler struct {
	hub    *events.Hub
	runs   interfaces.RunService
	logger arbor.ILogger
}

// NewEventsHandler creates an SSE events handler
func NewEventsHandler(hub *events.Hub, runs interfaces.RunService, logger arbor.ILogger) *EventsHandler {
	return &EventsHandler{
		hub:    hub,
		runs:   runs,
		logger: logger,
	}
}

// RunEventsHandler handles GET /api/runs/{id}/events
func (h *EventsHandler) RunEventsHandler(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	runID = strings.TrimSuffix(runID, "/events")
	if runID == "" {
		WriteError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	if _, err := h.runs.GetRun(r.Context(), runID); err != nil {
		WriteServiceError(w, err)
		return
	}

	h.stream(w, r, runID, h.hub.RunBuffer(runID))
}

// GlobalEventsHandler handles GET /api/events, the system-wide stream of
// run_created/run_updated envelopes consumed by dashboards.
func (h *EventsHandler) GlobalEventsHandler(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "", h.hub.GlobalBuffer())
}

func (h *EventsHandler) stream(w http.ResponseWriter, r *http.Request, runID string, buffer *events.Buffer) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	cursor := parseCursor(r)

	// Subscribe before replaying so nothing falls between buffer and stream
	sub := h.hub.Subscribe(runID, 0)
	defer h.hub.Unsubscribe(sub)

	lastSent := uint64(0)
	for _, entry := range buffer.ListAfter(cursor) {
		if err := writeSSE(w, entry); err != nil {
			return
		}
		lastSent = entry.ID
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry := <-sub.C:
			if entry.ID <= lastSent {
				continue
			}
			if err := writeSSE(w, entry); err != nil {
				return
			}
			lastSent = entry.ID
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// parseCursor reads the resume position from Last-Event-ID or ?after.
// Absent or malformed values replay the whole buffer.
func parseCursor(r *http.Request) int64 {
	raw := r.Header.Get("Last-Event-ID")
	if after := r.URL.Query().Get("after"); after != "" {
		raw = after
	}
	if raw == "" {
		return 0
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cursor < 0 {
		return 0
	}
	return cursor
}

func writeSSE(w http.ResponseWriter, entry events.BufferedEvent) error {
	data, err := json.Marshal(entry.Event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", entry.ID, entry.Event.Type, data)
	return err
}
