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
	"github.com/ternarybob/scribo/internal/events"
	"github.com/ternarybob/scribo/internal/models"
)

func newEventsFixture(t *testing.T) (*EventsHandler, *events.Hub, *stubRunService) {
	t.Helper()
	hub := events.NewHub(100, 100, common.GetLogger())
	service := newStubRunService()
	return NewEventsHandler(hub, service, common.GetLogger()), hub, service
}

// doneRequest builds a request whose context is already cancelled so the
// stream ends right after the buffered replay.
func doneRequest(method, target string) *http.Request {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return httptest.NewRequest(method, target, nil).WithContext(ctx)
}

func TestRunEventsReplayFromStart(t *testing.T) {
	h, hub, service := newEventsFixture(t)
	run, err := service.CreateRun(context.Background(), &models.RunRequest{URL: "https://www.youtube.com/@test"})
	require.NoError(t, err)

	hub.PublishRun(run.ID, models.NewRunEvent(models.EventRunStart, run.ID))
	hub.PublishRun(run.ID, models.NewRunEvent(models.EventRunDone, run.ID))

	rec := httptest.NewRecorder()
	h.RunEventsHandler(rec, doneRequest(http.MethodGet, "/api/runs/"+run.ID+"/events"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "id: 1\nevent: run_start\n")
	assert.Contains(t, body, "id: 2\nevent: run_done\n")
}

func TestRunEventsReplayAfterCursor(t *testing.T) {
	h, hub, service := newEventsFixture(t)
	run, err := service.CreateRun(context.Background(), &models.RunRequest{URL: "https://www.youtube.com/@test"})
	require.NoError(t, err)

	hub.PublishRun(run.ID, models.NewRunEvent(models.EventRunStart, run.ID))
	hub.PublishRun(run.ID, models.NewRunEvent(models.EventItemStart, run.ID))
	hub.PublishRun(run.ID, models.NewRunEvent(models.EventItemDone, run.ID))

	rec := httptest.NewRecorder()
	h.RunEventsHandler(rec, doneRequest(http.MethodGet, "/api/runs/"+run.ID+"/events?after=2"))

	body := rec.Body.String()
	assert.NotContains(t, body, "id: 1\n")
	assert.NotContains(t, body, "id: 2\n")
	assert.Contains(t, body, "id: 3\nevent: item_done\n")
}

func TestRunEventsLastEventIDHeader(t *testing.T) {
	h, hub, service := newEventsFixture(t)
	run, err := service.CreateRun(context.Background(), &models.RunRequest{URL: "https://www.youtube.com/@test"})
	require.NoError(t, err)

	hub.PublishRun(run.ID, models.NewRunEvent(models.EventRunStart, run.ID))
	hub.PublishRun(run.ID, models.NewRunEvent(models.EventRunDone, run.ID))

	req := doneRequest(http.MethodGet, "/api/runs/"+run.ID+"/events")
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()
	h.RunEventsHandler(rec, req)

	body := rec.Body.String()
	assert.NotContains(t, body, "event: run_start\n")
	assert.Contains(t, body, "id: 2\nevent: run_done\n")
}

func TestRunEventsUnknownRun(t *testing.T) {
	h, _, _ := newEventsFixture(t)

	rec := httptest.NewRecorder()
	h.RunEventsHandler(rec, doneRequest(http.MethodGet, "/api/runs/run_missing/events"))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunEventsLiveDelivery(t *testing.T) {
	h, hub, service := newEventsFixture(t)
	run, err := service.CreateRun(context.Background(), &models.RunRequest{URL: "https://www.youtube.com/@test"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		h.RunEventsHandler(rec, req)
	}()

	// Give the handler a moment to subscribe, then publish live
	time.Sleep(100 * time.Millisecond)
	hub.PublishRun(run.ID, models.NewRunEvent(models.EventRunProgress, run.ID))
	time.Sleep(100 * time.Millisecond)

	cancel()
	<-streamDone

	assert.Contains(t, rec.Body.String(), "event: run_progress\n")
}

func TestGlobalEventsStream(t *testing.T) {
	h, hub, _ := newEventsFixture(t)

	event := models.NewRunEvent(models.EventRunCreated, "run_1")
	hub.PublishGlobal(event)

	rec := httptest.NewRecorder()
	h.GlobalEventsHandler(rec, doneRequest(http.MethodGet, "/api/events"))

	assert.Contains(t, rec.Body.String(), "event: run_created\n")
}
