package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/scribo/internal/models"
)

// RunExecutor performs the actual work of a run: planning the source,
// fetching and transcribing items, and reporting progress through events.
// Execute blocks until the run reaches a terminal state or ctx is cancelled.
type RunExecutor interface {
	Execute(ctx context.Context, run *models.Run) error
}

// RunService manages run lifecycle: creation, start, cancellation, lookup
type RunService interface {
	CreateRun(ctx context.Context, req *models.RunRequest) (*models.Run, error)
	CreateCachedRun(ctx context.Context, req *models.RunRequest, plan *models.RunPlan) (*models.Run, error)
	StartRun(ctx context.Context, runID string) error
	CancelRun(ctx context.Context, runID string) error
	GetRun(ctx context.Context, runID string) (*models.Run, error)
	ListRuns(ctx context.Context, opts *RunListOptions) ([]*models.Run, error)
	ActiveRunCount() int
	WaitForIdle(timeout time.Duration) bool
}

// EventSink receives run events from an executor. The run manager implements
// it; executors never touch buffers or storage directly.
type EventSink interface {
	Emit(event models.RunEvent)
}

// Planner determines what work a run has left by comparing the source's
// catalog against the processed-item archive.
type Planner interface {
	Plan(ctx context.Context, sourceURL string, force bool) (*models.RunPlan, error)
	InvalidateSource(ctx context.Context, sourceID string)
}

// Notifier delivers run completion callbacks. Delivery is asynchronous and
// best-effort; failures are logged, never surfaced to the run.
type Notifier interface {
	NotifyRunFinished(run *models.Run)
}

// SchedulerService periodically checks the watchlist and starts runs for
// sources that are due.
type SchedulerService interface {
	Start() error
	Stop()
	TriggerOnce(ctx context.Context) (checked, started int, err error)
	CheckNow(ctx context.Context, entryID string) (started bool, err error)
}
