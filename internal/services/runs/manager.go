package runs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/events"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/ternarybob/scribo/internal/storage"
)

// Manager owns every run: lifecycle transitions, event ingestion, timeout
// enforcement, and cancellation. In-memory state is authoritative; the
// storage writer trails behind it. All transitions happen under one mutex,
// and a run that has reached a terminal state never leaves it; whichever of
// completion, timeout, or cancel gets there first wins.
type Manager struct {
	mu       sync.Mutex
	runs     map[string]*models.Run
	cancels  map[string]context.CancelFunc
	timers   map[string]*time.Timer
	active   int
	executor interfaces.RunExecutor
	hub      *events.Hub
	writer   *storage.Writer
	store    interfaces.StorageManager
	notifier interfaces.Notifier
	config   *common.RunsConfig
	logger   arbor.ILogger
}

// NewManager creates the run manager. The executor is wired afterwards with
// SetExecutor because it needs the manager as its event sink.
func NewManager(hub *events.Hub, writer *storage.Writer, store interfaces.StorageManager, notifier interfaces.Notifier, config *common.RunsConfig, logger arbor.ILogger) *Manager {
	return &Manager{
		runs:     make(map[string]*models.Run),
		cancels:  make(map[string]context.CancelFunc),
		timers:   make(map[string]*time.Timer),
		hub:      hub,
		writer:   writer,
		store:    store,
		notifier: notifier,
		config:   config,
		logger:   logger,
	}
}

// SetExecutor wires the run executor. Must be called before StartRun.
func (m *Manager) SetExecutor(executor interfaces.RunExecutor) {
	m.executor = executor
}

// LoadFromStorage rebuilds in-memory state from persisted runs and event
// logs. Runs persisted as queued or running were interrupted by a restart
// and are marked failed; their executors are gone.
func (m *Manager) LoadFromStorage(ctx context.Context) error {
	persisted, err := m.store.RunStorage().ListRuns(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to load runs: %w", err)
	}

	orphaned := 0
	for _, run := range persisted {
		if !run.IsTerminal() {
			now := time.Now()
			run.Status = models.RunStatusError
			run.Error = "interrupted by restart"
			run.FinishedAt = &now
			orphaned++
			if err := m.store.RunStorage().SaveRun(ctx, run); err != nil {
				m.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to persist orphaned run")
			}
		}

		records, err := m.store.EventLogStorage().GetEvents(ctx, run.ID)
		if err != nil {
			m.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to load event log")
		} else if len(records) > 0 {
			buf := m.hub.RunBuffer(run.ID)
			for _, record := range records {
				buf.AppendWithID(record.EventID, record.Event)
			}
			// The next ID comes from the durable log, not from the order
			// GetEvents happened to return
			maxID, err := m.store.EventLogStorage().MaxEventID(ctx, run.ID)
			if err != nil {
				m.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to read max event ID")
				maxID = records[len(records)-1].EventID
			}
			buf.SetNextID(maxID + 1)
		}

		m.mu.Lock()
		m.runs[run.ID] = run
		m.mu.Unlock()
	}

	m.logger.Info().
		Int("runs", len(persisted)).
		Int("orphaned", orphaned).
		Msg("Run state reloaded from storage")
	return nil
}

// CreateRun validates the request and registers a queued run
func (m *Manager) CreateRun(ctx context.Context, req *models.RunRequest) (*models.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := &models.Run{
		ID:          models.NewRunID(),
		Status:      models.RunStatusQueued,
		InputURL:    req.InputURL(),
		Force:       req.Force,
		CallbackURL: req.CallbackURL,
		Overrides:   SanitizeOverrides(req.Overrides),
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	m.runs[run.ID] = run
	clone := run.Clone()
	m.mu.Unlock()

	m.writer.SaveRun(clone)
	m.publishGlobal(models.EventRunCreated, clone)

	m.logger.Info().Str("run_id", run.ID).Str("input", run.InputURL).Msg("Run created")
	return clone, nil
}

// CreateCachedRun registers a run that is already complete because planning
// found nothing new to process. No executor is started; the run is born in
// the done state with its stats taken from the plan.
func (m *Manager) CreateCachedRun(ctx context.Context, req *models.RunRequest, plan *models.RunPlan) (*models.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	run := &models.Run{
		ID:             models.NewRunID(),
		Status:         models.RunStatusDone,
		InputURL:       req.InputURL(),
		Force:          req.Force,
		CallbackURL:    req.CallbackURL,
		CreatedAt:      now,
		StartedAt:      &now,
		FinishedAt:     &now,
		ChannelID:      plan.SourceID,
		ChannelTitle:   plan.SourceTitle,
		ChannelDirName: plan.DirName,
		Stats: &models.RunStats{
			Skipped: plan.Skipped,
			Total:   plan.Total,
		},
	}

	m.mu.Lock()
	m.runs[run.ID] = run
	clone := run.Clone()
	m.mu.Unlock()

	m.writer.SaveRun(clone)
	m.publishGlobal(models.EventRunCreated, clone)

	done := models.NewRunEvent(models.EventRunDone, run.ID)
	done.Stats = clone.Stats
	m.appendRunEvent(done)

	if m.notifier != nil {
		m.notifier.NotifyRunFinished(clone)
	}

	m.logger.Info().Str("run_id", run.ID).Int("skipped", plan.Skipped).Msg("Cached run created, nothing new to process")
	return clone, nil
}

// StartRun launches the executor for a queued run
func (m *Manager) StartRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	run, ok := m.runs[runID]
	if !ok {
		m.mu.Unlock()
		return models.ErrUnknownRun
	}
	if run.Status != models.RunStatusQueued {
		m.mu.Unlock()
		return models.ErrAlreadyStarted
	}
	if m.executor == nil {
		m.mu.Unlock()
		return fmt.Errorf("run executor not configured")
	}

	now := time.Now()
	run.Status = models.RunStatusRunning
	run.StartedAt = &now

	// The executor's context is detached from the HTTP request that started
	// the run; only CancelRun, timeout, or executor completion end it
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancels[runID] = cancel
	if m.config.Timeout > 0 {
		m.timers[runID] = time.AfterFunc(m.config.Timeout, func() {
			m.timeoutRun(runID)
		})
	}
	m.active++
	clone := run.Clone()
	m.mu.Unlock()

	m.writer.SaveRun(clone)
	m.publishGlobal(models.EventRunUpdated, clone)

	common.SafeGo(m.logger, "run-executor-"+runID, func() {
		m.runExecutor(runCtx, clone)
	})

	m.logger.Info().Str("run_id", runID).Msg("Run started")
	return nil
}

// CancelRun requests cancellation. A queued run cancels immediately; a
// running one gets its context cancelled and finishes when the executor
// acknowledges. Cancelling a terminal run is a no-op.
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	run, ok := m.runs[runID]
	if !ok {
		m.mu.Unlock()
		return models.ErrUnknownRun
	}

	switch run.Status {
	case models.RunStatusQueued:
		m.finishLocked(run, models.RunStatusCancelled, "", nil)
		clone := run.Clone()
		m.mu.Unlock()

		m.writer.SaveRun(clone)
		cancelled := models.NewRunEvent(models.EventRunCancelled, runID)
		m.appendRunEvent(cancelled)
		m.afterFinish(clone)
		m.logger.Info().Str("run_id", runID).Msg("Queued run cancelled")
		return nil

	case models.RunStatusRunning:
		run.CancelRequested = true
		cancel := m.cancels[runID]
		clone := run.Clone()
		m.mu.Unlock()

		m.writer.SaveRun(clone)
		if cancel != nil {
			cancel()
		}
		m.logger.Info().Str("run_id", runID).Msg("Run cancellation requested")
		return nil

	default:
		// Already terminal; cancel is idempotent
		m.mu.Unlock()
		return nil
	}
}

// GetRun returns a copy of the run
func (m *Manager) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, models.ErrUnknownRun
	}
	return run.Clone(), nil
}

// ListRuns returns copies of runs, newest first, optionally filtered
func (m *Manager) ListRuns(ctx context.Context, opts *interfaces.RunListOptions) ([]*models.Run, error) {
	m.mu.Lock()
	all := make([]*models.Run, 0, len(m.runs))
	for _, run := range m.runs {
		if opts != nil && opts.Status != "" && run.Status != opts.Status {
			continue
		}
		all = append(all, run.Clone())
	}
	m.mu.Unlock()

	sortRunsByCreated(all)

	if opts != nil {
		if opts.Offset > 0 {
			if opts.Offset >= len(all) {
				return []*models.Run{}, nil
			}
			all = all[opts.Offset:]
		}
		if opts.Limit > 0 && opts.Limit < len(all) {
			all = all[:opts.Limit]
		}
	}
	return all, nil
}

// ActiveRunCount reports runs currently queued or running
func (m *Manager) ActiveRunCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, run := range m.runs {
		if !run.IsTerminal() {
			count++
		}
	}
	return count
}

// WaitForIdle blocks until no executors are running or the timeout elapses.
// Returns false on timeout; executors are never hard-killed, the caller just
// stops waiting for them.
func (m *Manager) WaitForIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		idle := m.active == 0
		m.mu.Unlock()
		if idle {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Emit ingests one event from an executor: append to the run's log, persist,
// enrich the run record, and handle terminal transitions. Implements
// interfaces.EventSink.
func (m *Manager) Emit(event models.RunEvent) {
	if event.RunID == "" {
		return
	}
	m.appendRunEvent(event)

	m.mu.Lock()
	run, ok := m.runs[event.RunID]
	if !ok {
		m.mu.Unlock()
		return
	}

	changed := m.enrichLocked(run, event)

	var finished *models.Run
	if event.IsTerminal() && run.Status == models.RunStatusRunning {
		status := models.RunStatusDone
		switch event.Type {
		case models.EventRunError:
			status = models.RunStatusError
		case models.EventRunCancelled:
			status = models.RunStatusCancelled
		}
		m.finishLocked(run, status, event.Error, event.Stats)
		finished = run.Clone()
		changed = true
	}
	clone := run.Clone()
	m.mu.Unlock()

	if changed {
		m.writer.SaveRun(clone)
		m.publishGlobal(models.EventRunUpdated, clone)
	}
	if finished != nil {
		m.afterFinish(finished)
	}
}

// runExecutor drives one run to completion and settles its final state if
// the executor returned without emitting a terminal event.
func (m *Manager) runExecutor(ctx context.Context, run *models.Run) {
	err := m.executor.Execute(ctx, run)

	m.mu.Lock()
	current, ok := m.runs[run.ID]
	if ok && current.Status == models.RunStatusRunning {
		// Executor ended without a terminal event; settle from its error
		switch {
		case current.CancelRequested && ctx.Err() != nil:
			m.finishLocked(current, models.RunStatusCancelled, "", nil)
		case err != nil:
			m.finishLocked(current, models.RunStatusError, err.Error(), nil)
		default:
			m.finishLocked(current, models.RunStatusError, "executor finished without reporting a result", nil)
		}
		clone := current.Clone()
		m.mu.Unlock()

		terminal := models.NewRunEvent(terminalEventFor(clone.Status), run.ID)
		terminal.Error = clone.Error
		m.appendRunEvent(terminal)

		m.writer.SaveRun(clone)
		m.publishGlobal(models.EventRunUpdated, clone)
		m.afterFinish(clone)
	} else {
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}

// timeoutRun marks a still-running run as failed by timeout and cancels its
// executor. If the run already finished this is a no-op.
func (m *Manager) timeoutRun(runID string) {
	m.mu.Lock()
	run, ok := m.runs[runID]
	if !ok || run.Status != models.RunStatusRunning {
		m.mu.Unlock()
		return
	}
	m.finishLocked(run, models.RunStatusError, fmt.Sprintf("timeout: run exceeded %s", m.config.Timeout), nil)
	cancel := m.cancels[runID]
	clone := run.Clone()
	m.mu.Unlock()

	failed := models.NewRunEvent(models.EventRunError, runID)
	failed.Error = clone.Error
	m.appendRunEvent(failed)

	if cancel != nil {
		cancel()
	}
	m.writer.SaveRun(clone)
	m.publishGlobal(models.EventRunUpdated, clone)
	m.afterFinish(clone)

	m.logger.Warn().Str("run_id", runID).Dur("timeout", m.config.Timeout).Msg("Run timed out")
}

// finishLocked applies a terminal transition. Caller holds the mutex and has
// already verified the run is not terminal.
func (m *Manager) finishLocked(run *models.Run, status models.RunStatus, errMsg string, stats *models.RunStats) {
	now := time.Now()
	run.Status = status
	run.FinishedAt = &now
	if errMsg != "" {
		run.Error = errMsg
	}
	if stats != nil {
		s := *stats
		run.Stats = &s
	}

	if timer, ok := m.timers[run.ID]; ok {
		timer.Stop()
		delete(m.timers, run.ID)
	}
	if cancel, ok := m.cancels[run.ID]; ok {
		delete(m.cancels, run.ID)
		// Release the executor's context resources
		defer cancel()
	}
}

// afterFinish runs the detached side effects of a terminal transition
func (m *Manager) afterFinish(run *models.Run) {
	if m.notifier != nil {
		m.notifier.NotifyRunFinished(run)
	}
}

// enrichLocked copies identity and progress details from an event onto the
// run record. Returns true when the record changed.
func (m *Manager) enrichLocked(run *models.Run, event models.RunEvent) bool {
	changed := false
	switch event.Type {
	case models.EventRunStart:
		if event.ChannelID != "" {
			run.ChannelID = event.ChannelID
			run.ChannelTitle = event.ChannelTitle
			run.ChannelDirName = event.ChannelDirName
			changed = true
		}
	case models.EventItemStart:
		if event.VideoID != "" {
			run.PreviewVideoID = event.VideoID
			run.PreviewTitle = event.VideoTitle
			changed = true
		}
	case models.EventRunProgress:
		if run.Stats == nil {
			run.Stats = &models.RunStats{}
		}
		run.Stats.Total = event.Total
		changed = true
	}
	return changed
}

// appendRunEvent writes one event to the run's live log and the durable log
func (m *Manager) appendRunEvent(event models.RunEvent) {
	entry := m.hub.PublishRun(event.RunID, event)
	m.writer.AppendEvent(event.RunID, entry.ID, event)
}

// publishGlobal emits a run envelope on the global stream
func (m *Manager) publishGlobal(eventType models.RunEventType, run *models.Run) {
	event := models.NewRunEvent(eventType, run.ID)
	event.Run = run
	m.hub.PublishGlobal(event)
}

func terminalEventFor(status models.RunStatus) models.RunEventType {
	switch status {
	case models.RunStatusCancelled:
		return models.EventRunCancelled
	case models.RunStatusDone:
		return models.EventRunDone
	default:
		return models.EventRunError
	}
}

func sortRunsByCreated(runs []*models.Run) {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
}
