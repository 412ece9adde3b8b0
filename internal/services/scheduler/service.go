package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
)

// Service periodically walks the watchlist and starts runs for sources with
// new items. One tick processes entries sequentially; ticks never overlap.
type Service struct {
	mu        sync.Mutex
	cron      *cron.Cron
	running   bool
	ticking   bool
	watchlist interfaces.WatchlistStorage
	planner   interfaces.Planner
	runs      interfaces.RunService
	config    *common.SchedulerConfig
	logger    arbor.ILogger
	now       func() time.Time
}

// NewService creates the watchlist scheduler
func NewService(watchlist interfaces.WatchlistStorage, planner interfaces.Planner, runs interfaces.RunService, config *common.SchedulerConfig, logger arbor.ILogger) *Service {
	return &Service{
		cron:      cron.New(),
		watchlist: watchlist,
		planner:   planner,
		runs:      runs,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules the periodic tick. Idempotent; returns immediately.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	spec := fmt.Sprintf("@every %s", s.config.Interval)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("failed to schedule watchlist check: %w", err)
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().Dur("interval", s.config.Interval).Msg("Watchlist scheduler started")
	return nil
}

// Stop halts future ticks. A tick already in flight finishes on its own.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	s.logger.Info().Msg("Watchlist scheduler stopped")
}

// tick runs one scheduled pass, skipping entirely if the previous one is
// still going
func (s *Service) tick() {
	s.mu.Lock()
	if s.ticking {
		s.mu.Unlock()
		s.logger.Warn().Msg("Watchlist check still in progress, skipping tick")
		return
	}
	s.ticking = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.ticking = false
		s.mu.Unlock()
	}()

	checked, started, err := s.TriggerOnce(context.Background())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Watchlist check failed")
		return
	}
	if started > 0 {
		s.logger.Info().Int("checked", checked).Int("runs", started).Msg("Watchlist check started runs")
	}
}

// TriggerOnce checks every enabled, due watchlist entry once and starts runs
// for the ones with new items. Per-entry failures are logged and skipped; the
// pass keeps going. Returns how many entries were checked and how many runs
// were started.
func (s *Service) TriggerOnce(ctx context.Context) (checked, started int, err error) {
	entries, err := s.watchlist.ListEntries(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list watchlist: %w", err)
	}

	now := s.now()
	for _, entry := range entries {
		if !entry.Enabled || !entry.Due(s.config.Interval, now) {
			continue
		}
		checked++
		if s.checkEntry(ctx, entry) {
			started++
		}
	}
	return checked, started, nil
}

// CheckNow checks a single entry on demand, ignoring its interval. Disabled
// entries are still checked; a manual trigger is an explicit request.
func (s *Service) CheckNow(ctx context.Context, entryID string) (bool, error) {
	entry, err := s.watchlist.GetEntry(ctx, entryID)
	if err != nil {
		return false, err
	}
	return s.checkEntry(ctx, entry), nil
}

// checkEntry processes one due entry. Returns true when a run was started.
// Whatever happens, LastCheckedAt is stamped so a failing entry does not get
// rechecked every tick.
func (s *Service) checkEntry(ctx context.Context, entry *models.WatchlistEntry) bool {
	checkedAt := s.now()
	entry.LastCheckedAt = &checkedAt
	defer func() {
		if err := s.watchlist.SaveEntry(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("Failed to stamp watchlist entry")
		}
	}()

	kind := models.ClassifySource(entry.ChannelURL)
	if !kind.Schedulable() && !s.config.AllowAnySource {
		s.logger.Warn().
			Str("entry_id", entry.ID).
			Str("kind", string(kind)).
			Msg("Watchlist entry is not an enumerable source, skipping")
		return false
	}

	if s.config.MaxActiveRuns > 0 && s.runs.ActiveRunCount() >= s.config.MaxActiveRuns {
		s.logger.Debug().
			Str("entry_id", entry.ID).
			Int("ceiling", s.config.MaxActiveRuns).
			Msg("Active run ceiling reached, deferring watchlist entry")
		return false
	}

	plan, err := s.planner.Plan(ctx, entry.ChannelURL, false)
	if err != nil {
		s.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("Watchlist planning failed")
		return false
	}

	// Refresh discovered identity regardless of whether a run starts
	entry.ChannelID = plan.SourceID
	entry.ChannelTitle = plan.SourceTitle

	req := &models.RunRequest{URL: entry.ChannelURL}

	if len(plan.NewItems) == 0 {
		run, err := s.runs.CreateCachedRun(ctx, req, plan)
		if err != nil {
			s.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("Failed to record cached watchlist run")
			return false
		}
		entry.LastRunID = run.ID
		return false
	}

	run, err := s.runs.CreateRun(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("Failed to create watchlist run")
		return false
	}
	if err := s.runs.StartRun(ctx, run.ID); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to start watchlist run")
		return false
	}

	entry.LastRunID = run.ID
	s.logger.Info().
		Str("entry_id", entry.ID).
		Str("run_id", run.ID).
		Int("new_items", len(plan.NewItems)).
		Msg("Watchlist run started")
	return true
}
