package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/events"
	"github.com/ternarybob/scribo/internal/handlers"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/ratelimit"
	"github.com/ternarybob/scribo/internal/services/catalog"
	"github.com/ternarybob/scribo/internal/services/executor"
	"github.com/ternarybob/scribo/internal/services/media"
	"github.com/ternarybob/scribo/internal/services/runs"
	"github.com/ternarybob/scribo/internal/services/scheduler"
	"github.com/ternarybob/scribo/internal/services/transcribe"
	"github.com/ternarybob/scribo/internal/services/webhook"
	"github.com/ternarybob/scribo/internal/storage"
	badgerstore "github.com/ternarybob/scribo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	Writer         *storage.Writer
	Hub            *events.Hub

	CatalogService *catalog.Service
	Planner        interfaces.Planner
	RunManager     *runs.Manager
	Scheduler      interfaces.SchedulerService
	Dispatcher     *webhook.Dispatcher
	Balancer       *transcribe.Balancer

	// Rate limiter classes; each keeps its own bucket storage
	WriteLimiter    *ratelimit.Limiter
	ReadLimiter     *ratelimit.Limiter
	HealthLimiter   *ratelimit.Limiter
	AuthFailLimiter *ratelimit.Limiter

	// HTTP handlers
	RunHandler       *handlers.RunHandler
	EventsHandler    *handlers.EventsHandler
	WSHandler        *handlers.WebSocketHandler
	WatchlistHandler *handlers.WatchlistHandler
	StatusHandler    *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.initHandlers()

	// Recover runs interrupted by the previous process and rebuild the
	// in-memory event logs from the durable ones
	if err := app.RunManager.LoadFromStorage(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to reload run state: %w", err)
	}

	return app, nil
}

func (a *App) initStorage() error {
	manager, err := badgerstore.NewManager(&a.Config.Storage.Badger, a.Logger)
	if err != nil {
		return err
	}
	a.StorageManager = manager
	a.Writer = storage.NewWriter(manager, a.Logger)
	return nil
}

func (a *App) initServices() error {
	a.Hub = events.NewHub(a.Config.Events.GlobalBufferSize, a.Config.Events.RunBufferSize, a.Logger)

	a.WriteLimiter = ratelimit.NewLimiter(a.Config.RateLimit.Write, a.Logger)
	a.ReadLimiter = ratelimit.NewLimiter(a.Config.RateLimit.Read, a.Logger)
	a.HealthLimiter = ratelimit.NewLimiter(a.Config.RateLimit.Health, a.Logger)
	a.AuthFailLimiter = ratelimit.NewLimiter(a.Config.RateLimit.AuthFailure, a.Logger)

	enumerator := media.NewEnumerator(&a.Config.Media, a.Logger)
	fetcher := media.NewFetcher(&a.Config.Media, a.Logger)

	a.CatalogService = catalog.NewService(enumerator, a.StorageManager.CatalogStorage(), a.Writer, &a.Config.Catalog, a.Logger)
	a.Planner = catalog.NewPlanner(a.CatalogService, a.StorageManager.ArchiveStorage(), a.Logger)

	a.Balancer = transcribe.NewBalancer(&a.Config.Transcribe, a.Logger)
	transcriber := transcribe.NewClient(a.Balancer, &a.Config.Transcribe, a.Logger)

	guard := webhook.NewGuard(a.Config.Webhook.AllowedDomains)
	signer := webhook.NewSigner(a.Config.Webhook.Secret, a.Config.Webhook.MaxAge)
	a.Dispatcher = webhook.NewDispatcher(guard, signer, &a.Config.Webhook, a.Logger)

	a.RunManager = runs.NewManager(a.Hub, a.Writer, a.StorageManager, a.Dispatcher, &a.Config.Runs, a.Logger)

	runExecutor := executor.NewExecutor(a.Planner, fetcher, transcriber, a.Writer, &a.Config.Runs, &a.Config.Media, a.Logger)
	runExecutor.SetSink(a.RunManager)
	a.RunManager.SetExecutor(runExecutor)

	a.Scheduler = scheduler.NewService(a.StorageManager.WatchlistStorage(), a.Planner, a.RunManager, &a.Config.Scheduler, a.Logger)
	return nil
}

func (a *App) initHandlers() {
	a.RunHandler = handlers.NewRunHandler(a.RunManager, a.Logger)
	a.EventsHandler = handlers.NewEventsHandler(a.Hub, a.RunManager, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.Hub, a.Logger)
	a.WatchlistHandler = handlers.NewWatchlistHandler(a.StorageManager.WatchlistStorage(), a.StorageManager.CatalogStorage(), a.Scheduler, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.StorageManager, a.RunManager, a.Logger)
}

// Close releases application resources in dependency order: no new scheduled
// work, wait for in-flight runs, drain pending writes, then close the store.
func (a *App) Close() error {
	a.Scheduler.Stop()

	if !a.RunManager.WaitForIdle(30 * time.Second) {
		a.Logger.Warn().Msg("Active runs did not finish before shutdown deadline")
	}

	a.WriteLimiter.Stop()
	a.ReadLimiter.Stop()
	a.HealthLimiter.Stop()
	a.AuthFailLimiter.Stop()

	a.Writer.Stop()

	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	a.Logger.Info().Msg("Application closed")
	return nil
}
