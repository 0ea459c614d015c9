package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"ArticlePoster/internal/config"
	"ArticlePoster/internal/infrastructure/images"
	"ArticlePoster/internal/infrastructure/llm"
	"ArticlePoster/internal/infrastructure/storage"
	"ArticlePoster/internal/infrastructure/wordpress"
	"ArticlePoster/internal/logging"
	"ArticlePoster/internal/ports"
	"ArticlePoster/internal/schedule"
	"ArticlePoster/internal/usecase"
)

// Minimum spacing between outbound model/image API calls during bulk
// generation.
const generationInterval = 5 * time.Second

// Application wires configuration to use cases and owns their lifecycle.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	store     *storage.Store
	register  *schedule.Register
	allocator *usecase.Allocator
	publisher *usecase.Publisher
	generator *usecase.Generator
}

// New opens the store and builds all components. Close must be called when
// done.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger, store: store}

	// Callbacks close over the application so the register can be built
	// before the components it drives.
	a.register = schedule.New(
		schedule.Config{
			Location:      cfg.Scheduler.Location(),
			SweepInterval: cfg.Scheduler.SweepInterval.Std(),
		},
		schedule.Callbacks{
			Fire: func(ctx context.Context, articleID string) {
				a.publisher.PublishArticle(ctx, articleID)
			},
			Daily: func(ctx context.Context) {
				if _, err := a.allocator.AllocateDaily(ctx, ports.ArticleFilter{}); err != nil {
					baseLogger.Error("daily allocation failed", "error", err)
				}
			},
			Sweep: func(ctx context.Context) {
				if _, err := a.publisher.RunDue(ctx); err != nil {
					baseLogger.Error("recovery sweep failed", "error", err)
				}
			},
		},
		baseLogger.With("component", "register"),
	)

	windows := make([]usecase.Window, 0, len(cfg.Scheduler.Windows))
	for _, w := range cfg.Scheduler.Windows {
		windows = append(windows, usecase.Window{Start: w.Start, End: w.End})
	}

	a.allocator = usecase.NewAllocator(usecase.AllocatorDeps{
		Articles:     store,
		PostLog:      store,
		Register:     a.register,
		Windows:      windows,
		BatchSize:    cfg.Scheduler.BatchSize,
		BatchDays:    cfg.Scheduler.BatchDays,
		PerDay:       cfg.Scheduler.PerDay,
		FallbackHour: cfg.Scheduler.FallbackHour,
		Location:     cfg.Scheduler.Location(),
		Logger:       baseLogger.With("component", "allocator"),
	})

	a.publisher = usecase.NewPublisher(usecase.PublisherDeps{
		Articles:     store,
		Sites:        store,
		PostLog:      store,
		Publisher:    wordpress.NewClient(nil, baseLogger.With("component", "wordpress")),
		Register:     a.register,
		CategoryName: cfg.Publish.CategoryName,
		Timeout:      cfg.Scheduler.PublishTimeout.Std(),
		Logger:       baseLogger.With("component", "publisher"),
	})

	a.generator = usecase.NewGenerator(usecase.GeneratorDeps{
		Articles: store,
		PostLog:  store,
		Chat:     llm.NewOpenAIClient(cfg.OpenAI),
		Images:   images.NewPixabayClient(cfg.Pixabay),
		Limiter:  rate.NewLimiter(rate.Every(generationInterval), 1),
		Logger:   baseLogger.With("component", "generator"),
	})

	return a, nil
}

// Run starts the job register, rebuilds one-shot jobs from persisted state,
// runs a catch-up sweep, and blocks until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.register.Start(ctx); err != nil {
		return fmt.Errorf("start register: %w", err)
	}
	defer a.register.Stop()

	if err := a.rebuildJobs(ctx); err != nil {
		return err
	}
	if _, err := a.publisher.RunDue(ctx); err != nil {
		a.logger.Error("startup recovery sweep failed", "error", err)
	}

	a.logger.Info("scheduler running")
	<-ctx.Done()
	return nil
}

// rebuildJobs re-registers a one-shot timer for every article persisted in
// the scheduled state with a future fire time. Articles whose time already
// passed are left for the recovery sweep.
func (a *Application) rebuildJobs(ctx context.Context) error {
	scheduled, err := a.store.Scheduled(ctx)
	if err != nil {
		return fmt.Errorf("load scheduled articles: %w", err)
	}

	now := time.Now()
	restored := 0
	for _, article := range scheduled {
		if article.ScheduledTime == nil || !article.ScheduledTime.After(now) {
			continue
		}
		if a.register.Schedule(article.ID, *article.ScheduledTime) {
			restored++
		}
	}
	a.logger.Info("jobs rebuilt from store", "scheduled", len(scheduled), "restored", restored)
	return nil
}

// Allocator exposes the allocation use case for one-shot commands.
func (a *Application) Allocator() *usecase.Allocator { return a.allocator }

// Publisher exposes the publish/sweep/retry use case for one-shot commands.
func (a *Application) Publisher() *usecase.Publisher { return a.publisher }

// Generator exposes the bulk-generation use case for one-shot commands.
func (a *Application) Generator() *usecase.Generator { return a.generator }

// Store exposes the repositories for one-shot commands.
func (a *Application) Store() *storage.Store { return a.store }

// Close releases the store.
func (a *Application) Close() error {
	return a.store.Close()
}
