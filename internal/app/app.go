// Package app wires configuration into the runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"PaperTracker/internal/config"
	"PaperTracker/internal/digest"
	"PaperTracker/internal/infrastructure/artifact"
	"PaperTracker/internal/infrastructure/fetch"
	"PaperTracker/internal/infrastructure/ml"
	"PaperTracker/internal/infrastructure/scheduler"
	"PaperTracker/internal/infrastructure/storage"
	"PaperTracker/internal/infrastructure/telegram"
	"PaperTracker/internal/logging"
	"PaperTracker/internal/observability"
	"PaperTracker/internal/ports"
	"PaperTracker/internal/run"
	"PaperTracker/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *storage.DB
	metrics  *observability.Metrics
	pipeline *usecase.Pipeline
	delivery *usecase.Delivery
	sched    ports.Scheduler
}

// New builds a fully wired application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.New()
	}

	fetcher := fetch.New(fetch.Config{
		Timeout:           cfg.Fetch.Timeout(),
		MaxAttempts:       cfg.Fetch.MaxAttempts,
		BackoffInitial:    cfg.Fetch.BackoffInitial(),
		BackoffMax:        cfg.Fetch.BackoffMax(),
		PolitenessMin:     cfg.Fetch.PolitenessMin(),
		PolitenessMax:     cfg.Fetch.PolitenessMax(),
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		BreakerEnabled:    cfg.Fetch.BreakerEnabled,
		MaxBodyBytes:      cfg.Fetch.MaxBodyBytes(),
	}, nil, baseLogger.With("component", "fetch"))

	artifacts, err := artifact.NewManager(cfg.Artifacts.Root, fetcher, cfg.Artifacts.ExtractText,
		baseLogger.With("component", "artifact"))
	if err != nil {
		db.Close()
		return nil, err
	}

	tracker := run.NewTracker(db, baseLogger.With("component", "run"))

	var scorer ports.RelevanceScorer
	if cfg.ML.InferenceURL != "" {
		scorer = ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineConfig{
		BaseURL:         cfg.Feed.BaseURL,
		Categories:      cfg.Feed.Categories,
		WindowDays:      cfg.Feed.WindowDays,
		MaxResults:      cfg.Feed.MaxResults,
		ArtifactsPerRun: cfg.Artifacts.MaxPerRun,
		Tracks:          cfg.TrackProfiles(),
	}, usecase.PipelineDeps{
		Fetcher:   fetcher,
		Repo:      db,
		Artifacts: artifacts,
		Scorer:    scorer,
		Tracker:   tracker,
		Metrics:   metrics,
		Logger:    baseLogger.With("component", "pipeline"),
	})

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	} else {
		notifier = logNotifier{logger: baseLogger.With("component", "notifier")}
	}

	delivery := usecase.NewDelivery(usecase.DeliveryConfig{
		MaxTotal:     cfg.Digest.MaxTotal,
		MaxPerTrack:  cfg.Digest.MaxPerTrack,
		DedupDays:    cfg.Digest.DedupDays,
		MinRelevance: cfg.Digest.MinRelevance,
		Tracks:       cfg.TrackProfiles(),
	}, usecase.DeliveryDeps{
		Selector: digest.NewSelector(db),
		Ledger:   db,
		Notifier: notifier,
		Tracker:  tracker,
		Metrics:  metrics,
		Logger:   baseLogger.With("component", "delivery"),
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		db:       db,
		metrics:  metrics,
		pipeline: pipeline,
		delivery: delivery,
		sched:    scheduler.New(cfg.Scheduler.CronExpression, cfg.Scheduler.Location()),
	}, nil
}

// Scan executes one scan pipeline run.
func (a *Application) Scan(ctx context.Context) error {
	return a.pipeline.Run(ctx)
}

// Digest executes one digest delivery run.
func (a *Application) Digest(ctx context.Context) error {
	return a.delivery.Run(ctx)
}

// Serve runs scan plus digest on the configured cron cadence until ctx is
// canceled. The metrics listener, when enabled, lives for the same span.
func (a *Application) Serve(ctx context.Context) error {
	var srv *http.Server
	if a.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		srv = &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics listener failed", "error", err)
			}
		}()
		a.logger.Info("metrics listening", "address", a.cfg.Metrics.Address)
	}

	err := a.sched.Start(ctx, func(fired time.Time) {
		a.logger.Info("scheduled run", "fired_at", fired)
		if err := a.Scan(ctx); err != nil {
			a.logger.Error("scheduled scan failed", "error", err)
		}
		if err := a.Digest(ctx); err != nil {
			a.logger.Error("scheduled digest failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.sched.Stop(stopCtx); err != nil {
		a.logger.Warn("scheduler stop timed out", "error", err)
	}
	if srv != nil {
		if err := srv.Shutdown(stopCtx); err != nil {
			a.logger.Warn("metrics shutdown failed", "error", err)
		}
	}
	return nil
}

// Close releases the application's resources.
func (a *Application) Close() error {
	return a.db.Close()
}

// logNotifier stands in when no outbound channel is configured.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Publish(ctx context.Context, message string) error {
	n.logger.Info("digest message", "body", message)
	return nil
}
