package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"SubmissionRelay/internal/channels"
	"SubmissionRelay/internal/classify"
	"SubmissionRelay/internal/config"
	"SubmissionRelay/internal/format"
	"SubmissionRelay/internal/infrastructure/httpapi"
	"SubmissionRelay/internal/infrastructure/scheduler"
	"SubmissionRelay/internal/infrastructure/source"
	"SubmissionRelay/internal/infrastructure/storage"
	"SubmissionRelay/internal/infrastructure/telegram"
	"SubmissionRelay/internal/infrastructure/webhook"
	"SubmissionRelay/internal/logging"
	"SubmissionRelay/internal/metrics"
	"SubmissionRelay/internal/ports"
	"SubmissionRelay/internal/scanner"
	"SubmissionRelay/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.SubmissionStore
	channels  *channels.Registry
	metrics   *metrics.RelayMetrics
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	api       *httpapi.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the store and builds every component. The caller must Stop the
// application to release the store.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Store.Driver,
		DSN:         cfg.Store.DSN,
		BusyTimeout: cfg.Store.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	app, err := build(cfg, store, baseLogger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

func build(cfg config.Config, store ports.SubmissionStore, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = slog.New(slog.DiscardHandler)
	}

	registry := channels.NewRegistry(cfg.Channels.File, cfg.Channels.Scopes, baseLogger.With("component", "channels"))
	if err := registry.Load(); err != nil {
		return nil, fmt.Errorf("load channel assignments: %w", err)
	}

	resolver, err := newResolver(cfg.Destination)
	if err != nil {
		return nil, err
	}

	formatter, err := format.New(format.Options{
		SiteURL:       cfg.Formatter.SiteURL,
		Colours:       cfg.Formatter.Colours,
		DefaultColour: cfg.Formatter.DefaultColour,
	})
	if err != nil {
		return nil, fmt.Errorf("formatter: %w", err)
	}

	fetcher := source.NewFetcher(
		&http.Client{Timeout: cfg.Source.Timeout},
		cfg.Source.UserAgent,
		cfg.Source.RequestsPerSecond,
	)
	scanners := scanner.NewRegistry()
	scanners.Register(source.NewRedditJSON(fetcher, cfg.Source.APIURL))
	scanners.Register(source.NewRedditListing(fetcher, cfg.Source.ListingURL))
	if _, err := scanners.Resolve(cfg.Source.Strategy); err != nil {
		return nil, fmt.Errorf("source strategy: %w", err)
	}
	src := source.NewStrategySource(scanners, cfg.Source.Strategy, baseLogger.With("component", "source"))

	relayMetrics := metrics.New()

	tracker := usecase.NewTracker(usecase.TrackerDeps{
		Store: store,
		Classifier: classify.New(classify.DailyRule{
			Scope:       cfg.Classifier.Daily.Scope,
			Author:      cfg.Classifier.Daily.Author,
			Category:    cfg.Classifier.Daily.Category,
			TitleMarker: cfg.Classifier.Daily.TitleMarker,
		}),
		DefaultThumbnail: cfg.Classifier.DefaultThumbnail,
		Recorder:         relayMetrics,
		Logger:           baseLogger.With("component", "tracker"),
	})

	dispatcher := usecase.NewDispatcher(usecase.DispatcherDeps{
		Store:     store,
		Formatter: formatter,
		Clock:     usecase.SystemClock{},
		Backoff:   cfg.Dispatcher.Backoff,
		Recorder:  relayMetrics,
		Logger:    baseLogger.With("component", "dispatcher"),
	})

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     src,
		Selector:   registry,
		Resolver:   resolver,
		Tracker:    tracker,
		Dispatcher: dispatcher,
		FetchLimit: cfg.Source.FetchLimit,
		BatchSize:  cfg.Dispatcher.BatchSize,
		Recorder:   relayMetrics,
		Logger:     baseLogger.With("component", "pipeline"),
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), baseLogger.With("component", "scheduler"))

	app := &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		channels:  registry,
		metrics:   relayMetrics,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "scheduler")),
	}

	if strings.TrimSpace(cfg.HTTP.Addr) != "" {
		router := httpapi.NewRouter(httpapi.Deps{
			Store:       store,
			Assignments: registry,
			Gatherer:    relayMetrics.Registry,
			Logger:      baseLogger.With("component", "httpapi"),
		})
		app.api = httpapi.NewServer(cfg.HTTP.Addr, router, baseLogger.With("component", "httpapi"))
	}

	return app, nil
}

func newResolver(cfg config.DestinationConfig) (ports.DestinationResolver, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case config.DestinationDiscord, "":
		return webhook.NewResolver(nil, cfg.Discord.WebhookURL, cfg.Discord.WebhookID, cfg.Discord.WebhookToken), nil
	case config.DestinationTelegram:
		resolver, err := telegram.NewResolver(telegram.Config{Token: cfg.Telegram.BotToken, APIURL: cfg.Telegram.APIURL})
		if err != nil {
			return nil, fmt.Errorf("telegram destination: %w", err)
		}
		return resolver, nil
	default:
		return nil, fmt.Errorf("unknown destination kind: %s", cfg.Kind)
	}
}

// Pipeline exposes the relay pipeline, e.g. for a one-off cycle.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Start launches the scheduler, the assignment watcher, metrics collection
// and the status API. It returns once everything is running.
func (a *Application) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.cfg.Channels.Watch {
		a.goRun("channels watcher", func() error { return a.channels.Watch(runCtx) })
	}

	a.goRun("store metrics", func() error {
		a.metrics.CollectStore(runCtx, a.store, a.cfg.HTTP.MetricsInterval, a.logger.With("component", "metrics"))
		return nil
	})

	if a.api != nil {
		a.goRun("status api", func() error { return a.api.Run(runCtx) })
	}

	if err := a.scheduler.Start(runCtx); err != nil {
		cancel()
		a.wg.Wait()
		return fmt.Errorf("start scheduler: %w", err)
	}

	a.logger.Info("submission relay started",
		"schedule", a.cfg.Scheduler.CronExpression,
		"destination", a.cfg.Destination.Kind,
		"strategy", a.cfg.Source.Strategy,
	)
	return nil
}

func (a *Application) goRun(name string, fn func() error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(); err != nil {
			a.logger.Error("background task stopped", "task", name, "error", err)
		}
	}()
}

// Stop waits for the running cycle, stops background tasks and closes the store.
func (a *Application) Stop(ctx context.Context) error {
	var errs []error
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if err := a.channels.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save channel assignments: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
