package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/ports"
)

const (
	defaultFetchLimit = 10
	defaultBatchSize  = 10
)

// PipelineDeps wires all driven adapters into the relay cycle.
type PipelineDeps struct {
	Source     ports.SubmissionSource
	Selector   ports.ScopeSelector
	Resolver   ports.DestinationResolver
	Tracker    *Tracker
	Dispatcher *Dispatcher
	FetchLimit int
	BatchSize  int
	Recorder   ports.Recorder
	Logger     *slog.Logger
}

// Pipeline runs one relay cycle per trigger: pick a scope, fetch, ingest, drain.
type Pipeline struct {
	source     ports.SubmissionSource
	selector   ports.ScopeSelector
	resolver   ports.DestinationResolver
	tracker    *Tracker
	dispatcher *Dispatcher
	fetchLimit int
	batchSize  int
	recorder   ports.Recorder
	logger     *slog.Logger

	mu      sync.Mutex
	windows map[string]*domain.RateWindow // by channel id
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	fetchLimit := deps.FetchLimit
	if fetchLimit <= 0 {
		fetchLimit = defaultFetchLimit
	}
	batchSize := deps.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		source:     deps.Source,
		selector:   deps.Selector,
		resolver:   deps.Resolver,
		tracker:    deps.Tracker,
		dispatcher: deps.Dispatcher,
		fetchLimit: fetchLimit,
		batchSize:  batchSize,
		recorder:   deps.Recorder,
		logger:     logger,
		windows:    map[string]*domain.RateWindow{},
	}
}

// RunCycle processes the next assigned scope. Cycles never overlap.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	if p.selector == nil {
		return fmt.Errorf("scope selector is not configured")
	}

	scope, channelID, ok := p.selector.Next()
	if !ok {
		p.logger.Info("no scopes have been assigned to any channels")
		return nil
	}

	return p.Relay(ctx, scope, channelID)
}

// Relay runs fetch, ingest and drain for a single scope.
func (p *Pipeline) Relay(ctx context.Context, scope, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := p.logger.With("run", uuid.NewString(), "scope", scope)

	if p.source == nil || p.tracker == nil || p.dispatcher == nil || p.resolver == nil {
		return fmt.Errorf("pipeline is not fully configured")
	}

	logger.Info("checking submissions")
	raw, err := p.source.FetchNewest(ctx, scope, p.fetchLimit)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", scope, err)
	}

	ingest, err := p.tracker.Ingest(ctx, raw, scope)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", scope, err)
	}

	// Items keep advancing even while the channel cannot be resolved.
	dest, err := p.resolver.Resolve(channelID)
	if err != nil {
		return fmt.Errorf("resolve channel for %s: %w", scope, err)
	}

	window := p.windowFor(channelID)
	drain, err := p.dispatcher.DrainReady(ctx, dest, window, scope, p.batchSize)
	if p.recorder != nil {
		p.recorder.Window(channelID, *window)
	}
	logger.Info("relay cycle finished",
		"fetched", len(raw),
		"skipped", ingest.Skipped,
		"new", ingest.States[domain.StateInitial],
		"batch", drain.Batch,
		"delivered", drain.Delivered,
		"waits", drain.Waits,
		"remaining", window.Remaining,
	)
	if err != nil {
		return fmt.Errorf("drain %s: %w", scope, err)
	}

	return nil
}

func (p *Pipeline) windowFor(channelID string) *domain.RateWindow {
	w, ok := p.windows[channelID]
	if !ok {
		w = &domain.RateWindow{}
		p.windows[channelID] = w
	}
	return w
}
