package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/ports"
)

// DefaultBackoff is how long the dispatcher sleeps before re-checking an exhausted window.
const DefaultBackoff = 5 * time.Second

// Formatter renders a submission for a destination.
type Formatter interface {
	Format(s domain.Submission) domain.Payload
}

// DispatcherDeps wires the dispatcher collaborators.
type DispatcherDeps struct {
	Store     ports.SubmissionStore
	Formatter Formatter
	Clock     ports.Clock
	Backoff   time.Duration
	Recorder  ports.Recorder
	Logger    *slog.Logger
}

// Dispatcher drains READY submissions into a destination within its rate limit.
type Dispatcher struct {
	store     ports.SubmissionStore
	formatter Formatter
	clock     ports.Clock
	backoff   time.Duration
	recorder  ports.Recorder
	logger    *slog.Logger
}

// DrainReport summarises one dispatch batch.
type DrainReport struct {
	Batch     int
	Delivered int
	Waits     int
	Window    domain.RateWindow // window after the last response
}

// NewDispatcher constructs the dispatcher; zero Backoff means DefaultBackoff.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	backoff := deps.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		store:     deps.Store,
		formatter: deps.Formatter,
		clock:     clock,
		backoff:   backoff,
		recorder:  deps.Recorder,
		logger:    logger,
	}
}

// DrainReady delivers up to max READY submissions of scope, oldest first.
//
// window is owned by the caller and is overwritten from every destination
// response. When it is exhausted the call blocks until the window resets;
// only ctx cancellation ends that wait early. A delivery failure aborts the
// batch and leaves the failed and remaining submissions READY.
func (d *Dispatcher) DrainReady(ctx context.Context, dest ports.Destination, window *domain.RateWindow, scope string, max int) (report DrainReport, err error) {
	if d.store == nil || d.formatter == nil {
		return report, fmt.Errorf("dispatcher is not configured")
	}
	if dest == nil {
		return report, fmt.Errorf("no destination for scope %s", scope)
	}
	if window == nil {
		window = &domain.RateWindow{}
	}
	defer func() { report.Window = *window }()

	items, err := d.store.QueryByState(ctx, domain.Query{State: domain.StateReady, Scope: scope, Limit: max})
	if err != nil {
		return report, fmt.Errorf("load ready submissions: %w", err)
	}
	report.Batch = len(items)

	// items are newest first; walk from the back so the oldest goes out first.
	for i := len(items) - 1; i >= 0; {
		if !window.Allows(d.clock.Now()) {
			report.Waits++
			d.logger.Info("rate limit exhausted, waiting for reset",
				"scope", scope,
				"reset_in", window.ResetAt.Sub(d.clock.Now()).Round(time.Second),
				"pending", i+1,
			)
			if d.recorder != nil {
				d.recorder.RateLimitWait(scope)
			}
			if err := d.clock.Sleep(ctx, d.backoff); err != nil {
				return report, fmt.Errorf("wait for rate limit reset: %w", err)
			}
			continue
		}

		item := items[i]
		delivery, err := dest.Deliver(ctx, d.formatter.Format(item))
		if err != nil {
			if d.recorder != nil {
				d.recorder.DeliveryFailed(scope)
			}
			var deliveryErr *domain.DeliveryError
			if !errors.As(err, &deliveryErr) {
				deliveryErr = &domain.DeliveryError{Err: err}
			}
			if deliveryErr.RateLimit != nil {
				window.Overwrite(*deliveryErr.RateLimit)
			}
			return report, fmt.Errorf("deliver %s: %w", item.ExternalID, deliveryErr)
		}

		window.Overwrite(delivery.RateLimit)

		if err := d.store.MarkDelivered(ctx, item.ExternalID, delivery.MessageID); err != nil {
			return report, fmt.Errorf("mark delivered %s: %w", item.ExternalID, err)
		}

		report.Delivered++
		if d.recorder != nil {
			d.recorder.Delivered(scope)
		}
		d.logger.Debug("submission delivered",
			"scope", scope,
			"id", item.ExternalID,
			"message_id", delivery.MessageID,
			"remaining", window.Remaining,
		)
		i--
	}

	return report, nil
}
