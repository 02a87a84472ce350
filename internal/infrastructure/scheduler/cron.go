package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"SubmissionRelay/internal/ports"
	"SubmissionRelay/pkg/logger"
)

// CronScheduler triggers the job on a cron expression; "@every 30s" style
// descriptors are accepted. A trigger is skipped while the previous run is
// still in progress.
type CronScheduler struct {
	spec   string
	loc    *time.Location
	parser cron.Parser
	logger *slog.Logger

	mu sync.Mutex
	c  *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler for spec evaluated in loc.
func NewCronScheduler(spec string, loc *time.Location, log *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &CronScheduler{
		spec:   spec,
		loc:    loc,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger: log,
	}
}

// Start registers job and starts the cron loop. The loop stops when ctx is
// cancelled or Stop is called.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.c != nil {
		return nil
	}

	schedule, err := c.parser.Parse(c.spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", c.spec, err)
	}

	cronLog := cron.PrintfLogger(logger.New(c.logger, "cron", slog.LevelDebug))
	runner := cron.New(
		cron.WithParser(c.parser),
		cron.WithLocation(c.loc),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	runner.Schedule(schedule, cron.FuncJob(func() {
		job(time.Now().In(c.loc))
	}))
	runner.Start()
	c.c = runner

	c.logger.Info("scheduler started", "spec", c.spec, "next", schedule.Next(time.Now().In(c.loc)).Format(time.RFC3339))

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop halts the cron loop and waits for a running job to finish, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.c
	c.c = nil
	c.mu.Unlock()

	if runner == nil {
		return nil
	}

	done := runner.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("scheduler stop: running job did not finish"), ctx.Err())
	}
}
