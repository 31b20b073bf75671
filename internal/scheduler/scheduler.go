// Package scheduler runs periodic forecast refreshes on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"flusso/internal/log"
)

// Job is a scheduled task. The context is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// Scheduler wraps a seconds-enabled cron.
type Scheduler struct {
	cron    *cron.Cron
	logger  *log.Logger
	timeout time.Duration
}

// New creates a scheduler whose jobs run in loc and are each bounded by
// timeout (zero means no limit).
func New(loc *time.Location, timeout time.Duration, logger *log.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Scheduler{
		// Overlapping runs of the same job are skipped, not queued.
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger.WithComponent(log.ComponentScheduler),
		timeout: timeout,
	}
}

// Register adds job under name on spec, e.g. "0 0 5 * * *".
func (s *Scheduler) Register(ctx context.Context, name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(ctx, name, job) })
	if err != nil {
		return fmt.Errorf("register %s task: %w", name, err)
	}
	s.logger.Info("Task registered", "task", name, "spec", spec)
	return nil
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) {
	if ctx.Err() != nil {
		return
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Scheduled task failed", "task", name, log.FieldError, err)
		return
	}
	s.logger.InfoContext(ctx, "Scheduled task finished", "task", name, log.FieldDuration, time.Since(start).Milliseconds())
}

// RunNow executes job immediately, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) {
	s.run(ctx, name, job)
}

// Next returns the next activation time across all tasks.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}

// Run starts the cron and blocks until ctx is done, then waits for running
// jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("Scheduler started", "next", s.Next())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
	return nil
}
