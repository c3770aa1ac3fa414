package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eargollo/taxsheet/internal/engine"
)

// Scheduler wraps robfig/cron and tracks the next unattended run.
type Scheduler struct {
	mu       sync.RWMutex
	c        *cron.Cron
	entryID  cron.EntryID
	cronExpr string
}

// New creates a stopped Scheduler. Call Start to activate it.
func New() *Scheduler {
	return &Scheduler{
		c: cron.New(),
	}
}

// SetJob replaces the current run job with the given expression and callback.
// If the scheduler is already running, the new job takes effect immediately.
func (s *Scheduler) SetJob(expr string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.c.Remove(s.entryID)
		s.entryID = 0
	}

	id, err := s.c.AddFunc(expr, fn)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	s.entryID = id
	s.cronExpr = expr
	slog.Info("scheduler: job set", "cron", expr)
	return nil
}

// AddJob adds a background job that fires on the given cron expression.
// Unlike SetJob, this does not replace the tracked run job.
func (s *Scheduler) AddJob(expr string, fn func()) error {
	_, err := s.c.AddFunc(expr, fn)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	slog.Info("scheduler: background job added", "cron", expr)
	return nil
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// NextRunAt returns the next scheduled run, or nil if no job is set.
func (s *Scheduler) NextRunAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entryID == 0 {
		return nil
	}
	entry := s.c.Entry(s.entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// CronExpr returns the current run job expression.
func (s *Scheduler) CronExpr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cronExpr
}

// Starter begins a processing run. *engine.Controller satisfies it.
type Starter interface {
	Start(ctx context.Context, input, output string) (engine.Run, error)
}

// RunJob returns a job that starts a run over the configured folders. A run
// already in progress is left alone.
func RunJob(ctx context.Context, st Starter, source, destination string) func() {
	return func() {
		run, err := st.Start(ctx, source, destination)
		switch {
		case errors.Is(err, engine.ErrAlreadyRunning):
			slog.Info("scheduler: run skipped, another run is active")
		case err != nil:
			slog.Warn("scheduler: run not started", "error", err)
		default:
			slog.Info("scheduler: run started", "run_id", run.ID, "files", len(run.InputFiles))
		}
	}
}

// Purger removes old run history. *store.Store satisfies it.
type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeJob returns a job deleting runs that started more than days ago.
func PurgeJob(ctx context.Context, p Purger, days int, now func() time.Time) func() {
	if now == nil {
		now = time.Now
	}
	return func() {
		cutoff := now().AddDate(0, 0, -days)
		n, err := p.PurgeOlderThan(ctx, cutoff)
		if err != nil {
			slog.Warn("scheduler: purge failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("scheduler: purged old runs", "count", n, "cutoff", cutoff.Format(time.DateOnly))
		}
	}
}
