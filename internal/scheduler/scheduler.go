// Package scheduler triggers the birthday scan on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wishday/wishday/internal/birthday"
)

const (
	// DefaultSpec fires every day at 07:00.
	DefaultSpec = "0 7 * * *"
	// DefaultTimeout bounds a single run.
	DefaultTimeout = 10 * time.Minute
)

// Runner performs one scan.
type Runner interface {
	Run(ctx context.Context) (*birthday.Report, error)
}

// Config holds schedule settings.
type Config struct {
	Spec     string
	Location *time.Location
	Timeout  time.Duration
}

// Scheduler runs a Runner on a cron schedule, one run at a time.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a scheduler. The schedule is validated here.
func New(runner Runner, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(cfg.Location)),
		runner:  runner,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "scheduler"),
		baseCtx: baseCtx,
		cancel:  cancel,
	}

	if _, err := s.cron.AddFunc(cfg.Spec, s.Trigger); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Spec, err)
	}

	return s, nil
}

// Start begins firing on schedule. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()

	entries := s.cron.Entries()
	if len(entries) > 0 {
		s.logger.Info("scheduler started", "next_run", entries[0].Next)
	}
}

// RunNow triggers a run in the background.
func (s *Scheduler) RunNow() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Trigger()
	}()
}

// Trigger runs the scan once unless a run is already in progress.
// Errors and panics are logged, never propagated.
func (s *Scheduler) Trigger() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous scan still running, skipping trigger")
		return
	}
	defer s.running.Store(false)

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("scan panicked",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(s.baseCtx, s.timeout)
	defer cancel()

	report, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("scan failed", "error", err)
		return
	}
	if report != nil {
		s.logger.Debug("scan finished",
			"run_id", report.RunID,
			"matched", report.Matched,
			"sent", report.Sent,
			"failed", report.Failed,
		)
	}
}

// Running reports whether a scan is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Shutdown stops new triggers and waits for an in-flight run.
// When ctx expires first, the run's context is canceled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	stopped := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("scheduler shutdown timed out, canceled running scan")
		return ctx.Err()
	}
}
