package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wishday/wishday/internal/birthday"
)

type runnerFunc func(ctx context.Context) (*birthday.Report, error)

func (f runnerFunc) Run(ctx context.Context) (*birthday.Report, error) {
	return f(ctx)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_InvalidSpec(t *testing.T) {
	t.Parallel()

	_, err := New(runnerFunc(func(context.Context) (*birthday.Report, error) { return nil, nil }),
		Config{Spec: "every day please"}, testLogger())
	if err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestTrigger_RunsWithTimeout(t *testing.T) {
	t.Parallel()

	var sawDeadline atomic.Bool
	s, err := New(runnerFunc(func(ctx context.Context) (*birthday.Report, error) {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		return &birthday.Report{}, nil
	}), Config{Timeout: time.Minute}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.Trigger()

	if !sawDeadline.Load() {
		t.Error("run context should carry a deadline")
	}
}

func TestTrigger_RecoversPanic(t *testing.T) {
	t.Parallel()

	s, err := New(runnerFunc(func(context.Context) (*birthday.Report, error) {
		panic("boom")
	}), Config{}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.Trigger()

	if s.Running() {
		t.Error("running flag should be cleared after a panic")
	}
}

func TestTrigger_ErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s, err := New(runnerFunc(func(context.Context) (*birthday.Report, error) {
		calls.Add(1)
		return nil, errors.New("query failed")
	}), Config{}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.Trigger()
	s.Trigger()

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestTrigger_SkipsOverlap(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	s, err := New(runnerFunc(func(ctx context.Context) (*birthday.Report, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return &birthday.Report{}, nil
	}), Config{}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.RunNow()
	<-started

	s.Trigger()

	close(release)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestShutdown_CancelsOnDeadline(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	canceled := make(chan struct{})

	s, err := New(runnerFunc(func(ctx context.Context) (*birthday.Report, error) {
		close(started)
		<-ctx.Done()
		close(canceled)
		return nil, ctx.Err()
	}), Config{}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.Start()
	s.RunNow()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := s.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown error = %v, want DeadlineExceeded", err)
	}

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("running scan was not canceled")
	}
}
