package birthday

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wishday/wishday/internal/mailer"
	"github.com/wishday/wishday/internal/metrics"
	"github.com/wishday/wishday/internal/model"
)

// Finder returns the users selected by a birthday query.
type Finder interface {
	FindBirthdays(ctx context.Context, q Query) ([]*model.User, error)
}

// Dispatcher sends a batch of messages and reports one result per message.
type Dispatcher interface {
	Dispatch(ctx context.Context, msgs []mailer.Message) []mailer.Result
}

// Ledger remembers who has already been greeted in a given year.
type Ledger interface {
	// MarkNotified returns false when userID was already marked for year.
	MarkNotified(ctx context.Context, year int, userID string) (bool, error)
	ReleaseNotified(ctx context.Context, year int, userID string) error
}

// Status is the outcome for one matched user.
type Status string

const (
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome is the per-recipient result of a run.
type Outcome struct {
	UserID    string
	Email     string
	Status    Status
	MessageID string
	Attempts  int
	Err       error
}

// Report summarises one scan.
type Report struct {
	RunID   string
	Window  Window
	Mode    MatchMode
	Matched int
	Sent    int
	Failed  int
	Skipped int
	Results []Outcome
}

// JobConfig holds the scan settings.
type JobConfig struct {
	Location  *time.Location
	Mode      MatchMode
	Signature string
}

// Job finds today's birthdays and greets them.
type Job struct {
	finder     Finder
	dispatcher Dispatcher
	ledger     Ledger
	cfg        JobConfig
	clock      func() time.Time
	logger     *slog.Logger
	metrics    metrics.Recorder
}

// Option configures a Job.
type Option func(*Job)

// WithLedger enables duplicate suppression.
func WithLedger(l Ledger) Option {
	return func(j *Job) { j.ledger = l }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(j *Job) { j.clock = clock }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(j *Job) {
		if r != nil {
			j.metrics = r
		}
	}
}

// NewJob creates a scan job.
func NewJob(finder Finder, dispatcher Dispatcher, cfg JobConfig, logger *slog.Logger, opts ...Option) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Mode == "" {
		cfg.Mode = MatchExact
	}

	j := &Job{
		finder:     finder,
		dispatcher: dispatcher,
		cfg:        cfg,
		clock:      time.Now,
		logger:     logger.With("component", "birthday.job"),
		metrics:    metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run performs one scan for the current day.
// Only a failed query is returned as an error; send failures are
// reported per recipient in the Report.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	now := j.clock().In(j.cfg.Location)
	window := DayWindow(now, j.cfg.Location)

	report := &Report{
		RunID:  ulid.Make().String(),
		Window: window,
		Mode:   j.cfg.Mode,
	}
	logger := j.logger.With("run_id", report.RunID, "date", window.Date())

	users, err := j.finder.FindBirthdays(ctx, NewQuery(j.cfg.Mode, window))
	if err != nil {
		j.metrics.IncScanRun("failed")
		logger.Error("birthday query failed", "error", err)
		return report, fmt.Errorf("find birthdays: %w", err)
	}

	report.Matched = len(users)
	j.metrics.ObserveScanMatches(len(users))

	if len(users) == 0 {
		logger.Info("no birthdays today")
		j.finish(report, start)
		return report, nil
	}

	year := window.Start.Year()
	pending := make([]*model.User, 0, len(users))
	for _, user := range users {
		if j.ledger != nil {
			ok, err := j.ledger.MarkNotified(ctx, year, user.ID)
			if err != nil {
				// Ledger unavailable: send anyway, as without a ledger.
				logger.Warn("ledger mark failed", "user_id", user.ID, "error", err)
			} else if !ok {
				report.Results = append(report.Results, Outcome{
					UserID: user.ID,
					Email:  user.Email,
					Status: StatusSkipped,
				})
				report.Skipped++
				j.metrics.IncMailDelivery("skipped")
				logger.Info("already greeted", "user_id", user.ID)
				continue
			}
		}
		pending = append(pending, user)
	}

	msgs := make([]mailer.Message, len(pending))
	for i, user := range pending {
		msgs[i] = Greeting(user, j.cfg.Signature)
	}

	results := j.dispatcher.Dispatch(ctx, msgs)
	for i, res := range results {
		user := pending[i]
		out := Outcome{
			UserID:    user.ID,
			Email:     user.Email,
			MessageID: res.MessageID,
			Attempts:  res.Attempts,
			Err:       res.Err,
		}

		if res.Err == nil {
			out.Status = StatusSent
			report.Sent++
		} else {
			out.Status = StatusFailed
			report.Failed++
			logger.Error("birthday mail failed",
				"user_id", user.ID,
				"to", user.Email,
				"error", res.Err,
			)
			if j.ledger != nil {
				if err := j.ledger.ReleaseNotified(context.WithoutCancel(ctx), year, user.ID); err != nil {
					logger.Warn("ledger release failed", "user_id", user.ID, "error", err)
				}
			}
		}
		report.Results = append(report.Results, out)
	}

	j.finish(report, start)
	return report, nil
}

func (j *Job) finish(report *Report, start time.Time) {
	duration := time.Since(start)
	j.metrics.IncScanRun("success")
	j.metrics.ObserveScanDuration(duration)

	j.logger.Info("birthday scan complete",
		"run_id", report.RunID,
		"date", report.Window.Date(),
		"mode", report.Mode,
		"matched", report.Matched,
		"sent", report.Sent,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"duration_ms", duration.Milliseconds(),
	)
}
