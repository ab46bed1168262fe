package mailer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wishday/wishday/internal/metrics"
)

const (
	// DefaultConcurrency is the number of parallel sends.
	DefaultConcurrency = 4
	// DefaultMaxAttempts is one attempt per message.
	DefaultMaxAttempts = 1
)

// Result is the outcome of dispatching one message.
type Result struct {
	To        string
	MessageID string
	Attempts  int
	Err       error
}

// OK reports whether the message was accepted by the transport.
func (r Result) OK() bool {
	return r.Err == nil
}

// DispatcherConfig tunes a Dispatcher.
type DispatcherConfig struct {
	Concurrency int
	// RatePerSecond caps send starts. Zero disables pacing.
	RatePerSecond float64
	MaxAttempts   int
}

// Dispatcher fans messages out to a Sender over a bounded worker pool.
type Dispatcher struct {
	sender      Sender
	logger      *slog.Logger
	metrics     metrics.Recorder
	concurrency int
	maxAttempts int
	limiter     *rate.Limiter
	retryDelay  func(failures int) time.Duration
}

// NewDispatcher creates a dispatcher for sender.
func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *slog.Logger, recorder metrics.Recorder) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	d := &Dispatcher{
		sender:      sender,
		logger:      logger.With("component", "mailer.dispatcher"),
		metrics:     recorder,
		concurrency: cfg.Concurrency,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  NextRetryDelay,
	}
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return d
}

// Dispatch sends every message and waits for all of them.
// Results are returned in input order. A failure for one message never
// prevents the others from being attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []Message) []Result {
	results := make([]Result, len(msgs))
	if len(msgs) == 0 {
		return results
	}

	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup

	for i, msg := range msgs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			for j := i; j < len(msgs); j++ {
				results[j] = Result{To: msgs[j].To, Err: ctx.Err()}
				d.metrics.IncMailDelivery("failed")
			}
			wg.Wait()
			return results
		}

		wg.Add(1)
		go func(i int, msg Message) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = d.deliver(ctx, msg)
		}(i, msg)
	}

	wg.Wait()
	return results
}

// deliver attempts a single message up to maxAttempts times.
func (d *Dispatcher) deliver(ctx context.Context, msg Message) Result {
	res := Result{To: msg.To}

	for {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				res.Err = err
				break
			}
		}

		res.Attempts++
		start := time.Now()
		id, err := d.sender.Send(ctx, msg)
		d.metrics.ObserveMailSendDuration(time.Since(start))

		if err == nil {
			res.MessageID = id
			res.Err = nil
			d.metrics.IncMailDelivery("sent")
			d.logger.Info("mail sent",
				"to", msg.To,
				"message_id", id,
				"attempts", res.Attempts,
			)
			return res
		}

		res.Err = err
		exhausted := IsExhausted(res.Attempts, d.maxAttempts) || errors.Is(err, ErrInvalidRecipient)
		d.logger.Warn("mail send failed",
			"to", msg.To,
			"attempt", res.Attempts,
			"exhausted", exhausted,
			"error", err,
		)
		if exhausted {
			break
		}

		timer := time.NewTimer(d.retryDelay(res.Attempts))
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Err = ctx.Err()
		case <-timer.C:
			continue
		}
		break
	}

	d.metrics.IncMailDelivery("failed")
	d.logger.Error("mail not delivered",
		"to", msg.To,
		"attempts", res.Attempts,
		"error", res.Err,
	)
	return res
}
