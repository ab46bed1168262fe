// Package main is the entrypoint for the wishday service.
//
//	wishday [serve]        run the HTTP server and the daily scan
//	wishday scan           run one birthday scan and exit
//	wishday migrate [down] apply or roll back Postgres migrations
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wishday/wishday/internal/birthday"
	"github.com/wishday/wishday/internal/cache"
	"github.com/wishday/wishday/internal/config"
	"github.com/wishday/wishday/internal/handler"
	"github.com/wishday/wishday/internal/mailer"
	"github.com/wishday/wishday/internal/metrics"
	"github.com/wishday/wishday/internal/middleware"
	"github.com/wishday/wishday/internal/repository"
	"github.com/wishday/wishday/internal/scheduler"
	"github.com/wishday/wishday/internal/server"
)

var errUsage = errors.New("usage: wishday [serve|scan|migrate [down]]")

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg, os.Stdout)

	if err := run(context.Background(), os.Args[1:], cfg, logger); err != nil {
		logger.Error("wishday failed", "error", sanitizeError(err, cfg.StoreURL(), cfg.RedisURL, cfg.EmailPass))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, cfg *config.Config, logger *slog.Logger) error {
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "serve":
		return serve(ctx, cfg, logger)
	case "scan":
		return scanOnce(ctx, cfg, logger)
	case "migrate":
		return migrateStore(cfg, args[1:], logger)
	default:
		return errUsage
	}
}

// serve runs the HTTP server and the scheduler until a termination signal.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	cacheClient, err := openCache(ctx, cfg, logger)
	if err != nil {
		closeDeps(ctx, store, nil, logger)
		return err
	}

	return serveWith(ctx, cfg, store, cacheClient, logger)
}

// serveWith takes ownership of store and cacheClient. They are closed on a
// setup failure and on shutdown otherwise.
func serveWith(ctx context.Context, cfg *config.Config, store repository.Store, cacheClient *cache.Cache, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheus(reg)

	sched, err := newScheduler(cfg, store, cacheClient, recorder, logger)
	if err != nil {
		closeDeps(ctx, store, cacheClient, logger)
		return err
	}

	// A nil *cache.Cache must not reach the handler as a non-nil interface.
	var cacheHealth handler.HealthChecker
	var limiter middleware.IPLimiter
	var localLimiter *middleware.LocalLimiter
	if cacheClient != nil {
		cacheHealth = cacheClient
		limiter = cacheClient
	} else {
		localLimiter = middleware.NewLocalLimiter(5 * time.Minute)
		limiter = localLimiter
	}

	router := server.NewRouter(server.Routes{
		Registration: handler.NewRegistrationHandler(store, logger, recorder),
		Health:       handler.NewHealthHandler(store, cacheHealth),
		Metrics:      metrics.Handler(reg),
		RateLimit: middleware.RateLimitConfig{
			Logger:  logger,
			Limiter: limiter,
			Enabled: cfg.RateLimitRegisterEnabled,
			Scope:   "register",
			RPS:     float64(cfg.RateLimitRegisterRPS),
			Burst:   cfg.RateLimitRegisterBurst,
		},
		Security: middleware.SecurityConfig{
			IsDevelopment:      cfg.IsDevelopment(),
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		TrustProxy: cfg.TrustProxyHeaders,
		Logger:     logger,
	})

	srv := server.New(router, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Stopped in reverse: scheduler, limiter, cache, store.
	srv.OnShutdown("store", store.Close)
	if cacheClient != nil {
		srv.OnShutdown("cache", func(context.Context) error { return cacheClient.Close() })
	}
	if localLimiter != nil {
		srv.OnShutdown("rate limiter", func(context.Context) error {
			localLimiter.Stop()
			return nil
		})
	}
	srv.OnShutdown("scheduler", sched.Shutdown)

	sched.Start()
	if cfg.ScanOnStartup {
		sched.RunNow()
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"schedule", cfg.ScanSchedule,
		"timezone", cfg.ScanTimezone,
	)

	return srv.Run(ctx)
}

func newScheduler(cfg *config.Config, store repository.Store, cacheClient *cache.Cache, recorder metrics.Recorder, logger *slog.Logger) (*scheduler.Scheduler, error) {
	job, err := newJob(cfg, store, cacheClient, recorder, logger)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return scheduler.New(job, scheduler.Config{
		Spec:     cfg.ScanSchedule,
		Location: loc,
		Timeout:  cfg.ScanTimeout,
	}, logger)
}

// closeDeps releases the store and, when set, the cache after a failed startup.
func closeDeps(ctx context.Context, store repository.Store, cacheClient *cache.Cache, logger *slog.Logger) {
	if cacheClient != nil {
		if err := cacheClient.Close(); err != nil {
			logger.Warn("failed to close Redis", "error", err)
		}
	}
	if err := store.Close(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("failed to close database", "error", err)
	}
}

// scanOnce runs a single scan. A failed query is returned as an error.
func scanOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(context.WithoutCancel(ctx))

	cacheClient, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cacheClient != nil {
		defer cacheClient.Close()
	}

	job, err := newJob(cfg, store, cacheClient, metrics.NewNoop(), logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancel()

	report, err := job.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("scan finished",
		"run_id", report.RunID,
		"matched", report.Matched,
		"sent", report.Sent,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return nil
}

func migrateStore(cfg *config.Config, args []string, logger *slog.Logger) error {
	databaseURL := cfg.StoreURL()
	if !strings.HasPrefix(databaseURL, "postgres://") && !strings.HasPrefix(databaseURL, "postgresql://") {
		return fmt.Errorf("migrate: %w: only postgres stores carry migrations", repository.ErrUnsupportedScheme)
	}

	if len(args) > 0 && args[0] == "down" {
		if err := repository.RollbackMigrations(databaseURL); err != nil {
			return err
		}
		logger.Info("migration rolled back", "database_url", redactURL(databaseURL))
		return nil
	}
	if len(args) > 0 {
		return errUsage
	}

	if err := repository.RunMigrations(databaseURL); err != nil {
		return err
	}
	logger.Info("migrations applied", "database_url", redactURL(databaseURL))
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	store, err := repository.Open(ctx, cfg.StoreURL(), repository.Options{
		DatabaseName: cfg.DatabaseName,
		AutoMigrate:  cfg.DatabaseAutoMigrate,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database %s: %w", redactURL(cfg.StoreURL()), err)
	}
	logger.Info("connected to database", "database_url", redactURL(cfg.StoreURL()))
	return store, nil
}

// openCache returns nil when Redis is not configured.
func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cache.Cache, error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set: duplicate-send ledger disabled, rate limiting is per process")
		return nil, nil
	}
	c, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect to Redis %s: %w", redactURL(cfg.RedisURL), err)
	}
	logger.Info("connected to Redis")
	return c, nil
}

func newJob(cfg *config.Config, store repository.Store, cacheClient *cache.Cache, recorder metrics.Recorder, logger *slog.Logger) (*birthday.Job, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	mode, err := birthday.ParseMatchMode(cfg.ScanMatchMode)
	if err != nil {
		return nil, err
	}
	if mode == birthday.MatchExact {
		logger.Warn("exact match mode: only users born on today's calendar date in this year are greeted",
			"hint", "set SCAN_MATCH_MODE=anniversary for yearly greetings")
	}

	sender, err := mailer.New(mailer.Config{
		Provider:      cfg.MailProvider,
		From:          cfg.Sender(),
		Username:      cfg.EmailUser,
		Secret:        cfg.EmailPass,
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPort,
		TLSSkipVerify: cfg.MailTLSSkipVerify,
	}, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := mailer.NewDispatcher(sender, mailer.DispatcherConfig{
		Concurrency:   cfg.MailConcurrency,
		RatePerSecond: cfg.MailRatePerSecond,
		MaxAttempts:   cfg.MailMaxAttempts,
	}, logger, recorder)

	opts := []birthday.Option{birthday.WithMetrics(recorder)}
	if cacheClient != nil {
		opts = append(opts, birthday.WithLedger(cacheClient))
	}

	return birthday.NewJob(store, dispatcher, birthday.JobConfig{
		Location:  loc,
		Mode:      mode,
		Signature: cfg.MailSignature,
	}, logger, opts...), nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(h).With("service", "wishday")
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s&]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" || redacted == secret {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
