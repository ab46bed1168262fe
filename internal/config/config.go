// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v10"
)

// Supported mail providers.
const (
	MailProviderSMTP     = "smtp"
	MailProviderSendGrid = "sendgrid"
	MailProviderResend   = "resend"
	MailProviderLog      = "log"
)

// Supported birthday match modes.
const (
	MatchModeExact       = "exact"
	MatchModeAnniversary = "anniversary"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"3001"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3001"`

	// Store. MONGO_URI is honoured when DATABASE_URL is empty.
	DatabaseURL         string `env:"DATABASE_URL"`
	MongoURI            string `env:"MONGO_URI"`
	DatabaseName        string `env:"DATABASE_NAME" envDefault:"wishday"`
	DatabaseAutoMigrate bool   `env:"DATABASE_AUTO_MIGRATE" envDefault:"false"`

	// Cache (Redis). Optional.
	RedisURL string `env:"REDIS_URL"`

	// Mail account
	EmailUser string `env:"EMAIL_USER"`
	EmailPass string `env:"EMAIL_PASS"`

	// Mail transport
	MailProvider      string  `env:"MAIL_PROVIDER" envDefault:"smtp"`
	MailFrom          string  `env:"MAIL_FROM"`
	MailSignature     string  `env:"MAIL_SIGNATURE" envDefault:"David"`
	SMTPHost          string  `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	SMTPPort          int     `env:"SMTP_PORT" envDefault:"587"`
	MailTLSSkipVerify bool    `env:"MAIL_TLS_SKIP_VERIFY" envDefault:"false"`
	MailConcurrency   int     `env:"MAIL_CONCURRENCY" envDefault:"4"`
	MailRatePerSecond float64 `env:"MAIL_RATE_PER_SECOND" envDefault:"5"`
	MailMaxAttempts   int     `env:"MAIL_MAX_ATTEMPTS" envDefault:"1"`

	// Birthday scan
	ScanSchedule  string        `env:"SCAN_SCHEDULE" envDefault:"0 7 * * *"`
	ScanTimezone  string        `env:"SCAN_TIMEZONE" envDefault:"Africa/Lagos"`
	ScanMatchMode string        `env:"SCAN_MATCH_MODE" envDefault:"exact"`
	ScanTimeout   time.Duration `env:"SCAN_TIMEOUT" envDefault:"10m"`
	ScanOnStartup bool          `env:"SCAN_ON_STARTUP" envDefault:"false"`

	// Rate limiting for POST /send
	RateLimitRegisterEnabled bool `env:"RATE_LIMIT_REGISTER_ENABLED" envDefault:"true"`
	RateLimitRegisterRPS     int  `env:"RATE_LIMIT_REGISTER_RPS" envDefault:"1"`
	RateLimitRegisterBurst   int  `env:"RATE_LIMIT_REGISTER_BURST" envDefault:"5"`
	// TrustProxyHeaders lets X-Forwarded-For and friends set the client IP.
	// Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Request body size limit in bytes (default 64KB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StoreURL returns the store connection string, preferring DATABASE_URL.
func (c *Config) StoreURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.MongoURI
}

// Sender returns the From address for outgoing mail.
func (c *Config) Sender() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return c.EmailUser
}

// Location loads the configured scan timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ScanTimezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.ScanTimezone, err)
	}
	return loc, nil
}

// Validate checks rules that span more than one variable.
func (c *Config) Validate() error {
	var errs []error

	if c.StoreURL() == "" {
		errs = append(errs, errors.New("DATABASE_URL or MONGO_URI is required"))
	}

	switch c.MailProvider {
	case MailProviderSMTP:
		if c.EmailUser == "" || c.EmailPass == "" {
			errs = append(errs, errors.New("EMAIL_USER and EMAIL_PASS are required for the smtp provider"))
		}
	case MailProviderSendGrid, MailProviderResend:
		if c.EmailPass == "" {
			errs = append(errs, fmt.Errorf("EMAIL_PASS (API key) is required for the %s provider", c.MailProvider))
		}
		if c.Sender() == "" {
			errs = append(errs, errors.New("MAIL_FROM or EMAIL_USER is required"))
		}
	case MailProviderLog:
	default:
		errs = append(errs, fmt.Errorf("unknown MAIL_PROVIDER %q", c.MailProvider))
	}

	switch strings.ToLower(strings.TrimSpace(c.ScanMatchMode)) {
	case MatchModeExact, MatchModeAnniversary:
	default:
		errs = append(errs, fmt.Errorf("unknown SCAN_MATCH_MODE %q", c.ScanMatchMode))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if c.MailConcurrency < 1 {
		errs = append(errs, errors.New("MAIL_CONCURRENCY must be at least 1"))
	}
	if c.MailMaxAttempts < 1 {
		errs = append(errs, errors.New("MAIL_MAX_ATTEMPTS must be at least 1"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ScanMatchMode = strings.ToLower(strings.TrimSpace(cfg.ScanMatchMode))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
