package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "mongodb://localhost:27017")
	t.Setenv("EMAIL_USER", "sender@example.com")
	t.Setenv("EMAIL_PASS", "app-password")
}

func TestLoad_WithRequiredVars(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.StoreURL() != "mongodb://localhost:27017" {
		t.Errorf("expected store URL to be set, got %s", cfg.StoreURL())
	}
	if cfg.Sender() != "sender@example.com" {
		t.Errorf("expected sender to default to EMAIL_USER, got %s", cfg.Sender())
	}
}

func TestLoad_NormalizesMatchMode(t *testing.T) {
	setRequired(t)
	t.Setenv("SCAN_MATCH_MODE", " Anniversary ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected padded match mode to load, got %v", err)
	}
	if cfg.ScanMatchMode != MatchModeAnniversary {
		t.Errorf("ScanMatchMode = %q, want %q", cfg.ScanMatchMode, MatchModeAnniversary)
	}
}

func TestLoad_MongoURIFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017/app")
	t.Setenv("EMAIL_USER", "sender@example.com")
	t.Setenv("EMAIL_PASS", "app-password")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.StoreURL() != "mongodb://mongo:27017/app" {
		t.Errorf("expected MONGO_URI fallback, got %s", cfg.StoreURL())
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MONGO_URI", "")
	t.Setenv("EMAIL_USER", "")
	t.Setenv("EMAIL_PASS", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required vars, got nil")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("expected error to mention DATABASE_URL, got %v", err)
	}
	if !strings.Contains(err.Error(), "EMAIL_USER") {
		t.Errorf("expected error to mention EMAIL_USER, got %v", err)
	}
}

func TestConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.AppPort != 3001 {
		t.Errorf("expected default AppPort 3001, got %d", cfg.AppPort)
	}
	if cfg.ScanSchedule != "0 7 * * *" {
		t.Errorf("expected default schedule, got %q", cfg.ScanSchedule)
	}
	if cfg.ScanTimezone != "Africa/Lagos" {
		t.Errorf("expected default timezone Africa/Lagos, got %s", cfg.ScanTimezone)
	}
	if cfg.ScanMatchMode != MatchModeExact {
		t.Errorf("expected default match mode exact, got %s", cfg.ScanMatchMode)
	}
	if cfg.ScanTimeout != 10*time.Minute {
		t.Errorf("expected default scan timeout 10m, got %v", cfg.ScanTimeout)
	}
	if cfg.MailProvider != MailProviderSMTP {
		t.Errorf("expected default provider smtp, got %s", cfg.MailProvider)
	}
	if cfg.MailMaxAttempts != 1 {
		t.Errorf("expected default MailMaxAttempts 1, got %d", cfg.MailMaxAttempts)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("expected default LogFormat 'json', got %s", cfg.LogFormat)
	}
	if cfg.TrustProxyHeaders {
		t.Error("expected proxy headers to be untrusted by default")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			DatabaseURL:     "memory://",
			MailProvider:    MailProviderLog,
			ScanMatchMode:   MatchModeExact,
			ScanTimezone:    "Africa/Lagos",
			MailConcurrency: 1,
			MailMaxAttempts: 1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown provider", func(c *Config) { c.MailProvider = "pigeon" }, "MAIL_PROVIDER"},
		{"sendgrid without key", func(c *Config) {
			c.MailProvider = MailProviderSendGrid
			c.MailFrom = "a@example.com"
		}, "EMAIL_PASS"},
		{"resend without sender", func(c *Config) {
			c.MailProvider = MailProviderResend
			c.EmailPass = "re_123"
		}, "MAIL_FROM"},
		{"unknown match mode", func(c *Config) { c.ScanMatchMode = "fuzzy" }, "SCAN_MATCH_MODE"},
		{"bad timezone", func(c *Config) { c.ScanTimezone = "Mars/Olympus" }, "timezone"},
		{"zero concurrency", func(c *Config) { c.MailConcurrency = 0 }, "MAIL_CONCURRENCY"},
		{"zero attempts", func(c *Config) { c.MailMaxAttempts = 0 }, "MAIL_MAX_ATTEMPTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{AppEnv: "development"}
	if !cfg.IsDevelopment() {
		t.Error("expected IsDevelopment to return true")
	}

	cfg.AppEnv = "production"
	if cfg.IsDevelopment() {
		t.Error("expected IsDevelopment to return false")
	}
	if !cfg.IsProduction() {
		t.Error("expected IsProduction to return true")
	}
}
