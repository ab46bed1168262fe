// Package mailer sends plain-text mail through a configured transport.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Provider names accepted by New.
const (
	ProviderSMTP     = "smtp"
	ProviderSendGrid = "sendgrid"
	ProviderResend   = "resend"
	ProviderLog      = "log"
)

// Errors returned while building a transport.
var (
	ErrUnknownProvider    = errors.New("unknown mail provider")
	ErrMissingCredentials = errors.New("missing mail credentials")
	ErrInvalidRecipient   = errors.New("invalid recipient")
)

// Message is a single plain-text mail.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Sender delivers one message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) (string, error)

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) (string, error) {
	return f(ctx, msg)
}

// Config selects and configures a transport.
type Config struct {
	Provider string
	From     string
	// Username is the SMTP account. Ignored by API providers.
	Username string
	// Secret is the SMTP password or the provider API key.
	Secret        string
	Host          string
	Port          int
	TLSSkipVerify bool
}

// New builds the Sender named by cfg.Provider.
func New(cfg Config, logger *slog.Logger) (Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Provider {
	case ProviderSMTP, "":
		if cfg.Username == "" || cfg.Secret == "" {
			return nil, fmt.Errorf("%w: smtp needs EMAIL_USER and EMAIL_PASS", ErrMissingCredentials)
		}
		return NewSMTP(cfg)
	case ProviderSendGrid:
		if cfg.Secret == "" {
			return nil, fmt.Errorf("%w: sendgrid needs an API key", ErrMissingCredentials)
		}
		return NewSendGrid(cfg.Secret, cfg.From), nil
	case ProviderResend:
		if cfg.Secret == "" {
			return nil, fmt.Errorf("%w: resend needs an API key", ErrMissingCredentials)
		}
		return NewResend(cfg.Secret, cfg.From), nil
	case ProviderLog:
		return NewLog(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
