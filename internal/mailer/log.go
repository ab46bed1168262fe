package mailer

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Log writes messages to a logger instead of sending them.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging transport.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("component", "mailer.log")}
}

// Send logs msg and returns a random id.
func (l *Log) Send(ctx context.Context, msg Message) (string, error) {
	id := uuid.NewString()
	l.logger.InfoContext(ctx, "mail",
		"message_id", id,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return id, nil
}
