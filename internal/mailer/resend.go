package mailer

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// Resend sends mail through the Resend API.
type Resend struct {
	client *resend.Client
	from   string
}

// NewResend creates a Resend transport.
func NewResend(apiKey, from string) *Resend {
	return &Resend{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// Send delivers msg.
func (r *Resend) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := r.client.Emails.Send(&resend.SendEmailRequest{
		From:    r.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Text,
	})
	if err != nil {
		return "", fmt.Errorf("resend send: %w", err)
	}
	return resp.Id, nil
}
