package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v3"

	"github.com/kuitang/lp-linkcheck/internal/obs"
)

// Resend sends messages through the Resend API.
type Resend struct {
	client      *resend.Client
	fromAddress string
}

// NewResend creates a Resend notifier. fromAddress must be verified in Resend.
func NewResend(apiKey, fromAddress string) *Resend {
	return &Resend{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
	}
}

// Send delivers msg.
func (r *Resend) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	sent, err := r.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	obs.From(ctx).Info("email sent", "pkg", "notify", "id", sent.Id, "to", strings.Join(msg.To, ","))
	return nil
}
