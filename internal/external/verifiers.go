package external

import (
	"context"
	"log/slog"

	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeVerifier implements WebhookVerifier with stripe-go's HMAC-SHA256
// signature check, which also rejects timestamps outside the default
// five-minute tolerance.
type StripeVerifier struct{}

// Verify validates payload against the Stripe-Signature header.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return webhook.ValidatePayload(payload, header, secret)
}

// StubWebhookVerifier accepts every payload. It is wired only in local mode
// when no signing secret is configured.
type StubWebhookVerifier struct {
	logger *slog.Logger
}

// NewStubWebhookVerifier creates a new StubWebhookVerifier.
func NewStubWebhookVerifier(logger *slog.Logger) *StubWebhookVerifier {
	return &StubWebhookVerifier{logger: logger}
}

// Verify logs and accepts.
func (v *StubWebhookVerifier) Verify(payload []byte, header string, secret string) error {
	v.logger.DebugContext(context.Background(), "stub: webhook signature accepted without verification",
		"payload_bytes", len(payload),
	)
	return nil
}

var (
	_ WebhookVerifier = (*StripeVerifier)(nil)
	_ WebhookVerifier = (*StubWebhookVerifier)(nil)
)
