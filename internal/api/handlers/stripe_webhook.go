package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"collegeplan/internal/billing"
	"collegeplan/internal/core"
	"collegeplan/internal/external"
	"collegeplan/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a Stripe webhook payload (64 KB).
const maxWebhookBodySize = 64 * 1024

// Webhook results reported to metrics besides billing.SyncResult values.
const (
	webhookRejected = "rejected"
	webhookFailed   = "failed"
	webhookInvalid  = "invalid"
)

// unknownEventType labels metrics for payloads whose type was never read.
const unknownEventType = "unknown"

// EventApplier mirrors a verified Stripe event into local state.
type EventApplier interface {
	Apply(ctx context.Context, event *billing.Event) (billing.SyncResult, error)
}

var _ EventApplier = (*billing.Synchronizer)(nil)

// StripeWebhookHandler handles asynchronous events from Stripe.
// It is unauthenticated but verifies the provider signature.
type StripeWebhookHandler struct {
	verifier external.WebhookVerifier
	applier  EventApplier
	secret   string
	metrics  core.MetricsCollector
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	applier EventApplier,
	secret string,
	metrics core.MetricsCollector,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = core.NoopMetrics{}
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		applier:  applier,
		secret:   secret,
		metrics:  metrics,
		logger:   logger,
	}
}

// RegisterRoutes mounts the Stripe webhook endpoint.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/stripe/webhook", h.Handle)
}

// Handle verifies, parses and applies one Stripe event. A processing error
// returns 500 so that Stripe redelivers. A signed event whose object cannot
// be decoded is acknowledged, since redelivery would fail the same way.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		h.metrics.RecordWebhook(unknownEventType, webhookRejected)
		writeLegacyError(w, r, http.StatusBadRequest, "Invalid payload")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		h.metrics.RecordWebhook(unknownEventType, webhookRejected)
		writeLegacyError(w, r, http.StatusBadRequest, "Missing signature")
		return
	}
	if err := h.verifier.Verify(payload, signature, h.secret); err != nil {
		h.logger.WarnContext(ctx, "webhook signature verification failed", "error", err)
		h.metrics.RecordWebhook(unknownEventType, webhookRejected)
		writeLegacyError(w, r, http.StatusBadRequest, "Invalid signature")
		return
	}

	event, err := billing.ParseEvent(payload)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to parse webhook event", "error", err)
		h.metrics.RecordWebhook(unknownEventType, webhookRejected)
		writeLegacyError(w, r, http.StatusBadRequest, "Invalid payload")
		return
	}

	result, err := h.applier.Apply(ctx, event)
	if types.IsCode(err, types.ErrCodeValidationInvalidBody) {
		h.logger.ErrorContext(ctx, "dropping undecodable webhook event",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		h.metrics.RecordWebhook(event.Type, webhookInvalid)
		core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "webhook processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		h.metrics.RecordWebhook(event.Type, webhookFailed)
		writeLegacyError(w, r, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	h.logger.InfoContext(ctx, "webhook event processed",
		"event_id", event.ID,
		"event_type", event.Type,
		"result", result,
	)
	h.metrics.RecordWebhook(event.Type, string(result))
	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}
