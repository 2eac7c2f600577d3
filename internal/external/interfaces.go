package external

import (
	"context"

	"collegeplan/internal/types"
)

// ---------------------------------------------------------------------------
// Billing Integration (Stripe)
// ---------------------------------------------------------------------------

// BillingService abstracts the payment provider (Stripe).
// Implementations translate between domain types and vendor-specific APIs.
type BillingService interface {
	// CreateCustomer creates a customer and returns its id.
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)

	// ListSubscriptions returns up to 100 subscriptions of the customer in
	// any status, newest first.
	ListSubscriptions(ctx context.Context, customerID string) ([]types.BillingSubscription, error)

	// GetSubscription retrieves one subscription by id.
	GetSubscription(ctx context.Context, subscriptionID string) (*types.BillingSubscription, error)

	// UpdateSubscription applies params and returns the updated subscription.
	UpdateSubscription(ctx context.Context, subscriptionID string, params SubscriptionUpdate) (*types.BillingSubscription, error)

	// CreateCheckoutSession starts a hosted subscription checkout and
	// returns its URL and id.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (checkoutURL string, sessionID string, err error)
}

// CustomerParams describes a customer to create.
type CustomerParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

// SubscriptionUpdate lists the subscription fields the API changes.
// Nil or empty fields are left untouched.
type SubscriptionUpdate struct {
	CancelAtPeriodEnd *bool
	// ItemID and PriceID replace the price of an existing item.
	ItemID  string
	PriceID string
}

// CheckoutParams describes a subscription checkout session.
type CheckoutParams struct {
	CustomerID        string
	PriceID           string
	ClientReferenceID string
	URLs              types.RedirectURLs
}

// WebhookVerifier abstracts Stripe webhook signature checking.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the signature header and
	// signing secret. Returns nil on success.
	Verify(payload []byte, header string, secret string) error
}

// Stripe event types handled by the webhook synchronizer.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeSubCreated        = "customer.subscription.created"
	EventStripeSubUpdated        = "customer.subscription.updated"
	EventStripeSubDeleted        = "customer.subscription.deleted"
	EventStripePaymentSucceeded  = "invoice.payment_succeeded"
	EventStripePaymentFailed     = "invoice.payment_failed"
)

// ---------------------------------------------------------------------------
// LLM Integration (OpenAI-compatible chat completions)
// ---------------------------------------------------------------------------

// ChatCompleter abstracts a chat-completions model.
type ChatCompleter interface {
	// Complete sends the conversation and returns the first choice's text.
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// ChatRequest is one chat-completions call.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)
