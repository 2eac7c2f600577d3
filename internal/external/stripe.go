package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"collegeplan/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient implements BillingService with direct calls to the Stripe
// REST API through BaseClient. Requests are pinned to the API version of the
// linked stripe-go release.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a StripeClient with Stripe's retry policy.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"CollegePlan/1.0",
		WithUpstreamCode(types.ErrCodeUpstreamStripe),
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

var _ BillingService = (*StripeClient)(nil)

// CreateCustomer creates a customer with the given email, name and metadata.
func (s *StripeClient) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	form := url.Values{}
	if params.Email != "" {
		form.Set("email", params.Email)
	}
	form.Set("name", params.Name)
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var customer stripeCustomer
	if err := s.call(ctx, http.MethodPost, "/v1/customers", form, "CreateCustomer", &customer); err != nil {
		return "", err
	}
	if customer.ID == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamStripe, "CreateCustomer: Stripe returned no customer id", nil)
	}
	return customer.ID, nil
}

// ListSubscriptions lists the customer's subscriptions in every status.
func (s *StripeClient) ListSubscriptions(ctx context.Context, customerID string) ([]types.BillingSubscription, error) {
	query := url.Values{}
	query.Set("customer", customerID)
	query.Set("limit", "100")
	query.Set("status", "all")

	var list stripeSubscriptionList
	if err := s.call(ctx, http.MethodGet, "/v1/subscriptions", query, "ListSubscriptions", &list); err != nil {
		return nil, err
	}

	subs := make([]types.BillingSubscription, 0, len(list.Data))
	for i := range list.Data {
		subs = append(subs, list.Data[i].Domain())
	}
	return subs, nil
}

// GetSubscription retrieves one subscription.
func (s *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*types.BillingSubscription, error) {
	var sub StripeSubscription
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := s.call(ctx, http.MethodGet, path, nil, "GetSubscription", &sub); err != nil {
		return nil, err
	}
	out := sub.Domain()
	return &out, nil
}

// UpdateSubscription changes cancel_at_period_end and/or the price of one item.
func (s *StripeClient) UpdateSubscription(ctx context.Context, subscriptionID string, params SubscriptionUpdate) (*types.BillingSubscription, error) {
	form := url.Values{}
	if params.CancelAtPeriodEnd != nil {
		form.Set("cancel_at_period_end", strconv.FormatBool(*params.CancelAtPeriodEnd))
	}
	if params.ItemID != "" && params.PriceID != "" {
		form.Set("items[0][id]", params.ItemID)
		form.Set("items[0][price]", params.PriceID)
	}

	var sub StripeSubscription
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := s.call(ctx, http.MethodPost, path, form, "UpdateSubscription", &sub); err != nil {
		return nil, err
	}
	out := sub.Domain()
	return &out, nil
}

// CreateCheckoutSession creates a subscription-mode Checkout Session.
// client_reference_id carries the user id for webhook correlation.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, string, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("customer", params.CustomerID)
	form.Set("client_reference_id", params.ClientReferenceID)
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.URLs.Success)
	form.Set("cancel_url", params.URLs.Cancel)
	form.Set("automatic_tax[enabled]", "true")
	form.Set("billing_address_collection", "required")
	form.Set("allow_promotion_codes", "true")
	form.Set("customer_update[address]", "auto")

	var session StripeCheckoutSession
	if err := s.call(ctx, http.MethodPost, "/v1/checkout/sessions", form, "CreateCheckoutSession", &session); err != nil {
		return "", "", err
	}
	if session.URL == "" {
		return "", "", types.NewAppError(types.ErrCodeUpstreamStripe, "CreateCheckoutSession: Stripe returned no session url", nil)
	}
	return session.URL, session.ID, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// call performs an authenticated request and decodes a 200 response into out.
// GET parameters go in the query string, POST parameters in a form body.
func (s *StripeClient) call(ctx context.Context, method, path string, params url.Values, operation string, out any) error {
	reqURL := s.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, operation+": failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	resp, err := s.base.Do(req)
	if err != nil {
		return s.wrapStripeError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(ctx, resp, operation)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: failed to decode Stripe response", operation),
			err,
		)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// handleErrorResponse reads a Stripe error response and maps it to a types.AppError.
func (s *StripeClient) handleErrorResponse(ctx context.Context, resp *http.Response, operation string) error {
	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and the body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if err := json.Unmarshal(raw, &stripeErr); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			err,
		)
	}

	s.logger.WarnContext(ctx, "stripe request failed",
		"operation", operation,
		"status", resp.StatusCode,
		"stripe_type", stripeErr.Error.Type,
		"stripe_code", stripeErr.Error.Code,
	)
	return mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

// mapStripeError translates a Stripe error body into a types.AppError.
func mapStripeError(operation string, statusCode int, e *stripeErrorBody) error {
	if e.Code == "card_declined" || e.DeclineCode != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, e.Message),
			nil,
			map[string]any{
				"decline_code": e.DeclineCode,
				"stripe_code":  e.Code,
			},
		)
	}

	switch {
	case statusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, e.Message),
			nil,
		)
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, e.Message),
			nil,
		)
	}
}

// wrapStripeError keeps AppErrors from BaseClient and wraps anything else.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}
