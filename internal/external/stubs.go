package external

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"collegeplan/internal/types"
)

// Stub implementations let the API boot locally without vendor credentials.
// They log every call and return predictable values.

// StubBillingService implements BillingService. Customers never have
// subscriptions, so every user resolves to the free plan.
type StubBillingService struct {
	logger *slog.Logger
}

// NewStubBillingService creates a new StubBillingService.
func NewStubBillingService(logger *slog.Logger) *StubBillingService {
	return &StubBillingService{logger: logger}
}

func (s *StubBillingService) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	s.logger.InfoContext(ctx, "stub: CreateCustomer called",
		"user_id", params.Metadata["user_id"],
	)
	return fmt.Sprintf("cus_stub_%s", params.Metadata["user_id"]), nil
}

func (s *StubBillingService) ListSubscriptions(ctx context.Context, customerID string) ([]types.BillingSubscription, error) {
	s.logger.InfoContext(ctx, "stub: ListSubscriptions called", "customer_id", customerID)
	return []types.BillingSubscription{}, nil
}

func (s *StubBillingService) GetSubscription(ctx context.Context, subscriptionID string) (*types.BillingSubscription, error) {
	s.logger.InfoContext(ctx, "stub: GetSubscription called", "subscription_id", subscriptionID)
	return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "stub: no subscriptions", nil)
}

func (s *StubBillingService) UpdateSubscription(ctx context.Context, subscriptionID string, params SubscriptionUpdate) (*types.BillingSubscription, error) {
	s.logger.InfoContext(ctx, "stub: UpdateSubscription called", "subscription_id", subscriptionID)
	return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "stub: no subscriptions", nil)
}

func (s *StubBillingService) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, string, error) {
	s.logger.InfoContext(ctx, "stub: CreateCheckoutSession called",
		"customer_id", params.CustomerID,
		"price_id", params.PriceID,
	)
	return params.URLs.Success + "?stub_checkout=1", fmt.Sprintf("cs_stub_%d", time.Now().Unix()), nil
}

// StubChatCompleter implements ChatCompleter by echoing the last user
// message.
type StubChatCompleter struct {
	logger *slog.Logger
}

// NewStubChatCompleter creates a new StubChatCompleter.
func NewStubChatCompleter(logger *slog.Logger) *StubChatCompleter {
	return &StubChatCompleter{logger: logger}
}

func (s *StubChatCompleter) Complete(ctx context.Context, req ChatRequest) (string, error) {
	s.logger.InfoContext(ctx, "stub: Complete called",
		"model", req.Model,
		"messages", len(req.Messages),
		"max_tokens", req.MaxTokens,
	)
	var last string
	for _, m := range req.Messages {
		if m.Role == RoleUser {
			last = m.Content
		}
	}
	return "[stub essay] " + strings.TrimSpace(firstLine(last)), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var (
	_ BillingService = (*StubBillingService)(nil)
	_ ChatCompleter  = (*StubChatCompleter)(nil)
)
