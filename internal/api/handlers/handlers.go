// Package handlers contains the HTTP handlers of the collegeplan API.
//
// Handlers receive their dependencies through narrow interfaces and are
// mounted by cmd/api through core.Server route registrars. Routes used by
// the existing browser client keep their original response bodies; newer
// routes use the core error envelope.
package handlers

import (
	"context"
	"net/http"

	"collegeplan/internal/billing"
	"collegeplan/internal/core"
	"collegeplan/internal/types"
)

// UsageMeter admits and reports metered feature usage.
type UsageMeter interface {
	Check(ctx context.Context, userID string, feature types.FeatureType, plan types.PlanID) types.UsageData
	Consume(ctx context.Context, userID string, feature types.FeatureType, plan types.PlanID) (types.UsageData, bool, error)
}

// SubscriptionService resolves and changes a user's Stripe subscription.
type SubscriptionService interface {
	GetOrCreateCustomerID(ctx context.Context, actor types.Actor) (string, error)
	FetchSubscription(ctx context.Context, customerID string) (types.SubscriptionLookup, error)
	GetUserSubscriptionStatus(ctx context.Context, userID string) (types.SubscriptionInfo, error)
	BillingOverview(ctx context.Context, actor types.Actor) types.BillingOverview
	CancelSubscription(ctx context.Context, userID string) (*types.BillingSubscription, error)
	ReactivateSubscription(ctx context.Context, userID string) (*types.BillingSubscription, error)
	ChangePlan(ctx context.Context, userID string, newPlan types.PlanID) (*types.BillingSubscription, error)
}

var (
	_ UsageMeter          = (*billing.Meter)(nil)
	_ SubscriptionService = (*billing.Resolver)(nil)
)

// legacyError is the {error} body used by the routes the browser client
// already depends on.
type legacyError struct {
	Error string `json:"error"`
}

func writeLegacyError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	core.JSON(w, r, status, legacyError{Error: msg})
}

// currentPlan is the plan whose quotas apply to the request. A past_due
// subscription keeps its quota while Stripe retries the payment; any other
// lapsed paid subscription meters as free.
func currentPlan(ctx context.Context) types.PlanID {
	info, _ := types.GetSubscription(ctx)
	if info.PlanID == "" {
		return types.PlanFree
	}
	if info.IsActive || info.Status.IsPrimaryCandidate() {
		return info.PlanID
	}
	return types.PlanFree
}
