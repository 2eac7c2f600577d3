package billing

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"collegeplan/internal/external"
	"collegeplan/internal/types"
)

// CustomerStore maps users to billing customers. Implemented by db.CustomerRepo.
type CustomerStore interface {
	GetCustomerID(ctx context.Context, userID string) (string, error)
	Insert(ctx context.Context, userID, customerID string) error
	GetUserID(ctx context.Context, customerID string) (string, error)
}

// ProfileStore reads user profiles. Implemented by db.ProfileRepo.
type ProfileStore interface {
	GetByID(ctx context.Context, userID string) (*types.Profile, error)
}

// SubscriptionStore persists mirrored subscriptions. Implemented by
// db.SubscriptionRepo.
type SubscriptionStore interface {
	// Upsert writes sub unless the stored row saw a newer event. applied is
	// false when the write was skipped as stale.
	Upsert(ctx context.Context, sub types.Subscription, eventAt time.Time) (applied bool, err error)
	GetLatestForUser(ctx context.Context, userID string) (*types.Subscription, error)
}

// Resolver answers "which plan is this user on" from the local mirror and
// from Stripe, and performs subscription changes on the user's behalf.
type Resolver struct {
	customers     CustomerStore
	profiles      ProfileStore
	subscriptions SubscriptionStore
	billing       external.BillingService
	plans         PlanRegistry
	logger        *slog.Logger
}

// ResolverDeps groups the Resolver's collaborators.
type ResolverDeps struct {
	Customers     CustomerStore
	Profiles      ProfileStore
	Subscriptions SubscriptionStore
	Billing       external.BillingService
	Plans         PlanRegistry
	Logger        *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(deps ResolverDeps) *Resolver {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		customers:     deps.Customers,
		profiles:      deps.Profiles,
		subscriptions: deps.Subscriptions,
		billing:       deps.Billing,
		plans:         deps.Plans,
		logger:        logger,
	}
}

// GetOrCreateCustomerID returns the user's Stripe customer, creating one on
// first use. When two requests race, the first stored mapping wins and the
// loser's Stripe customer is left orphaned.
func (r *Resolver) GetOrCreateCustomerID(ctx context.Context, actor types.Actor) (string, error) {
	customerID, err := r.customers.GetCustomerID(ctx, actor.ID)
	if err == nil {
		return customerID, nil
	}
	if !types.IsCode(err, types.ErrCodeNotFoundCustomer) {
		return "", err
	}

	profile, err := r.profiles.GetByID(ctx, actor.ID)
	if err != nil {
		if !types.IsCode(err, types.ErrCodeNotFoundProfile) {
			return "", err
		}
		profile = &types.Profile{ID: actor.ID}
	}

	created, err := r.billing.CreateCustomer(ctx, external.CustomerParams{
		Email: actor.Email,
		Name:  profile.FullName,
		Metadata: map[string]string{
			"user_id":      actor.ID,
			"company_name": profile.CompanyName,
			"website":      profile.Website,
		},
	})
	if err != nil {
		return "", err
	}

	if err := r.customers.Insert(ctx, actor.ID, created); err != nil {
		if !types.IsCode(err, types.ErrCodeConflictCustomer) {
			return "", err
		}
		winner, readErr := r.customers.GetCustomerID(ctx, actor.ID)
		if readErr != nil {
			return "", readErr
		}
		r.logger.WarnContext(ctx, "customer creation lost a race; stripe customer orphaned",
			"user_id", actor.ID,
			"orphan_customer_id", created,
			"customer_id", winner,
		)
		return winner, nil
	}

	r.logger.InfoContext(ctx, "billing customer created",
		"user_id", actor.ID,
		"customer_id", created,
	)
	return created, nil
}

// FetchSubscription lists the customer's subscriptions at Stripe and picks
// the primary one: the first that is active, trialing or past due. A primary
// subscription whose product is not in the catalog is a data-integrity error.
func (r *Resolver) FetchSubscription(ctx context.Context, customerID string) (types.SubscriptionLookup, error) {
	subs, err := r.billing.ListSubscriptions(ctx, customerID)
	if err != nil {
		return types.SubscriptionLookup{}, err
	}

	lookup := types.SubscriptionLookup{HasEverHadSubscription: len(subs) > 0}
	for _, sub := range subs {
		if !sub.Status.IsPrimaryCandidate() {
			continue
		}
		planID, ok := r.plans.PlanForProduct(sub.ProductID)
		if !ok {
			return types.SubscriptionLookup{}, types.NewAppErrorWithDetails(
				types.ErrCodeInternalDataIntegrity,
				"subscription product is not in the plan catalog",
				nil,
				map[string]any{"subscription_id": sub.ID, "product_id": sub.ProductID},
			)
		}
		lookup.Primary = &types.PrimarySubscription{Subscription: sub, PlanID: planID}
		break
	}
	return lookup, nil
}

// GetUserSubscriptionStatus resolves the user's plan from the most recently
// updated local subscription row. Users without one are on the free plan.
func (r *Resolver) GetUserSubscriptionStatus(ctx context.Context, userID string) (types.SubscriptionInfo, error) {
	sub, err := r.subscriptions.GetLatestForUser(ctx, userID)
	if err != nil {
		if types.IsCode(err, types.ErrCodeNotFoundSubscription) {
			return types.FreeSubscription(), nil
		}
		return types.SubscriptionInfo{}, err
	}

	planID, ok := r.plans.PlanForPrice(sub.StripePriceID)
	if !ok {
		planID = DefaultPlanID
	}

	return types.SubscriptionInfo{
		Status:            sub.Status,
		PlanID:            planID,
		IsActive:          sub.Status.IsActive(),
		SubscriptionID:    sub.StripeSubscriptionID,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}, nil
}

// HasAccess reports whether info grants the required plan level. An inactive
// paid subscription only grants the free level.
func (r *Resolver) HasAccess(info types.SubscriptionInfo, required types.PlanID) bool {
	if !info.IsActive && info.PlanID != types.PlanFree {
		return required == types.PlanFree
	}
	return r.plans.HasFeatureAccess(info.PlanID, required)
}

// BillingOverview summarizes the user's billing state for the account page.
// Stripe and the local mirror are read concurrently; any failure degrades to
// a free customer with no history.
func (r *Resolver) BillingOverview(ctx context.Context, actor types.Actor) types.BillingOverview {
	fallback := types.BillingOverview{CurrentPlanID: types.PlanFree}

	var (
		lookup types.SubscriptionLookup
		local  types.SubscriptionInfo
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		customerID, err := r.GetOrCreateCustomerID(gctx, actor)
		if err != nil {
			return err
		}
		lookup, err = r.FetchSubscription(gctx, customerID)
		return err
	})
	g.Go(func() error {
		var err error
		local, err = r.GetUserSubscriptionStatus(gctx, actor.ID)
		return err
	})

	if err := g.Wait(); err != nil {
		r.logger.ErrorContext(ctx, "billing overview degraded to free",
			"user_id", actor.ID,
			"error", err,
		)
		return fallback
	}

	overview := types.BillingOverview{
		IsActiveCustomer:       lookup.Primary != nil,
		HasEverHadSubscription: lookup.HasEverHadSubscription,
		CurrentPlanID:          types.PlanFree,
	}
	if lookup.Primary != nil {
		overview.CurrentPlanID = lookup.Primary.PlanID
	}

	if overview.CurrentPlanID != local.PlanID {
		r.logger.WarnContext(ctx, "local subscription mirror disagrees with stripe",
			"user_id", actor.ID,
			"stripe_plan", overview.CurrentPlanID,
			"local_plan", local.PlanID,
		)
	}
	return overview
}

// CancelSubscription schedules the user's subscription to end at the close
// of the current period. The local row is updated by the resulting webhook.
func (r *Resolver) CancelSubscription(ctx context.Context, userID string) (*types.BillingSubscription, error) {
	return r.setCancelAtPeriodEnd(ctx, userID, true)
}

// ReactivateSubscription undoes a scheduled cancellation.
func (r *Resolver) ReactivateSubscription(ctx context.Context, userID string) (*types.BillingSubscription, error) {
	return r.setCancelAtPeriodEnd(ctx, userID, false)
}

func (r *Resolver) setCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) (*types.BillingSubscription, error) {
	subID, err := r.localSubscriptionID(ctx, userID)
	if err != nil {
		return nil, err
	}

	updated, err := r.billing.UpdateSubscription(ctx, subID, external.SubscriptionUpdate{CancelAtPeriodEnd: &cancel})
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "subscription cancellation updated",
		"user_id", userID,
		"subscription_id", subID,
		"cancel_at_period_end", cancel,
	)
	return updated, nil
}

// ChangePlan moves the user's subscription to the price of newPlan.
func (r *Resolver) ChangePlan(ctx context.Context, userID string, newPlan types.PlanID) (*types.BillingSubscription, error) {
	plan := r.plans.Plan(newPlan)
	if plan.ID != newPlan || plan.StripePriceID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationPlan, "plan cannot be subscribed to", nil)
	}

	subID, err := r.localSubscriptionID(ctx, userID)
	if err != nil {
		return nil, err
	}

	current, err := r.billing.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if current.ItemID == "" {
		return nil, types.NewAppError(types.ErrCodeInternalDataIntegrity, "subscription has no items", nil)
	}

	updated, err := r.billing.UpdateSubscription(ctx, subID, external.SubscriptionUpdate{
		ItemID:  current.ItemID,
		PriceID: plan.StripePriceID,
	})
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "subscription plan changed",
		"user_id", userID,
		"subscription_id", subID,
		"plan", newPlan,
	)
	return updated, nil
}

func (r *Resolver) localSubscriptionID(ctx context.Context, userID string) (string, error) {
	sub, err := r.subscriptions.GetLatestForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub.StripeSubscriptionID == "" {
		return "", types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription for user", nil)
	}
	return sub.StripeSubscriptionID, nil
}
