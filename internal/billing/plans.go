// Package billing implements the plan catalog, usage metering, subscription
// resolution, and webhook-driven subscription synchronization.
package billing

import (
	"maps"

	"collegeplan/internal/types"
)

// Plan is a catalog entry. Limits maps each metered feature to its quota.
type Plan struct {
	ID                types.PlanID                      `json:"id"`
	Name              string                            `json:"name"`
	Description       string                            `json:"description"`
	Price             string                            `json:"price"`
	PriceIntervalName string                            `json:"priceIntervalName"`
	StripePriceID     string                            `json:"stripePriceId,omitempty"`
	StripeProductID   string                            `json:"stripeProductId,omitempty"`
	Level             int                               `json:"level"`
	Limits            map[types.FeatureType]types.Limit `json:"limits"`
	Features          []string                          `json:"features"`
}

// PlanRegistry is the single source of truth for plans and their quotas.
type PlanRegistry interface {
	// Plan returns the catalog entry for id. Unknown ids resolve to the free plan.
	Plan(id types.PlanID) Plan

	// LimitFor returns the quota of feature under plan id. Unknown features
	// get a zero limit.
	LimitFor(id types.PlanID, feature types.FeatureType) types.Limit

	// PlanForPrice maps a Stripe price id back to a plan.
	PlanForPrice(priceID string) (types.PlanID, bool)

	// PlanForProduct maps a Stripe product id back to a plan.
	PlanForProduct(productID string) (types.PlanID, bool)

	// HasFeatureAccess reports whether userPlan is at or above required in
	// the plan hierarchy.
	HasFeatureAccess(userPlan, required types.PlanID) bool

	// Plans lists the catalog in ascending level order.
	Plans() []Plan
}

// DefaultPlanID is the plan of users without a subscription.
const DefaultPlanID = types.PlanFree

// catalog lists the plans in ascending level order. The "pro" plan is sold
// as "Plus" and "enterprise" as "Pro".
var catalog = []Plan{
	{
		ID:                types.PlanFree,
		Name:              "Free",
		Description:       "A free plan to get you started with Ivy Honor",
		Price:             "$0",
		PriceIntervalName: "per month",
		Level:             0,
		Limits: map[types.FeatureType]types.Limit{
			types.FeatureEssayWrites:  types.Bounded(0),
			types.FeatureCollegeSaves: types.Bounded(5),
		},
		Features: []string{
			"Access to basic college information",
			"Limited search functionality",
			"Personal profile creation",
			"Up to 5 college saves",
		},
	},
	{
		ID:                types.PlanPro,
		Name:              "Plus",
		Description:       "Enhanced features for serious college applicants",
		Price:             "$9.99",
		PriceIntervalName: "per month",
		StripePriceID:     "price_1NkdZCHMjzZ8mGZnRSjUm4yA",
		StripeProductID:   "prod_RpxAMTArQqEY4v",
		Level:             1,
		Limits: map[types.FeatureType]types.Limit{
			types.FeatureEssayWrites:  types.Bounded(30),
			types.FeatureCollegeSaves: types.Unbounded(),
		},
		Features: []string{
			"Everything in Free",
			"Advanced college search filters",
			"Unlimited college saves",
			"Application deadline reminders",
			"Essay topic suggestions",
			"Counselor AI Agent (30 essay writes/edits per month)",
		},
	},
	{
		ID:                types.PlanEnterprise,
		Name:              "Pro",
		Description:       "Complete college application support for dedicated students",
		Price:             "$15",
		PriceIntervalName: "per month",
		StripePriceID:     "price_1Nkda2HMjzZ8mGZn4sKvbDAV",
		StripeProductID:   "prod_OXj20YNpHYOXi7",
		Level:             2,
		Limits: map[types.FeatureType]types.Limit{
			types.FeatureEssayWrites:  types.Bounded(100),
			types.FeatureCollegeSaves: types.Unbounded(),
		},
		Features: []string{
			"Everything in Plus",
			"Priority support",
			"Essay review assistance",
			"Personalized college recommendations",
			"Application strategy consultation",
			"Counselor AI Agent (100 essay writes/edits per month)",
		},
	},
}

// staticPlanRegistry is an in-memory PlanRegistry indexed by plan, price and
// product id.
type staticPlanRegistry struct {
	plans     []Plan
	byID      map[types.PlanID]Plan
	byPrice   map[string]types.PlanID
	byProduct map[string]types.PlanID
}

// NewStaticPlanRegistry returns a PlanRegistry backed by the built-in catalog.
func NewStaticPlanRegistry() PlanRegistry {
	return newPlanRegistry(catalog)
}

func newPlanRegistry(plans []Plan) *staticPlanRegistry {
	r := &staticPlanRegistry{
		plans:     make([]Plan, 0, len(plans)),
		byID:      make(map[types.PlanID]Plan, len(plans)),
		byPrice:   make(map[string]types.PlanID, len(plans)),
		byProduct: make(map[string]types.PlanID, len(plans)),
	}
	for _, p := range plans {
		p = clonePlan(p)
		r.plans = append(r.plans, p)
		r.byID[p.ID] = p
		if p.StripePriceID != "" {
			r.byPrice[p.StripePriceID] = p.ID
		}
		if p.StripeProductID != "" {
			r.byProduct[p.StripeProductID] = p.ID
		}
	}
	return r
}

func (r *staticPlanRegistry) Plan(id types.PlanID) Plan {
	if p, ok := r.byID[id]; ok {
		return clonePlan(p)
	}
	return clonePlan(r.byID[DefaultPlanID])
}

func (r *staticPlanRegistry) LimitFor(id types.PlanID, feature types.FeatureType) types.Limit {
	p, ok := r.byID[id]
	if !ok {
		p = r.byID[DefaultPlanID]
	}
	limit, ok := p.Limits[feature]
	if !ok {
		return types.Bounded(0)
	}
	return limit
}

func (r *staticPlanRegistry) PlanForPrice(priceID string) (types.PlanID, bool) {
	id, ok := r.byPrice[priceID]
	return id, ok
}

func (r *staticPlanRegistry) PlanForProduct(productID string) (types.PlanID, bool) {
	id, ok := r.byProduct[productID]
	return id, ok
}

// HasFeatureAccess compares plan levels. An unknown user plan has no access,
// and an unknown required plan cannot be satisfied.
func (r *staticPlanRegistry) HasFeatureAccess(userPlan, required types.PlanID) bool {
	have, ok := r.byID[userPlan]
	if !ok {
		return false
	}
	want, ok := r.byID[required]
	if !ok {
		return false
	}
	return have.Level >= want.Level
}

func (r *staticPlanRegistry) Plans() []Plan {
	out := make([]Plan, len(r.plans))
	for i, p := range r.plans {
		out[i] = clonePlan(p)
	}
	return out
}

// clonePlan copies the reference fields of p so that callers cannot mutate
// the registry or the package-level catalog.
func clonePlan(p Plan) Plan {
	p.Limits = maps.Clone(p.Limits)
	p.Features = append([]string(nil), p.Features...)
	return p
}
