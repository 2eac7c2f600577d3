package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Limit is a per-feature quota. An unbounded limit always admits and encodes
// as JSON null; it is never represented by a large number.
type Limit struct {
	n         int
	unbounded bool
}

// Bounded returns a finite limit of n units.
func Bounded(n int) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{n: n}
}

// Unbounded returns a limit that admits any count.
func Unbounded() Limit {
	return Limit{unbounded: true}
}

// IsUnbounded reports whether the limit admits any count.
func (l Limit) IsUnbounded() bool { return l.unbounded }

// IsZero reports whether the limit admits nothing.
func (l Limit) IsZero() bool { return !l.unbounded && l.n == 0 }

// Value returns the finite bound. It is meaningless for unbounded limits.
func (l Limit) Value() int { return l.n }

// Allows reports whether one more unit may be used at the given count.
func (l Limit) Allows(count int) bool {
	return l.unbounded || count < l.n
}

// Remaining returns how many units are left after count have been used.
func (l Limit) Remaining(count int) Limit {
	if l.unbounded {
		return l
	}
	return Bounded(max(0, l.n-count))
}

// MarshalJSON encodes unbounded limits as null.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unbounded {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(l.n)), nil
}

// UnmarshalJSON decodes null as an unbounded limit.
func (l *Limit) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = Unbounded()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*l = Bounded(n)
	return nil
}

// UsageData is the result of a usage check or consumption.
type UsageData struct {
	Allowed      bool  `json:"allowed"`
	CurrentUsage int   `json:"currentUsage"`
	Limit        Limit `json:"limit"`
	Remaining    Limit `json:"remaining"`
}

// FeatureUsage is a stored per-user, per-feature counter.
type FeatureUsage struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	FeatureType FeatureType `json:"feature_type"`
	Count       int         `json:"count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Subscription is the locally mirrored subscription row, written only by the
// webhook synchronizer and the checkout flow.
type Subscription struct {
	UserID               string             `json:"user_id"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	StripePriceID        string             `json:"stripe_price_id,omitempty"`
	Status               SubscriptionStatus `json:"status"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	LastEventAt          *time.Time         `json:"last_event_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// SubscriptionInfo is a user's resolved subscription state.
type SubscriptionInfo struct {
	Status            SubscriptionStatus `json:"status"`
	PlanID            PlanID             `json:"planId"`
	IsActive          bool               `json:"isActive"`
	SubscriptionID    string             `json:"subscriptionId,omitempty"`
	CurrentPeriodEnd  *time.Time         `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool               `json:"cancelAtPeriodEnd"`
}

// FreeSubscription is the state of a user with no subscription row.
func FreeSubscription() SubscriptionInfo {
	return SubscriptionInfo{Status: SubStatusFree, PlanID: PlanFree, IsActive: true}
}

// BillingSubscription is a subscription as reported by the payment provider.
type BillingSubscription struct {
	ID                string
	CustomerID        string
	Status            SubscriptionStatus
	ItemID            string
	PriceID           string
	ProductID         string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
}

// PrimarySubscription is the subscription that determines a customer's plan.
type PrimarySubscription struct {
	Subscription BillingSubscription
	PlanID       PlanID
}

// SubscriptionLookup is the result of listing a customer's subscriptions.
type SubscriptionLookup struct {
	Primary                *PrimarySubscription
	HasEverHadSubscription bool
}

// BillingOverview summarizes a user's billing state for the account page.
type BillingOverview struct {
	IsActiveCustomer       bool   `json:"isActiveCustomer"`
	HasEverHadSubscription bool   `json:"hasEverHadSubscription"`
	CurrentPlanID          PlanID `json:"currentPlanId"`
}

// Profile holds the user-editable profile fields.
type Profile struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name"`
	Website     string `json:"website"`
	CompanyName string `json:"company_name"`
	AvatarURL   string `json:"avatar_url"`
}

// College is a user's application target.
type College struct {
	ID              *int64    `json:"id,omitempty"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name" validate:"required,max=255"`
	Priority        string    `json:"priority"`
	Deadline        string    `json:"deadline"`
	Major           string    `json:"major"`
	ApplicationCost string    `json:"application_cost"`
	AttendanceCost  string    `json:"attendance_cost"`
	ApplicationType string    `json:"application_type"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at,omitzero"`
	UpdatedAt       time.Time `json:"updated_at,omitzero"`
}

// RedirectURLs guides the user after a hosted checkout.
type RedirectURLs struct {
	Success string
	Cancel  string
}
