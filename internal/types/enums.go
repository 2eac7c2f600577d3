package types

// PlanID identifies a billing plan in the plan catalog.
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

// FeatureType identifies a metered feature.
type FeatureType string

const (
	FeatureEssayWrites  FeatureType = "essayWrites"
	FeatureCollegeSaves FeatureType = "collegeSaves"
)

// AllFeatureTypes lists every metered feature.
var AllFeatureTypes = []FeatureType{FeatureEssayWrites, FeatureCollegeSaves}

// Valid reports whether f is a known feature type.
func (f FeatureType) Valid() bool {
	switch f {
	case FeatureEssayWrites, FeatureCollegeSaves:
		return true
	}
	return false
}

// SubscriptionStatus represents the state of a billing subscription.
// All values except SubStatusFree mirror the payment provider's statuses.
type SubscriptionStatus string

const (
	SubStatusActive            SubscriptionStatus = "active"
	SubStatusTrialing          SubscriptionStatus = "trialing"
	SubStatusPastDue           SubscriptionStatus = "past_due"
	SubStatusCanceled          SubscriptionStatus = "canceled"
	SubStatusIncomplete        SubscriptionStatus = "incomplete"
	SubStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubStatusUnpaid            SubscriptionStatus = "unpaid"
	SubStatusFree              SubscriptionStatus = "free"
)

// IsPrimaryCandidate reports whether a subscription in this status can be a
// user's primary subscription.
func (s SubscriptionStatus) IsPrimaryCandidate() bool {
	switch s {
	case SubStatusActive, SubStatusTrialing, SubStatusPastDue:
		return true
	}
	return false
}

// IsActive reports whether the status grants paid entitlements.
func (s SubscriptionStatus) IsActive() bool {
	return s == SubStatusActive || s == SubStatusTrialing
}
