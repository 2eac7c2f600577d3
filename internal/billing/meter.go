package billing

import (
	"context"
	"log/slog"

	"collegeplan/internal/types"
)

// UsageStore is the persistence the Meter needs. Implemented by db.UsageRepo.
type UsageStore interface {
	// GetCount returns the stored counter, or 0 when absent.
	GetCount(ctx context.Context, userID string, feature types.FeatureType) (int, error)

	// Increment adds one to the counter unconditionally and returns the new count.
	Increment(ctx context.Context, userID string, feature types.FeatureType) (int, error)

	// IncrementIfBelow adds one only while the counter is below limit, in a
	// single statement. ok is false when nothing was written.
	IncrementIfBelow(ctx context.Context, userID string, feature types.FeatureType, limit int) (count int, ok bool, err error)
}

// Meter decides whether a user may use a metered feature again.
// The plan is always supplied by the caller; quotas come from the registry
// and are never read from the usage row.
type Meter struct {
	store  UsageStore
	plans  PlanRegistry
	logger *slog.Logger
}

// NewMeter creates a Meter.
func NewMeter(store UsageStore, plans PlanRegistry, logger *slog.Logger) *Meter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Meter{store: store, plans: plans, logger: logger}
}

// Check reports the user's standing against the plan's quota without
// consuming anything.
//
// Unbounded features are allowed without touching the store, and a zero
// quota is rejected the same way. A failed read is logged and the check
// fails open with a fresh quota.
func (m *Meter) Check(ctx context.Context, userID string, feature types.FeatureType, plan types.PlanID) types.UsageData {
	limit := m.plans.LimitFor(plan, feature)

	if limit.IsUnbounded() {
		return types.UsageData{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
		}
	}
	if limit.IsZero() {
		return types.UsageData{Limit: limit, Remaining: limit}
	}

	count, err := m.store.GetCount(ctx, userID, feature)
	if err != nil {
		m.logger.ErrorContext(ctx, "usage check failed, allowing request",
			"user_id", userID,
			"feature", feature,
			"error", err,
		)
		return types.UsageData{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
		}
	}

	return types.UsageData{
		Allowed:      limit.Allows(count),
		CurrentUsage: count,
		Limit:        limit,
		Remaining:    limit.Remaining(count),
	}
}

// Increment records one use of feature regardless of quota.
func (m *Meter) Increment(ctx context.Context, userID string, feature types.FeatureType) error {
	_, err := m.store.Increment(ctx, userID, feature)
	return err
}

// Consume records one use of feature if the plan's quota still admits it.
//
// The check and the increment are a single conditional write, so two
// concurrent requests can never both take the last unit. The returned
// UsageData reflects the counter after the call. accepted is false when the
// quota is exhausted; err is set only when the store fails.
func (m *Meter) Consume(ctx context.Context, userID string, feature types.FeatureType, plan types.PlanID) (types.UsageData, bool, error) {
	limit := m.plans.LimitFor(plan, feature)

	if limit.IsZero() {
		return types.UsageData{Limit: limit, Remaining: limit}, false, nil
	}

	if limit.IsUnbounded() {
		count, err := m.store.Increment(ctx, userID, feature)
		if err != nil {
			return types.UsageData{Limit: limit, Remaining: limit}, false, err
		}
		return types.UsageData{
			Allowed:      true,
			CurrentUsage: count,
			Limit:        limit,
			Remaining:    limit,
		}, true, nil
	}

	count, ok, err := m.store.IncrementIfBelow(ctx, userID, feature, limit.Value())
	if err != nil {
		return types.UsageData{Limit: limit, Remaining: limit}, false, err
	}
	if ok {
		return types.UsageData{
			Allowed:      true,
			CurrentUsage: count,
			Limit:        limit,
			Remaining:    limit.Remaining(count),
		}, true, nil
	}

	// Rejected: report the counter as stored, or the limit if it cannot be read.
	current, err := m.store.GetCount(ctx, userID, feature)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to read usage after rejection",
			"user_id", userID,
			"feature", feature,
			"error", err,
		)
		current = limit.Value()
	}
	return types.UsageData{
		Allowed:      false,
		CurrentUsage: current,
		Limit:        limit,
		Remaining:    limit.Remaining(current),
	}, false, nil
}
