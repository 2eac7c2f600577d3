package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"collegeplan/internal/types"
)

// SubscriptionRepo mirrors Stripe subscription state into user_subscriptions.
//
// Every write carries the creation time of the Stripe event that produced it.
// A write whose event is older than the stored last_event_at is dropped, so
// out-of-order webhook delivery cannot roll a row back to an earlier state.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given
// database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

// Upsert inserts or updates the row keyed by sub.StripeSubscriptionID.
//
// An empty price id or nil period end keeps the stored value, since
// checkout events do not carry them. Events with the same timestamp as the
// stored one are applied; Stripe timestamps have second resolution and
// related events often share one.
//
// It reports whether the row was written. A stale event is logged and
// returns (false, nil).
func (r *SubscriptionRepo) Upsert(ctx context.Context, sub types.Subscription, eventAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO user_subscriptions (
			user_id, stripe_subscription_id, stripe_price_id, status,
			current_period_end, cancel_at_period_end, last_event_at,
			created_at, updated_at
		 ) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, NOW(), NOW())
		 ON CONFLICT (stripe_subscription_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			stripe_price_id = COALESCE(EXCLUDED.stripe_price_id, user_subscriptions.stripe_price_id),
			status = EXCLUDED.status,
			current_period_end = COALESCE(EXCLUDED.current_period_end, user_subscriptions.current_period_end),
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			last_event_at = EXCLUDED.last_event_at,
			updated_at = NOW()
		 WHERE user_subscriptions.last_event_at IS NULL
		    OR user_subscriptions.last_event_at <= EXCLUDED.last_event_at`,
		sub.UserID,
		sub.StripeSubscriptionID,
		sub.StripePriceID,
		sub.Status,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		eventAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.InfoContext(ctx, "stale subscription event ignored",
			slog.String("user_id", sub.UserID),
			slog.String("subscription_id", sub.StripeSubscriptionID),
			slog.String("status", string(sub.Status)),
			slog.Time("event_timestamp", eventAt),
		)
		return false, nil
	}

	return true, nil
}

// GetLatestForUser returns the most recently updated subscription row of
// userID, or ErrCodeNotFoundSubscription when the user has none.
func (r *SubscriptionRepo) GetLatestForUser(ctx context.Context, userID string) (*types.Subscription, error) {
	var (
		sub     types.Subscription
		priceID *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT user_id, stripe_subscription_id, stripe_price_id, status,
		        current_period_end, cancel_at_period_end, last_event_at,
		        created_at, updated_at
		 FROM user_subscriptions
		 WHERE user_id = $1
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		userID,
	).Scan(
		&sub.UserID,
		&sub.StripeSubscriptionID,
		&priceID,
		&sub.Status,
		&sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.LastEventAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription for user", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read subscription", err)
	}
	if priceID != nil {
		sub.StripePriceID = *priceID
	}
	return &sub, nil
}
