package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"collegeplan/internal/types"
)

// UsageRepo provides data access for the feature_usage counters.
// Rows are unique per (user_id, feature_type); limits are never stored here.
type UsageRepo struct {
	db DBTX
}

// NewUsageRepo creates a new UsageRepo backed by the given database
// connection (pool or transaction).
func NewUsageRepo(db DBTX) *UsageRepo {
	return &UsageRepo{db: db}
}

// GetCount returns the stored counter, or 0 when the user has never used
// the feature.
func (r *UsageRepo) GetCount(ctx context.Context, userID string, feature types.FeatureType) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count FROM feature_usage WHERE user_id = $1 AND feature_type = $2`,
		userID,
		feature,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to read feature usage", err)
	}
	return count, nil
}

// Increment adds one to the counter, creating it at 1 if absent, and
// returns the new count.
func (r *UsageRepo) Increment(ctx context.Context, userID string, feature types.FeatureType) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`INSERT INTO feature_usage (id, user_id, feature_type, count, created_at, updated_at)
		 VALUES ($1, $2, $3, 1, NOW(), NOW())
		 ON CONFLICT (user_id, feature_type) DO UPDATE SET
			count = feature_usage.count + 1,
			updated_at = NOW()
		 RETURNING count`,
		uuid.NewString(),
		userID,
		feature,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to increment feature usage", err)
	}
	return count, nil
}

// IncrementIfBelow adds one to the counter only while it is below limit.
// The check and the write happen in one statement, so concurrent callers
// cannot push the counter past limit.
//
// It returns the new count and true when the unit was consumed. When the
// counter is already at limit nothing is written and ok is false.
func (r *UsageRepo) IncrementIfBelow(ctx context.Context, userID string, feature types.FeatureType, limit int) (count int, ok bool, err error) {
	if limit <= 0 {
		return 0, false, nil
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO feature_usage (id, user_id, feature_type, count, created_at, updated_at)
		 VALUES ($1, $2, $3, 1, NOW(), NOW())
		 ON CONFLICT (user_id, feature_type) DO UPDATE SET
			count = feature_usage.count + 1,
			updated_at = NOW()
		 WHERE feature_usage.count < $4
		 RETURNING count`,
		uuid.NewString(),
		userID,
		feature,
		limit,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, types.NewAppError(types.ErrCodeInternalDB, "failed to consume feature usage", err)
	}
	return count, true, nil
}
