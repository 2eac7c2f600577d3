package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"collegeplan/internal/types"
)

// CustomerRepo maps application users to Stripe customer ids.
// The mapping is insert-only: the first writer for a user wins and later
// inserts fail with ErrCodeConflictCustomer.
type CustomerRepo struct {
	db DBTX
}

// NewCustomerRepo creates a new CustomerRepo backed by the given database
// connection (pool or transaction).
func NewCustomerRepo(db DBTX) *CustomerRepo {
	return &CustomerRepo{db: db}
}

// GetCustomerID returns the Stripe customer id stored for userID.
func (r *CustomerRepo) GetCustomerID(ctx context.Context, userID string) (string, error) {
	var customerID string
	err := r.db.QueryRow(ctx,
		`SELECT stripe_customer_id FROM stripe_customers WHERE user_id = $1`,
		userID,
	).Scan(&customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundCustomer, "no billing customer for user", nil)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to read billing customer", err)
	}
	return customerID, nil
}

// Insert stores the mapping without overwriting an existing one.
func (r *CustomerRepo) Insert(ctx context.Context, userID, customerID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO stripe_customers (user_id, stripe_customer_id, updated_at)
		 VALUES ($1, $2, NOW())`,
		userID,
		customerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictCustomer, "billing customer already exists for user", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store billing customer", err)
	}
	return nil
}

// GetUserID resolves the application user that owns customerID.
func (r *CustomerRepo) GetUserID(ctx context.Context, customerID string) (string, error) {
	var userID string
	err := r.db.QueryRow(ctx,
		`SELECT user_id FROM stripe_customers WHERE stripe_customer_id = $1`,
		customerID,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundCustomer, "unknown billing customer", nil)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to resolve billing customer", err)
	}
	return userID, nil
}
