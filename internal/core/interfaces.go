package core

import (
	"context"

	"github.com/go-chi/chi/v5"

	"collegeplan/internal/types"
)

// Authenticator verifies an access token and returns the user it was issued to.
// Implementations return an AppError with one of the auth_token_* codes.
type Authenticator interface {
	Verify(token string) (types.Actor, error)
}

// SubscriptionLoader resolves a user's current plan from the local store.
type SubscriptionLoader interface {
	GetUserSubscriptionStatus(ctx context.Context, userID string) (types.SubscriptionInfo, error)
}

// AccessPolicy decides whether a subscription grants a plan level.
type AccessPolicy interface {
	HasAccess(info types.SubscriptionInfo, required types.PlanID) bool
}

// RouteRegistrar mounts a handler's routes. Registrars are populated by the
// entry point so core does not import handler packages.
type RouteRegistrar func(r chi.Router)
