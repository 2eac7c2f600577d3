package types

import (
	"context"
)

// Actor is the authenticated user performing a request. The identity comes
// from the auth provider's access token; the service never stores credentials.
type Actor struct {
	ID    string
	Email string
	Role  string
}

// Context Keys
type contextKey string

const (
	actorKey        contextKey = "actor"
	requestIDKey    contextKey = "request_id"
	subscriptionKey contextKey = "subscription"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok && actor.ID != ""
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithSubscription stores the resolved subscription of the current actor.
// It is set by the subscription loader middleware once per request.
func WithSubscription(ctx context.Context, info SubscriptionInfo) context.Context {
	return context.WithValue(ctx, subscriptionKey, info)
}

// GetSubscription returns the subscription resolved for the current request.
// When nothing was loaded the free plan is returned with ok=false.
func GetSubscription(ctx context.Context) (SubscriptionInfo, bool) {
	info, ok := ctx.Value(subscriptionKey).(SubscriptionInfo)
	if !ok {
		return FreeSubscription(), false
	}
	return info, true
}
