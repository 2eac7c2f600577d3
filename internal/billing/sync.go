package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"collegeplan/internal/external"
	"collegeplan/internal/types"
)

// Synchronizer mirrors Stripe subscription state into the local store from
// verified webhook events. Every write carries the event time, so a delayed
// older event cannot overwrite state from a newer one.
type Synchronizer struct {
	customers     CustomerStore
	subscriptions SubscriptionStore
	billing       external.BillingService
	logger        *slog.Logger
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(
	customers CustomerStore,
	subscriptions SubscriptionStore,
	billing external.BillingService,
	logger *slog.Logger,
) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		customers:     customers,
		subscriptions: subscriptions,
		billing:       billing,
		logger:        logger,
	}
}

// Apply routes event to its handler. Unhandled types and unknown customers
// are acknowledged without error; an error means the event should be retried.
func (s *Synchronizer) Apply(ctx context.Context, event *Event) (SyncResult, error) {
	switch event.Type {
	case external.EventStripeCheckoutCompleted:
		return s.checkoutCompleted(ctx, event)
	case external.EventStripeSubCreated, external.EventStripeSubUpdated:
		return s.subscriptionChanged(ctx, event, "")
	case external.EventStripeSubDeleted:
		return s.subscriptionChanged(ctx, event, types.SubStatusCanceled)
	case external.EventStripePaymentSucceeded:
		return s.invoiceSettled(ctx, event, "")
	case external.EventStripePaymentFailed:
		return s.invoiceSettled(ctx, event, types.SubStatusPastDue)
	default:
		s.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return SyncIgnored, nil
	}
}

func (s *Synchronizer) checkoutCompleted(ctx context.Context, event *Event) (SyncResult, error) {
	var session external.StripeCheckoutSession
	if err := event.decodeObject(&session); err != nil {
		return "", err
	}
	if session.Subscription == "" {
		s.logger.InfoContext(ctx, "checkout session has no subscription",
			"event_id", event.ID,
			"session_id", session.ID,
			"mode", session.Mode,
		)
		return SyncIgnored, nil
	}

	userID, result, err := s.resolveUser(ctx, event, string(session.Customer))
	if err != nil || result != "" {
		// Sessions created by this service carry the user id.
		if result != SyncUnknownCustomer || session.ClientReferenceID == "" {
			return result, err
		}
		userID = session.ClientReferenceID
	}

	return s.upsert(ctx, event, types.Subscription{
		UserID:               userID,
		StripeSubscriptionID: string(session.Subscription),
		Status:               types.SubStatusActive,
	})
}

// subscriptionChanged stores the subscription object carried by the event.
// A non-empty status overrides the object's own.
func (s *Synchronizer) subscriptionChanged(ctx context.Context, event *Event, status types.SubscriptionStatus) (SyncResult, error) {
	var obj external.StripeSubscription
	if err := event.decodeObject(&obj); err != nil {
		return "", err
	}
	return s.storeSnapshot(ctx, event, obj.Domain(), status)
}

// invoiceSettled re-reads the invoice's subscription from Stripe, since the
// invoice itself does not carry the subscription's state.
func (s *Synchronizer) invoiceSettled(ctx context.Context, event *Event, status types.SubscriptionStatus) (SyncResult, error) {
	var invoice external.StripeInvoice
	if err := event.decodeObject(&invoice); err != nil {
		return "", err
	}

	subID := invoice.SubscriptionID()
	if subID == "" {
		s.logger.InfoContext(ctx, "invoice is not for a subscription",
			"event_id", event.ID,
			"invoice_id", invoice.ID,
		)
		return SyncIgnored, nil
	}

	sub, err := s.billing.GetSubscription(ctx, subID)
	if err != nil {
		return "", fmt.Errorf("%s: retrieve subscription %s: %w", event.Type, subID, err)
	}
	if sub.CustomerID == "" {
		sub.CustomerID = string(invoice.Customer)
	}
	return s.storeSnapshot(ctx, event, *sub, status)
}

func (s *Synchronizer) storeSnapshot(ctx context.Context, event *Event, sub types.BillingSubscription, status types.SubscriptionStatus) (SyncResult, error) {
	userID, result, err := s.resolveUser(ctx, event, sub.CustomerID)
	if err != nil || result != "" {
		return result, err
	}
	if status == "" {
		status = sub.Status
	}

	return s.upsert(ctx, event, types.Subscription{
		UserID:               userID,
		StripeSubscriptionID: sub.ID,
		StripePriceID:        sub.PriceID,
		Status:               status,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	})
}

// resolveUser maps customerID to a user. A non-empty result means the event
// should be acknowledged without a write.
func (s *Synchronizer) resolveUser(ctx context.Context, event *Event, customerID string) (string, SyncResult, error) {
	if customerID != "" {
		userID, err := s.customers.GetUserID(ctx, customerID)
		if err == nil {
			return userID, "", nil
		}
		if !types.IsCode(err, types.ErrCodeNotFoundCustomer) {
			return "", "", err
		}
	}

	s.logger.WarnContext(ctx, "no user for webhook customer",
		"event_id", event.ID,
		"event_type", event.Type,
		"customer_id", customerID,
	)
	return "", SyncUnknownCustomer, nil
}

func (s *Synchronizer) upsert(ctx context.Context, event *Event, sub types.Subscription) (SyncResult, error) {
	applied, err := s.subscriptions.Upsert(ctx, sub, event.OccurredAt())
	if err != nil {
		return "", err
	}
	if !applied {
		return SyncStale, nil
	}

	s.logger.InfoContext(ctx, "subscription synchronized",
		"event_id", event.ID,
		"event_type", event.Type,
		"user_id", sub.UserID,
		"subscription_id", sub.StripeSubscriptionID,
		"status", sub.Status,
	)
	return SyncApplied, nil
}

// Resync copies every subscription of customerID from Stripe into the local
// store, stamped with the current time. It returns how many rows were written.
func (s *Synchronizer) Resync(ctx context.Context, customerID string) (int, error) {
	userID, err := s.customers.GetUserID(ctx, customerID)
	if err != nil {
		return 0, err
	}

	subs, err := s.billing.ListSubscriptions(ctx, customerID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	written := 0
	for _, sub := range subs {
		applied, err := s.subscriptions.Upsert(ctx, types.Subscription{
			UserID:               userID,
			StripeSubscriptionID: sub.ID,
			StripePriceID:        sub.PriceID,
			Status:               sub.Status,
			CurrentPeriodEnd:     sub.CurrentPeriodEnd,
			CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		}, now)
		if err != nil {
			return written, err
		}
		if applied {
			written++
		}
	}

	s.logger.InfoContext(ctx, "customer subscriptions resynchronized",
		"customer_id", customerID,
		"user_id", userID,
		"listed", len(subs),
		"written", written,
	)
	return written, nil
}
