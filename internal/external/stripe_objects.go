package external

import (
	"bytes"
	"encoding/json"
	"time"

	"collegeplan/internal/types"
)

// Stripe objects as they appear in API responses and webhook payloads.
// Only the fields the service reads are declared. Newer API versions moved
// current_period_end onto subscription items and invoice.subscription under
// invoice.parent; both locations are decoded.

// StripeID decodes a reference that Stripe sends either as an id string or,
// when expanded, as an object with an "id" field.
type StripeID string

// UnmarshalJSON accepts null, a string, or an object carrying "id".
func (s *StripeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*s = StripeID(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = StripeID(obj.ID)
	return nil
}

// StripeSubscription is a subscription object.
type StripeSubscription struct {
	ID                string                  `json:"id"`
	Customer          StripeID                `json:"customer"`
	Status            string                  `json:"status"`
	CancelAtPeriodEnd bool                    `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64                   `json:"current_period_end"`
	Items             stripeSubscriptionItems `json:"items"`
}

type stripeSubscriptionItems struct {
	Data []StripeSubscriptionItem `json:"data"`
}

// StripeSubscriptionItem is one line of a subscription.
type StripeSubscriptionItem struct {
	ID               string      `json:"id"`
	CurrentPeriodEnd int64       `json:"current_period_end"`
	Price            stripePrice `json:"price"`
}

type stripePrice struct {
	ID      string   `json:"id"`
	Product StripeID `json:"product"`
}

// Domain converts the subscription to the provider-neutral form. Plan
// details come from the first item.
func (s *StripeSubscription) Domain() types.BillingSubscription {
	out := types.BillingSubscription{
		ID:                s.ID,
		CustomerID:        string(s.Customer),
		Status:            types.SubscriptionStatus(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}

	periodEnd := s.CurrentPeriodEnd
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.ItemID = item.ID
		out.PriceID = item.Price.ID
		out.ProductID = string(item.Price.Product)
		if periodEnd == 0 {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	if periodEnd > 0 {
		t := time.Unix(periodEnd, 0).UTC()
		out.CurrentPeriodEnd = &t
	}
	return out
}

type stripeSubscriptionList struct {
	Data    []StripeSubscription `json:"data"`
	HasMore bool                 `json:"has_more"`
}

// StripeCheckoutSession is a Checkout Session object.
type StripeCheckoutSession struct {
	ID                string   `json:"id"`
	URL               string   `json:"url"`
	Mode              string   `json:"mode"`
	Customer          StripeID `json:"customer"`
	Subscription      StripeID `json:"subscription"`
	ClientReferenceID string   `json:"client_reference_id"`
}

// StripeInvoice is an invoice object.
type StripeInvoice struct {
	ID           string        `json:"id"`
	Customer     StripeID      `json:"customer"`
	Subscription StripeID      `json:"subscription"`
	Parent       *stripeParent `json:"parent"`
}

type stripeParent struct {
	SubscriptionDetails *struct {
		Subscription StripeID `json:"subscription"`
	} `json:"subscription_details"`
}

// SubscriptionID returns the subscription the invoice bills, or "" for
// one-off invoices.
func (i *StripeInvoice) SubscriptionID() string {
	if i.Subscription != "" {
		return string(i.Subscription)
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return string(i.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

type stripeCustomer struct {
	ID string `json:"id"`
}

// stripeErrorResponse is the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}
