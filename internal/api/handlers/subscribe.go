package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"collegeplan/internal/core"
	"collegeplan/internal/external"
	"collegeplan/internal/types"
)

// freePlanSlug is the pricing page's slug for the free tier. It has no
// Stripe price.
const freePlanSlug = "free_plan"

// Checkout redirect targets, relative to the public base URL.
const (
	accountPath        = "/account"
	accountBillingPath = "/account/billing"
)

// SubscribeHandler starts a hosted checkout for a price from the pricing page.
type SubscribeHandler struct {
	subs    SubscriptionService
	billing external.BillingService
	baseURL string
	logger  *slog.Logger
}

// NewSubscribeHandler creates a SubscribeHandler. baseURL is the public
// origin used to build the checkout return URLs.
func NewSubscribeHandler(
	subs SubscriptionService,
	billing external.BillingService,
	baseURL string,
	logger *slog.Logger,
) *SubscribeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscribeHandler{
		subs:    subs,
		billing: billing,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// RegisterRoutes mounts the page route. The caller applies the page session
// guard.
func (h *SubscribeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/account/subscribe/{slug}", h.Subscribe)
}

// Subscribe redirects an existing subscriber to billing management and
// everyone else to a new Stripe checkout for the slug's price.
func (h *SubscribeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := chi.URLParam(r, "slug")
	if slug == freePlanSlug {
		http.Redirect(w, r, accountPath, http.StatusSeeOther)
		return
	}

	actor, ok := types.GetActor(ctx)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	customerID, err := h.subs.GetOrCreateCustomerID(ctx, actor)
	if err != nil {
		h.fail(w, r, "failed to resolve stripe customer", actor.ID, err)
		return
	}

	lookup, err := h.subs.FetchSubscription(ctx, customerID)
	if err != nil {
		h.fail(w, r, "failed to fetch subscriptions", actor.ID, err)
		return
	}
	if lookup.Primary != nil {
		http.Redirect(w, r, accountBillingPath, http.StatusSeeOther)
		return
	}

	checkoutURL, sessionID, err := h.billing.CreateCheckoutSession(ctx, external.CheckoutParams{
		CustomerID:        customerID,
		PriceID:           slug,
		ClientReferenceID: actor.ID,
		URLs: types.RedirectURLs{
			Success: h.baseURL + accountPath,
			Cancel:  h.baseURL + accountBillingPath,
		},
	})
	if err != nil {
		h.fail(w, r, "failed to create checkout session", actor.ID, err)
		return
	}

	h.logger.InfoContext(ctx, "checkout session created",
		"user_id", actor.ID,
		"price_id", slug,
		"session_id", sessionID,
	)
	http.Redirect(w, r, checkoutURL, http.StatusSeeOther)
}

func (h *SubscribeHandler) fail(w http.ResponseWriter, r *http.Request, msg, userID string, err error) {
	h.logger.ErrorContext(r.Context(), msg, "user_id", userID, "error", err)
	core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, msg, err))
}
