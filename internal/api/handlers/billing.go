package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"collegeplan/internal/core"
	"collegeplan/internal/types"
)

// BillingHandler serves the account billing routes under /api.
type BillingHandler struct {
	subs           SubscriptionService
	validator      *core.Validator
	requireSession func(http.Handler) http.Handler
	requirePlan    PlanGuard
	logger         *slog.Logger
}

// PlanGuard builds middleware that admits only subscriptions at or above a
// plan level, such as Server.RequirePlan.
type PlanGuard func(required types.PlanID) func(http.Handler) http.Handler

// NewBillingHandler creates a BillingHandler. requireSession guards every
// route; pass Server.RequireSession. requirePlan guards plan changes, which
// need a paid plan in good standing; pass Server.RequirePlan.
func NewBillingHandler(
	subs SubscriptionService,
	validator *core.Validator,
	requireSession func(http.Handler) http.Handler,
	requirePlan PlanGuard,
	logger *slog.Logger,
) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		subs:           subs,
		validator:      validator,
		requireSession: requireSession,
		requirePlan:    requirePlan,
		logger:         logger,
	}
}

// RegisterRoutes mounts the billing routes.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.requireSession != nil {
			r.Use(h.requireSession)
		}
		r.Get("/subscription", h.GetSubscription)
		r.Get("/billing", h.GetOverview)
		r.Post("/billing/cancel", h.Cancel)
		r.Post("/billing/reactivate", h.Reactivate)

		changePlan := r
		if h.requirePlan != nil {
			changePlan = r.With(h.requirePlan(types.PlanPro))
		}
		changePlan.Post("/billing/change-plan", h.ChangePlan)
	})
}

// ChangePlanRequest is the body of POST /api/billing/change-plan.
type ChangePlanRequest struct {
	PlanID types.PlanID `json:"planId" validate:"required,plan_id"`
}

// SubscriptionResponse describes a subscription after a billing change.
type SubscriptionResponse struct {
	ID                string                   `json:"id"`
	Status            types.SubscriptionStatus `json:"status"`
	PriceID           string                   `json:"priceId,omitempty"`
	CurrentPeriodEnd  *time.Time               `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool                     `json:"cancelAtPeriodEnd"`
}

func newSubscriptionResponse(sub *types.BillingSubscription) SubscriptionResponse {
	if sub == nil {
		return SubscriptionResponse{}
	}
	return SubscriptionResponse{
		ID:                sub.ID,
		Status:            sub.Status,
		PriceID:           sub.PriceID,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
}

// GetSubscription returns the user's locally mirrored subscription state.
// A store failure degrades to the free plan.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := types.GetActor(ctx)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	info, err := h.subs.GetUserSubscriptionStatus(ctx, actor.ID)
	if err != nil {
		h.logger.WarnContext(ctx, "subscription status degraded to free",
			"user_id", actor.ID,
			"error", err,
		)
		info = types.FreeSubscription()
	}
	core.JSON(w, r, http.StatusOK, info)
}

// GetOverview returns the Stripe-backed billing summary for the account page.
func (h *BillingHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}
	core.JSON(w, r, http.StatusOK, h.subs.BillingOverview(r.Context(), actor))
}

// Cancel schedules the subscription to end with the current period.
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.applyChange(w, r, "cancel", func(userID string) (*types.BillingSubscription, error) {
		return h.subs.CancelSubscription(r.Context(), userID)
	})
}

// Reactivate undoes a scheduled cancellation.
func (h *BillingHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.applyChange(w, r, "reactivate", func(userID string) (*types.BillingSubscription, error) {
		return h.subs.ReactivateSubscription(r.Context(), userID)
	})
}

// ChangePlan moves the subscription to the posted plan.
func (h *BillingHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var req ChangePlanRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.PlanID == types.PlanFree {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationPlan,
			"cannot change to the free plan; cancel the subscription instead", nil))
		return
	}

	h.applyChange(w, r, "change_plan", func(userID string) (*types.BillingSubscription, error) {
		return h.subs.ChangePlan(r.Context(), userID, req.PlanID)
	})
}

func (h *BillingHandler) applyChange(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	change func(userID string) (*types.BillingSubscription, error),
) {
	ctx := r.Context()
	actor, ok := types.GetActor(ctx)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	sub, err := change(actor.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "billing change failed",
			"action", action,
			"user_id", actor.ID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, newSubscriptionResponse(sub))
}
