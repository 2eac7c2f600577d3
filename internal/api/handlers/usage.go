package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"collegeplan/internal/core"
	"collegeplan/internal/types"
)

// Usage admission results reported to metrics.
const (
	usageAccepted = "accepted"
	usageLimited  = "limited"
	usageError    = "error"
)

// UsageHandler serves /api/usage.
type UsageHandler struct {
	meter   UsageMeter
	metrics core.MetricsCollector
	logger  *slog.Logger
}

// NewUsageHandler creates a UsageHandler.
func NewUsageHandler(meter UsageMeter, metrics core.MetricsCollector, logger *slog.Logger) *UsageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = core.NoopMetrics{}
	}
	return &UsageHandler{meter: meter, metrics: metrics, logger: logger}
}

// RegisterRoutes mounts the usage routes.
func (h *UsageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/usage/track", h.Track)
	r.Get("/usage/{featureType}", h.Get)
}

type trackRequest struct {
	FeatureType types.FeatureType `json:"featureType"`
}

type trackResponse struct {
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	UsageData *types.UsageData `json:"usageData,omitempty"`
}

// Track consumes one unit of the posted feature under the user's plan.
func (h *UsageHandler) Track(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := types.GetActor(ctx)
	if !ok {
		writeLegacyError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req trackRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		writeLegacyError(w, r, http.StatusBadRequest, appErrorMessage(err))
		return
	}
	if req.FeatureType == "" {
		writeLegacyError(w, r, http.StatusBadRequest, "Feature type is required")
		return
	}
	if !req.FeatureType.Valid() {
		writeLegacyError(w, r, http.StatusBadRequest, "Unknown feature type")
		return
	}

	plan := currentPlan(ctx)
	usage, accepted, err := h.meter.Consume(ctx, actor.ID, req.FeatureType, plan)
	if err != nil {
		h.metrics.RecordUsage(req.FeatureType, usageError)
		h.logger.ErrorContext(ctx, "failed to track usage",
			"user_id", actor.ID,
			"feature", req.FeatureType,
			"plan", plan,
			"error", err,
		)
		core.JSON(w, r, http.StatusInternalServerError, trackResponse{Error: "Failed to track usage", UsageData: &usage})
		return
	}

	if !accepted {
		h.metrics.RecordUsage(req.FeatureType, usageLimited)
		h.logger.InfoContext(ctx, "usage limit reached",
			"user_id", actor.ID,
			"feature", req.FeatureType,
			"plan", plan,
			"current_usage", usage.CurrentUsage,
		)
		core.JSON(w, r, http.StatusForbidden, trackResponse{Error: "Usage limit reached", UsageData: &usage})
		return
	}

	h.metrics.RecordUsage(req.FeatureType, usageAccepted)
	core.JSON(w, r, http.StatusOK, trackResponse{Success: true, UsageData: &usage})
}

// Get reports the user's usage of a feature without consuming it.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := types.GetActor(ctx)
	if !ok {
		writeLegacyError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	feature := types.FeatureType(chi.URLParam(r, "featureType"))
	if !feature.Valid() {
		writeLegacyError(w, r, http.StatusBadRequest, "Unknown feature type")
		return
	}

	core.JSON(w, r, http.StatusOK, h.meter.Check(ctx, actor.ID, feature, currentPlan(ctx)))
}
