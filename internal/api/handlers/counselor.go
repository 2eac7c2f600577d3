package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"collegeplan/internal/core"
	"collegeplan/internal/counselor"
	"collegeplan/internal/types"
)

// EssayWriter drafts or edits an application essay.
type EssayWriter interface {
	Generate(ctx context.Context, userID string, req counselor.EssayRequest) (string, error)
}

var _ EssayWriter = (*counselor.Counselor)(nil)

// CounselorHandler serves /api/ai-counselor.
type CounselorHandler struct {
	writer    EssayWriter
	meter     UsageMeter
	validator *core.Validator
	metrics   core.MetricsCollector
	logger    *slog.Logger
}

// NewCounselorHandler creates a CounselorHandler.
func NewCounselorHandler(
	writer EssayWriter,
	meter UsageMeter,
	validator *core.Validator,
	metrics core.MetricsCollector,
	logger *slog.Logger,
) *CounselorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = core.NoopMetrics{}
	}
	return &CounselorHandler{
		writer:    writer,
		meter:     meter,
		validator: validator,
		metrics:   metrics,
		logger:    logger,
	}
}

// RegisterRoutes mounts the counselor route.
func (h *CounselorHandler) RegisterRoutes(r chi.Router) {
	r.Post("/ai-counselor", h.Generate)
}

type essayLimitResponse struct {
	Error     string          `json:"error"`
	UsageData types.UsageData `json:"usageData"`
}

// Generate consumes one essayWrites unit and returns the model's essay.
// The unit stays consumed when generation fails.
func (h *CounselorHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := types.GetActor(ctx)
	if !ok {
		writeLegacyError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req counselor.EssayRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		writeLegacyError(w, r, http.StatusBadRequest, "Missing required fields")
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		msg := "Missing required fields"
		if !types.IsCode(err, types.ErrCodeValidationMissingField) {
			msg = appErrorMessage(err)
		}
		writeLegacyError(w, r, http.StatusBadRequest, msg)
		return
	}

	feature := types.FeatureEssayWrites
	usage, accepted, err := h.meter.Consume(ctx, actor.ID, feature, currentPlan(ctx))
	if err != nil {
		h.metrics.RecordUsage(feature, usageError)
		h.logger.ErrorContext(ctx, "failed to consume essay quota", "user_id", actor.ID, "error", err)
		writeLegacyError(w, r, http.StatusInternalServerError, "Failed to generate essay")
		return
	}
	if !accepted {
		h.metrics.RecordUsage(feature, usageLimited)
		core.JSON(w, r, http.StatusForbidden, essayLimitResponse{Error: "Usage limit reached", UsageData: usage})
		return
	}
	h.metrics.RecordUsage(feature, usageAccepted)

	essay, err := h.writer.Generate(ctx, actor.ID, req)
	if err != nil {
		writeLegacyError(w, r, http.StatusInternalServerError, "Failed to generate essay")
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]string{"essay": essay})
}
