package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"collegeplan/internal/core"
	"collegeplan/internal/types"
)

// CollegeStore persists a user's college list.
type CollegeStore interface {
	ListByUser(ctx context.Context, userID string) ([]types.College, error)
	UpsertMany(ctx context.Context, userID string, colleges []types.College) ([]types.College, error)
	Delete(ctx context.Context, userID string, id int64) error
}

// CollegeHandler serves /api/colleges.
type CollegeHandler struct {
	store     CollegeStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewCollegeHandler creates a CollegeHandler.
func NewCollegeHandler(store CollegeStore, validator *core.Validator, logger *slog.Logger) *CollegeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollegeHandler{store: store, validator: validator, logger: logger}
}

// RegisterRoutes mounts the college routes.
func (h *CollegeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/colleges", h.List)
	r.Post("/colleges", h.Save)
	r.Delete("/colleges", h.Delete)
}

type collegeListResponse struct {
	Error    string          `json:"error,omitempty"`
	Colleges []types.College `json:"colleges"`
}

type collegeSaveResponse struct {
	Success  bool            `json:"success"`
	Colleges []types.College `json:"colleges"`
}

type collegeBatch struct {
	Colleges []types.College `json:"colleges" validate:"dive"`
}

// List returns the user's colleges ordered by id.
func (h *CollegeHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.JSON(w, r, http.StatusUnauthorized, collegeListResponse{Error: "Unauthorized", Colleges: []types.College{}})
		return
	}

	colleges, err := h.store.ListByUser(r.Context(), actor.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list colleges", "user_id", actor.ID, "error", err)
		core.JSON(w, r, http.StatusInternalServerError, collegeListResponse{Error: "Failed to fetch colleges", Colleges: []types.College{}})
		return
	}
	if colleges == nil {
		colleges = []types.College{}
	}
	core.JSON(w, r, http.StatusOK, collegeListResponse{Colleges: colleges})
}

// Save upserts the posted array of colleges for the user.
func (h *CollegeHandler) Save(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		writeLegacyError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var colleges []types.College
	if err := core.DecodeJSON(w, r, &colleges); err != nil {
		writeLegacyError(w, r, http.StatusBadRequest, appErrorMessage(err))
		return
	}
	if err := h.validator.ValidateStruct(collegeBatch{Colleges: colleges}); err != nil {
		writeLegacyError(w, r, http.StatusBadRequest, appErrorMessage(err))
		return
	}

	if len(colleges) == 0 {
		core.JSON(w, r, http.StatusOK, collegeSaveResponse{Success: true, Colleges: []types.College{}})
		return
	}

	saved, err := h.store.UpsertMany(r.Context(), actor.ID, colleges)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to save colleges",
			"user_id", actor.ID,
			"count", len(colleges),
			"error", err,
		)
		writeLegacyError(w, r, http.StatusInternalServerError, "Failed to save colleges")
		return
	}
	core.JSON(w, r, http.StatusOK, collegeSaveResponse{Success: true, Colleges: saved})
}

// Delete removes the college named by the id query parameter.
func (h *CollegeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		writeLegacyError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	raw := r.URL.Query().Get("id")
	if raw == "" {
		writeLegacyError(w, r, http.StatusBadRequest, "College ID is required")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeLegacyError(w, r, http.StatusBadRequest, "College ID must be a number")
		return
	}

	if err := h.store.Delete(r.Context(), actor.ID, id); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to delete college",
			"user_id", actor.ID,
			"college_id", id,
			"error", err,
		)
		writeLegacyError(w, r, http.StatusInternalServerError, "Failed to delete college")
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// appErrorMessage returns the client-safe message of an AppError.
func appErrorMessage(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Invalid request"
}
