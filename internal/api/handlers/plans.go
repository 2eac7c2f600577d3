package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"collegeplan/internal/billing"
	"collegeplan/internal/core"
)

// PlanCatalog lists the plans offered for sale.
type PlanCatalog interface {
	Plans() []billing.Plan
}

// PlanHandler serves the public pricing listing.
type PlanHandler struct {
	catalog PlanCatalog
}

// NewPlanHandler creates a PlanHandler.
func NewPlanHandler(catalog PlanCatalog) *PlanHandler {
	return &PlanHandler{catalog: catalog}
}

// RegisterRoutes mounts GET /plans.
func (h *PlanHandler) RegisterRoutes(r chi.Router) {
	r.Get("/plans", h.List)
}

// List returns the catalog in ascending level order. Unbounded quotas
// serialize as null.
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, map[string][]billing.Plan{"plans": h.catalog.Plans()})
}
