package api

import (
	"net/http"

	"github.com/alecgard/liftline/internal/auth"
	"github.com/alecgard/liftline/internal/sales"
)

// salesHandler groups sale lead HTTP handlers.
type salesHandler struct {
	svc *sales.Service
}

func newSalesHandler(svc *sales.Service) *salesHandler {
	return &salesHandler{svc: svc}
}

// ListLeads handles GET /api/v1/sales.
func (h *salesHandler) ListLeads(w http.ResponseWriter, r *http.Request) {
	m := auth.MemberFromContext(r.Context())
	leads, err := h.svc.List(r.Context(), m.Email)
	if err != nil {
		writeServiceError(w, r, err, "list leads")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

// CreateLead handles POST /api/v1/sales.
func (h *salesHandler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var input sales.LeadInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	lead, err := h.svc.Create(r.Context(), auth.MemberFromContext(r.Context()), input)
	if err != nil {
		writeServiceError(w, r, err, "record lead")
		return
	}

	auditLog(r, "create", "sale", lead.SaleID)
	writeJSON(w, http.StatusCreated, lead)
}
