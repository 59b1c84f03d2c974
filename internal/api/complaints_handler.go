package api

import (
	"errors"
	"net/http"

	"github.com/alecgard/liftline/internal/auth"
	"github.com/alecgard/liftline/internal/complaint"
	"github.com/alecgard/liftline/internal/model"
)

// complaintsHandler groups complaint HTTP handlers.
type complaintsHandler struct {
	svc   *complaint.Service
	flows *complaint.Flows
}

func newComplaintsHandler(svc *complaint.Service, flows *complaint.Flows) *complaintsHandler {
	return &complaintsHandler{svc: svc, flows: flows}
}

// ListComplaints handles GET /api/v1/complaints.
func (h *complaintsHandler) ListComplaints(w http.ResponseWriter, r *http.Request) {
	m := auth.MemberFromContext(r.Context())
	list, err := h.svc.List(r.Context(), m.Email)
	if err != nil {
		writeServiceError(w, r, err, "list complaints")
		return
	}
	views := make([]model.ComplaintView, len(list))
	for i, c := range list {
		views[i] = c.View()
	}
	writeJSON(w, http.StatusOK, map[string]any{"complaints": views})
}

// GetComplaint handles GET /api/v1/complaints/{id}.
func (h *complaintsHandler) GetComplaint(w http.ResponseWriter, r *http.Request) {
	m := auth.MemberFromContext(r.Context())
	c, err := h.svc.Get(r.Context(), m.Email, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "get complaint")
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}

// ResolveComplaint handles POST /api/v1/complaints/{id}/resolve.
func (h *complaintsHandler) ResolveComplaint(w http.ResponseWriter, r *http.Request) {
	var local map[string]any
	if err := readJSON(r, &local); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	m := auth.MemberFromContext(r.Context())
	c, err := h.svc.Resolve(r.Context(), m.Email, pathParam(r, "id"), local)
	if err != nil {
		writeServiceError(w, r, err, "resolve complaint")
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}

// AddMessage handles POST /api/v1/complaints/{id}/messages.
func (h *complaintsHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	m := auth.MemberFromContext(r.Context())
	id := pathParam(r, "id")
	msg, res, err := h.svc.AddMessage(r.Context(), m, id, req.Message)
	if err != nil {
		writeServiceError(w, r, err, "add message")
		return
	}

	auditLog(r, "add_message", "complaint", id, "message_id", msg.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg, "mirrors": res})
}

// Accept handles POST /api/v1/complaints/{id}/accept.
func (h *complaintsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	m := auth.MemberFromContext(r.Context())
	id := pathParam(r, "id")
	res, err := h.svc.Accept(r.Context(), m, id)
	if err != nil {
		writeServiceError(w, r, err, "accept complaint")
		return
	}

	auditLog(r, "accept", "complaint", id)
	writeJSON(w, http.StatusOK, map[string]any{"status": "Accepted", "mirrors": res})
}

// flow returns the caller's completion flow for the complaint in the path.
// Flows are keyed by the session token hash, never the token itself.
func (h *complaintsHandler) flow(r *http.Request) (*complaint.Flow, string, string) {
	m := auth.MemberFromContext(r.Context())
	session := auth.HashToken(auth.TokenFromContext(r.Context()))
	id := pathParam(r, "id")
	return h.flows.Get(session, m, id), session, id
}

// SubmitCode handles POST /api/v1/complaints/{id}/completion/code.
func (h *complaintsHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	f, _, id := h.flow(r)
	f.EnterCode(req.Code)
	res, err := f.SubmitCode(r.Context())
	if err != nil {
		if errors.Is(err, complaint.ErrServiceCodeMismatch) {
			auditLog(r, "service_code_mismatch", "complaint", id)
		}
		writeServiceError(w, r, err, "verify service code")
		return
	}

	auditLog(r, "service_code_verified", "complaint", id)
	writeJSON(w, http.StatusOK, map[string]any{"stage": f.Stage(), "mirrors": res})
}

// SubmitNotes handles POST /api/v1/complaints/{id}/completion/notes.
func (h *complaintsHandler) SubmitNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	f, session, id := h.flow(r)
	msgs, res, err := f.SubmitNotes(r.Context(), req.Notes)
	if err != nil {
		writeServiceError(w, r, err, "close complaint")
		return
	}
	h.flows.Discard(session, id)

	auditLog(r, "complete", "complaint", id)
	writeJSON(w, http.StatusOK, map[string]any{"stage": f.Stage(), "messages": msgs, "mirrors": res})
}

// CancelCompletion handles DELETE /api/v1/complaints/{id}/completion.
func (h *complaintsHandler) CancelCompletion(w http.ResponseWriter, r *http.Request) {
	f, session, id := h.flow(r)
	f.Cancel()
	h.flows.Discard(session, id)
	w.WriteHeader(http.StatusNoContent)
}
