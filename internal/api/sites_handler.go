package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/alecgard/liftline/internal/auth"
	"github.com/alecgard/liftline/internal/model"
	"github.com/alecgard/liftline/internal/site"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// sitesHandler groups site HTTP handlers.
type sitesHandler struct {
	svc      *site.Service
	upgrader websocket.Upgrader
}

func newSitesHandler(svc *site.Service, checkOrigin func(*http.Request) bool) *sitesHandler {
	return &sitesHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// pathParam returns the unescaped URL parameter, since task and check names
// may contain spaces.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// ListSites handles GET /api/v1/sites.
func (h *sitesHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	m := auth.MemberFromContext(r.Context())
	sites, err := h.svc.List(r.Context(), m.Email)
	if err != nil {
		writeServiceError(w, r, err, "list sites")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

// GetSite handles GET /api/v1/sites/{siteID}.
func (h *sitesHandler) GetSite(w http.ResponseWriter, r *http.Request) {
	m := auth.MemberFromContext(r.Context())
	s, err := h.svc.Get(r.Context(), m.Email, pathParam(r, "siteID"))
	if err != nil {
		writeServiceError(w, r, err, "get site")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ResolveSite handles POST /api/v1/sites/{siteID}/resolve. The body is the
// client's cached copy; the response is the canonical merge.
func (h *sitesHandler) ResolveSite(w http.ResponseWriter, r *http.Request) {
	var local map[string]any
	if err := readJSON(r, &local); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	m := auth.MemberFromContext(r.Context())
	s, err := h.svc.Resolve(r.Context(), m.Email, pathParam(r, "siteID"), local)
	if err != nil {
		writeServiceError(w, r, err, "resolve site")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// TodaysTasks handles GET /api/v1/sites/{siteID}/tasks/today?date=.
func (h *sitesHandler) TodaysTasks(w http.ResponseWriter, r *http.Request) {
	m := auth.MemberFromContext(r.Context())
	tasks, err := h.svc.TodaysTasks(r.Context(), m.Email, pathParam(r, "siteID"), r.URL.Query().Get("date"))
	if err != nil {
		writeServiceError(w, r, err, "list today's tasks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// ScheduleTask handles PUT /api/v1/sites/{siteID}/tasks/{task}.
func (h *sitesHandler) ScheduleTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date" validate:"required"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if err := model.ValidateStruct(req); err != nil {
		writeServiceError(w, r, err, "schedule task")
		return
	}

	m := auth.MemberFromContext(r.Context())
	siteID, task := pathParam(r, "siteID"), pathParam(r, "task")
	res, err := h.svc.ScheduleTask(r.Context(), m.Email, siteID, task, req.Date)
	if err != nil {
		writeServiceError(w, r, err, "schedule task")
		return
	}

	auditLog(r, "schedule_task", "site", siteID, "task", task, "date", req.Date)
	writeJSON(w, http.StatusOK, map[string]any{"task": task, "date": req.Date, "mirrors": res})
}

// SetQualityCheck handles PUT /api/v1/sites/{siteID}/quality-checks/{check}.
func (h *sitesHandler) SetQualityCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Result string `json:"result" validate:"required,oneof=Passed Failed"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if err := model.ValidateStruct(req); err != nil {
		writeServiceError(w, r, err, "record quality check")
		return
	}

	m := auth.MemberFromContext(r.Context())
	siteID, check := pathParam(r, "siteID"), pathParam(r, "check")
	res, err := h.svc.SetQualityCheck(r.Context(), m, siteID, check, model.QualityResult(req.Result))
	if err != nil {
		writeServiceError(w, r, err, "record quality check")
		return
	}

	auditLog(r, "quality_check", "site", siteID, "check", check, "result", req.Result)
	writeJSON(w, http.StatusOK, map[string]any{"check": check, "result": req.Result, "mirrors": res})
}

// UpdateChecklist handles PUT /api/v1/sites/{siteID}/checklists/{section}.
func (h *sitesHandler) UpdateChecklist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Flags map[string]bool `json:"flags"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	m := auth.MemberFromContext(r.Context())
	siteID, section := pathParam(r, "siteID"), pathParam(r, "section")
	cl, res, err := h.svc.UpdateChecklist(r.Context(), m.Email, siteID, section, req.Flags)
	if err != nil {
		writeServiceError(w, r, err, "update checklist")
		return
	}

	auditLog(r, "update_checklist", "site", siteID, "section", section, "status", string(cl.Status))
	writeJSON(w, http.StatusOK, map[string]any{"section": section, "checklist": cl, "mirrors": res})
}

// AdvanceMaterial handles PUT /api/v1/sites/{siteID}/materials/{index}.
func (h *sitesHandler) AdvanceMaterial(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index", "material index must be an integer")
		return
	}
	var req struct {
		Status string `json:"status" validate:"required"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if err := model.ValidateStruct(req); err != nil {
		writeServiceError(w, r, err, "update material")
		return
	}

	m := auth.MemberFromContext(r.Context())
	siteID := pathParam(r, "siteID")
	materials, res, err := h.svc.AdvanceMaterial(r.Context(), m.Email, siteID, index, model.MaterialStatus(req.Status))
	if err != nil {
		writeServiceError(w, r, err, "update material")
		return
	}

	auditLog(r, "advance_material", "site", siteID, "index", index, "status", req.Status)
	writeJSON(w, http.StatusOK, map[string]any{"materialsList": materials, "mirrors": res})
}

// ListChats handles GET /api/v1/sites/{siteID}/chats.
func (h *sitesHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	m := auth.MemberFromContext(r.Context())
	s, err := h.svc.Get(r.Context(), m.Email, pathParam(r, "siteID"))
	if err != nil {
		writeServiceError(w, r, err, "list chats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": s.SortedChats()})
}

// SendChat handles POST /api/v1/sites/{siteID}/chats.
func (h *sitesHandler) SendChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	m := auth.MemberFromContext(r.Context())
	siteID := pathParam(r, "siteID")
	msg, res, err := h.svc.SendChat(r.Context(), m, siteID, req.Message)
	if err != nil {
		writeServiceError(w, r, err, "send message")
		return
	}

	auditLog(r, "send_chat", "site", siteID, "message_id", msg.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg, "mirrors": res})
}

// StreamChats handles GET /api/v1/sites/{siteID}/chats/stream. Each frame
// carries the full ordered chat list.
func (h *sitesHandler) StreamChats(w http.ResponseWriter, r *http.Request) {
	m := auth.MemberFromContext(r.Context())
	siteID := pathParam(r, "siteID")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, err := h.svc.WatchChats(ctx, m.Email, siteID)
	if err != nil {
		writeServiceError(w, r, err, "watch chats")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// The client sends nothing; reading drives pong handling and close
	// detection.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case chats, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(map[string]any{"type": "chats", "chats": chats}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
