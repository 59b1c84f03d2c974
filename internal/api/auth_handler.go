package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/alecgard/liftline/internal/account"
	"github.com/alecgard/liftline/internal/auth"
	"github.com/alecgard/liftline/internal/model"
)

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	accounts *account.Store
	sessions *account.Sessions
	obs      auth.Observer
}

func newAuthHandler(accounts *account.Store, sessions *account.Sessions, obs auth.Observer) *authHandler {
	return &authHandler{accounts: accounts, sessions: sessions, obs: obs}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email and password are required")
		return
	}

	m, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.obs != nil {
			h.obs.IncAuthFailure("password")
		}
		if errors.Is(err, account.ErrInvalidCredentials) {
			auditLog(r, "login_failed", "account", req.Email)
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
			return
		}
		writeServiceError(w, r, err, "log in")
		return
	}

	token, sess, err := h.sessions.Create(r.Context(), m)
	if err != nil {
		writeServiceError(w, r, err, "create session")
		return
	}
	if h.obs != nil {
		h.obs.IncAuthSuccess("password")
	}
	auditLog(r, "login", "account", m.Email)

	writeJSON(w, http.StatusOK, map[string]any{
		"token":   token,
		"session": sess,
	})
}

// Me handles GET /api/v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.Context(), auth.TokenFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Logout handles POST /api/v1/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromContext(r.Context())
	if token != "" {
		_ = h.sessions.Revoke(r.Context(), token)
		auditLog(r, "logout", "account", auth.MemberFromContext(r.Context()).Email)
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterPushToken handles PUT /api/v1/me/push-token.
func (h *authHandler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token" validate:"required"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if err := model.ValidateStruct(req); err != nil {
		writeServiceError(w, r, err, "register push token")
		return
	}

	m := auth.MemberFromContext(r.Context())
	if err := h.accounts.RegisterPushToken(r.Context(), m.Email, req.Token); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "account not found")
			return
		}
		writeServiceError(w, r, err, "register push token")
		return
	}
	if err := h.sessions.Update(r.Context(), auth.TokenFromContext(r.Context()), func(s *account.Session) {
		s.PushToken = req.Token
	}); err != nil && !errors.Is(err, account.ErrSessionNotFound) {
		writeServiceError(w, r, err, "register push token")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
