package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey int

const (
	memberContextKey contextKey = iota
	tokenContextKey
)

// ContextWithMember returns a new context carrying the given member and the
// session token that authenticated it.
func ContextWithMember(ctx context.Context, member *Member, token string) context.Context {
	ctx = context.WithValue(ctx, memberContextKey, member)
	return context.WithValue(ctx, tokenContextKey, token)
}

// MemberFromContext extracts the member from the context, or nil if not present.
func MemberFromContext(ctx context.Context) *Member {
	m, _ := ctx.Value(memberContextKey).(*Member)
	return m
}

// TokenFromContext extracts the session token from the context.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenContextKey).(string)
	return t
}

// Observer is notified of session authentication outcomes.
type Observer interface {
	IncAuthSuccess(authType string)
	IncAuthFailure(authType string)
}

// SessionMiddleware validates the bearer session token and injects the member
// into context. Any role is accepted. obs may be nil.
func SessionMiddleware(sessions SessionLookup, obs Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("access_token")
			}
			if token == "" {
				if obs != nil {
					obs.IncAuthFailure("session")
				}
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}

			member, err := sessions.LookupSession(r.Context(), token)
			if err != nil || member == nil {
				if obs != nil {
					obs.IncAuthFailure("session")
				}
				writeUnauthorized(w, "invalid or expired session")
				return
			}
			if obs != nil {
				obs.IncAuthSuccess("session")
			}

			ctx := ContextWithMember(r.Context(), member, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects members whose role is not in roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := MemberFromContext(r.Context())
			if m == nil {
				writeUnauthorized(w, "authentication required")
				return
			}
			for _, role := range roles {
				if m.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeForbidden(w, "insufficient role")
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "unauthorized",
			Message: message,
		},
	})
}

func writeForbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "forbidden",
			Message: message,
		},
	})
}
