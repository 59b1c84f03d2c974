package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/alecgard/liftline/internal/auth"
)

// auditLog emits a structured audit log entry for a member action.
func auditLog(r *http.Request, action string, resourceType string, resourceID string, detail ...any) {
	attrs := []any{
		"action", action,
		"resource_type", resourceType,
		"resource_id", resourceID,
		"ip", clientIP(r),
		"request_id", RequestIDFromContext(r.Context()),
	}

	if m := auth.MemberFromContext(r.Context()); m != nil {
		attrs = append(attrs, "member_email", m.Email, "member_role", m.Role)
	}

	attrs = append(attrs, detail...)
	slog.Info("audit", attrs...)
}

// clientIP returns the first X-Forwarded-For hop, or the remote host.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
