package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alecgard/liftline/internal/complaint"
	"github.com/alecgard/liftline/internal/docstore"
	"github.com/alecgard/liftline/internal/mirror"
	"github.com/alecgard/liftline/internal/model"
	"github.com/alecgard/liftline/internal/site"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v any) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// writeServiceError maps a service error to a response. Only validation and
// state messages reach the client; anything else is logged and replaced by a
// generic message naming action.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var fanOut *mirror.FanOutError
	switch {
	case errors.As(err, &fanOut):
		slog.Error("partial write",
			"action", action,
			"entity", fanOut.Entity,
			"written", fanOut.Written,
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
		writeError(w, http.StatusBadGateway, "partial_write", "Some copies could not be updated. Please retry.")
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInvalidStatus):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, site.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "site not found")
	case errors.Is(err, complaint.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "complaint not found")
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, model.ErrStatusLocked), errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "status_locked", err.Error())
	case errors.Is(err, site.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, complaint.ErrServiceCodeMismatch):
		writeError(w, http.StatusUnprocessableEntity, "service_code_mismatch", "Invalid service code")
	case errors.Is(err, complaint.ErrServiceCodeNotConfigured):
		writeError(w, http.StatusConflict, "service_code_not_configured", "No service code is set for this complaint")
	case errors.Is(err, complaint.ErrCodeNotVerified), errors.Is(err, complaint.ErrFlowFinished):
		writeError(w, http.StatusConflict, "completion_state", err.Error())
	default:
		slog.Error("request failed",
			"action", action,
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}
