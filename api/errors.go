package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response. err, when set, becomes the details.
func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusOf maps a service error to an HTTP status. Order matters: an
// InsufficientBalanceError is a validation error first.
func statusOf(err error) int {
	switch {
	case errors.Is(err, timeoff.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, timeoff.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, timeoff.ErrInvalidState),
		errors.Is(err, generic.ErrDuplicate),
		errors.Is(err, generic.ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the response for a service error. Internal failures are
// logged and reported without details.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, status, "internal error", nil)
		return
	}

	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}
	if reason, ok := timeoff.ReasonOf(err); ok {
		resp.Reason = string(reason)
	}
	writeJSON(w, status, resp)
}
