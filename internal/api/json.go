package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/kbtree/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps a domain error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, apperr.ErrSyncInProgress):
		return http.StatusConflict, "sync already in progress"
	case errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, apperr.ErrInvalidSegment):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, apperr.ErrCycleDetected):
		return http.StatusUnprocessableEntity, "cycle detected"
	case errors.Is(err, apperr.ErrStorageConflict):
		return http.StatusUnprocessableEntity, "storage conflict"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError answers with the status for err. Server-side failures are logged.
func writeError(w http.ResponseWriter, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody(msg))
}
