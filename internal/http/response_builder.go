package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"conti/internal/chart"
	applog "conti/internal/log"
	"conti/internal/middleware/trace"
	"conti/internal/services"
	"conti/internal/source"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	var bad *BadRequestError
	switch {
	case errors.As(err, &bad), services.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, source.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, source.ErrCategoryMissing), errors.Is(err, source.ErrCategoryInUse):
		return http.StatusConflict
	case errors.Is(err, chart.ErrTooFewPoints):
		return http.StatusUnprocessableEntity
	case errors.Is(err, source.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorType names the log category of a response status.
func errorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return applog.ErrorTypeValidation
	case http.StatusNotFound:
		return applog.ErrorTypeNotFound
	case http.StatusConflict:
		return applog.ErrorTypeConflict
	case http.StatusServiceUnavailable:
		return applog.ErrorTypeUnavailable
	default:
		return applog.ErrorTypeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", applog.FieldError, err)
	}
}

// writeError logs err and writes it as an ErrorBody. Messages of 5xx
// responses are replaced with the status text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	attrs := []any{
		applog.FieldPath, r.URL.Path,
		applog.FieldStatusCode, status,
		applog.FieldError, err,
		applog.FieldErrorType, errorType(status),
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed", attrs...)
		msg = http.StatusText(status)
	} else {
		logger.WarnContext(ctx, "Request rejected", attrs...)
	}

	writeJSON(w, status, ErrorBody{Error: msg, RequestID: trace.GetRequestID(ctx)})
}
