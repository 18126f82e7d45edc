package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"piggybank/internal/core"
	applog "piggybank/internal/log"
)

// errorResponse is the JSON body for every non-2xx response.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := core.CodeFor(err)

	var status int
	switch code {
	case core.CodeInvalidRequest:
		status = http.StatusBadRequest
	case core.CodeInvalidPolicy,
		core.CodeWithdrawalLimitExceeded,
		core.CodeInsufficientBalance:
		status = http.StatusUnprocessableEntity
	case core.CodeProjectionInconsistency:
		status = http.StatusInternalServerError
	default:
		status = http.StatusServiceUnavailable
	}

	logger := applog.FromContext(r.Context())
	if status >= 500 {
		fields := applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "")
		fields["code"] = code
		fields[applog.FieldStatusCode] = status
		applog.NewStructuredLogger(logger).
			LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, r.Method, fields)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", "error", err, "code", code, "path", r.URL.Path)
	}

	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}
