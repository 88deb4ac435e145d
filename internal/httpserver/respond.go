package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/chillbot-io/openlabels/pkg/apierrors"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope: every API error
// response carries error/message, an optional details payload, and the
// request ID that produced it so a report can be correlated with logs.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// RespondError writes a JSON error response, tagging it with the
// request ID carried on r's context (set by the RequestID middleware).
func RespondError(w http.ResponseWriter, r *http.Request, status int, err string, message string) {
	Respond(w, status, ErrorResponse{
		Error:     err,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// RespondAPIError converts a pkg/apierrors.Error into the standard JSON
// envelope, using its Code/HTTPStatus/Message/Details. Non-apierrors
// errors are reported as a generic internal error to avoid leaking
// implementation detail to clients.
func RespondAPIError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	apiErr, ok := apierrors.As(err)
	if !ok {
		logger.Error("unhandled error", "error", err)
		RespondError(w, r, http.StatusInternalServerError, string(apierrors.CodeInternal), "an internal error occurred")
		return
	}

	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	Respond(w, apiErr.HTTPStatus(), ErrorResponse{
		Error:     string(apiErr.Code),
		Message:   apiErr.Message,
		Details:   apiErr.Details,
		RequestID: RequestIDFromContext(r.Context()),
	})
}
