package hostapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alfredhq/backend/internal/apperr"
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

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	Respond(w, status, ErrorResponse{Error: code, Message: message})
}

// WriteAppError maps an internal apperr.Error to its HTTP response.
func WriteAppError(w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
		return
	}
	writeError(w, apperr.HTTPStatus(appErr.Kind), appErr.Code, appErr.Message)
}
