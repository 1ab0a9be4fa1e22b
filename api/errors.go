package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
)

// StatusCode maps an error of the interfaces taxonomy to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrPreconditionMissing):
		return http.StatusPreconditionRequired
	case errors.Is(err, interfaces.ErrVersionMismatch):
		return http.StatusPreconditionFailed
	case errors.Is(err, interfaces.ErrStatusPrecondition), errors.Is(err, interfaces.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, interfaces.ErrProviderUnreachable), errors.Is(err, interfaces.ErrProviderRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError answers with the status matching err. Unexpected errors are
// logged and their text is not sent to the client.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	code := StatusCode(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Error("Request failed", "err", err)
		msg = http.StatusText(code)
	}
	WriteJSON(w, log, code, ErrorResponse{Error: msg})
}

func WriteJSON(w http.ResponseWriter, log *slog.Logger, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "err", err)
	}
}
