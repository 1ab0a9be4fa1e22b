// Package registration serves the routes providers call back on once they
// have handled an instantiation webhook.
package registration

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/appinstance-provisioning-backend/api"
	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
	"github.com/ruteri/appinstance-provisioning-backend/provisioning"
)

const maxBodySize = 1 << 20

type Handler struct {
	provisioner *provisioning.Provisioner
	log         *slog.Logger
}

func NewHandler(provisioner *provisioning.Provisioner, log *slog.Logger) *Handler {
	return &Handler{
		provisioner: provisioner,
		log:         log,
	}
}

// RegisterRoutes configures the router with the registration endpoints:
//   - POST /apps/pending-instance/{instance_id} - acknowledge a pending instance
//   - DELETE /apps/pending-instance/{instance_id} - abort a pending instance
//
// Both require HTTP Basic authentication with the instance client id and
// secret sent in the instantiation webhook.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post(provisioning.RegistrationPath+"{instance_id}", h.HandleAcknowledge)
		r.Delete(provisioning.RegistrationPath+"{instance_id}", h.HandleErrorInstantiating)
	})
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID, secret, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="instance"`)
			api.WriteError(w, h.log, interfaces.ErrUnauthorized)
			return
		}
		if err := h.provisioner.Authenticate(r.Context(), clientID, secret); err != nil {
			h.log.Warn("Rejected instance credentials", "clientID", clientID, "err", err)
			w.Header().Set("WWW-Authenticate", `Basic realm="instance"`)
			api.WriteError(w, h.log, err)
			return
		}
		// Credentials are per instance.
		if instanceID := chi.URLParam(r, "instance_id"); instanceID != clientID {
			api.WriteError(w, h.log, fmt.Errorf("%w: client %s cannot register instance %s", interfaces.ErrForbidden, clientID, instanceID))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleAcknowledge finalizes a pending instance.
//
// Response: JSON object mapping each declared service local_id to its service id
//
// Status codes:
//   - 201 Created: instance is RUNNING with its scopes and services
//   - 400 Bad Request: invalid acknowledgement
//   - 404 Not Found: instance is not pending
//   - 500 Internal Server Error: provisioning failed and was rolled back; retry
func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instance_id")

	var ack provisioning.Acknowledgement
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&ack); err != nil {
		api.WriteError(w, h.log, fmt.Errorf("%w: %v", interfaces.ErrInvalidInput, err))
		return
	}

	services, err := h.provisioner.Acknowledge(r.Context(), instanceID, ack)
	if err != nil {
		h.log.Warn("Acknowledgement refused", "instanceID", instanceID, "err", err)
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, h.log, http.StatusCreated, services)
}

// HandleErrorInstantiating removes a pending instance the provider failed
// to set up. It answers 204, or 404 when the instance is no longer pending.
func (h *Handler) HandleErrorInstantiating(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instance_id")
	if err := h.provisioner.ErrorInstantiating(r.Context(), instanceID); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
