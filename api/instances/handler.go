// Package instances serves the user-facing app instance routes.
package instances

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/ruteri/appinstance-provisioning-backend/api"
	"github.com/ruteri/appinstance-provisioning-backend/deprovisioning"
	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
	"github.com/ruteri/appinstance-provisioning-backend/provisioning"
	"github.com/ruteri/appinstance-provisioning-backend/version"
)

// maxBodySize bounds request bodies on the user-facing routes.
const maxBodySize = 64 << 10

// Handler serves the user-facing instance routes.
type Handler struct {
	instances     interfaces.InstanceStore
	provisioner   *provisioning.Provisioner
	deprovisioner *deprovisioning.Deprovisioner
	validate      *validator.Validate
	log           *slog.Logger
}

// NewHandler creates the instance route handler.
//
// Parameters:
//   - instances: store the instance documents are read from
//   - provisioner: runs buy and status changes, and decides who may manage an instance
//   - deprovisioner: runs user-requested deletions
//   - log: Structured logger for operational insights
func NewHandler(instances interfaces.InstanceStore, provisioner *provisioning.Provisioner, deprovisioner *deprovisioning.Deprovisioner, log *slog.Logger) *Handler {
	return &Handler{
		instances:     instances,
		provisioner:   provisioner,
		deprovisioner: deprovisioner,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		log:           log,
	}
}

// RegisterRoutes configures the router with the instance endpoints:
//   - POST /apps/buy/{application_id}
//   - GET /apps/instance/{instance_id}
//   - DELETE /apps/instance/{instance_id}
//   - POST /apps/instance/{instance_id}/status
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requireAccount)
		r.Post("/apps/buy/{application_id}", h.HandleBuy)
		r.Get("/apps/instance/{instance_id}", h.HandleGet)
		r.Delete("/apps/instance/{instance_id}", h.HandleDelete)
		r.Post("/apps/instance/{instance_id}/status", h.HandleStatus)
	})
}

func requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(api.AccountHeader) == "" {
			http.Error(w, "missing account", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleBuy instantiates an application for the caller, or for an
// organization the caller administers.
//
// Status codes:
//   - 201 Created: instance is PENDING and the provider accepted the instantiation call
//   - 400 Bad Request: malformed body
//   - 403 Forbidden: caller is not an admin of the organization
//   - 404 Not Found: unknown application or organization
//   - 502 Bad Gateway: provider unreachable or refused; nothing was kept
func (h *Handler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	var req api.BuyRequest
	if err := h.decode(r, &req, true); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	instance, err := h.provisioner.Instantiate(r.Context(), provisioning.InstantiateRequest{
		ApplicationID:  chi.URLParam(r, "application_id"),
		RequesterID:    r.Header.Get(api.AccountHeader),
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
	})
	if err != nil {
		h.log.Warn("Buy failed", "err", err, "applicationID", chi.URLParam(r, "application_id"))
		api.WriteError(w, h.log, err)
		return
	}

	version.SetETag(w, instance.Version)
	api.WriteJSON(w, h.log, http.StatusCreated, api.NewInstanceResponse(instance))
}

// HandleGet returns an instance with its ETag.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	instance, err := h.managed(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	version.SetETag(w, instance.Version)
	api.WriteJSON(w, h.log, http.StatusOK, api.NewInstanceResponse(instance))
}

// HandleDelete deprovisions an instance if one of the If-Match versions is
// current. The body reports the outcome and what was removed.
//
// An instance that is already gone is a no-op: nobody can be authorized
// against it any more, so its leftovers are left to the delete-instance tool.
//
// Status codes:
//   - 200 OK: DELETED_INSTANCE, DELETED_LEFTOVERS or NOTHING_TO_DELETE
//   - 400 Bad Request: malformed If-Match
//   - 409 Conflict: BAD_INSTANCE_STATUS
//   - 412 Precondition Failed: BAD_INSTANCE_VERSION
//   - 428 Precondition Required: no If-Match
//   - 502 Bad Gateway: PROVIDER_CALL_ERROR or PROVIDER_STATUS_ERROR; local data was removed
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	versions, err := version.FromRequest(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	instance, err := h.managed(r)
	if errors.Is(err, interfaces.ErrNotFound) {
		api.WriteJSON(w, h.log, http.StatusOK, &deprovisioning.Result{Status: deprovisioning.NothingToDelete})
		return
	}
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	res, err := h.deprovisioner.Delete(r.Context(), deprovisioning.Request{
		InstanceID:    instance.ID,
		CheckVersions: versions.Versions(),
		CallProvider:  true,
	})
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, h.log, outcomeStatus(res.Status), res)
}

func outcomeStatus(s deprovisioning.Status) int {
	switch s {
	case deprovisioning.DeletedInstance, deprovisioning.DeletedLeftovers, deprovisioning.NothingToDelete:
		return http.StatusOK
	case deprovisioning.BadInstanceStatus:
		return http.StatusConflict
	case deprovisioning.BadInstanceVersion:
		return http.StatusPreconditionFailed
	case deprovisioning.ProviderCallError, deprovisioning.ProviderStatusError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleStatus stops or restarts a running instance and returns it with
// its new ETag.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	versions, err := version.FromRequest(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	var req api.StatusChangeRequest
	if err := h.decode(r, &req, false); err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	instance, err := h.managed(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	updated, err := h.provisioner.ChangeStatus(r.Context(), instance.ID, versions.Versions(), req.Status, r.Header.Get(api.AccountHeader))
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	version.SetETag(w, updated.Version)
	api.WriteJSON(w, h.log, http.StatusOK, api.NewInstanceResponse(updated))
}

// managed loads the instance named in the path and checks the caller may
// manage it.
func (h *Handler) managed(r *http.Request) (*interfaces.AppInstance, error) {
	instance, err := h.instances.Get(r.Context(), chi.URLParam(r, "instance_id"))
	if err != nil {
		return nil, err
	}
	ok, err := h.provisioner.CanManage(r.Context(), instance, r.Header.Get(api.AccountHeader))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: not allowed to manage instance %s", interfaces.ErrForbidden, instance.ID)
	}
	return instance, nil
}

func (h *Handler) decode(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidInput, err)
	}
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidInput, err)
	}
	return nil
}
