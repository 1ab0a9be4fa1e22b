// Package provisioning drives the creation of AppInstances.
//
// Instantiate creates a PENDING instance and hands it to the provider through
// the instantiation webhook. The provider later acknowledges it, which moves
// the instance to RUNNING and creates its scopes, services and subscriptions,
// or reports an error, which removes the instance.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ruteri/appinstance-provisioning-backend/cryptoutils"
	"github.com/ruteri/appinstance-provisioning-backend/deprovisioning"
	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
	"github.com/ruteri/appinstance-provisioning-backend/metrics"
	"github.com/ruteri/appinstance-provisioning-backend/webhook"
)

// RegistrationPath is where providers acknowledge or abort a pending
// instance, relative to Config.RegistrationBaseURL.
const RegistrationPath = "/apps/pending-instance/"

type Config struct {
	// RegistrationBaseURL is the public base URL providers call back on.
	RegistrationBaseURL string

	// Now defaults to time.Now.
	Now func() time.Time
}

// InstantiateRequest asks for a new instance of an application.
type InstantiateRequest struct {
	ApplicationID  string
	RequesterID    string
	OrganizationID string
	Name           string
}

// InstantiationPayload is the body of the instantiation webhook.
type InstantiationPayload struct {
	InstanceID              string `json:"instance_id"`
	ClientID                string `json:"client_id"`
	ClientSecret            string `json:"client_secret"`
	UserID                  string `json:"user_id"`
	OrganizationID          string `json:"organization_id,omitempty"`
	InstanceRegistrationURI string `json:"instance_registration_uri"`
}

type Provisioner struct {
	cfg           Config
	stores        *interfaces.Stores
	caller        webhook.Caller
	deprovisioner *deprovisioning.Deprovisioner
	validate      *validator.Validate
	log           *slog.Logger
}

func New(cfg Config, stores *interfaces.Stores, caller webhook.Caller, deprovisioner *deprovisioning.Deprovisioner, log *slog.Logger) *Provisioner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.RegistrationBaseURL = strings.TrimSuffix(cfg.RegistrationBaseURL, "/")
	return &Provisioner{
		cfg:           cfg,
		stores:        stores,
		caller:        caller,
		deprovisioner: deprovisioner,
		validate:      newValidator(),
		log:           log,
	}
}

// Instantiate creates a PENDING instance and calls the application's
// instantiation webhook. If the provider cannot be reached or refuses, the
// instance and its credential are removed again.
func (p *Provisioner) Instantiate(ctx context.Context, req InstantiateRequest) (*interfaces.AppInstance, error) {
	if req.RequesterID == "" {
		return nil, interfaces.ErrUnauthorized
	}
	app, err := p.stores.Applications.Get(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if err := p.checkOrganization(ctx, req); err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = app.Name.Root()
	}
	instance := &interfaces.AppInstance{
		ID:             uuid.NewString(),
		ApplicationID:  app.ID,
		ProviderID:     req.OrganizationID,
		InstantiatorID: req.RequesterID,
		Status:         interfaces.InstancePending,
		Name:           interfaces.LocalizedString{interfaces.RootLocale: name},
		NeededScopes:   interfaces.NeededScopes{},
		StatusChanged:  p.cfg.Now().UTC(),
	}
	log := p.log.With("instanceID", instance.ID, "applicationID", app.ID)

	if err := p.stores.Instances.Create(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	secret, err := p.seedCredential(ctx, instance.ID)
	if err != nil {
		p.discard(ctx, instance.ID, log)
		return nil, err
	}

	res := p.caller.Call(ctx, webhook.Request{
		Kind:   webhook.KindInstantiation,
		URL:    app.InstantiationURI,
		Secret: app.InstantiationSecret,
		Payload: InstantiationPayload{
			InstanceID:              instance.ID,
			ClientID:                instance.ID,
			ClientSecret:            secret,
			UserID:                  req.RequesterID,
			OrganizationID:          req.OrganizationID,
			InstanceRegistrationURI: p.cfg.RegistrationBaseURL + RegistrationPath + instance.ID,
		},
	})
	if !res.Succeeded() {
		p.discard(ctx, instance.ID, log)
		metrics.ProvisioningEvents.WithLabelValues("instantiation_failed").Inc()
		if res.Outcome == webhook.Delivered {
			return nil, fmt.Errorf("%w: instantiation answered %d", interfaces.ErrProviderRejected, res.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", interfaces.ErrProviderUnreachable, res.Err)
	}

	metrics.ProvisioningEvents.WithLabelValues("instantiated").Inc()
	log.Info("Instance pending provider acknowledgement")
	return instance, nil
}

func (p *Provisioner) checkOrganization(ctx context.Context, req InstantiateRequest) error {
	if req.OrganizationID == "" {
		return nil
	}
	org, err := p.stores.Organizations.Get(ctx, req.OrganizationID)
	if err != nil {
		return err
	}
	if org.Status != interfaces.OrganizationAvailable {
		return fmt.Errorf("organization %s is being deleted: %w", org.ID, interfaces.ErrNotFound)
	}
	admin, err := p.stores.Organizations.IsAdmin(ctx, org.ID, req.RequesterID)
	if err != nil {
		return err
	}
	if !admin {
		return fmt.Errorf("%w: only organization admins can buy applications", interfaces.ErrForbidden)
	}
	return nil
}

func (p *Provisioner) seedCredential(ctx context.Context, instanceID string) (string, error) {
	secret, hash, err := cryptoutils.NewClientSecret()
	if err != nil {
		return "", err
	}
	err = p.stores.Credentials.Create(ctx, &interfaces.Credential{
		ClientType: interfaces.ClientTypeInstance,
		ClientID:   instanceID,
		SecretHash: hash,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store client credential: %w", err)
	}
	return secret, nil
}

// discard removes a PENDING instance that never reached the provider. No
// dependents exist yet, so this is a plain delete and not a cascade.
func (p *Provisioner) discard(ctx context.Context, instanceID string, log *slog.Logger) {
	if _, err := p.stores.Credentials.Delete(ctx, interfaces.ClientTypeInstance, instanceID); err != nil {
		log.Error("Failed to delete credential of discarded instance", "err", err)
	}
	cond := interfaces.InstanceCondition{Status: interfaces.InstancePending}
	if _, err := p.stores.Instances.Delete(ctx, instanceID, cond); err != nil {
		log.Error("Failed to delete discarded instance", "err", err)
	}
}

// Authenticate checks the client credentials of an instance.
func (p *Provisioner) Authenticate(ctx context.Context, clientID, secret string) error {
	cred, err := p.stores.Credentials.Get(ctx, interfaces.ClientTypeInstance, clientID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return interfaces.ErrUnauthorized
	}
	if err != nil {
		return err
	}
	if cryptoutils.VerifySecret(cred.SecretHash, secret) != nil {
		return interfaces.ErrUnauthorized
	}
	return nil
}

// Acknowledge finalizes a PENDING instance: it moves it to RUNNING and
// creates the declared scopes and services, subscribes the instantiator to
// every service and makes them app admin. It returns the service id of each
// declared local service id.
//
// If any write after the status transition fails, the instance goes back to
// PENDING and what was already written is removed, so the provider can retry.
func (p *Provisioner) Acknowledge(ctx context.Context, instanceID string, ack Acknowledgement) (map[string]string, error) {
	if err := p.validateAcknowledgement(ctx, instanceID, &ack); err != nil {
		return nil, err
	}
	log := p.log.With("instanceID", instanceID)

	running := interfaces.InstanceRunning
	needed := interfaces.NeededScopes(ack.NeededScopes)
	if needed == nil {
		needed = interfaces.NeededScopes{}
	}
	instance, err := p.stores.Instances.UpdateIfStatus(ctx, instanceID, interfaces.InstancePending, interfaces.InstancePatch{
		Status:            &running,
		NeededScopes:      &needed,
		DestructionURI:    &ack.DestructionURI,
		DestructionSecret: &ack.DestructionSecret,
	})
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("instance %s is not pending: %w", instanceID, interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	services, err := p.finalize(ctx, instance, ack)
	if err != nil {
		log.Error("Failed to finalize instance, reverting to pending", "err", err)
		p.compensate(ctx, instanceID, log)
		metrics.ProvisioningEvents.WithLabelValues("acknowledgement_reverted").Inc()
		return nil, err
	}

	metrics.ProvisioningEvents.WithLabelValues("acknowledged").Inc()
	log.Info("Instance acknowledged", "services", len(services), "scopes", len(ack.Scopes))
	return services, nil
}

func (p *Provisioner) validateAcknowledgement(ctx context.Context, instanceID string, ack *Acknowledgement) error {
	if err := p.validate.Struct(ack); err != nil {
		return validationError(err)
	}
	if ack.InstanceID != instanceID {
		return fmt.Errorf("%w: acknowledgement is for instance %s", interfaces.ErrInvalidInput, ack.InstanceID)
	}

	declared := make(map[string]bool, len(ack.Scopes))
	for _, scope := range ack.Scopes {
		declared[interfaces.ScopeID(instanceID, scope.LocalID)] = true
	}
	for _, needed := range ack.NeededScopes {
		if declared[needed.ScopeID] {
			continue
		}
		_, err := p.stores.Scopes.Get(ctx, needed.ScopeID)
		if errors.Is(err, interfaces.ErrNotFound) {
			return fmt.Errorf("%w: unknown needed scope %s", interfaces.ErrInvalidInput, needed.ScopeID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Provisioner) finalize(ctx context.Context, instance *interfaces.AppInstance, ack Acknowledgement) (map[string]string, error) {
	for _, decl := range ack.Scopes {
		err := p.stores.Scopes.Create(ctx, &interfaces.Scope{
			ID:          interfaces.ScopeID(instance.ID, decl.LocalID),
			InstanceID:  instance.ID,
			LocalID:     decl.LocalID,
			Name:        decl.Name,
			Description: decl.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create scope %s: %w", decl.LocalID, err)
		}
	}

	subType := interfaces.SubscriptionOrganization
	if instance.Personal() {
		subType = interfaces.SubscriptionPersonal
	}
	services := make(map[string]string, len(ack.Services))
	for _, decl := range ack.Services {
		service := &interfaces.Service{
			ID:           uuid.NewString(),
			InstanceID:   instance.ID,
			LocalID:      decl.LocalID,
			Name:         decl.Name,
			ServiceURI:   decl.ServiceURI,
			RedirectURIs: interfaces.StringList(decl.RedirectURIs),
			Visible:      decl.Visible,
		}
		if err := p.stores.Services.Create(ctx, service); err != nil {
			return nil, fmt.Errorf("failed to create service %s: %w", decl.LocalID, err)
		}
		services[decl.LocalID] = service.ID

		err := p.stores.Subscriptions.Create(ctx, &interfaces.UserSubscription{
			ID:        uuid.NewString(),
			UserID:    instance.InstantiatorID,
			ServiceID: service.ID,
			Type:      subType,
			CreatorID: instance.InstantiatorID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe instantiator to %s: %w", decl.LocalID, err)
		}
	}

	err := p.stores.ACL.Create(ctx, &interfaces.AccessControlEntry{
		ID:         uuid.NewString(),
		InstanceID: instance.ID,
		UserID:     instance.InstantiatorID,
		AppAdmin:   true,
		AppUser:    true,
		CreatorID:  instance.InstantiatorID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add instantiator as app admin: %w", err)
	}
	return services, nil
}

// compensate undoes a failed finalize. Dependents are removed while the
// instance is still RUNNING, so no other acknowledgement can have written any;
// only then does the instance go back to PENDING.
func (p *Provisioner) compensate(ctx context.Context, instanceID string, log *slog.Logger) {
	var stats deprovisioning.Stats
	cleanupErr := p.deprovisioner.CleanupProvisioned(ctx, instanceID, &stats)
	if cleanupErr != nil {
		log.Error("Failed to clean up partially provisioned instance", "err", cleanupErr)
	}
	pending := interfaces.InstancePending
	if _, err := p.stores.Instances.UpdateIfStatus(ctx, instanceID, interfaces.InstanceRunning, interfaces.InstancePatch{Status: &pending}); err != nil {
		log.Error("Failed to revert instance to pending", "err", err)
		return
	}
	if cleanupErr == nil {
		log.Info("Reverted partially provisioned instance", "stats", stats)
	}
}

// ErrorInstantiating lets the provider abort a PENDING instance. An instance
// that is no longer pending is reported as not found and left alone.
func (p *Provisioner) ErrorInstantiating(ctx context.Context, instanceID string) error {
	res, err := p.deprovisioner.Delete(ctx, deprovisioning.Request{
		InstanceID:  instanceID,
		CheckStatus: interfaces.InstancePending,
		// The provider initiated this; calling it back would be pointless.
		CallProvider: false,
	})
	if err != nil {
		return err
	}
	if res.Status != deprovisioning.DeletedInstance {
		return fmt.Errorf("instance %s is not pending (%s): %w", instanceID, res.Status, interfaces.ErrNotFound)
	}
	metrics.ProvisioningEvents.WithLabelValues("provider_aborted").Inc()
	return nil
}

// ChangeStatus moves a RUNNING instance to STOPPED or back, if the caller
// presented a current version.
func (p *Provisioner) ChangeStatus(ctx context.Context, instanceID string, versions []int64, status interfaces.InstanceStatus, requesterID string) (*interfaces.AppInstance, error) {
	if status != interfaces.InstanceRunning && status != interfaces.InstanceStopped {
		return nil, fmt.Errorf("%w: cannot change status to %s", interfaces.ErrInvalidInput, status)
	}
	if len(versions) == 0 {
		return nil, interfaces.ErrPreconditionMissing
	}

	current, err := p.stores.Instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if !(interfaces.InstanceCondition{Versions: versions}).Matches(current) {
		return nil, fmt.Errorf("instance %s: %w", instanceID, interfaces.ErrVersionMismatch)
	}
	if current.Status == interfaces.InstancePending {
		return nil, fmt.Errorf("instance %s is pending: %w", instanceID, interfaces.ErrStatusPrecondition)
	}
	if current.Status == status {
		return current, nil
	}

	// The CAS is on the version just read, so the status checked above still holds.
	updated, err := p.stores.Instances.UpdateIfVersion(ctx, instanceID, []int64{current.Version}, interfaces.InstancePatch{
		Status:                  &status,
		StatusChangeRequesterID: &requesterID,
	})
	if errors.Is(err, interfaces.ErrNotFound) {
		if _, getErr := p.stores.Instances.Get(ctx, instanceID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("instance %s: %w", instanceID, interfaces.ErrVersionMismatch)
	}
	if err != nil {
		return nil, err
	}
	p.log.Info("Instance status changed", "instanceID", instanceID, "status", status, "requesterID", requesterID)
	return updated, nil
}

// CanManage reports whether the account may stop, restart or delete the
// instance: its instantiator, an app admin, or an admin of the owning
// organization.
func (p *Provisioner) CanManage(ctx context.Context, instance *interfaces.AppInstance, accountID string) (bool, error) {
	if accountID == "" {
		return false, nil
	}
	if instance.InstantiatorID == accountID {
		return true, nil
	}
	admin, err := p.stores.ACL.IsAppAdmin(ctx, instance.ID, accountID)
	if err != nil || admin {
		return admin, err
	}
	if instance.Personal() {
		return false, nil
	}
	return p.stores.Organizations.IsAdmin(ctx, instance.ProviderID, accountID)
}
