package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
)

// DryRun wraps stores so that nothing is written. Reads pass through; every
// write is logged and answers what it would have affected.
func DryRun(stores *interfaces.Stores, log *slog.Logger) *interfaces.Stores {
	log = log.With("dryRun", true)
	return &interfaces.Stores{
		Applications:   &dryApplications{stores.Applications, log},
		Organizations:  &dryOrganizations{stores.Organizations, log},
		Instances:      &dryInstances{stores.Instances, log},
		Scopes:         &dryScopes{stores.Scopes, log},
		Services:       &dryServices{stores.Services, log},
		Subscriptions:  &drySubscriptions{stores.Subscriptions, log},
		ACL:            &dryACL{stores.ACL, log},
		Credentials:    &dryCredentials{stores.Credentials, log},
		Tokens:         &dryTokens{stores.Tokens, log},
		Authorizations: &dryAuthorizations{stores.Authorizations, log},
		Hooks:          &dryHooks{stores.Hooks, log},
	}
}

func logged(log *slog.Logger, op string, n int64, err error, args ...any) (int64, error) {
	if err != nil {
		return 0, err
	}
	log.Info("Would "+op, append(args, "count", n)...)
	return n, nil
}

type dryApplications struct {
	interfaces.ApplicationStore
	log *slog.Logger
}

func (s *dryApplications) Create(_ context.Context, app *interfaces.Application) error {
	s.log.Info("Would create application", "applicationID", app.ID)
	return nil
}

type dryOrganizations struct {
	interfaces.OrganizationStore
	log *slog.Logger
}

func (s *dryOrganizations) Create(_ context.Context, org *interfaces.Organization) error {
	s.log.Info("Would create organization", "organizationID", org.ID)
	return nil
}

func (s *dryOrganizations) AddMember(_ context.Context, organizationID, accountID string, admin bool) error {
	s.log.Info("Would add organization member", "organizationID", organizationID, "accountID", accountID, "admin", admin)
	return nil
}

func (s *dryOrganizations) DeleteWithStatus(ctx context.Context, id string, status interfaces.OrganizationStatus) (int64, error) {
	org, err := s.OrganizationStore.Get(ctx, id)
	var n int64
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		err = nil
	case err == nil && org.Status == status:
		n = 1
	}
	return logged(s.log, "delete organization", n, err, "organizationID", id)
}

type dryInstances struct {
	interfaces.InstanceStore
	log *slog.Logger
}

func (s *dryInstances) Create(_ context.Context, instance *interfaces.AppInstance) error {
	s.log.Info("Would create instance", "instanceID", instance.ID)
	return nil
}

func (s *dryInstances) UpdateIfStatus(ctx context.Context, id string, expected interfaces.InstanceStatus, patch interfaces.InstancePatch) (*interfaces.AppInstance, error) {
	return s.update(ctx, id, interfaces.InstanceCondition{Status: expected}, patch)
}

func (s *dryInstances) UpdateIfVersion(ctx context.Context, id string, versions []int64, patch interfaces.InstancePatch) (*interfaces.AppInstance, error) {
	if len(versions) == 0 {
		return nil, interfaces.ErrPreconditionMissing
	}
	return s.update(ctx, id, interfaces.InstanceCondition{Versions: versions}, patch)
}

func (s *dryInstances) update(ctx context.Context, id string, cond interfaces.InstanceCondition, patch interfaces.InstancePatch) (*interfaces.AppInstance, error) {
	instance, err := s.InstanceStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cond.Matches(instance) {
		return nil, notFound("instance", id)
	}
	patch.Apply(instance, instance.Modified())
	s.log.Info("Would update instance", "instanceID", id)
	return instance, nil
}

func (s *dryInstances) Delete(ctx context.Context, id string, cond interfaces.InstanceCondition) (int64, error) {
	instance, err := s.InstanceStore.Get(ctx, id)
	var n int64
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		err = nil
	case err == nil && cond.Matches(instance):
		n = 1
	}
	return logged(s.log, "delete instance", n, err, "instanceID", id)
}

type dryScopes struct {
	interfaces.ScopeStore
	log *slog.Logger
}

func (s *dryScopes) Create(_ context.Context, scope *interfaces.Scope) error {
	s.log.Info("Would create scope", "scopeID", scope.ID)
	return nil
}

func (s *dryScopes) DeleteByInstance(ctx context.Context, instanceID string, exceptLocalIDs ...string) (int64, error) {
	n, err := s.CountByInstance(ctx, instanceID, exceptLocalIDs...)
	return logged(s.log, "delete scopes", n, err, "instanceID", instanceID)
}

type dryServices struct {
	interfaces.ServiceStore
	log *slog.Logger
}

func (s *dryServices) Create(_ context.Context, service *interfaces.Service) error {
	s.log.Info("Would create service", "serviceID", service.ID)
	return nil
}

func (s *dryServices) DeleteByInstance(ctx context.Context, instanceID string, exceptLocalIDs ...string) (int64, error) {
	n, err := s.CountByInstance(ctx, instanceID, exceptLocalIDs...)
	return logged(s.log, "delete services", n, err, "instanceID", instanceID)
}

type drySubscriptions struct {
	interfaces.SubscriptionStore
	log *slog.Logger
}

func (s *drySubscriptions) Create(_ context.Context, sub *interfaces.UserSubscription) error {
	s.log.Info("Would create subscription", "userID", sub.UserID, "serviceID", sub.ServiceID)
	return nil
}

func (s *drySubscriptions) DeleteByServices(ctx context.Context, serviceIDs []string) (int64, error) {
	n, err := s.CountByServices(ctx, serviceIDs)
	return logged(s.log, "delete subscriptions", n, err, "serviceIDs", serviceIDs)
}

type dryACL struct {
	interfaces.AccessControlStore
	log *slog.Logger
}

func (s *dryACL) Create(_ context.Context, ace *interfaces.AccessControlEntry) error {
	s.log.Info("Would create access control entry", "instanceID", ace.InstanceID, "userID", ace.UserID)
	return nil
}

func (s *dryACL) DeleteByInstance(ctx context.Context, instanceID string) (int64, error) {
	n, err := s.CountByInstance(ctx, instanceID)
	return logged(s.log, "delete app users", n, err, "instanceID", instanceID)
}

type dryCredentials struct {
	interfaces.CredentialStore
	log *slog.Logger
}

func (s *dryCredentials) Create(_ context.Context, cred *interfaces.Credential) error {
	s.log.Info("Would create credential", "clientType", cred.ClientType, "clientID", cred.ClientID)
	return nil
}

func (s *dryCredentials) Delete(ctx context.Context, clientType interfaces.ClientType, clientID string) (int64, error) {
	n, err := s.Count(ctx, clientType, clientID)
	return logged(s.log, "delete credential", n, err, "clientType", clientType, "clientID", clientID)
}

type dryTokens struct {
	interfaces.TokenStore
	log *slog.Logger
}

func (s *dryTokens) Create(_ context.Context, token *interfaces.Token) error {
	s.log.Info("Would create token", "clientID", token.ClientID)
	return nil
}

func (s *dryTokens) RevokeForClient(ctx context.Context, clientID string) (int64, error) {
	n, err := s.CountForClient(ctx, clientID)
	return logged(s.log, "revoke client tokens", n, err, "clientID", clientID)
}

func (s *dryTokens) RevokeForScopes(ctx context.Context, scopeIDs []string) (int64, error) {
	n, err := s.CountForScopes(ctx, scopeIDs)
	return logged(s.log, "revoke scope tokens", n, err, "scopeIDs", scopeIDs)
}

type dryAuthorizations struct {
	interfaces.AuthorizationStore
	log *slog.Logger
}

func (s *dryAuthorizations) Create(_ context.Context, authz *interfaces.Authorization) error {
	s.log.Info("Would create authorization", "clientID", authz.ClientID)
	return nil
}

func (s *dryAuthorizations) DeleteForClient(ctx context.Context, clientID string) (int64, error) {
	n, err := s.CountForClient(ctx, clientID)
	return logged(s.log, "delete client authorizations", n, err, "clientID", clientID)
}

func (s *dryAuthorizations) RevokeScopes(ctx context.Context, scopeIDs []string) (int64, error) {
	n, err := s.CountForScopes(ctx, scopeIDs)
	return logged(s.log, "revoke scope grants", n, err, "scopeIDs", scopeIDs)
}

type dryHooks struct {
	interfaces.HookStore
	log *slog.Logger
}

func (s *dryHooks) Create(_ context.Context, hook *interfaces.Hook) error {
	s.log.Info("Would create hook", "instanceID", hook.InstanceID)
	return nil
}

func (s *dryHooks) DeleteByInstance(ctx context.Context, instanceID string) (int64, error) {
	n, err := s.CountByInstance(ctx, instanceID)
	return logged(s.log, "delete hooks", n, err, "instanceID", instanceID)
}
