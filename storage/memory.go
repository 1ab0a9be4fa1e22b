package storage

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
)

// memoryDB holds every collection of the in-memory backend behind one mutex,
// so conditional operations are trivially atomic.
type memoryDB struct {
	mu  sync.Mutex
	now func() time.Time

	applications  map[string]interfaces.Application
	organizations map[string]interfaces.Organization
	members       map[string]map[string]bool // organization id -> account id -> admin
	instances     map[string]interfaces.AppInstance
	scopes        map[string]interfaces.Scope
	services      map[string]interfaces.Service
	subscriptions map[string]interfaces.UserSubscription
	aces          map[string]interfaces.AccessControlEntry
	credentials   map[credentialKey]interfaces.Credential
	tokens        map[string]interfaces.Token
	authzs        map[string]interfaces.Authorization
	hooks         map[string]interfaces.Hook
}

type credentialKey struct {
	clientType interfaces.ClientType
	clientID   string
}

// NewMemoryStores returns stores kept in process memory. now stamps versions
// and defaults to time.Now.
func NewMemoryStores(now func() time.Time) *interfaces.Stores {
	if now == nil {
		now = time.Now
	}
	db := &memoryDB{
		now:           now,
		applications:  make(map[string]interfaces.Application),
		organizations: make(map[string]interfaces.Organization),
		members:       make(map[string]map[string]bool),
		instances:     make(map[string]interfaces.AppInstance),
		scopes:        make(map[string]interfaces.Scope),
		services:      make(map[string]interfaces.Service),
		subscriptions: make(map[string]interfaces.UserSubscription),
		aces:          make(map[string]interfaces.AccessControlEntry),
		credentials:   make(map[credentialKey]interfaces.Credential),
		tokens:        make(map[string]interfaces.Token),
		authzs:        make(map[string]interfaces.Authorization),
		hooks:         make(map[string]interfaces.Hook),
	}
	return &interfaces.Stores{
		Applications:   &memApplications{db},
		Organizations:  &memOrganizations{db},
		Instances:      &memInstances{db},
		Scopes:         &memScopes{db},
		Services:       &memServices{db},
		Subscriptions:  &memSubscriptions{db},
		ACL:            &memACL{db},
		Credentials:    &memCredentials{db},
		Tokens:         &memTokens{db},
		Authorizations: &memAuthorizations{db},
		Hooks:          &memHooks{db},
	}
}

func (db *memoryDB) stamp(m *interfaces.Meta) {
	m.Version = interfaces.NextVersion(db.now(), m.Version)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, interfaces.ErrNotFound)
}

func conflict(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, interfaces.ErrConflict)
}

func intersects(a, b []string) bool {
	for _, s := range a {
		if slices.Contains(b, s) {
			return true
		}
	}
	return false
}

type memApplications struct{ db *memoryDB }

func (s *memApplications) Create(_ context.Context, app *interfaces.Application) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.applications[app.ID]; ok {
		return conflict("application", app.ID)
	}
	s.db.stamp(&app.Meta)
	s.db.applications[app.ID] = cloneApplication(*app)
	return nil
}

func (s *memApplications) Get(_ context.Context, id string) (*interfaces.Application, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	app, ok := s.db.applications[id]
	if !ok {
		return nil, notFound("application", id)
	}
	app = cloneApplication(app)
	return &app, nil
}

type memOrganizations struct{ db *memoryDB }

func (s *memOrganizations) Create(_ context.Context, org *interfaces.Organization) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.organizations[org.ID]; ok {
		return conflict("organization", org.ID)
	}
	s.db.stamp(&org.Meta)
	s.db.organizations[org.ID] = *org
	return nil
}

func (s *memOrganizations) Get(_ context.Context, id string) (*interfaces.Organization, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	org, ok := s.db.organizations[id]
	if !ok {
		return nil, notFound("organization", id)
	}
	return &org, nil
}

func (s *memOrganizations) AddMember(_ context.Context, organizationID, accountID string, admin bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.organizations[organizationID]; !ok {
		return notFound("organization", organizationID)
	}
	if s.db.members[organizationID] == nil {
		s.db.members[organizationID] = make(map[string]bool)
	}
	if _, ok := s.db.members[organizationID][accountID]; ok {
		return conflict("membership", organizationID+"/"+accountID)
	}
	s.db.members[organizationID][accountID] = admin
	return nil
}

func (s *memOrganizations) IsAdmin(_ context.Context, organizationID, accountID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.members[organizationID][accountID], nil
}

func (s *memOrganizations) ListAdmins(_ context.Context, organizationID string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var admins []string
	for accountID, admin := range s.db.members[organizationID] {
		if admin {
			admins = append(admins, accountID)
		}
	}
	slices.Sort(admins)
	return admins, nil
}

func (s *memOrganizations) FindDeletedBefore(_ context.Context, before time.Time) ([]*interfaces.Organization, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var orgs []*interfaces.Organization
	for _, org := range s.db.organizations {
		if org.Status == interfaces.OrganizationDeleted && org.StatusChanged.Before(before) {
			orgs = append(orgs, &org)
		}
	}
	slices.SortFunc(orgs, func(a, b *interfaces.Organization) int { return a.StatusChanged.Compare(b.StatusChanged) })
	return orgs, nil
}

func (s *memOrganizations) DeleteWithStatus(_ context.Context, id string, status interfaces.OrganizationStatus) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	org, ok := s.db.organizations[id]
	if !ok || org.Status != status {
		return 0, nil
	}
	delete(s.db.organizations, id)
	delete(s.db.members, id)
	return 1, nil
}

type memInstances struct{ db *memoryDB }

func (s *memInstances) Create(_ context.Context, instance *interfaces.AppInstance) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.instances[instance.ID]; ok {
		return conflict("instance", instance.ID)
	}
	if instance.StatusChanged.IsZero() {
		instance.StatusChanged = s.db.now().UTC()
	}
	s.db.stamp(&instance.Meta)
	s.db.instances[instance.ID] = cloneInstance(*instance)
	return nil
}

func (s *memInstances) Get(_ context.Context, id string) (*interfaces.AppInstance, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	instance, ok := s.db.instances[id]
	if !ok {
		return nil, notFound("instance", id)
	}
	instance = cloneInstance(instance)
	return &instance, nil
}

func (s *memInstances) UpdateIfStatus(_ context.Context, id string, expected interfaces.InstanceStatus, patch interfaces.InstancePatch) (*interfaces.AppInstance, error) {
	return s.update(id, interfaces.InstanceCondition{Status: expected}, patch)
}

func (s *memInstances) UpdateIfVersion(_ context.Context, id string, versions []int64, patch interfaces.InstancePatch) (*interfaces.AppInstance, error) {
	if len(versions) == 0 {
		return nil, interfaces.ErrPreconditionMissing
	}
	return s.update(id, interfaces.InstanceCondition{Versions: versions}, patch)
}

func (s *memInstances) update(id string, cond interfaces.InstanceCondition, patch interfaces.InstancePatch) (*interfaces.AppInstance, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	instance, ok := s.db.instances[id]
	if !ok || !cond.Matches(&instance) {
		return nil, notFound("instance", id)
	}
	instance = cloneInstance(instance)
	patch.Apply(&instance, s.db.now().UTC())
	s.db.stamp(&instance.Meta)
	s.db.instances[id] = cloneInstance(instance)
	return &instance, nil
}

func (s *memInstances) Delete(_ context.Context, id string, cond interfaces.InstanceCondition) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	instance, ok := s.db.instances[id]
	if !ok || !cond.Matches(&instance) {
		return 0, nil
	}
	delete(s.db.instances, id)
	return 1, nil
}

func (s *memInstances) FindStoppedBefore(_ context.Context, before time.Time) ([]*interfaces.AppInstance, error) {
	return s.find(func(i *interfaces.AppInstance) bool {
		return i.Status == interfaces.InstanceStopped && i.StatusChanged.Before(before)
	}), nil
}

func (s *memInstances) FindByProvider(_ context.Context, providerID string) ([]*interfaces.AppInstance, error) {
	return s.find(func(i *interfaces.AppInstance) bool {
		return i.ProviderID == providerID
	}), nil
}

func (s *memInstances) find(match func(*interfaces.AppInstance) bool) []*interfaces.AppInstance {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*interfaces.AppInstance
	for _, instance := range s.db.instances {
		if match(&instance) {
			instance = cloneInstance(instance)
			out = append(out, &instance)
		}
	}
	slices.SortFunc(out, func(a, b *interfaces.AppInstance) int { return a.StatusChanged.Compare(b.StatusChanged) })
	return out
}

type memScopes struct{ db *memoryDB }

func (s *memScopes) Create(_ context.Context, scope *interfaces.Scope) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.scopes[scope.ID]; ok {
		return conflict("scope", scope.ID)
	}
	s.db.stamp(&scope.Meta)
	s.db.scopes[scope.ID] = cloneScope(*scope)
	return nil
}

func (s *memScopes) Get(_ context.Context, id string) (*interfaces.Scope, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	scope, ok := s.db.scopes[id]
	if !ok {
		return nil, notFound("scope", id)
	}
	scope = cloneScope(scope)
	return &scope, nil
}

func (s *memScopes) ListIDsByInstance(_ context.Context, instanceID string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var ids []string
	for id, scope := range s.db.scopes {
		if scope.InstanceID == instanceID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *memScopes) DeleteByInstance(_ context.Context, instanceID string, exceptLocalIDs ...string) (int64, error) {
	return s.sweep(instanceID, exceptLocalIDs, true), nil
}

func (s *memScopes) CountByInstance(_ context.Context, instanceID string, exceptLocalIDs ...string) (int64, error) {
	return s.sweep(instanceID, exceptLocalIDs, false), nil
}

func (s *memScopes) sweep(instanceID string, except []string, remove bool) int64 {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, scope := range s.db.scopes {
		if scope.InstanceID == instanceID && !slices.Contains(except, scope.LocalID) {
			n++
			if remove {
				delete(s.db.scopes, id)
			}
		}
	}
	return n
}

type memServices struct{ db *memoryDB }

func (s *memServices) Create(_ context.Context, service *interfaces.Service) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.services[service.ID]; ok {
		return conflict("service", service.ID)
	}
	for _, existing := range s.db.services {
		if existing.InstanceID == service.InstanceID && existing.LocalID == service.LocalID {
			return conflict("service", service.InstanceID+"/"+service.LocalID)
		}
	}
	s.db.stamp(&service.Meta)
	s.db.services[service.ID] = cloneService(*service)
	return nil
}

func (s *memServices) Get(_ context.Context, id string) (*interfaces.Service, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	service, ok := s.db.services[id]
	if !ok {
		return nil, notFound("service", id)
	}
	service = cloneService(service)
	return &service, nil
}

func (s *memServices) ListIDsByInstance(_ context.Context, instanceID string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var ids []string
	for id, service := range s.db.services {
		if service.InstanceID == instanceID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *memServices) DeleteByInstance(_ context.Context, instanceID string, exceptLocalIDs ...string) (int64, error) {
	return s.sweep(instanceID, exceptLocalIDs, true), nil
}

func (s *memServices) CountByInstance(_ context.Context, instanceID string, exceptLocalIDs ...string) (int64, error) {
	return s.sweep(instanceID, exceptLocalIDs, false), nil
}

func (s *memServices) sweep(instanceID string, except []string, remove bool) int64 {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, service := range s.db.services {
		if service.InstanceID == instanceID && !slices.Contains(except, service.LocalID) {
			n++
			if remove {
				delete(s.db.services, id)
			}
		}
	}
	return n
}

type memSubscriptions struct{ db *memoryDB }

func (s *memSubscriptions) Create(_ context.Context, sub *interfaces.UserSubscription) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.subscriptions[sub.ID]; ok {
		return conflict("subscription", sub.ID)
	}
	for _, existing := range s.db.subscriptions {
		if existing.UserID == sub.UserID && existing.ServiceID == sub.ServiceID {
			return conflict("subscription", sub.UserID+"/"+sub.ServiceID)
		}
	}
	s.db.stamp(&sub.Meta)
	s.db.subscriptions[sub.ID] = *sub
	return nil
}

func (s *memSubscriptions) ListByUser(_ context.Context, userID string) ([]*interfaces.UserSubscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*interfaces.UserSubscription
	for _, sub := range s.db.subscriptions {
		if sub.UserID == userID {
			out = append(out, &sub)
		}
	}
	slices.SortFunc(out, func(a, b *interfaces.UserSubscription) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *memSubscriptions) DeleteByServices(_ context.Context, serviceIDs []string) (int64, error) {
	return s.sweep(serviceIDs, true), nil
}

func (s *memSubscriptions) CountByServices(_ context.Context, serviceIDs []string) (int64, error) {
	return s.sweep(serviceIDs, false), nil
}

func (s *memSubscriptions) sweep(serviceIDs []string, remove bool) int64 {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, sub := range s.db.subscriptions {
		if slices.Contains(serviceIDs, sub.ServiceID) {
			n++
			if remove {
				delete(s.db.subscriptions, id)
			}
		}
	}
	return n
}

type memACL struct{ db *memoryDB }

func (s *memACL) Create(_ context.Context, ace *interfaces.AccessControlEntry) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.aces[ace.ID]; ok {
		return conflict("access control entry", ace.ID)
	}
	for _, existing := range s.db.aces {
		if existing.InstanceID != ace.InstanceID {
			continue
		}
		if (ace.UserID != "" && existing.UserID == ace.UserID) || (ace.UserID == "" && ace.Email != "" && existing.Email == ace.Email) {
			return conflict("access control entry", ace.InstanceID+"/"+ace.UserID+ace.Email)
		}
	}
	s.db.stamp(&ace.Meta)
	s.db.aces[ace.ID] = *ace
	return nil
}

func (s *memACL) IsAppAdmin(_ context.Context, instanceID, userID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, ace := range s.db.aces {
		if ace.InstanceID == instanceID && ace.UserID == userID && ace.AppAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (s *memACL) ListAppAdmins(_ context.Context, instanceID string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var admins []string
	for _, ace := range s.db.aces {
		if ace.InstanceID == instanceID && ace.AppAdmin && ace.UserID != "" {
			admins = append(admins, ace.UserID)
		}
	}
	slices.Sort(admins)
	return admins, nil
}

func (s *memACL) DeleteByInstance(_ context.Context, instanceID string) (int64, error) {
	return s.sweep(instanceID, true), nil
}

func (s *memACL) CountByInstance(_ context.Context, instanceID string) (int64, error) {
	return s.sweep(instanceID, false), nil
}

func (s *memACL) sweep(instanceID string, remove bool) int64 {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, ace := range s.db.aces {
		if ace.InstanceID == instanceID {
			n++
			if remove {
				delete(s.db.aces, id)
			}
		}
	}
	return n
}

type memCredentials struct{ db *memoryDB }

func (s *memCredentials) Create(_ context.Context, cred *interfaces.Credential) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := credentialKey{cred.ClientType, cred.ClientID}
	if _, ok := s.db.credentials[key]; ok {
		return conflict("credential", string(cred.ClientType)+"/"+cred.ClientID)
	}
	s.db.stamp(&cred.Meta)
	c := *cred
	c.SecretHash = slices.Clone(cred.SecretHash)
	s.db.credentials[key] = c
	return nil
}

func (s *memCredentials) Get(_ context.Context, clientType interfaces.ClientType, clientID string) (*interfaces.Credential, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cred, ok := s.db.credentials[credentialKey{clientType, clientID}]
	if !ok {
		return nil, notFound("credential", string(clientType)+"/"+clientID)
	}
	return &cred, nil
}

func (s *memCredentials) Delete(_ context.Context, clientType interfaces.ClientType, clientID string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := credentialKey{clientType, clientID}
	if _, ok := s.db.credentials[key]; !ok {
		return 0, nil
	}
	delete(s.db.credentials, key)
	return 1, nil
}

func (s *memCredentials) Count(_ context.Context, clientType interfaces.ClientType, clientID string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.credentials[credentialKey{clientType, clientID}]; ok {
		return 1, nil
	}
	return 0, nil
}

type memTokens struct{ db *memoryDB }

func (s *memTokens) Create(_ context.Context, token *interfaces.Token) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.tokens[token.ID]; ok {
		return conflict("token", token.ID)
	}
	t := *token
	t.ScopeIDs = slices.Clone(token.ScopeIDs)
	s.db.tokens[token.ID] = t
	return nil
}

func (s *memTokens) RevokeForClient(_ context.Context, clientID string) (int64, error) {
	return s.sweep(func(t *interfaces.Token) bool { return t.ClientID == clientID }, true), nil
}

func (s *memTokens) CountForClient(_ context.Context, clientID string) (int64, error) {
	return s.sweep(func(t *interfaces.Token) bool { return t.ClientID == clientID }, false), nil
}

func (s *memTokens) RevokeForScopes(_ context.Context, scopeIDs []string) (int64, error) {
	return s.sweep(func(t *interfaces.Token) bool { return intersects(t.ScopeIDs, scopeIDs) }, true), nil
}

func (s *memTokens) CountForScopes(_ context.Context, scopeIDs []string) (int64, error) {
	return s.sweep(func(t *interfaces.Token) bool { return intersects(t.ScopeIDs, scopeIDs) }, false), nil
}

func (s *memTokens) sweep(match func(*interfaces.Token) bool, remove bool) int64 {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, token := range s.db.tokens {
		if match(&token) {
			n++
			if remove {
				delete(s.db.tokens, id)
			}
		}
	}
	return n
}

type memAuthorizations struct{ db *memoryDB }

func (s *memAuthorizations) Create(_ context.Context, authz *interfaces.Authorization) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.authzs[authz.ID]; ok {
		return conflict("authorization", authz.ID)
	}
	s.db.stamp(&authz.Meta)
	a := *authz
	a.ScopeIDs = slices.Clone(authz.ScopeIDs)
	s.db.authzs[authz.ID] = a
	return nil
}

func (s *memAuthorizations) Get(_ context.Context, id string) (*interfaces.Authorization, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	authz, ok := s.db.authzs[id]
	if !ok {
		return nil, notFound("authorization", id)
	}
	authz.ScopeIDs = slices.Clone(authz.ScopeIDs)
	return &authz, nil
}

func (s *memAuthorizations) DeleteForClient(_ context.Context, clientID string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, authz := range s.db.authzs {
		if authz.ClientID == clientID {
			delete(s.db.authzs, id)
			n++
		}
	}
	return n, nil
}

func (s *memAuthorizations) CountForClient(_ context.Context, clientID string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, authz := range s.db.authzs {
		if authz.ClientID == clientID {
			n++
		}
	}
	return n, nil
}

func (s *memAuthorizations) RevokeScopes(_ context.Context, scopeIDs []string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, authz := range s.db.authzs {
		if !intersects(authz.ScopeIDs, scopeIDs) {
			continue
		}
		n++
		remaining := slices.DeleteFunc(slices.Clone(authz.ScopeIDs), func(scopeID string) bool {
			return slices.Contains(scopeIDs, scopeID)
		})
		if len(remaining) == 0 {
			delete(s.db.authzs, id)
			continue
		}
		authz.ScopeIDs = remaining
		s.db.stamp(&authz.Meta)
		s.db.authzs[id] = authz
	}
	return n, nil
}

func (s *memAuthorizations) CountForScopes(_ context.Context, scopeIDs []string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, authz := range s.db.authzs {
		if intersects(authz.ScopeIDs, scopeIDs) {
			n++
		}
	}
	return n, nil
}

type memHooks struct{ db *memoryDB }

func (s *memHooks) Create(_ context.Context, hook *interfaces.Hook) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.hooks[hook.ID]; ok {
		return conflict("hook", hook.ID)
	}
	s.db.stamp(&hook.Meta)
	s.db.hooks[hook.ID] = *hook
	return nil
}

func (s *memHooks) DeleteByInstance(_ context.Context, instanceID string) (int64, error) {
	return s.sweep(instanceID, true), nil
}

func (s *memHooks) CountByInstance(_ context.Context, instanceID string) (int64, error) {
	return s.sweep(instanceID, false), nil
}

func (s *memHooks) sweep(instanceID string, remove bool) int64 {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, hook := range s.db.hooks {
		if hook.InstanceID == instanceID {
			n++
			if remove {
				delete(s.db.hooks, id)
			}
		}
	}
	return n
}

// The clone helpers keep maps and slices of stored documents from being
// shared with callers.

func cloneApplication(app interfaces.Application) interfaces.Application {
	app.Name = maps.Clone(app.Name)
	return app
}

func cloneInstance(instance interfaces.AppInstance) interfaces.AppInstance {
	instance.Name = maps.Clone(instance.Name)
	instance.NeededScopes = slices.Clone(instance.NeededScopes)
	for i := range instance.NeededScopes {
		instance.NeededScopes[i].Motivation = maps.Clone(instance.NeededScopes[i].Motivation)
	}
	return instance
}

func cloneScope(scope interfaces.Scope) interfaces.Scope {
	scope.Name = maps.Clone(scope.Name)
	scope.Description = maps.Clone(scope.Description)
	return scope
}

func cloneService(service interfaces.Service) interfaces.Service {
	service.Name = maps.Clone(service.Name)
	service.RedirectURIs = slices.Clone(service.RedirectURIs)
	return service
}
