package interfaces

import (
	"context"
	"time"
)

// InstanceCondition restricts a conditional update or delete of an
// AppInstance. Zero fields match anything.
type InstanceCondition struct {
	// Status, when set, must equal the stored status.
	Status InstanceStatus
	// Versions, when non-empty, must contain the stored version.
	Versions []int64
}

// Guarded reports whether the condition restricts anything.
func (c InstanceCondition) Guarded() bool {
	return c.Status != "" || len(c.Versions) > 0
}

// Matches evaluates the condition against a stored instance.
func (c InstanceCondition) Matches(instance *AppInstance) bool {
	if c.Status != "" && instance.Status != c.Status {
		return false
	}
	if len(c.Versions) == 0 {
		return true
	}
	for _, v := range c.Versions {
		if v == instance.Version {
			return true
		}
	}
	return false
}

// InstanceStore persists AppInstances. Conditional operations are atomic:
// the predicate is evaluated and the write applied as one step.
type InstanceStore interface {
	// Create stores a new instance and stamps its version. ErrConflict if
	// the id is taken.
	Create(ctx context.Context, instance *AppInstance) error

	// Get returns ErrNotFound when the instance does not exist.
	Get(ctx context.Context, id string) (*AppInstance, error)

	// UpdateIfStatus applies patch only if the stored status equals
	// expected. ErrNotFound when nothing matched.
	UpdateIfStatus(ctx context.Context, id string, expected InstanceStatus, patch InstancePatch) (*AppInstance, error)

	// UpdateIfVersion applies patch only if the stored version is one of
	// versions. ErrNotFound when nothing matched.
	UpdateIfVersion(ctx context.Context, id string, versions []int64, patch InstancePatch) (*AppInstance, error)

	// Delete removes the instance if cond holds and returns the number of
	// rows removed. Zero means absent or predicate failure; callers re-read
	// to tell them apart.
	Delete(ctx context.Context, id string, cond InstanceCondition) (int64, error)

	// FindStoppedBefore lists STOPPED instances whose status changed before the given instant.
	FindStoppedBefore(ctx context.Context, before time.Time) ([]*AppInstance, error)

	// FindByProvider lists the instances owned by an organization.
	FindByProvider(ctx context.Context, providerID string) ([]*AppInstance, error)
}

// ScopeStore persists scopes declared by instances.
type ScopeStore interface {
	Create(ctx context.Context, scope *Scope) error
	Get(ctx context.Context, id string) (*Scope, error)
	ListIDsByInstance(ctx context.Context, instanceID string) ([]string, error)
	// DeleteByInstance removes the scopes of an instance, keeping those whose
	// local id is listed in exceptLocalIDs.
	DeleteByInstance(ctx context.Context, instanceID string, exceptLocalIDs ...string) (int64, error)
	CountByInstance(ctx context.Context, instanceID string, exceptLocalIDs ...string) (int64, error)
}

// ServiceStore persists services exposed by instances.
type ServiceStore interface {
	Create(ctx context.Context, service *Service) error
	Get(ctx context.Context, id string) (*Service, error)
	ListIDsByInstance(ctx context.Context, instanceID string) ([]string, error)
	DeleteByInstance(ctx context.Context, instanceID string, exceptLocalIDs ...string) (int64, error)
	CountByInstance(ctx context.Context, instanceID string, exceptLocalIDs ...string) (int64, error)
}

// SubscriptionStore persists user subscriptions to services.
type SubscriptionStore interface {
	// Create returns ErrConflict when the user is already subscribed.
	Create(ctx context.Context, sub *UserSubscription) error
	ListByUser(ctx context.Context, userID string) ([]*UserSubscription, error)
	DeleteByServices(ctx context.Context, serviceIDs []string) (int64, error)
	CountByServices(ctx context.Context, serviceIDs []string) (int64, error)
}

// AccessControlStore persists app-users, including pending invitations.
type AccessControlStore interface {
	Create(ctx context.Context, ace *AccessControlEntry) error
	IsAppAdmin(ctx context.Context, instanceID, userID string) (bool, error)
	ListAppAdmins(ctx context.Context, instanceID string) ([]string, error)
	DeleteByInstance(ctx context.Context, instanceID string) (int64, error)
	CountByInstance(ctx context.Context, instanceID string) (int64, error)
}

// CredentialStore persists hashed client secrets keyed by (client type, client id).
type CredentialStore interface {
	Create(ctx context.Context, cred *Credential) error
	Get(ctx context.Context, clientType ClientType, clientID string) (*Credential, error)
	Delete(ctx context.Context, clientType ClientType, clientID string) (int64, error)
	Count(ctx context.Context, clientType ClientType, clientID string) (int64, error)
}

// TokenStore persists issued tokens.
type TokenStore interface {
	Create(ctx context.Context, token *Token) error
	// RevokeForClient deletes every token issued to the client.
	RevokeForClient(ctx context.Context, clientID string) (int64, error)
	CountForClient(ctx context.Context, clientID string) (int64, error)
	// RevokeForScopes deletes every token carrying any of the scopes.
	RevokeForScopes(ctx context.Context, scopeIDs []string) (int64, error)
	CountForScopes(ctx context.Context, scopeIDs []string) (int64, error)
}

// AuthorizationStore persists the grants accounts made to clients.
type AuthorizationStore interface {
	Create(ctx context.Context, authz *Authorization) error
	Get(ctx context.Context, id string) (*Authorization, error)
	DeleteForClient(ctx context.Context, clientID string) (int64, error)
	CountForClient(ctx context.Context, clientID string) (int64, error)
	// RevokeScopes removes the scopes from every grant holding any of them and
	// deletes grants left empty. It returns the number of grants touched.
	RevokeScopes(ctx context.Context, scopeIDs []string) (int64, error)
	CountForScopes(ctx context.Context, scopeIDs []string) (int64, error)
}

// HookStore persists eventbus subscriptions.
type HookStore interface {
	Create(ctx context.Context, hook *Hook) error
	DeleteByInstance(ctx context.Context, instanceID string) (int64, error)
	CountByInstance(ctx context.Context, instanceID string) (int64, error)
}

// ApplicationStore is the read side of the catalog.
type ApplicationStore interface {
	Create(ctx context.Context, app *Application) error
	Get(ctx context.Context, id string) (*Application, error)
}

// OrganizationStore persists organizations and their memberships.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Get(ctx context.Context, id string) (*Organization, error)
	AddMember(ctx context.Context, organizationID, accountID string, admin bool) error
	IsAdmin(ctx context.Context, organizationID, accountID string) (bool, error)
	ListAdmins(ctx context.Context, organizationID string) ([]string, error)
	FindDeletedBefore(ctx context.Context, before time.Time) ([]*Organization, error)
	// DeleteWithStatus removes the organization and its memberships if its
	// status still equals status.
	DeleteWithStatus(ctx context.Context, id string, status OrganizationStatus) (int64, error)
}

// Stores aggregates the per-entity stores of one backend.
type Stores struct {
	Applications   ApplicationStore
	Organizations  OrganizationStore
	Instances      InstanceStore
	Scopes         ScopeStore
	Services       ServiceStore
	Subscriptions  SubscriptionStore
	ACL            AccessControlStore
	Credentials    CredentialStore
	Tokens         TokenStore
	Authorizations AuthorizationStore
	Hooks          HookStore
}
