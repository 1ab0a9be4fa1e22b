package interfaces

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Meta is maintained by the store; callers never set it.
type Meta struct {
	// Version is the last-modification instant in microseconds since the
	// epoch. The store keeps it strictly increasing per document.
	Version int64 `json:"-" db:"version"`
}

// Metadata gives stores generic access to the embedded Meta.
func (m *Meta) Metadata() *Meta {
	return m
}

// Modified returns the last-modification instant.
func (m Meta) Modified() time.Time {
	return time.UnixMicro(m.Version).UTC()
}

// NextVersion returns the version a document gets when written at now.
func NextVersion(now time.Time, previous int64) int64 {
	v := now.UnixMicro()
	if v <= previous {
		return previous + 1
	}
	return v
}

// InstanceStatus is the lifecycle state of an AppInstance.
type InstanceStatus string

const (
	InstancePending InstanceStatus = "PENDING"
	InstanceRunning InstanceStatus = "RUNNING"
	InstanceStopped InstanceStatus = "STOPPED"
)

// ParseInstanceStatus validates a status string.
func ParseInstanceStatus(s string) (InstanceStatus, error) {
	switch status := InstanceStatus(s); status {
	case InstancePending, InstanceRunning, InstanceStopped:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown instance status %q", ErrInvalidInput, s)
	}
}

// OrganizationStatus marks soft deletion of an organization.
type OrganizationStatus string

const (
	OrganizationAvailable OrganizationStatus = "AVAILABLE"
	OrganizationDeleted   OrganizationStatus = "DELETED"
)

// SubscriptionType tells whether a subscription was made for the user alone
// or on behalf of the organization owning the instance.
type SubscriptionType string

const (
	SubscriptionPersonal     SubscriptionType = "PERSONAL"
	SubscriptionOrganization SubscriptionType = "ORGANIZATION"
)

// ClientType namespaces credential client ids.
type ClientType string

const (
	ClientTypeInstance ClientType = "instance"
	ClientTypeService  ClientType = "service"
)

// RootLocale is the key holding the locale-independent text of a LocalizedString.
const RootLocale = ""

// LocalizedString maps BCP 47 language tags to text.
type LocalizedString map[string]string

// Root returns the locale-independent value.
func (l LocalizedString) Root() string {
	return l[RootLocale]
}

// Value implements driver.Valuer.
func (l LocalizedString) Value() (driver.Value, error) {
	return jsonValue(l)
}

// Scan implements sql.Scanner.
func (l *LocalizedString) Scan(src any) error {
	return jsonScan(src, l)
}

// NeededScope is a scope an instance asks its users to grant.
type NeededScope struct {
	ScopeID    string          `json:"scope_id" validate:"required"`
	Motivation LocalizedString `json:"motivation,omitempty"`
}

// NeededScopes is stored as a JSON column.
type NeededScopes []NeededScope

// Value implements driver.Valuer.
func (n NeededScopes) Value() (driver.Value, error) {
	return jsonValue(n)
}

// Scan implements sql.Scanner.
func (n *NeededScopes) Scan(src any) error {
	return jsonScan(src, n)
}

// StringList is stored as a JSON column.
type StringList []string

// Value implements driver.Valuer.
func (s StringList) Value() (driver.Value, error) {
	return jsonValue(s)
}

// Scan implements sql.Scanner.
func (s *StringList) Scan(src any) error {
	return jsonScan(src, s)
}

// Application is a catalog entry that can be instantiated.
type Application struct {
	ID                  string          `db:"id"`
	Name                LocalizedString `db:"name"`
	ProviderID          string          `db:"provider_id"`
	InstantiationURI    string          `db:"instantiation_uri"`
	InstantiationSecret string          `db:"instantiation_secret"`
	Visible             bool            `db:"visible"`
	Meta
}

// Organization owns shared instances. Deletion is soft: Status becomes
// OrganizationDeleted and the purge sweep removes it later.
type Organization struct {
	ID            string             `db:"id"`
	Name          string             `db:"name"`
	Status        OrganizationStatus `db:"status"`
	StatusChanged time.Time          `db:"status_changed"`
	Meta
}

// AppInstance is a provisioned instantiation of an Application.
type AppInstance struct {
	ID            string `db:"id"`
	ApplicationID string `db:"application_id"`

	// ProviderID is the owning organization; empty for personal instances.
	ProviderID              string          `db:"provider_id"`
	InstantiatorID          string          `db:"instantiator_id"`
	Status                  InstanceStatus  `db:"status"`
	Name                    LocalizedString `db:"name"`
	NeededScopes            NeededScopes    `db:"needed_scopes"`
	DestructionURI          string          `db:"destruction_uri"`
	DestructionSecret       string          `db:"destruction_secret"`
	StatusChanged           time.Time       `db:"status_changed"`
	StatusChangeRequesterID string          `db:"status_change_requester_id"`
	Meta
}

// Personal reports whether the instance belongs to a single user.
func (i *AppInstance) Personal() bool {
	return i.ProviderID == ""
}

// InstancePatch lists the fields a conditional update may change. Nil
// fields are left untouched.
type InstancePatch struct {
	Status                  *InstanceStatus
	NeededScopes            *NeededScopes
	DestructionURI          *string
	DestructionSecret       *string
	StatusChangeRequesterID *string
}

// Apply writes the patch onto instance. now stamps StatusChanged when the
// status changes.
func (p InstancePatch) Apply(instance *AppInstance, now time.Time) {
	if p.Status != nil && *p.Status != instance.Status {
		instance.Status = *p.Status
		instance.StatusChanged = now
	}
	if p.NeededScopes != nil {
		instance.NeededScopes = *p.NeededScopes
	}
	if p.DestructionURI != nil {
		instance.DestructionURI = *p.DestructionURI
	}
	if p.DestructionSecret != nil {
		instance.DestructionSecret = *p.DestructionSecret
	}
	if p.StatusChangeRequesterID != nil {
		instance.StatusChangeRequesterID = *p.StatusChangeRequesterID
	}
}

// Scope is an OAuth scope declared by an instance.
type Scope struct {
	ID          string          `db:"id"`
	InstanceID  string          `db:"instance_id"`
	LocalID     string          `db:"local_id"`
	Name        LocalizedString `db:"name"`
	Description LocalizedString `db:"description"`
	Meta
}

// ScopeID builds the global id of an instance-local scope.
func ScopeID(instanceID, localID string) string {
	return instanceID + ":" + localID
}

// Service is a user-facing entry point of an instance.
type Service struct {
	ID           string          `db:"id"`
	InstanceID   string          `db:"instance_id"`
	LocalID      string          `db:"local_id"`
	Name         LocalizedString `db:"name"`
	ServiceURI   string          `db:"service_uri"`
	RedirectURIs StringList      `db:"redirect_uris"`
	Visible      bool            `db:"visible"`
	Meta
}

// UserSubscription puts a service on a user's dashboard.
type UserSubscription struct {
	ID        string           `db:"id"`
	UserID    string           `db:"user_id"`
	ServiceID string           `db:"service_id"`
	Type      SubscriptionType `db:"subscription_type"`
	CreatorID string           `db:"creator_id"`
	Meta
}

// AccessControlEntry grants a user access to an instance. Pending entries
// are invitations keyed by Email and have an empty UserID.
type AccessControlEntry struct {
	ID         string `db:"id"`
	InstanceID string `db:"instance_id"`
	UserID     string `db:"user_id"`
	Email      string `db:"email"`
	AppAdmin   bool   `db:"app_admin"`
	AppUser    bool   `db:"app_user"`
	CreatorID  string `db:"creator_id"`
	Meta
}

// Pending reports whether the entry is an unaccepted invitation.
func (a *AccessControlEntry) Pending() bool {
	return a.UserID == "" && a.Email != ""
}

// Credential is a client secret, stored hashed.
type Credential struct {
	ClientType ClientType `db:"client_type"`
	ClientID   string     `db:"client_id"`
	SecretHash []byte     `db:"secret_hash"`
	Meta
}

// Token is an issued access or refresh token.
type Token struct {
	ID        string     `db:"id"`
	AccountID string     `db:"account_id"`
	ClientID  string     `db:"client_id"`
	ScopeIDs  StringList `db:"-"`
	Expires   time.Time  `db:"expires"`
}

// Authorization records the scopes an account granted to a client.
type Authorization struct {
	ID        string     `db:"id"`
	AccountID string     `db:"account_id"`
	ClientID  string     `db:"client_id"`
	ScopeIDs  StringList `db:"-"`
	Meta
}

// Hook is an eventbus subscription registered by an instance.
type Hook struct {
	ID         string `db:"id"`
	InstanceID string `db:"instance_id"`
	EventType  string `db:"event_type"`
	URI        string `db:"uri"`
	Secret     string `db:"secret"`
	Meta
}

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("unsupported JSON column type")
	}
}
