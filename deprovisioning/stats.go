package deprovisioning

// Status is the outcome of a deprovisioning run. Callers must handle every
// value; expected races are outcomes here, not errors.
type Status string

const (
	// DeletedInstance means the instance document and its dependents were removed.
	DeletedInstance Status = "DELETED_INSTANCE"
	// DeletedLeftovers means the instance was already gone but dependents remained and were removed.
	DeletedLeftovers Status = "DELETED_LEFTOVERS"
	// NothingToDelete means neither the instance nor any dependent existed.
	NothingToDelete Status = "NOTHING_TO_DELETE"
	// BadInstanceStatus means the instance exists with a status other than the expected one.
	BadInstanceStatus Status = "BAD_INSTANCE_STATUS"
	// BadInstanceVersion means the instance exists under a version the caller did not present.
	BadInstanceVersion Status = "BAD_INSTANCE_VERSION"
	// ProviderCallError means the destruction webhook timed out or failed in transport.
	// The local cascade was still performed.
	ProviderCallError Status = "PROVIDER_CALL_ERROR"
	// ProviderStatusError means the destruction webhook answered with a non-2xx status.
	// The local cascade was still performed.
	ProviderStatusError Status = "PROVIDER_STATUS_ERROR"
)

// Removed reports whether the run removed the instance document or found it gone.
func (s Status) Removed() bool {
	switch s {
	case BadInstanceStatus, BadInstanceVersion:
		return false
	}
	return true
}

// Stats counts what each cascade step removed.
type Stats struct {
	CredentialsDeleted               int64 `json:"credentials_deleted"`
	TokensRevokedForInstance         int64 `json:"tokens_revoked_for_instance"`
	AuthorizationsDeletedForInstance int64 `json:"authorizations_deleted_for_instance"`
	TokensRevokedForScopes           int64 `json:"tokens_revoked_for_scopes"`
	AuthorizationsRevokedForScopes   int64 `json:"authorizations_revoked_for_scopes"`
	ScopesDeleted                    int64 `json:"scopes_deleted"`
	AppUsersDeleted                  int64 `json:"app_users_deleted"`
	SubscriptionsDeleted             int64 `json:"subscriptions_deleted"`
	ServicesDeleted                  int64 `json:"services_deleted"`
	HooksDeleted                     int64 `json:"hooks_deleted"`
}

// Total sums every counter.
func (s Stats) Total() int64 {
	return s.CredentialsDeleted +
		s.TokensRevokedForInstance +
		s.AuthorizationsDeletedForInstance +
		s.TokensRevokedForScopes +
		s.AuthorizationsRevokedForScopes +
		s.ScopesDeleted +
		s.AppUsersDeleted +
		s.SubscriptionsDeleted +
		s.ServicesDeleted +
		s.HooksDeleted
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.CredentialsDeleted += o.CredentialsDeleted
	s.TokensRevokedForInstance += o.TokensRevokedForInstance
	s.AuthorizationsDeletedForInstance += o.AuthorizationsDeletedForInstance
	s.TokensRevokedForScopes += o.TokensRevokedForScopes
	s.AuthorizationsRevokedForScopes += o.AuthorizationsRevokedForScopes
	s.ScopesDeleted += o.ScopesDeleted
	s.AppUsersDeleted += o.AppUsersDeleted
	s.SubscriptionsDeleted += o.SubscriptionsDeleted
	s.ServicesDeleted += o.ServicesDeleted
	s.HooksDeleted += o.HooksDeleted
}

// byKind lists the counters under their metric label.
func (s Stats) byKind() map[string]int64 {
	return map[string]int64{
		"credential":             s.CredentialsDeleted,
		"instance_token":         s.TokensRevokedForInstance,
		"instance_authorization": s.AuthorizationsDeletedForInstance,
		"scope_token":            s.TokensRevokedForScopes,
		"scope_authorization":    s.AuthorizationsRevokedForScopes,
		"scope":                  s.ScopesDeleted,
		"app_user":               s.AppUsersDeleted,
		"subscription":           s.SubscriptionsDeleted,
		"service":                s.ServicesDeleted,
		"hook":                   s.HooksDeleted,
	}
}
