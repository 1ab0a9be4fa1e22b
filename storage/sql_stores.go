package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
)

type sqlApplications struct{ *sqlDB }

func (s *sqlApplications) Create(ctx context.Context, app *interfaces.Application) error {
	app.Version = s.version(0)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO applications
		(id, name, provider_id, instantiation_uri, instantiation_secret, visible, version)
		VALUES (:id, :name, :provider_id, :instantiation_uri, :instantiation_secret, :visible, :version)`, app)
	return translate(err, "application", app.ID)
}

func (s *sqlApplications) Get(ctx context.Context, id string) (*interfaces.Application, error) {
	var app interfaces.Application
	err := s.get(ctx, &app, `SELECT id, name, provider_id, instantiation_uri, instantiation_secret, visible, version
		FROM applications WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err, "application", id)
	}
	return &app, nil
}

type sqlOrganizations struct{ *sqlDB }

func (s *sqlOrganizations) Create(ctx context.Context, org *interfaces.Organization) error {
	if org.StatusChanged.IsZero() {
		org.StatusChanged = s.now()
	}
	org.StatusChanged = org.StatusChanged.UTC()
	org.Version = s.version(0)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO organizations (id, name, status, status_changed, version)
		VALUES (:id, :name, :status, :status_changed, :version)`, org)
	return translate(err, "organization", org.ID)
}

func (s *sqlOrganizations) Get(ctx context.Context, id string) (*interfaces.Organization, error) {
	var org interfaces.Organization
	err := s.get(ctx, &org, `SELECT id, name, status, status_changed, version FROM organizations WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err, "organization", id)
	}
	return &org, nil
}

func (s *sqlOrganizations) AddMember(ctx context.Context, organizationID, accountID string, admin bool) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO organization_members (organization_id, account_id, admin)
		VALUES (?, ?, ?)`, organizationID, accountID, admin)
	return translate(err, "membership", organizationID+"/"+accountID)
}

func (s *sqlOrganizations) IsAdmin(ctx context.Context, organizationID, accountID string) (bool, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM organization_members
		WHERE organization_id = ? AND account_id = ? AND admin`, organizationID, accountID)
	return n > 0, err
}

func (s *sqlOrganizations) ListAdmins(ctx context.Context, organizationID string) ([]string, error) {
	var admins []string
	err := s.selectAll(ctx, &admins, `SELECT account_id FROM organization_members
		WHERE organization_id = ? AND admin ORDER BY account_id`, organizationID)
	return admins, err
}

func (s *sqlOrganizations) FindDeletedBefore(ctx context.Context, before time.Time) ([]*interfaces.Organization, error) {
	var orgs []*interfaces.Organization
	err := s.selectAll(ctx, &orgs, `SELECT id, name, status, status_changed, version FROM organizations
		WHERE status = ? AND status_changed < ? ORDER BY status_changed`, interfaces.OrganizationDeleted, before.UTC())
	return orgs, err
}

func (s *sqlOrganizations) DeleteWithStatus(ctx context.Context, id string, status interfaces.OrganizationStatus) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		n, err = s.exec(ctx, tx, `DELETE FROM organizations WHERE id = ? AND status = ?`, id, status)
		if err != nil || n == 0 {
			return err
		}
		_, err = s.exec(ctx, tx, `DELETE FROM organization_members WHERE organization_id = ?`, id)
		return err
	})
	return n, translate(err, "organization", id)
}

// exceptClause narrows an instance-scoped query to rows whose local id is
// not in except.
func exceptClause(query string, args []any, except []string) (string, []any) {
	if len(except) == 0 {
		return query, args
	}
	return query + ` AND local_id NOT IN (?)`, append(args, except)
}

type sqlScopes struct{ *sqlDB }

func (s *sqlScopes) Create(ctx context.Context, scope *interfaces.Scope) error {
	scope.Version = s.version(0)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO scopes (id, instance_id, local_id, name, description, version)
		VALUES (:id, :instance_id, :local_id, :name, :description, :version)`, scope)
	return translate(err, "scope", scope.ID)
}

func (s *sqlScopes) Get(ctx context.Context, id string) (*interfaces.Scope, error) {
	var scope interfaces.Scope
	err := s.get(ctx, &scope, `SELECT id, instance_id, local_id, name, description, version FROM scopes WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err, "scope", id)
	}
	return &scope, nil
}

func (s *sqlScopes) ListIDsByInstance(ctx context.Context, instanceID string) ([]string, error) {
	var ids []string
	err := s.selectAll(ctx, &ids, `SELECT id FROM scopes WHERE instance_id = ? ORDER BY id`, instanceID)
	return ids, err
}

func (s *sqlScopes) DeleteByInstance(ctx context.Context, instanceID string, exceptLocalIDs ...string) (int64, error) {
	query, args := exceptClause(`DELETE FROM scopes WHERE instance_id = ?`, []any{instanceID}, exceptLocalIDs)
	return s.exec(ctx, s.db, query, args...)
}

func (s *sqlScopes) CountByInstance(ctx context.Context, instanceID string, exceptLocalIDs ...string) (int64, error) {
	query, args := exceptClause(`SELECT COUNT(*) FROM scopes WHERE instance_id = ?`, []any{instanceID}, exceptLocalIDs)
	return s.count(ctx, query, args...)
}

type sqlServices struct{ *sqlDB }

func (s *sqlServices) Create(ctx context.Context, service *interfaces.Service) error {
	service.Version = s.version(0)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO services
		(id, instance_id, local_id, name, service_uri, redirect_uris, visible, version)
		VALUES (:id, :instance_id, :local_id, :name, :service_uri, :redirect_uris, :visible, :version)`, service)
	return translate(err, "service", service.ID)
}

func (s *sqlServices) Get(ctx context.Context, id string) (*interfaces.Service, error) {
	var service interfaces.Service
	err := s.get(ctx, &service, `SELECT id, instance_id, local_id, name, service_uri, redirect_uris, visible, version
		FROM services WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err, "service", id)
	}
	return &service, nil
}

func (s *sqlServices) ListIDsByInstance(ctx context.Context, instanceID string) ([]string, error) {
	var ids []string
	err := s.selectAll(ctx, &ids, `SELECT id FROM services WHERE instance_id = ? ORDER BY id`, instanceID)
	return ids, err
}

func (s *sqlServices) DeleteByInstance(ctx context.Context, instanceID string, exceptLocalIDs ...string) (int64, error) {
	query, args := exceptClause(`DELETE FROM services WHERE instance_id = ?`, []any{instanceID}, exceptLocalIDs)
	return s.exec(ctx, s.db, query, args...)
}

func (s *sqlServices) CountByInstance(ctx context.Context, instanceID string, exceptLocalIDs ...string) (int64, error) {
	query, args := exceptClause(`SELECT COUNT(*) FROM services WHERE instance_id = ?`, []any{instanceID}, exceptLocalIDs)
	return s.count(ctx, query, args...)
}

type sqlSubscriptions struct{ *sqlDB }

func (s *sqlSubscriptions) Create(ctx context.Context, sub *interfaces.UserSubscription) error {
	sub.Version = s.version(0)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO user_subscriptions
		(id, user_id, service_id, subscription_type, creator_id, version)
		VALUES (:id, :user_id, :service_id, :subscription_type, :creator_id, :version)`, sub)
	return translate(err, "subscription", sub.ID)
}

func (s *sqlSubscriptions) ListByUser(ctx context.Context, userID string) ([]*interfaces.UserSubscription, error) {
	var subs []*interfaces.UserSubscription
	err := s.selectAll(ctx, &subs, `SELECT id, user_id, service_id, subscription_type, creator_id, version
		FROM user_subscriptions WHERE user_id = ? ORDER BY id`, userID)
	return subs, err
}

func (s *sqlSubscriptions) DeleteByServices(ctx context.Context, serviceIDs []string) (int64, error) {
	if len(serviceIDs) == 0 {
		return 0, nil
	}
	return s.exec(ctx, s.db, `DELETE FROM user_subscriptions WHERE service_id IN (?)`, serviceIDs)
}

func (s *sqlSubscriptions) CountByServices(ctx context.Context, serviceIDs []string) (int64, error) {
	if len(serviceIDs) == 0 {
		return 0, nil
	}
	return s.count(ctx, `SELECT COUNT(*) FROM user_subscriptions WHERE service_id IN (?)`, serviceIDs)
}

type sqlACL struct{ *sqlDB }

func (s *sqlACL) Create(ctx context.Context, ace *interfaces.AccessControlEntry) error {
	ace.Version = s.version(0)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO access_control_entries
		(id, instance_id, user_id, email, app_admin, app_user, creator_id, version)
		VALUES (:id, :instance_id, :user_id, :email, :app_admin, :app_user, :creator_id, :version)`, ace)
	return translate(err, "access control entry", ace.ID)
}

func (s *sqlACL) IsAppAdmin(ctx context.Context, instanceID, userID string) (bool, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM access_control_entries
		WHERE instance_id = ? AND user_id = ? AND app_admin`, instanceID, userID)
	return n > 0, err
}

func (s *sqlACL) ListAppAdmins(ctx context.Context, instanceID string) ([]string, error) {
	var admins []string
	err := s.selectAll(ctx, &admins, `SELECT user_id FROM access_control_entries
		WHERE instance_id = ? AND app_admin AND user_id <> '' ORDER BY user_id`, instanceID)
	return admins, err
}

func (s *sqlACL) DeleteByInstance(ctx context.Context, instanceID string) (int64, error) {
	return s.exec(ctx, s.db, `DELETE FROM access_control_entries WHERE instance_id = ?`, instanceID)
}

func (s *sqlACL) CountByInstance(ctx context.Context, instanceID string) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM access_control_entries WHERE instance_id = ?`, instanceID)
}

type sqlCredentials struct{ *sqlDB }

func (s *sqlCredentials) Create(ctx context.Context, cred *interfaces.Credential) error {
	cred.Version = s.version(0)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO credentials (client_type, client_id, secret_hash, version)
		VALUES (:client_type, :client_id, :secret_hash, :version)`, cred)
	return translate(err, "credential", string(cred.ClientType)+"/"+cred.ClientID)
}

func (s *sqlCredentials) Get(ctx context.Context, clientType interfaces.ClientType, clientID string) (*interfaces.Credential, error) {
	var cred interfaces.Credential
	err := s.get(ctx, &cred, `SELECT client_type, client_id, secret_hash, version FROM credentials
		WHERE client_type = ? AND client_id = ?`, clientType, clientID)
	if err != nil {
		return nil, translate(err, "credential", string(clientType)+"/"+clientID)
	}
	return &cred, nil
}

func (s *sqlCredentials) Delete(ctx context.Context, clientType interfaces.ClientType, clientID string) (int64, error) {
	return s.exec(ctx, s.db, `DELETE FROM credentials WHERE client_type = ? AND client_id = ?`, clientType, clientID)
}

func (s *sqlCredentials) Count(ctx context.Context, clientType interfaces.ClientType, clientID string) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM credentials WHERE client_type = ? AND client_id = ?`, clientType, clientID)
}

type sqlTokens struct{ *sqlDB }

func (s *sqlTokens) Create(ctx context.Context, token *interfaces.Token) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.exec(ctx, tx, `INSERT INTO tokens (id, account_id, client_id, expires) VALUES (?, ?, ?, ?)`,
			token.ID, token.AccountID, token.ClientID, token.Expires.UTC()); err != nil {
			return err
		}
		for _, scopeID := range token.ScopeIDs {
			if _, err := s.exec(ctx, tx, `INSERT INTO token_scopes (token_id, scope_id) VALUES (?, ?)`, token.ID, scopeID); err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err, "token", token.ID)
}

// Deleting a token cascades to its token_scopes rows.
func (s *sqlTokens) RevokeForClient(ctx context.Context, clientID string) (int64, error) {
	return s.exec(ctx, s.db, `DELETE FROM tokens WHERE client_id = ?`, clientID)
}

func (s *sqlTokens) CountForClient(ctx context.Context, clientID string) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM tokens WHERE client_id = ?`, clientID)
}

func (s *sqlTokens) RevokeForScopes(ctx context.Context, scopeIDs []string) (int64, error) {
	if len(scopeIDs) == 0 {
		return 0, nil
	}
	return s.exec(ctx, s.db, `DELETE FROM tokens WHERE id IN
		(SELECT token_id FROM token_scopes WHERE scope_id IN (?))`, scopeIDs)
}

func (s *sqlTokens) CountForScopes(ctx context.Context, scopeIDs []string) (int64, error) {
	if len(scopeIDs) == 0 {
		return 0, nil
	}
	return s.count(ctx, `SELECT COUNT(DISTINCT token_id) FROM token_scopes WHERE scope_id IN (?)`, scopeIDs)
}

type sqlAuthorizations struct{ *sqlDB }

func (s *sqlAuthorizations) Create(ctx context.Context, authz *interfaces.Authorization) error {
	authz.Version = s.version(0)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.exec(ctx, tx, `INSERT INTO authorizations (id, account_id, client_id, version) VALUES (?, ?, ?, ?)`,
			authz.ID, authz.AccountID, authz.ClientID, authz.Version); err != nil {
			return err
		}
		for _, scopeID := range authz.ScopeIDs {
			if _, err := s.exec(ctx, tx, `INSERT INTO authorization_scopes (authorization_id, scope_id) VALUES (?, ?)`,
				authz.ID, scopeID); err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err, "authorization", authz.ID)
}

func (s *sqlAuthorizations) Get(ctx context.Context, id string) (*interfaces.Authorization, error) {
	var authz interfaces.Authorization
	if err := s.get(ctx, &authz, `SELECT id, account_id, client_id, version FROM authorizations WHERE id = ?`, id); err != nil {
		return nil, translate(err, "authorization", id)
	}
	if err := s.selectAll(ctx, &authz.ScopeIDs, `SELECT scope_id FROM authorization_scopes
		WHERE authorization_id = ? ORDER BY scope_id`, id); err != nil {
		return nil, translate(err, "authorization", id)
	}
	return &authz, nil
}

func (s *sqlAuthorizations) DeleteForClient(ctx context.Context, clientID string) (int64, error) {
	return s.exec(ctx, s.db, `DELETE FROM authorizations WHERE client_id = ?`, clientID)
}

func (s *sqlAuthorizations) CountForClient(ctx context.Context, clientID string) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM authorizations WHERE client_id = ?`, clientID)
}

func (s *sqlAuthorizations) RevokeScopes(ctx context.Context, scopeIDs []string) (int64, error) {
	if len(scopeIDs) == 0 {
		return 0, nil
	}
	var touched []string
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := s.expand(`SELECT DISTINCT authorization_id FROM authorization_scopes WHERE scope_id IN (?)`, scopeIDs)
		if err != nil {
			return err
		}
		if err := tx.SelectContext(ctx, &touched, query, args...); err != nil {
			return err
		}
		if len(touched) == 0 {
			return nil
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM authorization_scopes WHERE scope_id IN (?)`, scopeIDs); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM authorizations WHERE id IN (?) AND NOT EXISTS
			(SELECT 1 FROM authorization_scopes WHERE authorization_id = authorizations.id)`, touched); err != nil {
			return err
		}
		args = append([]any{}, s.bumpArgs()...)
		_, err = s.exec(ctx, tx, `UPDATE authorizations SET `+nextVersionExpr+` WHERE id IN (?)`, append(args, touched)...)
		return err
	})
	if err != nil {
		return 0, err
	}
	return int64(len(touched)), nil
}

func (s *sqlAuthorizations) CountForScopes(ctx context.Context, scopeIDs []string) (int64, error) {
	if len(scopeIDs) == 0 {
		return 0, nil
	}
	return s.count(ctx, `SELECT COUNT(DISTINCT authorization_id) FROM authorization_scopes WHERE scope_id IN (?)`, scopeIDs)
}

type sqlHooks struct{ *sqlDB }

func (s *sqlHooks) Create(ctx context.Context, hook *interfaces.Hook) error {
	hook.Version = s.version(0)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO hooks (id, instance_id, event_type, uri, secret, version)
		VALUES (:id, :instance_id, :event_type, :uri, :secret, :version)`, hook)
	return translate(err, "hook", hook.ID)
}

func (s *sqlHooks) DeleteByInstance(ctx context.Context, instanceID string) (int64, error) {
	return s.exec(ctx, s.db, `DELETE FROM hooks WHERE instance_id = ?`, instanceID)
}

func (s *sqlHooks) CountByInstance(ctx context.Context, instanceID string) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM hooks WHERE instance_id = ?`, instanceID)
}
