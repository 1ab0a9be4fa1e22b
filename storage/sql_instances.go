package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
)

const instanceColumns = `id, application_id, provider_id, instantiator_id, status, name, needed_scopes,
	destruction_uri, destruction_secret, status_changed, status_change_requester_id, version`

type sqlInstances struct{ *sqlDB }

func (s *sqlInstances) Create(ctx context.Context, instance *interfaces.AppInstance) error {
	if instance.StatusChanged.IsZero() {
		instance.StatusChanged = s.now()
	}
	instance.StatusChanged = instance.StatusChanged.UTC()
	instance.Version = s.version(0)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO app_instances (`+instanceColumns+`)
		VALUES (:id, :application_id, :provider_id, :instantiator_id, :status, :name, :needed_scopes,
		:destruction_uri, :destruction_secret, :status_changed, :status_change_requester_id, :version)`, instance)
	return translate(err, "instance", instance.ID)
}

func (s *sqlInstances) Get(ctx context.Context, id string) (*interfaces.AppInstance, error) {
	var instance interfaces.AppInstance
	err := s.get(ctx, &instance, `SELECT `+instanceColumns+` FROM app_instances WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err, "instance", id)
	}
	return &instance, nil
}

func (s *sqlInstances) UpdateIfStatus(ctx context.Context, id string, expected interfaces.InstanceStatus, patch interfaces.InstancePatch) (*interfaces.AppInstance, error) {
	return s.update(ctx, id, interfaces.InstanceCondition{Status: expected}, patch)
}

func (s *sqlInstances) UpdateIfVersion(ctx context.Context, id string, versions []int64, patch interfaces.InstancePatch) (*interfaces.AppInstance, error) {
	if len(versions) == 0 {
		return nil, interfaces.ErrPreconditionMissing
	}
	return s.update(ctx, id, interfaces.InstanceCondition{Versions: versions}, patch)
}

// update runs the conditional UPDATE and the read-back in one transaction.
// The predicate is part of the UPDATE statement, so two callers racing on the
// same row cannot both match it.
func (s *sqlInstances) update(ctx context.Context, id string, cond interfaces.InstanceCondition, patch interfaces.InstancePatch) (*interfaces.AppInstance, error) {
	var (
		sets []string
		args []any
	)
	if patch.Status != nil {
		sets = append(sets, "status_changed = CASE WHEN status <> ? THEN ? ELSE status_changed END", "status = ?")
		args = append(args, *patch.Status, s.now().UTC(), *patch.Status)
	}
	if patch.NeededScopes != nil {
		sets = append(sets, "needed_scopes = ?")
		args = append(args, *patch.NeededScopes)
	}
	if patch.DestructionURI != nil {
		sets = append(sets, "destruction_uri = ?")
		args = append(args, *patch.DestructionURI)
	}
	if patch.DestructionSecret != nil {
		sets = append(sets, "destruction_secret = ?")
		args = append(args, *patch.DestructionSecret)
	}
	if patch.StatusChangeRequesterID != nil {
		sets = append(sets, "status_change_requester_id = ?")
		args = append(args, *patch.StatusChangeRequesterID)
	}
	sets = append(sets, nextVersionExpr)
	args = append(args, s.bumpArgs()...)

	where, whereArgs := instanceWhere(id, cond)
	query := `UPDATE app_instances SET ` + strings.Join(sets, ", ") + where

	var instance interfaces.AppInstance
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		n, err := s.exec(ctx, tx, query, append(args, whereArgs...)...)
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		return tx.GetContext(ctx, &instance, s.db.Rebind(`SELECT `+instanceColumns+` FROM app_instances WHERE id = ?`), id)
	})
	if err != nil {
		return nil, translate(err, "instance", id)
	}
	return &instance, nil
}

func (s *sqlInstances) Delete(ctx context.Context, id string, cond interfaces.InstanceCondition) (int64, error) {
	where, args := instanceWhere(id, cond)
	n, err := s.exec(ctx, s.db, `DELETE FROM app_instances`+where, args...)
	if err != nil {
		return 0, translate(err, "instance", id)
	}
	return n, nil
}

func instanceWhere(id string, cond interfaces.InstanceCondition) (string, []any) {
	where := ` WHERE id = ?`
	args := []any{id}
	if cond.Status != "" {
		where += ` AND status = ?`
		args = append(args, cond.Status)
	}
	if len(cond.Versions) > 0 {
		where += ` AND version IN (?)`
		args = append(args, cond.Versions)
	}
	return where, args
}

func (s *sqlInstances) FindStoppedBefore(ctx context.Context, before time.Time) ([]*interfaces.AppInstance, error) {
	var instances []*interfaces.AppInstance
	err := s.selectAll(ctx, &instances, `SELECT `+instanceColumns+` FROM app_instances
		WHERE status = ? AND status_changed < ? ORDER BY status_changed`, interfaces.InstanceStopped, before.UTC())
	return instances, err
}

func (s *sqlInstances) FindByProvider(ctx context.Context, providerID string) ([]*interfaces.AppInstance, error) {
	if providerID == "" {
		return nil, errors.New("provider id is required")
	}
	var instances []*interfaces.AppInstance
	err := s.selectAll(ctx, &instances, `SELECT `+instanceColumns+` FROM app_instances
		WHERE provider_id = ? ORDER BY status_changed`, providerID)
	return instances, err
}
