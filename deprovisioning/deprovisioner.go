// Package deprovisioning removes an AppInstance and everything that depends
// on it.
//
// A run optionally guards the instance with an expected status and/or an
// acceptable version set, optionally tells the provider through the
// destruction webhook, then deletes dependents step by step. Every step is a
// bulk delete keyed by the instance, so re-running after a crash finds zero
// rows where work was already done and converges.
package deprovisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
	"github.com/ruteri/appinstance-provisioning-backend/metrics"
	"github.com/ruteri/appinstance-provisioning-backend/webhook"
)

// Request selects the instance and the guards of a run.
type Request struct {
	InstanceID string

	// CheckStatus, when set, must equal the stored status.
	CheckStatus interfaces.InstanceStatus

	// CheckVersions, when non-empty, must contain the stored version.
	CheckVersions []int64

	// CallProvider asks for the destruction webhook when the instance has a
	// destruction URI.
	CallProvider bool
}

func (r Request) condition() interfaces.InstanceCondition {
	return interfaces.InstanceCondition{Status: r.CheckStatus, Versions: r.CheckVersions}
}

// Result reports what a run did. Instance is the document as last read,
// nil when it was already gone.
type Result struct {
	Status   Status                  `json:"outcome"`
	Stats    Stats                   `json:"stats"`
	Instance *interfaces.AppInstance `json:"-"`
}

// DestructionPayload is the body of the destruction webhook.
type DestructionPayload struct {
	InstanceID string `json:"instance_id"`
}

type Deprovisioner struct {
	stores *interfaces.Stores
	caller webhook.Caller
	log    *slog.Logger
}

func New(stores *interfaces.Stores, caller webhook.Caller, log *slog.Logger) *Deprovisioner {
	return &Deprovisioner{
		stores: stores,
		caller: caller,
		log:    log,
	}
}

// Delete runs the deprovisioning of one instance. An error is returned only
// for unexpected store failures; races surface as Result.Status.
func (d *Deprovisioner) Delete(ctx context.Context, req Request) (*Result, error) {
	log := d.log.With("instanceID", req.InstanceID)

	res, err := d.delete(ctx, req, log)
	if err != nil {
		log.Error("Deprovisioning failed", "err", err)
		return nil, err
	}

	metrics.DeprovisioningOutcome.WithLabelValues(string(res.Status)).Inc()
	for kind, n := range res.Stats.byKind() {
		if n > 0 {
			metrics.DeprovisionedEntities.WithLabelValues(kind).Add(float64(n))
		}
	}
	log.Info("Deprovisioning finished", "outcome", res.Status, "stats", res.Stats)
	return res, nil
}

func (d *Deprovisioner) delete(ctx context.Context, req Request, log *slog.Logger) (*Result, error) {
	instance, err := d.stores.Instances.Get(ctx, req.InstanceID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return d.leftovers(ctx, req.InstanceID)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{Status: DeletedInstance, Instance: instance}

	cond := req.condition()
	guarded := cond.Guarded()
	if guarded {
		// The guard goes first so that dependents are never touched for an
		// instance the caller did not mean.
		n, err := d.stores.Instances.Delete(ctx, req.InstanceID, cond)
		if err != nil {
			return nil, fmt.Errorf("failed to delete instance: %w", err)
		}
		if n == 0 {
			return d.guardFailed(ctx, req)
		}
	}

	if req.CallProvider && instance.DestructionURI != "" {
		res.Status = d.callProvider(ctx, instance, log)
	} else if instance.DestructionURI != "" {
		log.Warn("Skipping provider destruction call", "destructionURI", instance.DestructionURI)
	}

	if err := d.cascade(ctx, req.InstanceID, &res.Stats); err != nil {
		return nil, err
	}

	if !guarded {
		n, err := d.stores.Instances.Delete(ctx, req.InstanceID, interfaces.InstanceCondition{})
		if err != nil {
			return nil, fmt.Errorf("failed to delete instance: %w", err)
		}
		if n == 0 {
			log.Info("Instance removed concurrently")
			if res.Status == DeletedInstance {
				res.Status = DeletedLeftovers
				if res.Stats.Total() == 0 {
					res.Status = NothingToDelete
				}
			}
		}
	}
	return res, nil
}

// guardFailed tells a concurrent removal from a failed precondition.
func (d *Deprovisioner) guardFailed(ctx context.Context, req Request) (*Result, error) {
	current, err := d.stores.Instances.Get(ctx, req.InstanceID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return d.leftovers(ctx, req.InstanceID)
	}
	if err != nil {
		return nil, err
	}
	status := BadInstanceVersion
	if req.CheckStatus != "" && current.Status != req.CheckStatus {
		status = BadInstanceStatus
	}
	return &Result{Status: status, Instance: current}, nil
}

func (d *Deprovisioner) leftovers(ctx context.Context, instanceID string) (*Result, error) {
	res := &Result{Status: NothingToDelete}
	if err := d.cascade(ctx, instanceID, &res.Stats); err != nil {
		return nil, err
	}
	if res.Stats.Total() > 0 {
		res.Status = DeletedLeftovers
	}
	return res, nil
}

func (d *Deprovisioner) callProvider(ctx context.Context, instance *interfaces.AppInstance, log *slog.Logger) Status {
	res := d.caller.Call(ctx, webhook.Request{
		Kind:    webhook.KindDestruction,
		URL:     instance.DestructionURI,
		Secret:  instance.DestructionSecret,
		Payload: DestructionPayload{InstanceID: instance.ID},
	})
	switch {
	case res.Succeeded():
		return DeletedInstance
	case res.Outcome == webhook.Delivered:
		log.Warn("Provider refused instance destruction, deleting locally anyway", "status", res.StatusCode)
		return ProviderStatusError
	default:
		log.Warn("Provider unreachable for instance destruction, deleting locally anyway", "err", res.Err)
		return ProviderCallError
	}
}

// cascade removes every dependent of the instance. The order keeps grants and
// tokens referencing a scope from outliving it.
func (d *Deprovisioner) cascade(ctx context.Context, instanceID string, stats *Stats) error {
	var err error
	if stats.CredentialsDeleted, err = d.stores.Credentials.Delete(ctx, interfaces.ClientTypeInstance, instanceID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	if stats.TokensRevokedForInstance, err = d.stores.Tokens.RevokeForClient(ctx, instanceID); err != nil {
		return fmt.Errorf("failed to revoke instance tokens: %w", err)
	}
	if stats.AuthorizationsDeletedForInstance, err = d.stores.Authorizations.DeleteForClient(ctx, instanceID); err != nil {
		return fmt.Errorf("failed to delete instance authorizations: %w", err)
	}
	if err := d.deleteScopes(ctx, instanceID, stats); err != nil {
		return err
	}
	if stats.AppUsersDeleted, err = d.stores.ACL.DeleteByInstance(ctx, instanceID); err != nil {
		return fmt.Errorf("failed to delete app users: %w", err)
	}
	if err := d.deleteServices(ctx, instanceID, stats, true); err != nil {
		return err
	}
	if stats.HooksDeleted, err = d.stores.Hooks.DeleteByInstance(ctx, instanceID); err != nil {
		return fmt.Errorf("failed to delete eventbus hooks: %w", err)
	}
	return nil
}

// CleanupProvisioned removes what an acknowledgement creates: scopes with
// their tokens and grants, app users, subscriptions and services. The
// instance document and its credential stay, so the provider may retry.
func (d *Deprovisioner) CleanupProvisioned(ctx context.Context, instanceID string, stats *Stats) error {
	if err := d.deleteScopes(ctx, instanceID, stats); err != nil {
		return err
	}
	n, err := d.stores.ACL.DeleteByInstance(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to delete app users: %w", err)
	}
	stats.AppUsersDeleted += n
	return d.deleteServices(ctx, instanceID, stats, false)
}

func (d *Deprovisioner) deleteScopes(ctx context.Context, instanceID string, stats *Stats) error {
	scopeIDs, err := d.stores.Scopes.ListIDsByInstance(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to list scopes: %w", err)
	}
	if len(scopeIDs) > 0 {
		n, err := d.stores.Tokens.RevokeForScopes(ctx, scopeIDs)
		if err != nil {
			return fmt.Errorf("failed to revoke scope tokens: %w", err)
		}
		stats.TokensRevokedForScopes += n

		n, err = d.stores.Authorizations.RevokeScopes(ctx, scopeIDs)
		if err != nil {
			return fmt.Errorf("failed to revoke scope grants: %w", err)
		}
		stats.AuthorizationsRevokedForScopes += n
	}
	n, err := d.stores.Scopes.DeleteByInstance(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to delete scopes: %w", err)
	}
	stats.ScopesDeleted += n
	return nil
}

func (d *Deprovisioner) deleteServices(ctx context.Context, instanceID string, stats *Stats, withCredentials bool) error {
	serviceIDs, err := d.stores.Services.ListIDsByInstance(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to list services: %w", err)
	}
	if len(serviceIDs) > 0 {
		n, err := d.stores.Subscriptions.DeleteByServices(ctx, serviceIDs)
		if err != nil {
			return fmt.Errorf("failed to delete subscriptions: %w", err)
		}
		stats.SubscriptionsDeleted += n
	}
	if withCredentials {
		for _, serviceID := range serviceIDs {
			n, err := d.stores.Credentials.Delete(ctx, interfaces.ClientTypeService, serviceID)
			if err != nil {
				return fmt.Errorf("failed to delete service credentials: %w", err)
			}
			stats.CredentialsDeleted += n
		}
	}
	n, err := d.stores.Services.DeleteByInstance(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to delete services: %w", err)
	}
	stats.ServicesDeleted += n
	return nil
}
