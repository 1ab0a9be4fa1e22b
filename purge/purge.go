// Package purge removes instances and organizations that have been stopped
// or soft-deleted for longer than the retention period.
//
// A sweep keeps no state of its own. Each run re-reads the candidates, so it
// can be scheduled as often as wanted and resumes wherever a previous run
// stopped.
package purge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ruteri/appinstance-provisioning-backend/deprovisioning"
	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
	"github.com/ruteri/appinstance-provisioning-backend/metrics"
)

const DefaultRetention = 7 * 24 * time.Hour

type Config struct {
	// Retention is how long an instance stays STOPPED, or an organization
	// DELETED, before it is purged. Defaults to DefaultRetention.
	Retention time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Report sums up a sweep.
type Report struct {
	Outcomes             map[deprovisioning.Status]int `json:"outcomes"`
	Stats                deprovisioning.Stats          `json:"stats"`
	OrganizationsDeleted int                           `json:"organizations_deleted"`

	// Skipped lists the instances and organizations left in place because
	// they changed since they were selected.
	Skipped []string `json:"skipped,omitempty"`
}

func (r *Report) record(res *deprovisioning.Result) {
	r.Outcomes[res.Status]++
	r.Stats.Add(res.Stats)
}

type Sweeper struct {
	cfg           Config
	stores        *interfaces.Stores
	deprovisioner *deprovisioning.Deprovisioner
	notifier      interfaces.Notifier
	log           *slog.Logger
}

func New(cfg Config, stores *interfaces.Stores, deprovisioner *deprovisioning.Deprovisioner, notifier interfaces.Notifier, log *slog.Logger) *Sweeper {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		cfg:           cfg,
		stores:        stores,
		deprovisioner: deprovisioner,
		notifier:      notifier,
		log:           log,
	}
}

// Run performs one sweep. Failures on individual items are logged and
// returned joined once every candidate has been visited; the report covers
// what was done regardless.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	cutoff := s.cfg.Now().Add(-s.cfg.Retention)
	report := &Report{Outcomes: make(map[deprovisioning.Status]int)}
	s.log.Info("Starting purge sweep", "cutoff", cutoff)

	var errs []error
	if err := s.sweepInstances(ctx, cutoff, report); err != nil {
		errs = append(errs, err)
	}
	if err := s.sweepOrganizations(ctx, cutoff, report); err != nil {
		errs = append(errs, err)
	}

	s.log.Info("Purge sweep finished",
		"outcomes", report.Outcomes,
		"organizationsDeleted", report.OrganizationsDeleted,
		"skipped", len(report.Skipped),
		"entities", report.Stats.Total())
	return report, errors.Join(errs...)
}

func (s *Sweeper) sweepInstances(ctx context.Context, cutoff time.Time, report *Report) error {
	instances, err := s.stores.Instances.FindStoppedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stopped instances: %w", err)
	}

	var errs []error
	for _, instance := range instances {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.purgeInstance(ctx, instance, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sweeper) purgeInstance(ctx context.Context, instance *interfaces.AppInstance, report *Report) error {
	log := s.log.With("instanceID", instance.ID)

	// Admins are gone once the cascade removed the ACL, so look them up first.
	recipients, err := s.instanceRecipients(ctx, instance)
	if err != nil {
		log.Warn("Failed to list instance admins", "err", err)
	}

	res, err := s.deprovisioner.Delete(ctx, deprovisioning.Request{
		InstanceID:   instance.ID,
		CheckStatus:  interfaces.InstanceStopped,
		CallProvider: true,
	})
	if err != nil {
		metrics.PurgeSwept.WithLabelValues("instance", "error").Inc()
		return fmt.Errorf("instance %s: %w", instance.ID, err)
	}
	report.record(res)
	metrics.PurgeSwept.WithLabelValues("instance", string(res.Status)).Inc()

	switch res.Status {
	case deprovisioning.BadInstanceStatus, deprovisioning.BadInstanceVersion:
		// Restarted since it was selected.
		log.Info("Instance changed since selection, skipping", "outcome", res.Status)
		report.Skipped = append(report.Skipped, instance.ID)
		return nil
	case deprovisioning.DeletedLeftovers, deprovisioning.NothingToDelete:
		return nil
	}

	s.notify(ctx, interfaces.Notification{
		Kind:       interfaces.NotifyInstancePurged,
		InstanceID: instance.ID,
		Outcome:    string(res.Status),
		Recipients: recipients,
	})
	return nil
}

func (s *Sweeper) instanceRecipients(ctx context.Context, instance *interfaces.AppInstance) ([]string, error) {
	admins, err := s.stores.ACL.ListAppAdmins(ctx, instance.ID)
	recipients := append([]string{instance.InstantiatorID}, admins...)
	slices.Sort(recipients)
	return slices.Compact(recipients), err
}

func (s *Sweeper) sweepOrganizations(ctx context.Context, cutoff time.Time, report *Report) error {
	orgs, err := s.stores.Organizations.FindDeletedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list deleted organizations: %w", err)
	}

	var errs []error
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.purgeOrganization(ctx, org, report); err != nil {
			metrics.PurgeSwept.WithLabelValues("organization", "error").Inc()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sweeper) purgeOrganization(ctx context.Context, org *interfaces.Organization, report *Report) error {
	log := s.log.With("organizationID", org.ID)

	current, err := s.stores.Organizations.Get(ctx, org.ID)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		log.Info("Organization already purged, skipping")
		return nil
	case err != nil:
		return fmt.Errorf("organization %s: %w", org.ID, err)
	case current.Status != interfaces.OrganizationDeleted:
		log.Info("Organization restored since selection, skipping", "status", current.Status)
		report.Skipped = append(report.Skipped, org.ID)
		metrics.PurgeSwept.WithLabelValues("organization", "kept").Inc()
		return nil
	}

	instances, err := s.stores.Instances.FindByProvider(ctx, org.ID)
	if err != nil {
		return fmt.Errorf("organization %s: failed to list instances: %w", org.ID, err)
	}

	remaining := 0
	for _, instance := range instances {
		// Guarded by the status read above; an instance changed since is kept.
		res, err := s.deprovisioner.Delete(ctx, deprovisioning.Request{
			InstanceID:   instance.ID,
			CheckStatus:  instance.Status,
			CallProvider: true,
		})
		if err != nil {
			return fmt.Errorf("organization %s: instance %s: %w", org.ID, instance.ID, err)
		}
		report.record(res)
		if !res.Status.Removed() {
			remaining++
		}
	}
	if remaining > 0 {
		log.Warn("Organization still has instances, keeping it", "remaining", remaining)
		report.Skipped = append(report.Skipped, org.ID)
		metrics.PurgeSwept.WithLabelValues("organization", "kept").Inc()
		return nil
	}

	admins, err := s.stores.Organizations.ListAdmins(ctx, org.ID)
	if err != nil {
		log.Warn("Failed to list organization admins", "err", err)
	}

	n, err := s.stores.Organizations.DeleteWithStatus(ctx, org.ID, interfaces.OrganizationDeleted)
	if err != nil {
		return fmt.Errorf("organization %s: %w", org.ID, err)
	}
	if n == 0 {
		// Restored or already purged by a concurrent sweep.
		log.Info("Organization changed since selection, skipping")
		report.Skipped = append(report.Skipped, org.ID)
		metrics.PurgeSwept.WithLabelValues("organization", "kept").Inc()
		return nil
	}

	report.OrganizationsDeleted++
	metrics.PurgeSwept.WithLabelValues("organization", "deleted").Inc()
	log.Info("Organization purged", "instances", len(instances))
	s.notify(ctx, interfaces.Notification{
		Kind:           interfaces.NotifyOrganizationPurged,
		OrganizationID: org.ID,
		Outcome:        "DELETED",
		Recipients:     admins,
	})
	return nil
}

func (s *Sweeper) notify(ctx context.Context, n interfaces.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn("Failed to notify admins", "kind", n.Kind, "instanceID", n.InstanceID, "organizationID", n.OrganizationID, "err", err)
	}
}
