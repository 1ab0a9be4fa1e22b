// Command purge runs one purge sweep and prints its report as JSON.
//
// Instances that have been STOPPED for longer than --retention are
// deprovisioned, provider included. Organizations that have been DELETED
// for longer than --retention lose all their instances and are then removed.
// Admins are notified through the log.
//
// The sweep keeps no state; schedule it from cron or a Kubernetes CronJob.
// Items changed by users while the sweep runs are skipped and listed in
// the report.
//
// Example usage:
//
//	purge --store postgres://provisioning@db/provisioning --dry-run
package main
