// Command delete-instance deprovisions one app instance by id.
//
// It runs the same deletion as the API: optional status and version
// guards, the provider's destruction webhook, then the removal of
// credentials, tokens, authorizations, scopes, ACL entries, subscriptions,
// services and hooks. The outcome and the number of removed entities are
// printed as JSON.
//
// An instance that is already gone is still swept for leftovers, so the
// tool can finish a deletion that was interrupted.
//
// With --dry-run nothing is modified and the provider is not called; the
// printed counts are what a real run would remove.
//
// Example usage:
//
//	delete-instance --store sqlite3:///var/lib/provisioning/db.sqlite \
//	  --instance-id 2b1f... --check-status STOPPED --dry-run
package main
