// Package interfaces defines the entity types, store contracts and error
// taxonomy shared by the provisioning backend.
//
// # Entities
//
// Every versioned entity embeds Meta. The version is the store-managed
// last-modification instant in microseconds and strictly increases per
// document; domain code never writes it.
//
// # Stores
//
// Stores aggregates one store per entity type. Instance stores expose
// conditional updates and deletes that evaluate their predicate and apply the
// write atomically, which is the only synchronization between racing callers.
// Bulk deletes keyed by instance id return affected counts and have Count
// twins evaluating the same predicate.
//
// # Errors
//
// Expected races surface as sentinel errors (ErrNotFound, ErrVersionMismatch,
// ErrStatusPrecondition) that callers test with errors.Is.
package interfaces
