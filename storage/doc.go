// Package storage implements the entity stores of the provisioning backend.
//
// Two backends share the interfaces.Stores contract:
//
//   - memory:// keeps every collection in process memory behind one mutex.
//     It backs tests and single-process experiments.
//   - sqlite3:// and postgres:// use sqlx over a schema applied with
//     golang-migrate from the embedded migrations directory.
//
// # Conditional writes
//
// Instance updates and deletes carry their predicate (expected status and/or
// acceptable version set) in the write itself: a single UPDATE or DELETE
// statement with the predicate in its WHERE clause, or a check-and-write under
// the memory mutex. Zero affected rows never raise an error; callers re-read
// to tell "already gone" from "exists under another version".
//
// # Versions
//
// Every write stamps Meta.Version with max(now, previous+1) in microseconds,
// so versions strictly increase per document even when the clock stalls.
//
// # Dry run
//
// DryRun wraps a Stores so that reads pass through and writes are logged and
// answered from the Count twins of each bulk delete.
package storage
