// Package store provides SQLite-backed storage for Basic I/O.
//
// A Store is both the resource repository the import engine resolves against
// and commits into, and the run log that keeps every import report.
//
//   - resources: one row per persisted resource, fields stored as canonical
//     JSON and matched with json_extract during lookups
//   - import_runs: one row per import batch with its full report
//
// Every query orders by the seq column so results never depend on wall time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
