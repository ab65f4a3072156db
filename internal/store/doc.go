// Package store provides SQLite-backed durable storage for lattice metadata.
//
// Each entity kind has its own table. A row holds the shared base columns,
// one column per foreign key, the kind's indexed scalar columns, and an
// attrs JSON document with the full record. Columns are authoritative: on
// read, attrs is decoded first and then overwritten from the columns.
//
// # Transactions
//
// All access goes through Store.WithTx and the Tx it yields. The database
// runs with one connection, so transactions are fully serialised and every
// read-check-write sequence inside one Tx is atomic.
//
// # Critical Patterns
//
// Optimistic concurrency:
//   - Update matches on (id, lastupdated); zero rows is a stale write
//   - The new stamp is strictly greater than the old one
//
// Checkpoint claims:
//   - A single conditional UPDATE takes the lease; zero rows means lost race
//   - Commits compare-and-swap on revision and release the lease
//
// Join barrier:
//   - Deliveries and firings are keyed rows inserted ON CONFLICT DO NOTHING
//   - RowsAffected tells the caller whether it was first
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Constraint failures are translated to *model.Error values; see errors.go.
package store
