// Package store provides the SQLite-backed durable queue for pending FormRecords.
//
// The queue is a single table, forms, keyed by an AUTOINCREMENT id:
//   - Enqueue appends; it never overwrites an existing row
//   - ListAll returns every pending record in insertion order (ORDER BY id ASC)
//   - Remove deletes by id and tolerates double deletes
//
// # Identity
//
// AUTOINCREMENT guarantees ids are strictly increasing and never reused, even
// after the newest row is deleted. submission_key is UNIQUE: enqueueing a
// submission that is already buffered returns the existing row instead of
// creating a second copy.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - One open connection: every mutation is serialized by SQLite itself
//
// Failures to open, migrate or write the database are reported as
// record.ErrCodeStorageUnavailable so callers can fall back to direct delivery.
package store
