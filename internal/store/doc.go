// Package store provides the durable entity repository that the computed
// property engine reads raw values from.
//
// The engine only sees the Repository interface. Two implementations ship
// with the package:
//   - Store: SQLite-backed repository (github.com/mattn/go-sqlite3)
//   - Memory: in-process repository for tests and speculative sessions
//
// # Critical Patterns
//
// Identity: entity ids come from an AUTOINCREMENT column (or a monotonic
// counter in Memory) and are never reused, so a retired Real id can never
// alias a new entity.
//
// Not found: every read of a missing entity returns ErrNotFound. No method
// silently substitutes a default value for a missing real entity.
//
// Deterministic ordering: vectors are returned in ord order, class scans
// and referrer queries in id order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity and owner cascades
package store
