// Package store provides SQLite-backed storage for chunk graph snapshots.
//
// It is the incremental cache of the engine: a build saves its
// engine.Snapshot, and a later build loads the newest one, checks it with
// Validate and, if usable, restores it to seed engine.Rebuild.
//
// # Tables
//
//   - snapshots: one row per saved snapshot, body stored as JSON
//   - snapshot_chunks: per-chunk summary rows, deleted with their snapshot
//
// # Ordering
//
//   - Snapshots are ordered by seq, a monotonic counter assigned on insert,
//     NEVER by timestamps
//   - Ids are UUIDv7 by default; tests inject a deterministic generator
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
