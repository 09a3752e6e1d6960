// Package engine drives the chunk graph pipeline.
//
// ARCHITECTURE:
//
// Build runs every pass over a fresh chunk graph:
//  1. partition the module graph into entry and async chunk groups
//  2. prune modules already available from every parent, to a fixed point
//  3. drop async chunks left without modules
//  4. merge chunks holding identical modules under compatible runtimes
//  5. extract shared modules into cache-group chunks
//  6. hash every module per runtime
//
// Parallel phases run on a bounded fork-join pool. Each task writes only its
// own slot and results are combined in index order, so the output does not
// depend on the worker count or on WithScheduleSeed.
//
// Incremental Re-entry:
// Rebuild takes the previous Result and a Delta. Partitioning is redone
// (it is linear), then availability reuses the previous signature cache for
// every group outside the dirty set. The result equals Build on the new
// module graph; engine tests check this differentially.
//
// Errors:
// Configuration conflicts are returned as *ConfigError. Invariant violations
// are *InvariantError when WithStrictInvariants is on and are logged at
// Warn otherwise.
package engine
