// Package prune removes modules from chunks when every path reaching the
// chunk has already loaded them.
//
// Each round analyzes availability, computes removals for all chunks in
// parallel from that read-only snapshot, applies them, and detaches
// group edges whose AsyncBlocks no longer have a retained owner. Rounds
// repeat until nothing changes, so a second Prune is a no-op.
//
// Chunks of root entrypoints and async entrypoints are never pruned:
// they provide modules rather than consume them. Entry modules are never
// removed from their chunk.
package prune
