// Package graph implements the chunk graph: chunks, chunk groups and the
// bipartite module↔chunk index connecting them.
//
// The ChunkGraph is an arena: chunks and groups are owned by the graph and
// addressed by surrogate keys (ukeys) allocated from per-graph counters, so
// two graphs built by the same sequence of calls get the same keys. Group
// adjacency is stored as ukey sets on both ends and may contain cycles.
//
// Invariants:
//   - Every module→chunk association has the symmetric chunk→module entry
//   - Every chunk listed by a group lists that group back, and vice versa
//   - Mutations are idempotent: connecting twice equals connecting once
//   - All accessors return keys and ids in sorted order
//
// A ChunkGraph is not safe for concurrent mutation. Passes that work in
// parallel partition their work by chunk and use ModuleSet snapshots taken
// before the parallel phase (see the prune package).
package graph
