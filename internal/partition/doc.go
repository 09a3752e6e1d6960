// Package partition builds the initial chunk graph from a module graph.
//
// Entries are seeded first, each with an entrypoint group and an entry
// chunk. A single global FIFO queue then walks module dependencies. An
// AsyncBlock opens (or reuses) a target group and records a parent→child
// edge from every group that reaches it, so circular dynamic imports yield
// a cyclic group graph. A module reached from several groups is copied into
// each group's main chunk; later passes remove the duplication.
//
// Only modules reachable from an entry end up in the graph.
package partition
