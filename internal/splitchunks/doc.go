// Package splitchunks extracts shared or oversized module sets into their
// own chunks according to cache groups.
//
// Every module is matched against every cache group. For each qualifying
// group and each distinct chunk set that is a subset of the module's chunk
// set, the module joins a candidate ModuleGroup. Candidates are then taken
// best-first:
//
//  1. cache-group priority, descending
//  2. number of chunks, descending
//  3. size reduction, descending
//  4. number of modules, descending
//  5. module ids, lexicographically
//  6. cache-group key
//
// The chosen candidate becomes a chunk (a reused one when allowed), its
// modules leave their source chunks, and overlapping candidates shrink.
// Candidates that fall below minSize are dropped, never reported as errors.
//
// Finally, chunks above a group's maxSize are cut into parts of at least
// minSize, walking modules in id order.
package splitchunks
