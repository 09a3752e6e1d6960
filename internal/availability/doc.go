// Package availability computes, for every chunk group, the set of modules
// guaranteed to be loaded before the group starts executing.
//
// Each group is either not yet computed, pending or computed. Root
// entrypoints and async entrypoints start computed with the empty set. A
// group is computed once all its parents are: its value is the
// intersection of (available ∪ modules) over its parents, or the union for
// an entrypoint with depend-on parents.
//
// When only cyclic groups remain, the pending group with the smallest ukey
// is forced. Parents still uncomputed at that point contribute only their
// own modules. The forced value can be smaller than the ideal fixed point
// but never larger, so pruning against it stays safe.
package availability
