// Package modset provides the AvailableModules value: a module set backed by
// a growable bitset with one bit per module ordinal.
//
// Ordinals are assigned in sorted module id order by an Ordinals table, so
// two tables built from the same module ids are interchangeable. Set values
// are immutable once built; Union and Intersect return new sets, which makes
// them safe to share read-only across goroutines. Both operations are
// associative and commutative, so folding contributions in any order gives
// the same result.
package modset
