package modset

import (
	"slices"

	"github.com/bits-and-blooms/bitset"

	"github.com/roach88/chunkgraph/internal/ir"
)

// Ordinals assigns dense ordinals to module ids in sorted order.
type Ordinals struct {
	ids   []ir.ModuleID
	index map[ir.ModuleID]uint
}

// NewOrdinals builds a table over ids. The input is copied, sorted and
// deduplicated.
func NewOrdinals(ids []ir.ModuleID) *Ordinals {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	index := make(map[ir.ModuleID]uint, len(sorted))
	for i, id := range sorted {
		index[id] = uint(i)
	}
	return &Ordinals{ids: sorted, index: index}
}

// Of returns the ordinal of id.
func (o *Ordinals) Of(id ir.ModuleID) (uint, bool) {
	ord, ok := o.index[id]
	return ord, ok
}

// ID returns the module id with ordinal ord.
func (o *Ordinals) ID(ord uint) ir.ModuleID {
	return o.ids[ord]
}

// Len returns the number of ordinals.
func (o *Ordinals) Len() int {
	return len(o.ids)
}

// SetOf builds a set from module ids. Unknown ids are ignored.
func (o *Ordinals) SetOf(ids ...ir.ModuleID) Set {
	bits := bitset.New(uint(len(o.ids)))
	for _, id := range ids {
		if ord, ok := o.index[id]; ok {
			bits.Set(ord)
		}
	}
	return Set{bits: bits}
}

// Set is a set of module ordinals. The zero value is the empty set.
type Set struct {
	bits *bitset.BitSet
}

// Empty returns the empty set.
func Empty() Set {
	return Set{}
}

func (s Set) raw() *bitset.BitSet {
	if s.bits == nil {
		return bitset.New(0)
	}
	return s.bits
}

// Has reports whether ord is in the set.
func (s Set) Has(ord uint) bool {
	return s.bits != nil && s.bits.Test(ord)
}

// Union returns s ∪ o.
func (s Set) Union(o Set) Set {
	return Set{bits: s.raw().Union(o.raw())}
}

// Intersect returns s ∩ o.
func (s Set) Intersect(o Set) Set {
	return Set{bits: s.raw().Intersection(o.raw())}
}

// Equal reports whether both sets hold the same ordinals, regardless of
// their backing lengths.
func (s Set) Equal(o Set) bool {
	return s.raw().SymmetricDifferenceCardinality(o.raw()) == 0
}

// IsSubsetOf reports whether every ordinal of s is also in o.
func (s Set) IsSubsetOf(o Set) bool {
	return o.raw().IsSuperSet(s.raw())
}

// Count returns the number of ordinals in the set.
func (s Set) Count() int {
	if s.bits == nil {
		return 0
	}
	return int(s.bits.Count())
}

// Ordinals returns the members in ascending order.
func (s Set) Ordinals() []uint {
	if s.bits == nil {
		return nil
	}
	out := make([]uint, 0, s.bits.Count())
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		out = append(out, i)
	}
	return out
}

// IDs returns the member module ids in sorted order.
func (s Set) IDs(o *Ordinals) []ir.ModuleID {
	ords := s.Ordinals()
	out := make([]ir.ModuleID, len(ords))
	for i, ord := range ords {
		out[i] = o.ID(ord)
	}
	return out
}

// Builder accumulates ordinals into a new Set. A Builder must not be used
// after Build.
type Builder struct {
	bits *bitset.BitSet
}

// NewBuilder returns a builder sized for n ordinals.
func NewBuilder(n int) *Builder {
	return &Builder{bits: bitset.New(uint(n))}
}

// Add inserts ord.
func (b *Builder) Add(ord uint) {
	b.bits.Set(ord)
}

// AddSet inserts every ordinal of s.
func (b *Builder) AddSet(s Set) {
	if s.bits != nil {
		b.bits.InPlaceUnion(s.bits)
	}
}

// Build returns the accumulated set.
func (b *Builder) Build() Set {
	s := Set{bits: b.bits}
	b.bits = nil
	return s
}
