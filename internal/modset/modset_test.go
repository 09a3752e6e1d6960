package modset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chunkgraph/internal/ir"
)

func TestOrdinals_SortedAndDeduplicated(t *testing.T) {
	o := NewOrdinals([]ir.ModuleID{"c", "a", "b", "a"})

	require.Equal(t, 3, o.Len())
	ord, ok := o.Of("a")
	require.True(t, ok)
	assert.Equal(t, uint(0), ord)
	assert.Equal(t, ir.ModuleID("c"), o.ID(2))

	_, ok = o.Of("missing")
	assert.False(t, ok)
}

func TestSet_UnionIntersect(t *testing.T) {
	o := NewOrdinals([]ir.ModuleID{"a", "b", "c", "d"})
	ab := o.SetOf("a", "b")
	bc := o.SetOf("b", "c")

	assert.Equal(t, []ir.ModuleID{"a", "b", "c"}, ab.Union(bc).IDs(o))
	assert.Equal(t, []ir.ModuleID{"b"}, ab.Intersect(bc).IDs(o))

	// Operations return new sets.
	assert.Equal(t, 2, ab.Count())
	assert.Equal(t, 2, bc.Count())
}

func TestSet_AlgebraIsOrderIndependent(t *testing.T) {
	o := NewOrdinals([]ir.ModuleID{"a", "b", "c", "d", "e"})
	sets := []Set{o.SetOf("a", "b", "c"), o.SetOf("b", "c", "d"), o.SetOf("c", "b", "e")}

	left := sets[0].Intersect(sets[1]).Intersect(sets[2])
	right := sets[2].Intersect(sets[0].Intersect(sets[1]))
	assert.True(t, left.Equal(right))
	assert.Equal(t, []ir.ModuleID{"b", "c"}, left.IDs(o))

	u1 := sets[0].Union(sets[1]).Union(sets[2])
	u2 := sets[1].Union(sets[2]).Union(sets[0])
	assert.True(t, u1.Equal(u2))
}

func TestSet_ZeroValue(t *testing.T) {
	o := NewOrdinals([]ir.ModuleID{"a"})
	var zero Set

	assert.Equal(t, 0, zero.Count())
	assert.False(t, zero.Has(0))
	assert.Nil(t, zero.Ordinals())
	assert.True(t, zero.Equal(Empty()))
	assert.True(t, zero.Equal(o.SetOf()))
	assert.True(t, zero.IsSubsetOf(o.SetOf("a")))
	assert.False(t, o.SetOf("a").IsSubsetOf(zero))
	assert.Equal(t, []ir.ModuleID{"a"}, zero.Union(o.SetOf("a")).IDs(o))
	assert.Equal(t, 0, zero.Intersect(o.SetOf("a")).Count())
}

func TestBuilder(t *testing.T) {
	o := NewOrdinals([]ir.ModuleID{"a", "b", "c"})
	b := NewBuilder(o.Len())
	b.Add(2)
	b.AddSet(o.SetOf("a"))
	b.AddSet(Empty())

	s := b.Build()
	assert.Equal(t, []uint{0, 2}, s.Ordinals())
	assert.True(t, s.Has(2))
	assert.False(t, s.Has(1))
}
