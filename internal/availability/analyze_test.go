package availability

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
	"github.com/roach88/chunkgraph/internal/partition"
	"github.com/roach88/chunkgraph/internal/testutil"
	"github.com/roach88/chunkgraph/internal/workpool"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func partitioned(t *testing.T, mg *ir.ModuleGraph) *graph.ChunkGraph {
	t.Helper()
	res, err := partition.Partition(mg, partition.Options{Logger: discard})
	require.NoError(t, err)
	return res.Graph
}

func analyze(t *testing.T, cg *graph.ChunkGraph, opts Options) *Result {
	t.Helper()
	opts.Logger = discard
	res, err := Analyze(context.Background(), cg, opts)
	require.NoError(t, err)
	return res
}

func TestAnalyze_NestedBlocks(t *testing.T) {
	cg := partitioned(t, testutil.NestedABC())
	res := analyze(t, cg, Options{})

	e, _ := cg.Entrypoint("E")
	outer, _ := cg.BlockGroup("A#0")
	nested, _ := cg.BlockGroup("B#0")

	assert.Empty(t, res.AvailableIDs(e.Ukey))
	assert.Equal(t, []ir.ModuleID{"A"}, res.AvailableIDs(outer))
	// C is loaded by the nested group's only parent.
	assert.Equal(t, []ir.ModuleID{"A", "B", "C"}, res.AvailableIDs(nested))
	assert.True(t, res.IsAvailable(nested, "C"))
	assert.False(t, res.IsAvailable(outer, "C"))
	assert.Empty(t, res.Forced)
}

func TestAnalyze_IntersectsOverParents(t *testing.T) {
	mg := testutil.NewGraph().
		Entry("a", "a", "x").
		Entry("b", "b", "x", "y").
		Module("a", 10, "lib").
		Module("b", 10, "lib").
		Module("x", 10).
		Module("y", 10).
		Module("lib", 10).
		Module("lazy", 10).
		Lazy("lib", "lib#0", "", "lazy").
		Build()
	cg := partitioned(t, mg)
	res := analyze(t, cg, Options{})

	lazy, _ := cg.BlockGroup("lib#0")
	assert.Equal(t, []ir.ModuleID{"lib", "x"}, res.AvailableIDs(lazy))
}

func TestAnalyze_DependentEntryUnionsParents(t *testing.T) {
	mg := testutil.NewGraph().
		Entry("x", "p").
		Entry("y", "q").
		EntryWith(ir.Entry{Name: "app", Dependencies: []ir.ModuleID{"app"}, DependOn: []string{"x", "y"}}).
		Module("p", 10).
		Module("q", 10).
		Module("app", 10, "p", "q").
		Build()
	cg := partitioned(t, mg)
	res := analyze(t, cg, Options{})

	app, _ := cg.Entrypoint("app")
	assert.Equal(t, []ir.ModuleID{"p", "q"}, res.AvailableIDs(app.Ukey))
}

func TestAnalyze_AsyncEntrypointStartsEmpty(t *testing.T) {
	mg := testutil.NewGraph().
		Entry("main", "a").
		Module("a", 10, "lib").
		Module("lib", 10).
		Module("w", 10, "lib").
		LazyWith("a", ir.AsyncBlock{ID: "a#w", Dependencies: []ir.ModuleID{"w"}, Entry: &ir.EntryOptions{Name: "worker"}}).
		Build()
	cg := partitioned(t, mg)
	res := analyze(t, cg, Options{})

	w, _ := cg.BlockGroup("a#w")
	require.True(t, cg.MustGroup(w).HasParent(1))
	assert.Empty(t, res.AvailableIDs(w))
}

// The forced value for a cycle is the documented under-approximation: the
// group gets only the modules of parents already computed plus the own
// modules of the rest.
func TestAnalyze_CycleIsForcedInUkeyOrder(t *testing.T) {
	mg := testutil.NewGraph().
		Entry("main", "a").
		Module("a", 10).
		Module("b", 10).
		Lazy("a", "a#0", "", "b").
		Lazy("b", "b#0", "", "a").
		Build()
	cg := partitioned(t, mg)
	res := analyze(t, cg, Options{})

	ga, _ := cg.BlockGroup("a#0")
	gb, _ := cg.BlockGroup("b#0")
	require.Less(t, ga, gb)
	assert.Equal(t, []graph.GroupUkey{ga}, res.Forced)
	assert.Equal(t, []ir.ModuleID{"a"}, res.AvailableIDs(ga))
	assert.Equal(t, []ir.ModuleID{"a", "b"}, res.AvailableIDs(gb))
}

func TestAnalyze_SelfEdgeDoesNotStall(t *testing.T) {
	mg := testutil.NewGraph().
		Entry("main", "a").
		Module("a", 10).
		Module("b", 10).
		Lazy("a", "a#0", "", "b").
		Lazy("b", "b#self", "", "b").
		Build()
	cg := partitioned(t, mg)

	gb, _ := cg.BlockGroup("a#0")
	self, _ := cg.BlockGroup("b#self")
	require.NotEqual(t, gb, self)

	res := analyze(t, cg, Options{})
	assert.Empty(t, res.Forced)
	assert.Equal(t, []ir.ModuleID{"a", "b"}, res.AvailableIDs(self))
}

func TestAnalyze_ParallelMatchesSequential(t *testing.T) {
	mg := testutil.RandomGraph(3, testutil.RandomOptions{Modules: 60, Entries: 3, MaxDeps: 3, BlockPercent: 40, AllowCycles: true})
	cg := partitioned(t, mg)

	seq := analyze(t, cg, Options{})
	par := analyze(t, cg, Options{Pool: workpool.Pool{Workers: 8, Seed: 99}})
	for _, u := range cg.GroupKeys() {
		assert.Equal(t, seq.AvailableIDs(u), par.AvailableIDs(u), "group %d", u)
	}
	assert.Equal(t, seq.Forced, par.Forced)
}

func TestAnalyze_CacheReusesAcyclicGroups(t *testing.T) {
	cg := partitioned(t, testutil.NestedABC())
	cache := NewCache()

	first := analyze(t, cg, Options{Cache: cache})
	assert.Zero(t, first.CacheHits)
	assert.Equal(t, 2, cache.Len())

	second := analyze(t, cg, Options{Cache: cache})
	assert.Equal(t, 2, second.CacheHits)
	for _, u := range cg.GroupKeys() {
		assert.Equal(t, first.AvailableIDs(u), second.AvailableIDs(u))
	}

	outer, _ := cg.BlockGroup("A#0")
	nested, _ := cg.BlockGroup("B#0")
	dirty := analyze(t, cg, Options{Cache: cache, Dirty: map[graph.GroupUkey]bool{outer: true, nested: true}})
	assert.Zero(t, dirty.CacheHits)
	assert.Equal(t, first.AvailableIDs(nested), dirty.AvailableIDs(nested))
}

func TestAnalyze_CycleGroupsAreNotCached(t *testing.T) {
	mg := testutil.NewGraph().
		Entry("main", "a").
		Module("a", 10).
		Module("b", 10).
		Module("c", 10).
		Lazy("a", "a#0", "", "b").
		Lazy("b", "b#0", "", "a", "c").
		Build()
	cg := partitioned(t, mg)
	cache := NewCache()

	analyze(t, cg, Options{Cache: cache})
	assert.Zero(t, cache.Len())

	cyclic := Cyclic(cg)
	ga, _ := cg.BlockGroup("a#0")
	gb, _ := cg.BlockGroup("b#0")
	assert.True(t, cyclic[ga])
	assert.True(t, cyclic[gb])
	assert.False(t, cyclic[1])
}

func TestCache_GenerationalEviction(t *testing.T) {
	c := NewCache()
	c.Put("keep", []ir.ModuleID{"a"})
	c.Put("drop", []ir.ModuleID{"b"})

	assert.Zero(t, c.Advance())
	_, ok := c.Get("keep")
	require.True(t, ok)

	assert.Equal(t, 1, c.Advance())
	_, ok = c.Get("drop")
	assert.False(t, ok)
	assert.Equal(t, []CacheEntry{{Signature: "keep", Modules: []ir.ModuleID{"a"}}}, c.Entries())

	restored := RestoreCache(c.Entries())
	ids, ok := restored.Get("keep")
	require.True(t, ok)
	assert.Equal(t, []ir.ModuleID{"a"}, ids)
}
