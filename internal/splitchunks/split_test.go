package splitchunks

import (
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
	"github.com/roach88/chunkgraph/internal/partition"
	"github.com/roach88/chunkgraph/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func js(n int64) ir.Sizes { return ir.Sizes{ir.SourceJavaScript: n} }

func partitioned(t *testing.T, mg *ir.ModuleGraph) *graph.ChunkGraph {
	t.Helper()
	res, err := partition.Partition(mg, partition.Options{Logger: discard})
	require.NoError(t, err)
	return res.Graph
}

func split(t *testing.T, cg *graph.ChunkGraph, mg *ir.ModuleGraph, groups ...CacheGroup) *Result {
	t.Helper()
	res, err := Split(cg, mg, Options{CacheGroups: groups, Logger: discard})
	require.NoError(t, err)
	require.NoError(t, cg.CheckConsistency())
	return res
}

// sharedGraph loads x+shared lazily from a and y+shared lazily from b.
func sharedGraph() *ir.ModuleGraph {
	return testutil.NewGraph().
		Entry("main", "a", "b").
		Module("a", 10).
		Module("b", 10).
		Module("x", 10).
		Module("y", 10).
		Module("shared", 100).
		Lazy("a", "a#0", "", "x", "shared").
		Lazy("b", "b#0", "", "y", "shared").
		Build()
}

func lazyChunk(t *testing.T, cg *graph.ChunkGraph, block ir.BlockID) (graph.GroupUkey, graph.ChunkUkey) {
	t.Helper()
	g, ok := cg.BlockGroup(block)
	require.True(t, ok)
	return g, cg.MustGroup(g).MainChunk()
}

func common() CacheGroup {
	return CacheGroup{Key: "common", MinChunks: 2, MinSize: js(50)}
}

func TestSplit_ExtractsSharedModule(t *testing.T) {
	mg := sharedGraph()
	cg := partitioned(t, mg)
	ga, ca := lazyChunk(t, cg, "a#0")
	gb, cb := lazyChunk(t, cg, "b#0")

	res := split(t, cg, mg, common())
	require.Len(t, res.Created, 1)
	c := cg.MustChunk(res.Created[0])

	assert.Equal(t, "common-"+ir.ShortHash([]ir.ModuleID{"shared"}), c.Name)
	assert.Equal(t, graph.KindAsync, c.Kind)
	assert.Equal(t, []ir.ModuleID{"shared"}, cg.ChunkModules(c.Ukey))
	assert.Equal(t, []ir.ModuleID{"x"}, cg.ChunkModules(ca))
	assert.Equal(t, []ir.ModuleID{"y"}, cg.ChunkModules(cb))
	assert.Equal(t, []graph.GroupUkey{ga, gb}, c.Groups())
	assert.Equal(t, []graph.ChunkUkey{c.Ukey, ca}, cg.MustGroup(ga).Chunks())
	assert.Equal(t, ca, cg.MustGroup(ga).MainChunk())
}

func TestSplit_Thresholds(t *testing.T) {
	t.Run("below minSize", func(t *testing.T) {
		mg := sharedGraph()
		cg := partitioned(t, mg)
		before := string(graph.Render(cg))
		g := common()
		g.MinSize = js(200)

		res := split(t, cg, mg, g)
		assert.Empty(t, res.Created)
		assert.Equal(t, 1, res.Skipped)
		assert.Equal(t, before, string(graph.Render(cg)))
	})

	t.Run("minSize on an absent type", func(t *testing.T) {
		mg := sharedGraph()
		cg := partitioned(t, mg)
		g := common()
		g.MinSize = ir.Sizes{ir.SourceJavaScript: 50, ir.SourceCSS: 1}

		res := split(t, cg, mg, g)
		assert.Empty(t, res.Created)
	})

	t.Run("below minChunks", func(t *testing.T) {
		mg := sharedGraph()
		cg := partitioned(t, mg)
		g := common()
		g.MinChunks = 3

		res := split(t, cg, mg, g)
		assert.Empty(t, res.Created)
	})

	t.Run("initial chunks filtered out", func(t *testing.T) {
		mg := sharedGraph()
		cg := partitioned(t, mg)
		g := common()
		g.Chunks = ChunksInitial

		res := split(t, cg, mg, g)
		assert.Empty(t, res.Created)
	})
}

func TestSplit_ReusesExistingChunk(t *testing.T) {
	mg := testutil.NewGraph().
		Entry("main", "a", "b").
		Module("a", 10).
		Module("b", 10).
		Module("y", 10).
		Module("shared", 100).
		Lazy("a", "a#0", "", "shared").
		Lazy("b", "b#0", "", "y", "shared").
		Build()
	cg := partitioned(t, mg)
	ga, ca := lazyChunk(t, cg, "a#0")
	gb, cb := lazyChunk(t, cg, "b#0")
	g := common()
	g.ReuseExistingChunk = true

	res := split(t, cg, mg, g)
	assert.Empty(t, res.Created)
	assert.Equal(t, 1, res.Reused)
	assert.Equal(t, []ir.ModuleID{"shared"}, cg.ChunkModules(ca))
	assert.Equal(t, []ir.ModuleID{"y"}, cg.ChunkModules(cb))
	assert.Equal(t, []graph.GroupUkey{ga, gb}, cg.MustChunk(ca).Groups())
	assert.Equal(t, []graph.ChunkUkey{ca, cb}, cg.MustGroup(gb).Chunks())
}

func TestSplit_PriorityWins(t *testing.T) {
	mg := sharedGraph()
	cg := partitioned(t, mg)
	low := common()
	low.Key = "low"
	high := common()
	high.Key = "high"
	high.Priority = 10

	res := split(t, cg, mg, low, high)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "high-"+ir.ShortHash([]ir.ModuleID{"shared"}), cg.MustChunk(res.Created[0]).Name)
}

func vendorGraph() *ir.ModuleGraph {
	return testutil.NewGraph().
		Entry("main", "a", "b", "c").
		Module("a", 10).
		Module("b", 10).
		Module("c", 10).
		Module("x", 10).
		Module("y", 10).
		Module("z", 10).
		Module("node_modules/react", 100).
		Module("node_modules/lodash", 100).
		Lazy("a", "a#0", "", "x", "node_modules/react").
		Lazy("b", "b#0", "", "y", "node_modules/react", "node_modules/lodash").
		Lazy("c", "c#0", "", "z", "node_modules/lodash").
		Build()
}

func TestSplit_NamedGroupCollectsIntoOneChunk(t *testing.T) {
	mg := vendorGraph()
	cg := partitioned(t, mg)
	ga, ca := lazyChunk(t, cg, "a#0")
	gb, _ := lazyChunk(t, cg, "b#0")
	gc, _ := lazyChunk(t, cg, "c#0")

	res := split(t, cg, mg, CacheGroup{
		Key:       "vendor",
		Test:      regexp.MustCompile(`^node_modules/`),
		MinChunks: 2,
		Name:      "vendors",
	})
	require.Len(t, res.Created, 1)
	v, ok := cg.NamedChunk("vendors")
	require.True(t, ok)
	assert.Equal(t, []ir.ModuleID{"node_modules/lodash", "node_modules/react"}, cg.ChunkModules(v.Ukey))
	assert.Equal(t, []graph.GroupUkey{ga, gb, gc}, v.Groups())
	assert.Equal(t, []ir.ModuleID{"x"}, cg.ChunkModules(ca))
}

func TestSplit_NameConflict(t *testing.T) {
	mg := sharedGraph()
	cg := partitioned(t, mg)
	g := common()
	g.Name = "main"

	_, err := Split(cg, mg, Options{CacheGroups: []CacheGroup{g}, Logger: discard})
	assert.ErrorIs(t, err, ErrNameConflict)
}

func TestSplit_MaxSizeParts(t *testing.T) {
	mg := testutil.NewGraph().
		Entry("main", "a", "b").
		Module("a", 10).
		Module("b", 10).
		Module("s1", 100).
		Module("s2", 100).
		Module("s3", 100).
		Module("s4", 100).
		Lazy("a", "a#0", "", "s1", "s2", "s3", "s4").
		Lazy("b", "b#0", "", "s1", "s2", "s3", "s4").
		Build()
	cg := partitioned(t, mg)
	ga, ca := lazyChunk(t, cg, "a#0")
	g := CacheGroup{Key: "common", MinChunks: 2, MinSize: js(100), MaxSize: js(250)}

	res := split(t, cg, mg, g)
	require.Len(t, res.Created, 2)
	assert.Equal(t, 1, res.Parts)
	first, part := res.Created[0], res.Created[1]
	assert.Equal(t, []ir.ModuleID{"s1", "s2"}, cg.ChunkModules(first))
	assert.Equal(t, []ir.ModuleID{"s3", "s4"}, cg.ChunkModules(part))
	assert.Equal(t, cg.MustChunk(first).Name+"-"+ir.ShortHash([]ir.ModuleID{"s3", "s4"}), cg.MustChunk(part).Name)
	assert.Equal(t, []graph.ChunkUkey{part, first, ca}, cg.MustGroup(ga).Chunks())
	assert.Empty(t, cg.ChunkModules(ca))
}

func TestSplit_TrailingPartJoinsPrevious(t *testing.T) {
	s := &splitter{mg: testutil.NewGraph().
		Module("a", 100).
		Module("b", 120).
		Module("c", 40).
		Build()}
	grp := &CacheGroup{Key: "k", MinSize: js(100), MaxSize: js(150)}

	parts := s.parts(grp, []ir.ModuleID{"a", "b", "c"})
	assert.Equal(t, [][]ir.ModuleID{{"a"}, {"b", "c"}}, parts)
}

func TestSplit_Deterministic(t *testing.T) {
	groups := []CacheGroup{
		{Key: "shared", Chunks: ChunksAll, MinChunks: 2, MinSize: js(20)},
		{Key: "big", Chunks: ChunksAll, MinChunks: 3, MinSize: js(10), MaxSize: js(60), Priority: 5},
	}
	for seed := int64(1); seed <= 10; seed++ {
		mg := testutil.RandomGraph(seed, testutil.RandomOptions{Modules: 40, Entries: 3, MaxDeps: 3, BlockPercent: 40, AllowCycles: true})

		first := partitioned(t, mg)
		res := split(t, first, mg, groups...)
		second := partitioned(t, mg)
		split(t, second, mg, groups...)
		assert.Equal(t, string(graph.Render(first)), string(graph.Render(second)), "seed %d", seed)

		for _, u := range res.Created {
			total := ir.Sizes{}
			for _, m := range first.ChunkModules(u) {
				mod, _ := mg.Module(m)
				total = total.Plus(mod.Sizes)
			}
			assert.GreaterOrEqual(t, total[ir.SourceJavaScript], int64(10), "seed %d chunk %d", seed, u)
		}
	}
}

func TestSplit_MissingModule(t *testing.T) {
	cg := partitioned(t, sharedGraph())
	empty := &ir.ModuleGraph{}

	res, err := Split(cg, empty, Options{CacheGroups: []CacheGroup{common()}, Logger: discard})
	require.NoError(t, err)
	assert.Empty(t, res.Created)

	_, err = Split(cg, empty, Options{CacheGroups: []CacheGroup{common()}, Logger: discard, Strict: true})
	assert.ErrorIs(t, err, ErrMissingModule)
}

func TestCacheGroup_Validate(t *testing.T) {
	tests := []struct {
		name  string
		group CacheGroup
		ok    bool
	}{
		{"valid", CacheGroup{Key: "k", MinSize: js(1), MaxSize: js(10)}, true},
		{"empty key", CacheGroup{}, false},
		{"negative minChunks", CacheGroup{Key: "k", MinChunks: -1}, false},
		{"negative minSize", CacheGroup{Key: "k", MinSize: js(-1)}, false},
		{"zero maxSize", CacheGroup{Key: "k", MaxSize: js(0)}, false},
		{"max below min", CacheGroup{Key: "k", MinSize: js(10), MaxSize: js(5)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.group.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidCacheGroup)
			}
		})
	}

	_, err := Split(graph.New(), &ir.ModuleGraph{}, Options{CacheGroups: []CacheGroup{{Key: "k"}, {Key: "k"}}})
	assert.ErrorIs(t, err, ErrInvalidCacheGroup)
}

func TestParseChunkType(t *testing.T) {
	for in, want := range map[string]ChunkType{"": ChunksAsync, "async": ChunksAsync, "initial": ChunksInitial, "all": ChunksAll} {
		got, err := ParseChunkType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if in != "" {
			assert.Equal(t, in, got.String())
		}
	}
	_, err := ParseChunkType("sync")
	assert.Error(t, err)
}
