package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chunkgraph/internal/ir"
)

// twoEntries builds: entrypoints A and B, each with one entry chunk, and a
// normal group L reachable from both.
func twoEntries(t *testing.T) (*ChunkGraph, map[string]GroupUkey, map[string]ChunkUkey) {
	t.Helper()
	g := New()
	groups := map[string]GroupUkey{}
	chunks := map[string]ChunkUkey{}
	for _, name := range []string{"A", "B"} {
		grp := g.NewGroup(name, GroupEntrypoint)
		c := g.NewChunk(name, KindEntry)
		require.True(t, g.ConnectChunkAndGroup(c.Ukey, grp.Ukey))
		groups[name], chunks[name] = grp.Ukey, c.Ukey
	}
	lazy := g.NewGroup("", GroupNormal)
	lc := g.NewChunk("", KindAsync)
	g.ConnectChunkAndGroup(lc.Ukey, lazy.Ukey)
	groups["L"], chunks["L"] = lazy.Ukey, lc.Ukey

	g.ConnectChunkAndEntryModule(chunks["A"], "a", groups["A"])
	g.ConnectChunkAndModule(chunks["A"], "shared")
	g.ConnectChunkAndEntryModule(chunks["B"], "b", groups["B"])
	g.ConnectChunkAndModule(chunks["B"], "shared")
	g.ConnectChunkAndModule(chunks["L"], "shared")
	g.ConnectChunkAndModule(chunks["L"], "lazy")
	g.ConnectGroups(groups["A"], groups["L"])
	g.ConnectGroups(groups["B"], groups["L"])
	g.SetBlockGroup("a#0", groups["L"])
	g.SetBlockGroup("b#0", groups["L"])
	return g, groups, chunks
}

func TestUkeysAreDeterministic(t *testing.T) {
	g1, _, c1 := twoEntries(t)
	g2, _, c2 := twoEntries(t)
	assert.Equal(t, c1, c2)
	assert.Equal(t, Render(g1), Render(g2))
	assert.Equal(t, ChunkUkey(1), c1["A"])
}

func TestConnectIsIdempotent(t *testing.T) {
	g, groups, chunks := twoEntries(t)
	before := Render(g)

	assert.False(t, g.ConnectChunkAndModule(chunks["A"], "shared"))
	assert.False(t, g.ConnectChunkAndGroup(chunks["A"], groups["A"]))
	assert.False(t, g.ConnectGroups(groups["A"], groups["L"]))
	g.ConnectChunkAndEntryModule(chunks["A"], "a", groups["A"])

	assert.Equal(t, string(before), string(Render(g)))
	require.NoError(t, g.CheckConsistency())
}

func TestModuleChunkIndexIsSymmetric(t *testing.T) {
	g, _, chunks := twoEntries(t)

	assert.Equal(t, []ChunkUkey{chunks["A"], chunks["B"], chunks["L"]}, g.ModuleChunks("shared"))
	assert.Equal(t, 3, g.ModuleChunkCount("shared"))
	assert.Equal(t, []ir.ModuleID{"lazy", "shared"}, g.ChunkModules(chunks["L"]))

	require.True(t, g.DisconnectChunkAndModule(chunks["L"], "shared"))
	assert.False(t, g.IsModuleInChunk("shared", chunks["L"]))
	assert.Equal(t, []ChunkUkey{chunks["A"], chunks["B"]}, g.ModuleChunks("shared"))
	assert.False(t, g.DisconnectChunkAndModule(chunks["L"], "shared"))
	require.NoError(t, g.CheckConsistency())
}

func TestDisconnectDropsEntryRole(t *testing.T) {
	g, _, chunks := twoEntries(t)
	require.True(t, g.IsEntryModuleInChunk("a", chunks["A"]))

	g.DisconnectChunkAndModule(chunks["A"], "a")
	assert.False(t, g.IsEntryModuleInChunk("a", chunks["A"]))
	assert.False(t, g.HasEntryModules(chunks["A"]))
}

func TestSubsetAndEquality(t *testing.T) {
	g := New()
	a := g.NewChunk("", KindAsync).Ukey
	b := g.NewChunk("", KindAsync).Ukey
	c := g.NewChunk("", KindAsync).Ukey
	for _, m := range []ir.ModuleID{"x", "y"} {
		g.ConnectChunkAndModule(a, m)
		g.ConnectChunkAndModule(b, m)
		g.ConnectChunkAndModule(c, m)
	}
	g.ConnectChunkAndModule(c, "z")

	assert.True(t, g.HasEqualModules(a, b))
	assert.False(t, g.HasEqualModules(a, c))
	assert.True(t, g.IsSubset(a, c))
	assert.True(t, g.IsStrictSubset(a, c))
	assert.False(t, g.IsStrictSubset(a, b))
	assert.False(t, g.IsSubset(c, a))
}

func TestGroupModulesAndInitial(t *testing.T) {
	g, groups, chunks := twoEntries(t)

	assert.Equal(t, []ir.ModuleID{"a", "shared"}, g.GroupModules(groups["A"]))
	assert.True(t, g.GroupHasModule(groups["L"], "lazy"))
	assert.False(t, g.GroupHasModule(groups["A"], "lazy"))
	assert.True(t, g.IsChunkInitial(chunks["A"]))
	assert.False(t, g.IsChunkInitial(chunks["L"]))
	assert.Equal(t, []GroupUkey{groups["A"], groups["B"]}, g.MustGroup(groups["L"]).Parents())
	assert.Equal(t, []ir.BlockID{"a#0", "b#0"}, g.MustGroup(groups["L"]).Origins)
}

func TestInsertAndReplaceChunkInGroup(t *testing.T) {
	g, groups, chunks := twoEntries(t)
	split := g.NewChunk("vendors", KindAsync).Ukey

	require.True(t, g.InsertChunkBefore(split, groups["A"], chunks["A"]))
	assert.Equal(t, []ChunkUkey{split, chunks["A"]}, g.MustGroup(groups["A"]).Chunks())
	assert.Equal(t, chunks["A"], g.MustGroup(groups["A"]).MainChunk())

	require.True(t, g.ReplaceChunkInGroup(groups["L"], chunks["L"], split))
	assert.Equal(t, []ChunkUkey{split}, g.MustGroup(groups["L"]).Chunks())
	assert.Equal(t, split, g.MustGroup(groups["L"]).MainChunk())
	assert.False(t, g.MustChunk(chunks["L"]).InGroup(groups["L"]))

	// Replacing with a chunk already in the group only removes.
	other := g.NewChunk("", KindAsync).Ukey
	g.ConnectChunkAndGroup(other, groups["B"])
	require.True(t, g.ReplaceChunkInGroup(groups["B"], other, chunks["B"]))
	assert.Equal(t, []ChunkUkey{chunks["B"]}, g.MustGroup(groups["B"]).Chunks())
	require.NoError(t, g.CheckConsistency())
}

func TestRuntimeChunkLoadsFirst(t *testing.T) {
	g, groups, chunks := twoEntries(t)
	rt := g.NewChunk("runtime", KindRuntime).Ukey

	g.SetRuntimeChunk(groups["A"], rt)
	g.SetRuntimeChunk(groups["B"], rt)

	assert.Equal(t, []ChunkUkey{rt, chunks["A"]}, g.MustGroup(groups["A"]).Chunks())
	assert.Equal(t, rt, g.MustGroup(groups["B"]).RuntimeChunk())
	assert.Equal(t, chunks["B"], g.MustGroup(groups["B"]).MainChunk())
	assert.Empty(t, g.EntryDependentChunks(chunks["A"]))
}

func TestRemoveChunk(t *testing.T) {
	g, groups, chunks := twoEntries(t)

	require.True(t, g.RemoveChunk(chunks["L"]))
	_, ok := g.Chunk(chunks["L"])
	assert.False(t, ok)
	assert.Empty(t, g.MustGroup(groups["L"]).Chunks())
	assert.Equal(t, []ChunkUkey{chunks["A"], chunks["B"]}, g.ModuleChunks("shared"))
	assert.Empty(t, g.ModuleChunks("lazy"))
	assert.False(t, g.RemoveChunk(chunks["L"]))
	require.NoError(t, g.CheckConsistency())
}

func TestNamedChunkIndex(t *testing.T) {
	g := New()
	first := g.NewChunk("vendors", KindAsync)
	second := g.NewChunk("vendors", KindAsync)

	got, ok := g.NamedChunk("vendors")
	require.True(t, ok)
	assert.Equal(t, first.Ukey, got.Ukey)

	g.RenameChunk(first.Ukey, "vendors-old")
	got, ok = g.NamedChunk("vendors")
	require.True(t, ok, "the remaining chunk named vendors takes over")
	assert.Equal(t, second.Ukey, got.Ukey)
	got, ok = g.NamedChunk("vendors-old")
	require.True(t, ok)
	assert.Equal(t, first.Ukey, got.Ukey)

	g.RenameChunk(second.Ukey, "other")
	_, ok = g.NamedChunk("vendors")
	assert.False(t, ok)
	got, ok = g.NamedChunk("other")
	require.True(t, ok)
	assert.Equal(t, second.Ukey, got.Ukey)
}

func TestNamedChunkIndex_RemoveHandsOver(t *testing.T) {
	g := New()
	first := g.NewChunk("lazy", KindAsync)
	second := g.NewChunk("lazy", KindAsync)
	third := g.NewChunk("lazy", KindAsync)

	// Removing a chunk the index does not point at changes nothing.
	require.True(t, g.RemoveChunk(second.Ukey))
	got, ok := g.NamedChunk("lazy")
	require.True(t, ok)
	assert.Equal(t, first.Ukey, got.Ukey)

	require.True(t, g.RemoveChunk(first.Ukey))
	got, ok = g.NamedChunk("lazy")
	require.True(t, ok)
	assert.Equal(t, third.Ukey, got.Ukey)

	require.True(t, g.RemoveChunk(third.Ukey))
	_, ok = g.NamedChunk("lazy")
	assert.False(t, ok)
	require.NoError(t, g.CheckConsistency())
}

func TestEntryDependentChunks(t *testing.T) {
	g, groups, chunks := twoEntries(t)
	split := g.NewChunk("", KindAsync).Ukey
	g.InsertChunkBefore(split, groups["A"], chunks["A"])

	assert.Equal(t, []ChunkUkey{split}, g.EntryDependentChunks(chunks["A"]))
	assert.True(t, g.IsEntryDependent(chunks["A"], split))
	assert.False(t, g.IsEntryDependent(chunks["B"], split))
	assert.Nil(t, g.EntryDependentChunks(split))
}

func TestDependentEntryKinds(t *testing.T) {
	g := New()
	shared := g.NewGroup("shared", GroupEntrypoint)
	app := g.NewGroup("app", GroupEntrypoint)
	g.ConnectGroups(shared.Ukey, app.Ukey)

	assert.True(t, shared.IsRootEntry())
	assert.True(t, app.IsDependentEntry())
	assert.False(t, app.IsRootEntry())
	assert.Equal(t, []string{"app", "shared"}, g.EntrypointNames())
}

func TestCheckConsistencyDetectsBrokenIndex(t *testing.T) {
	g, _, chunks := twoEntries(t)
	delete(g.moduleChunks["shared"], chunks["A"])

	err := g.CheckConsistency()
	var inc *InconsistencyError
	require.ErrorAs(t, err, &inc)
	assert.Contains(t, inc.Message, "shared")
}

func TestSnapshotRoundTrip(t *testing.T) {
	g, groups, chunks := twoEntries(t)
	rt := g.NewChunk("runtime", KindRuntime).Ukey
	g.SetRuntimeChunk(groups["A"], rt)
	g.MustGroup(groups["A"]).Runtime = ir.NewRuntimeSpec("A")
	g.MustChunk(chunks["A"]).Runtime = ir.NewRuntimeSpec("A")
	g.SetModuleHash("a", "A", "deadbeef")

	restored, err := Import(g.Export())
	require.NoError(t, err)
	assert.Equal(t, string(Render(g)), string(Render(restored)))
	assert.Equal(t, g.Export(), restored.Export())

	h, ok := restored.ModuleHash("a", "A")
	require.True(t, ok)
	assert.Equal(t, "deadbeef", h)

	// New allocations continue from the restored counters.
	assert.Equal(t, g.NewChunk("", KindAsync).Ukey, restored.NewChunk("", KindAsync).Ukey)
}

func TestCloneIsIndependent(t *testing.T) {
	g, _, chunks := twoEntries(t)
	c := g.Clone()

	c.DisconnectChunkAndModule(chunks["L"], "lazy")
	assert.True(t, g.IsModuleInChunk("lazy", chunks["L"]))
	assert.False(t, c.IsModuleInChunk("lazy", chunks["L"]))
}

func TestImportRejectsUnknownChunk(t *testing.T) {
	g, _, _ := twoEntries(t)
	s := g.Export()
	s.Groups[0].Chunks = append(s.Groups[0].Chunks, 99)

	_, err := Import(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown chunk 99")
}

func TestRender(t *testing.T) {
	g := New()
	grp := g.NewGroup("main", GroupEntrypoint)
	c := g.NewChunk("main", KindEntry)
	g.ConnectChunkAndGroup(c.Ukey, grp.Ukey)
	g.ConnectChunkAndEntryModule(c.Ukey, "index", grp.Ukey)
	g.ConnectChunkAndModule(c.Ukey, "util")

	want := "group 1 entrypoint name=main initial=true runtime=- parents=[] chunks=[1]\n" +
		"chunk 1 entry name=main runtime=- groups=[1] modules=[index,util] entry=[index]\n"
	assert.Equal(t, want, string(Render(g)))
}
