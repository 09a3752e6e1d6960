package graph

import (
	"maps"
	"slices"

	"github.com/roach88/chunkgraph/internal/ir"
)

type moduleRuntime struct {
	module  ir.ModuleID
	runtime string
}

// ChunkGraph is the authoritative index of chunks, groups and module
// membership.
type ChunkGraph struct {
	chunks map[ChunkUkey]*Chunk
	groups map[GroupUkey]*ChunkGroup

	nextChunk ChunkUkey
	nextGroup GroupUkey

	chunkModules map[ChunkUkey]map[ir.ModuleID]struct{}
	moduleChunks map[ir.ModuleID]map[ChunkUkey]struct{}
	entryModules map[ChunkUkey]map[ir.ModuleID]GroupUkey

	blockGroups map[ir.BlockID]GroupUkey
	namedGroups map[string]GroupUkey
	entrypoints map[string]GroupUkey
	namedChunks map[string]ChunkUkey

	moduleHashes map[moduleRuntime]string
}

// New creates an empty chunk graph.
func New() *ChunkGraph {
	return &ChunkGraph{
		chunks:       make(map[ChunkUkey]*Chunk),
		groups:       make(map[GroupUkey]*ChunkGroup),
		chunkModules: make(map[ChunkUkey]map[ir.ModuleID]struct{}),
		moduleChunks: make(map[ir.ModuleID]map[ChunkUkey]struct{}),
		entryModules: make(map[ChunkUkey]map[ir.ModuleID]GroupUkey),
		blockGroups:  make(map[ir.BlockID]GroupUkey),
		namedGroups:  make(map[string]GroupUkey),
		entrypoints:  make(map[string]GroupUkey),
		namedChunks:  make(map[string]ChunkUkey),
		moduleHashes: make(map[moduleRuntime]string),
	}
}

// NewChunk allocates a chunk. A non-empty name is registered for NamedChunk
// lookups unless another chunk already holds it.
func (g *ChunkGraph) NewChunk(name string, kind ChunkKind) *Chunk {
	g.nextChunk++
	c := &Chunk{
		Ukey:   g.nextChunk,
		Name:   name,
		Kind:   kind,
		groups: make(map[GroupUkey]struct{}),
	}
	g.chunks[c.Ukey] = c
	g.chunkModules[c.Ukey] = make(map[ir.ModuleID]struct{})
	if name != "" {
		if _, taken := g.namedChunks[name]; !taken {
			g.namedChunks[name] = c.Ukey
		}
	}
	return c
}

// NewGroup allocates a chunk group. Entrypoint groups are registered by
// name for Entrypoint lookups, normal named groups for NamedGroup lookups.
func (g *ChunkGraph) NewGroup(name string, kind GroupKind) *ChunkGroup {
	g.nextGroup++
	grp := &ChunkGroup{
		Ukey:     g.nextGroup,
		Name:     name,
		Kind:     kind,
		Initial:  kind == GroupEntrypoint,
		parents:  make(map[GroupUkey]struct{}),
		children: make(map[GroupUkey]struct{}),
	}
	g.groups[grp.Ukey] = grp
	if name != "" {
		switch kind {
		case GroupEntrypoint:
			g.entrypoints[name] = grp.Ukey
		case GroupNormal:
			g.namedGroups[name] = grp.Ukey
		}
	}
	return grp
}

// Chunk returns the chunk with the given key.
func (g *ChunkGraph) Chunk(u ChunkUkey) (*Chunk, bool) {
	c, ok := g.chunks[u]
	return c, ok
}

// Group returns the group with the given key.
func (g *ChunkGraph) Group(u GroupUkey) (*ChunkGroup, bool) {
	grp, ok := g.groups[u]
	return grp, ok
}

// MustChunk returns the chunk with the given key and panics if it does not
// exist. Use only with keys obtained from this graph.
func (g *ChunkGraph) MustChunk(u ChunkUkey) *Chunk {
	c, ok := g.chunks[u]
	if !ok {
		panic("graph: unknown chunk")
	}
	return c
}

// MustGroup is the group counterpart of MustChunk.
func (g *ChunkGraph) MustGroup(u GroupUkey) *ChunkGroup {
	grp, ok := g.groups[u]
	if !ok {
		panic("graph: unknown chunk group")
	}
	return grp
}

// ChunkKeys returns all chunk keys in ukey order.
func (g *ChunkGraph) ChunkKeys() []ChunkUkey {
	return slices.Sorted(maps.Keys(g.chunks))
}

// GroupKeys returns all group keys in ukey (creation) order.
func (g *ChunkGraph) GroupKeys() []GroupUkey {
	return slices.Sorted(maps.Keys(g.groups))
}

// Chunks returns all chunks in ukey order.
func (g *ChunkGraph) Chunks() []*Chunk {
	keys := g.ChunkKeys()
	out := make([]*Chunk, len(keys))
	for i, k := range keys {
		out[i] = g.chunks[k]
	}
	return out
}

// Groups returns all groups in ukey order.
func (g *ChunkGraph) Groups() []*ChunkGroup {
	keys := g.GroupKeys()
	out := make([]*ChunkGroup, len(keys))
	for i, k := range keys {
		out[i] = g.groups[k]
	}
	return out
}

// Entrypoint returns the entrypoint group with the given name.
func (g *ChunkGraph) Entrypoint(name string) (*ChunkGroup, bool) {
	u, ok := g.entrypoints[name]
	if !ok {
		return nil, false
	}
	return g.groups[u], true
}

// EntrypointNames returns configured entry names in sorted order.
func (g *ChunkGraph) EntrypointNames() []string {
	return slices.Sorted(maps.Keys(g.entrypoints))
}

// NamedGroup returns the normal group that owns a requested chunk name.
func (g *ChunkGraph) NamedGroup(name string) (*ChunkGroup, bool) {
	u, ok := g.namedGroups[name]
	if !ok {
		return nil, false
	}
	return g.groups[u], true
}

// NamedChunk returns the first chunk registered under name.
func (g *ChunkGraph) NamedChunk(name string) (*Chunk, bool) {
	u, ok := g.namedChunks[name]
	if !ok {
		return nil, false
	}
	return g.chunks[u], true
}

// ConnectChunkAndGroup appends c to grp's chunks. It is a no-op when c
// already belongs to grp. The first chunk connected becomes the main chunk.
func (g *ChunkGraph) ConnectChunkAndGroup(c ChunkUkey, grp GroupUkey) bool {
	chunk, cg := g.chunks[c], g.groups[grp]
	if chunk == nil || cg == nil || chunk.InGroup(grp) {
		return false
	}
	cg.chunks = append(cg.chunks, c)
	chunk.groups[grp] = struct{}{}
	if cg.mainChunk == 0 && chunk.Kind != KindRuntime {
		cg.mainChunk = c
	}
	return true
}

// InsertChunkBefore connects c to grp right before the chunk before, so c
// loads first. If before is not in grp, c is appended.
func (g *ChunkGraph) InsertChunkBefore(c ChunkUkey, grp GroupUkey, before ChunkUkey) bool {
	chunk, cg := g.chunks[c], g.groups[grp]
	if chunk == nil || cg == nil || chunk.InGroup(grp) {
		return false
	}
	idx := slices.Index(cg.chunks, before)
	if idx < 0 {
		idx = len(cg.chunks)
	}
	cg.chunks = slices.Insert(cg.chunks, idx, c)
	chunk.groups[grp] = struct{}{}
	return true
}

// SetRuntimeChunk connects c to grp as its runtime chunk, loaded first.
func (g *ChunkGraph) SetRuntimeChunk(grp GroupUkey, c ChunkUkey) {
	cg := g.groups[grp]
	chunk := g.chunks[c]
	if cg == nil || chunk == nil {
		return
	}
	if !chunk.InGroup(grp) {
		cg.chunks = slices.Insert(cg.chunks, 0, c)
		chunk.groups[grp] = struct{}{}
	}
	cg.runtimeChunk = c
}

// DisconnectChunkAndGroup removes c from grp.
func (g *ChunkGraph) DisconnectChunkAndGroup(c ChunkUkey, grp GroupUkey) bool {
	chunk, cg := g.chunks[c], g.groups[grp]
	if chunk == nil || cg == nil || !chunk.InGroup(grp) {
		return false
	}
	cg.chunks = slices.DeleteFunc(cg.chunks, func(u ChunkUkey) bool { return u == c })
	delete(chunk.groups, grp)
	if cg.mainChunk == c {
		cg.mainChunk = 0
	}
	if cg.runtimeChunk == c {
		cg.runtimeChunk = 0
	}
	return true
}

// ReplaceChunkInGroup puts with in the position of c inside grp. If with
// already belongs to grp, c is only removed.
func (g *ChunkGraph) ReplaceChunkInGroup(grp GroupUkey, c, with ChunkUkey) bool {
	cg, chunk, other := g.groups[grp], g.chunks[c], g.chunks[with]
	if cg == nil || chunk == nil || other == nil || !chunk.InGroup(grp) {
		return false
	}
	if other.InGroup(grp) {
		return g.DisconnectChunkAndGroup(c, grp)
	}
	idx := slices.Index(cg.chunks, c)
	cg.chunks[idx] = with
	delete(chunk.groups, grp)
	other.groups[grp] = struct{}{}
	if cg.mainChunk == c {
		cg.mainChunk = with
	}
	if cg.runtimeChunk == c {
		cg.runtimeChunk = with
	}
	return true
}

// ConnectGroups records a parent→child edge. Self edges are allowed; they
// come from a block that imports its own group.
func (g *ChunkGraph) ConnectGroups(parent, child GroupUkey) bool {
	p, c := g.groups[parent], g.groups[child]
	if p == nil || c == nil {
		return false
	}
	if _, ok := p.children[child]; ok {
		return false
	}
	p.children[child] = struct{}{}
	c.parents[parent] = struct{}{}
	return true
}

// DisconnectGroups removes a parent→child edge.
func (g *ChunkGraph) DisconnectGroups(parent, child GroupUkey) bool {
	p, c := g.groups[parent], g.groups[child]
	if p == nil || c == nil {
		return false
	}
	if _, ok := p.children[child]; !ok {
		return false
	}
	delete(p.children, child)
	delete(c.parents, parent)
	return true
}

// ConnectChunkAndModule adds m to c. Returns false if it was already there.
func (g *ChunkGraph) ConnectChunkAndModule(c ChunkUkey, m ir.ModuleID) bool {
	mods, ok := g.chunkModules[c]
	if !ok {
		return false
	}
	if _, present := mods[m]; present {
		return false
	}
	mods[m] = struct{}{}
	chunks := g.moduleChunks[m]
	if chunks == nil {
		chunks = make(map[ChunkUkey]struct{})
		g.moduleChunks[m] = chunks
	}
	chunks[c] = struct{}{}
	return true
}

// DisconnectChunkAndModule removes m from c, including its entry-module
// role. Returns false if m was not in c.
func (g *ChunkGraph) DisconnectChunkAndModule(c ChunkUkey, m ir.ModuleID) bool {
	mods, ok := g.chunkModules[c]
	if !ok {
		return false
	}
	if _, present := mods[m]; !present {
		return false
	}
	delete(mods, m)
	if chunks := g.moduleChunks[m]; chunks != nil {
		delete(chunks, c)
		if len(chunks) == 0 {
			delete(g.moduleChunks, m)
		}
	}
	if entries := g.entryModules[c]; entries != nil {
		delete(entries, m)
		if len(entries) == 0 {
			delete(g.entryModules, c)
		}
	}
	return true
}

// ConnectChunkAndEntryModule adds m to c as an entry module of grp.
func (g *ChunkGraph) ConnectChunkAndEntryModule(c ChunkUkey, m ir.ModuleID, grp GroupUkey) {
	if _, ok := g.chunkModules[c]; !ok {
		return
	}
	g.ConnectChunkAndModule(c, m)
	entries := g.entryModules[c]
	if entries == nil {
		entries = make(map[ir.ModuleID]GroupUkey)
		g.entryModules[c] = entries
	}
	if _, ok := entries[m]; !ok {
		entries[m] = grp
	}
}

// IsEntryModuleInChunk reports whether m is an entry module of c.
func (g *ChunkGraph) IsEntryModuleInChunk(m ir.ModuleID, c ChunkUkey) bool {
	_, ok := g.entryModules[c][m]
	return ok
}

// EntryModules returns c's entry modules in sorted order.
func (g *ChunkGraph) EntryModules(c ChunkUkey) []ir.ModuleID {
	return slices.Sorted(maps.Keys(g.entryModules[c]))
}

// HasEntryModules reports whether c holds any entry module.
func (g *ChunkGraph) HasEntryModules(c ChunkUkey) bool {
	return len(g.entryModules[c]) > 0
}

// IsModuleInChunk reports whether m belongs to c.
func (g *ChunkGraph) IsModuleInChunk(m ir.ModuleID, c ChunkUkey) bool {
	_, ok := g.chunkModules[c][m]
	return ok
}

// ChunkModules returns c's modules in sorted order.
func (g *ChunkGraph) ChunkModules(c ChunkUkey) []ir.ModuleID {
	return slices.Sorted(maps.Keys(g.chunkModules[c]))
}

// ChunkModuleCount returns the number of modules in c.
func (g *ChunkGraph) ChunkModuleCount(c ChunkUkey) int {
	return len(g.chunkModules[c])
}

// ModuleChunks returns the chunks containing m in ukey order.
func (g *ChunkGraph) ModuleChunks(m ir.ModuleID) []ChunkUkey {
	return slices.Sorted(maps.Keys(g.moduleChunks[m]))
}

// ModuleChunkCount returns the number of chunks containing m.
func (g *ChunkGraph) ModuleChunkCount(m ir.ModuleID) int {
	return len(g.moduleChunks[m])
}

// Modules returns every module with at least one chunk, sorted.
func (g *ChunkGraph) Modules() []ir.ModuleID {
	return slices.Sorted(maps.Keys(g.moduleChunks))
}

// GroupModules returns the union of the modules of grp's chunks, sorted.
func (g *ChunkGraph) GroupModules(grp GroupUkey) []ir.ModuleID {
	cg := g.groups[grp]
	if cg == nil {
		return nil
	}
	seen := make(map[ir.ModuleID]struct{})
	for _, c := range cg.chunks {
		for m := range g.chunkModules[c] {
			seen[m] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// GroupHasModule reports whether any chunk of grp contains m.
func (g *ChunkGraph) GroupHasModule(grp GroupUkey, m ir.ModuleID) bool {
	cg := g.groups[grp]
	if cg == nil {
		return false
	}
	for _, c := range cg.chunks {
		if g.IsModuleInChunk(m, c) {
			return true
		}
	}
	return false
}

// IsSubset reports whether every module of a is also in b.
func (g *ChunkGraph) IsSubset(a, b ChunkUkey) bool {
	am, bm := g.chunkModules[a], g.chunkModules[b]
	if len(am) > len(bm) {
		return false
	}
	for m := range am {
		if _, ok := bm[m]; !ok {
			return false
		}
	}
	return true
}

// IsStrictSubset reports whether a's modules are strictly contained in b's.
func (g *ChunkGraph) IsStrictSubset(a, b ChunkUkey) bool {
	return len(g.chunkModules[a]) < len(g.chunkModules[b]) && g.IsSubset(a, b)
}

// HasEqualModules reports whether a and b contain exactly the same modules.
// Checks the counts first and stops at the first difference.
func (g *ChunkGraph) HasEqualModules(a, b ChunkUkey) bool {
	return len(g.chunkModules[a]) == len(g.chunkModules[b]) && g.IsSubset(a, b)
}

// IsChunkInitial reports whether any of c's groups is initial.
func (g *ChunkGraph) IsChunkInitial(c ChunkUkey) bool {
	chunk := g.chunks[c]
	if chunk == nil {
		return false
	}
	for grp := range chunk.groups {
		if g.groups[grp].Initial {
			return true
		}
	}
	return false
}

// SetBlockGroup records that block b targets grp.
func (g *ChunkGraph) SetBlockGroup(b ir.BlockID, grp GroupUkey) {
	g.blockGroups[b] = grp
	if cg := g.groups[grp]; cg != nil && !slices.Contains(cg.Origins, b) {
		cg.Origins = append(cg.Origins, b)
	}
}

// BlockGroup returns the group targeted by block b.
func (g *ChunkGraph) BlockGroup(b ir.BlockID) (GroupUkey, bool) {
	grp, ok := g.blockGroups[b]
	return grp, ok
}

// BlockChunks returns the chunks loaded for block b, in load order.
func (g *ChunkGraph) BlockChunks(b ir.BlockID) []ChunkUkey {
	grp, ok := g.blockGroups[b]
	if !ok {
		return nil
	}
	return g.groups[grp].Chunks()
}

// Blocks returns every block with a target group, sorted.
func (g *ChunkGraph) Blocks() []ir.BlockID {
	return slices.Sorted(maps.Keys(g.blockGroups))
}

// EntryDependentChunks returns the chunks an entry chunk needs loaded before
// its entry modules run: the other non-runtime chunks of its entrypoints.
func (g *ChunkGraph) EntryDependentChunks(c ChunkUkey) []ChunkUkey {
	chunk := g.chunks[c]
	if chunk == nil || !g.HasEntryModules(c) {
		return nil
	}
	seen := make(map[ChunkUkey]struct{})
	for grp := range chunk.groups {
		cg := g.groups[grp]
		if !cg.Kind.IsEntrypoint() {
			continue
		}
		for _, other := range cg.chunks {
			if other != c && other != cg.runtimeChunk {
				seen[other] = struct{}{}
			}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// IsEntryDependent reports whether entry chunk a depends on chunk b.
func (g *ChunkGraph) IsEntryDependent(a, b ChunkUkey) bool {
	return slices.Contains(g.EntryDependentChunks(a), b)
}

// RemoveChunk detaches c from its modules and groups and forgets it.
func (g *ChunkGraph) RemoveChunk(c ChunkUkey) bool {
	chunk := g.chunks[c]
	if chunk == nil {
		return false
	}
	for _, m := range g.ChunkModules(c) {
		g.DisconnectChunkAndModule(c, m)
	}
	for _, grp := range chunk.Groups() {
		g.DisconnectChunkAndGroup(c, grp)
	}
	delete(g.entryModules, c)
	delete(g.chunkModules, c)
	delete(g.chunks, c)
	g.releaseName(c, chunk.Name)
	return true
}

// RenameChunk changes c's name and keeps the named-chunk index current.
func (g *ChunkGraph) RenameChunk(c ChunkUkey, name string) {
	chunk := g.chunks[c]
	if chunk == nil || chunk.Name == name {
		return
	}
	old := chunk.Name
	chunk.Name = name
	g.releaseName(c, old)
	if name != "" {
		if _, taken := g.namedChunks[name]; !taken {
			g.namedChunks[name] = c
		}
	}
}

// releaseName drops c from the named-chunk index under name. The oldest
// other chunk still carrying name takes its place.
func (g *ChunkGraph) releaseName(c ChunkUkey, name string) {
	if name == "" || g.namedChunks[name] != c {
		return
	}
	delete(g.namedChunks, name)
	var next ChunkUkey
	found := false
	for u, other := range g.chunks {
		if u != c && other.Name == name && (!found || u < next) {
			next, found = u, true
		}
	}
	if found {
		g.namedChunks[name] = next
	}
}

// SetModuleHash stores the hash of m as seen by runtime.
func (g *ChunkGraph) SetModuleHash(m ir.ModuleID, runtime, hash string) {
	g.moduleHashes[moduleRuntime{m, runtime}] = hash
}

// ModuleHash returns the hash of m as seen by runtime.
func (g *ChunkGraph) ModuleHash(m ir.ModuleID, runtime string) (string, bool) {
	h, ok := g.moduleHashes[moduleRuntime{m, runtime}]
	return h, ok
}

// GroupsRuntime returns the union of the runtimes of c's groups.
func (g *ChunkGraph) GroupsRuntime(c ChunkUkey) ir.RuntimeSpec {
	chunk := g.chunks[c]
	if chunk == nil {
		return nil
	}
	var rt ir.RuntimeSpec
	for _, grp := range chunk.Groups() {
		rt = rt.Union(g.groups[grp].Runtime)
	}
	return rt
}
