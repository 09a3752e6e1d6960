package graph

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/chunkgraph/internal/ir"
)

// Snapshot is a plain, serializable copy of a ChunkGraph.
// All slices are in ukey or sorted id order, so equal graphs produce equal
// snapshots.
type Snapshot struct {
	NextChunk    ChunkUkey          `json:"next_chunk"`
	NextGroup    GroupUkey          `json:"next_group"`
	Chunks       []ChunkRecord      `json:"chunks"`
	Groups       []GroupRecord      `json:"groups"`
	Blocks       []BlockRecord      `json:"blocks,omitempty"`
	NamedChunks  []NamedChunkRecord `json:"named_chunks,omitempty"`
	ModuleHashes []ModuleHashRecord `json:"module_hashes,omitempty"`
}

// ChunkRecord is the snapshot form of a chunk and its modules.
type ChunkRecord struct {
	Ukey         ChunkUkey           `json:"ukey"`
	Name         string              `json:"name,omitempty"`
	Kind         ChunkKind           `json:"kind"`
	ID           *string             `json:"id,omitempty"`
	Runtime      []string            `json:"runtime,omitempty"`
	Modules      []ir.ModuleID       `json:"modules,omitempty"`
	EntryModules []EntryModuleRecord `json:"entry_modules,omitempty"`
}

// EntryModuleRecord ties an entry module to its entrypoint group.
type EntryModuleRecord struct {
	Module ir.ModuleID `json:"module"`
	Group  GroupUkey   `json:"group"`
}

// GroupRecord is the snapshot form of a chunk group.
type GroupRecord struct {
	Ukey         GroupUkey    `json:"ukey"`
	Name         string       `json:"name,omitempty"`
	Kind         GroupKind    `json:"kind"`
	Initial      bool         `json:"initial"`
	Runtime      []string     `json:"runtime,omitempty"`
	Origins      []ir.BlockID `json:"origins,omitempty"`
	Chunks       []ChunkUkey  `json:"chunks"`
	Parents      []GroupUkey  `json:"parents,omitempty"`
	MainChunk    ChunkUkey    `json:"main_chunk,omitempty"`
	RuntimeChunk ChunkUkey    `json:"runtime_chunk,omitempty"`
}

// BlockRecord ties an AsyncBlock to its target group.
type BlockRecord struct {
	Block ir.BlockID `json:"block"`
	Group GroupUkey  `json:"group"`
}

// NamedChunkRecord preserves the named-chunk index.
type NamedChunkRecord struct {
	Name  string    `json:"name"`
	Chunk ChunkUkey `json:"chunk"`
}

// ModuleHashRecord is one (module, runtime) hash.
type ModuleHashRecord struct {
	Module  ir.ModuleID `json:"module"`
	Runtime string      `json:"runtime"`
	Hash    string      `json:"hash"`
}

// Export copies the graph into a Snapshot.
func (g *ChunkGraph) Export() Snapshot {
	s := Snapshot{NextChunk: g.nextChunk, NextGroup: g.nextGroup}
	for _, c := range g.Chunks() {
		rec := ChunkRecord{
			Ukey:    c.Ukey,
			Name:    c.Name,
			Kind:    c.Kind,
			Runtime: runtimeList(c.Runtime),
			Modules: g.ChunkModules(c.Ukey),
		}
		if c.ID != nil {
			id := *c.ID
			rec.ID = &id
		}
		for _, m := range g.EntryModules(c.Ukey) {
			rec.EntryModules = append(rec.EntryModules, EntryModuleRecord{Module: m, Group: g.entryModules[c.Ukey][m]})
		}
		s.Chunks = append(s.Chunks, rec)
	}
	for _, cg := range g.Groups() {
		s.Groups = append(s.Groups, GroupRecord{
			Ukey:         cg.Ukey,
			Name:         cg.Name,
			Kind:         cg.Kind,
			Initial:      cg.Initial,
			Runtime:      runtimeList(cg.Runtime),
			Origins:      slices.Clone(cg.Origins),
			Chunks:       cg.Chunks(),
			Parents:      cg.Parents(),
			MainChunk:    cg.mainChunk,
			RuntimeChunk: cg.runtimeChunk,
		})
	}
	for _, b := range g.Blocks() {
		s.Blocks = append(s.Blocks, BlockRecord{Block: b, Group: g.blockGroups[b]})
	}
	for _, name := range slices.Sorted(maps.Keys(g.namedChunks)) {
		s.NamedChunks = append(s.NamedChunks, NamedChunkRecord{Name: name, Chunk: g.namedChunks[name]})
	}
	keys := slices.SortedFunc(maps.Keys(g.moduleHashes), func(a, b moduleRuntime) int {
		if a.module != b.module {
			if a.module < b.module {
				return -1
			}
			return 1
		}
		if a.runtime < b.runtime {
			return -1
		}
		if a.runtime > b.runtime {
			return 1
		}
		return 0
	})
	for _, k := range keys {
		s.ModuleHashes = append(s.ModuleHashes, ModuleHashRecord{Module: k.module, Runtime: k.runtime, Hash: g.moduleHashes[k]})
	}
	return s
}

// Import rebuilds a ChunkGraph from a snapshot and verifies its
// consistency.
func Import(s Snapshot) (*ChunkGraph, error) {
	g := New()
	g.nextChunk = s.NextChunk
	g.nextGroup = s.NextGroup

	for _, rec := range s.Chunks {
		if rec.Ukey == 0 || rec.Ukey > s.NextChunk {
			return nil, fmt.Errorf("import: chunk ukey %d out of range", rec.Ukey)
		}
		if _, dup := g.chunks[rec.Ukey]; dup {
			return nil, fmt.Errorf("import: duplicate chunk ukey %d", rec.Ukey)
		}
		c := &Chunk{
			Ukey:    rec.Ukey,
			Name:    rec.Name,
			Kind:    rec.Kind,
			Runtime: ir.RuntimeSpec(slices.Clone(rec.Runtime)),
			groups:  make(map[GroupUkey]struct{}),
		}
		if rec.ID != nil {
			id := *rec.ID
			c.ID = &id
		}
		g.chunks[c.Ukey] = c
		g.chunkModules[c.Ukey] = make(map[ir.ModuleID]struct{})
		for _, m := range rec.Modules {
			g.ConnectChunkAndModule(c.Ukey, m)
		}
	}

	for _, rec := range s.Groups {
		if rec.Ukey == 0 || rec.Ukey > s.NextGroup {
			return nil, fmt.Errorf("import: group ukey %d out of range", rec.Ukey)
		}
		if _, dup := g.groups[rec.Ukey]; dup {
			return nil, fmt.Errorf("import: duplicate group ukey %d", rec.Ukey)
		}
		cg := &ChunkGroup{
			Ukey:         rec.Ukey,
			Name:         rec.Name,
			Kind:         rec.Kind,
			Initial:      rec.Initial,
			Runtime:      ir.RuntimeSpec(slices.Clone(rec.Runtime)),
			Origins:      slices.Clone(rec.Origins),
			parents:      make(map[GroupUkey]struct{}),
			children:     make(map[GroupUkey]struct{}),
			mainChunk:    rec.MainChunk,
			runtimeChunk: rec.RuntimeChunk,
		}
		g.groups[cg.Ukey] = cg
		if cg.Name != "" {
			switch cg.Kind {
			case GroupEntrypoint:
				g.entrypoints[cg.Name] = cg.Ukey
			case GroupNormal:
				g.namedGroups[cg.Name] = cg.Ukey
			}
		}
	}

	for _, rec := range s.Groups {
		cg := g.groups[rec.Ukey]
		for _, c := range rec.Chunks {
			chunk, ok := g.chunks[c]
			if !ok {
				return nil, fmt.Errorf("import: group %d lists unknown chunk %d", rec.Ukey, c)
			}
			cg.chunks = append(cg.chunks, c)
			chunk.groups[cg.Ukey] = struct{}{}
		}
		for _, p := range rec.Parents {
			if !g.ConnectGroups(p, rec.Ukey) {
				if _, ok := g.groups[p]; !ok {
					return nil, fmt.Errorf("import: group %d lists unknown parent %d", rec.Ukey, p)
				}
			}
		}
	}

	for _, rec := range s.Chunks {
		for _, em := range rec.EntryModules {
			g.ConnectChunkAndEntryModule(rec.Ukey, em.Module, em.Group)
		}
	}
	for _, rec := range s.Blocks {
		g.blockGroups[rec.Block] = rec.Group
	}
	for _, rec := range s.NamedChunks {
		g.namedChunks[rec.Name] = rec.Chunk
	}
	for _, rec := range s.ModuleHashes {
		g.SetModuleHash(rec.Module, rec.Runtime, rec.Hash)
	}

	if err := g.CheckConsistency(); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	return g, nil
}

// Clone returns a deep copy of the graph.
func (g *ChunkGraph) Clone() *ChunkGraph {
	c, err := Import(g.Export())
	if err != nil {
		// An exported graph always re-imports unless it was already broken.
		panic(fmt.Sprintf("graph: clone: %v", err))
	}
	return c
}

func runtimeList(r ir.RuntimeSpec) []string {
	if len(r) == 0 {
		return nil
	}
	return slices.Clone(r)
}
