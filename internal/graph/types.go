package graph

import (
	"maps"
	"slices"

	"github.com/roach88/chunkgraph/internal/ir"
)

// ChunkUkey is the surrogate key of a chunk. Zero is never allocated.
type ChunkUkey uint32

// GroupUkey is the surrogate key of a chunk group. Zero is never allocated.
type GroupUkey uint32

// ChunkKind classifies a chunk.
type ChunkKind int

const (
	// KindAsync is a chunk loaded on demand or split off by an optimization.
	KindAsync ChunkKind = iota
	// KindEntry holds the entry modules of an entrypoint.
	KindEntry
	// KindRuntime holds the runtime of one or more entrypoints and no modules.
	KindRuntime
)

func (k ChunkKind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindRuntime:
		return "runtime"
	default:
		return "async"
	}
}

// GroupKind classifies a chunk group.
type GroupKind int

const (
	// GroupNormal is the target of an AsyncBlock.
	GroupNormal GroupKind = iota
	// GroupEntrypoint is a configured entry point.
	GroupEntrypoint
	// GroupAsyncEntrypoint is an entry point started on demand (e.g. a worker).
	GroupAsyncEntrypoint
)

func (k GroupKind) String() string {
	switch k {
	case GroupEntrypoint:
		return "entrypoint"
	case GroupAsyncEntrypoint:
		return "async-entrypoint"
	default:
		return "normal"
	}
}

// IsEntrypoint reports whether the kind is either entrypoint flavor.
func (k GroupKind) IsEntrypoint() bool {
	return k == GroupEntrypoint || k == GroupAsyncEntrypoint
}

// Chunk is a unit of emitted output. Module membership lives in the
// ChunkGraph, not on the chunk.
type Chunk struct {
	Ukey ChunkUkey
	Name string
	Kind ChunkKind

	// ID is assigned by a later id-assignment stage; nil until then.
	ID *string

	// Runtime is the union of the runtimes of the chunk's groups.
	Runtime ir.RuntimeSpec

	groups map[GroupUkey]struct{}
}

// Groups returns the chunk's groups in ukey order.
func (c *Chunk) Groups() []GroupUkey {
	return sortedKeys(c.groups)
}

// InGroup reports whether the chunk belongs to g.
func (c *Chunk) InGroup(g GroupUkey) bool {
	_, ok := c.groups[g]
	return ok
}

// ChunkGroup is one split point: an entry or the target of AsyncBlocks.
type ChunkGroup struct {
	Ukey    GroupUkey
	Name    string
	Kind    GroupKind
	Initial bool

	// Runtime lists the runtimes this group executes in.
	Runtime ir.RuntimeSpec

	// Origins lists the AsyncBlocks targeting this group in discovery order.
	Origins []ir.BlockID

	chunks       []ChunkUkey
	parents      map[GroupUkey]struct{}
	children     map[GroupUkey]struct{}
	mainChunk    ChunkUkey
	runtimeChunk ChunkUkey
}

// Chunks returns the member chunks in load order.
func (g *ChunkGroup) Chunks() []ChunkUkey {
	return slices.Clone(g.chunks)
}

// Parents returns the parent groups in ukey order.
func (g *ChunkGroup) Parents() []GroupUkey {
	return sortedKeys(g.parents)
}

// Children returns the child groups in ukey order.
func (g *ChunkGroup) Children() []GroupUkey {
	return sortedKeys(g.children)
}

// HasParent reports whether p is a parent of g.
func (g *ChunkGroup) HasParent(p GroupUkey) bool {
	_, ok := g.parents[p]
	return ok
}

// ParentCount returns the number of parent groups.
func (g *ChunkGroup) ParentCount() int {
	return len(g.parents)
}

// MainChunk returns the chunk created together with the group.
func (g *ChunkGroup) MainChunk() ChunkUkey {
	return g.mainChunk
}

// RuntimeChunk returns the runtime chunk of an entrypoint, or zero.
func (g *ChunkGroup) RuntimeChunk() ChunkUkey {
	return g.runtimeChunk
}

// IsDependentEntry reports whether g is an entrypoint with incoming
// depend-on edges. Such groups aggregate the modules of their parents.
func (g *ChunkGroup) IsDependentEntry() bool {
	return g.Kind == GroupEntrypoint && len(g.parents) > 0
}

// IsRootEntry reports whether g is an entrypoint that depends on nothing.
func (g *ChunkGroup) IsRootEntry() bool {
	return g.Kind == GroupEntrypoint && len(g.parents) == 0
}

func sortedKeys[K ~uint32](m map[K]struct{}) []K {
	return slices.Sorted(maps.Keys(m))
}
