package ir

import (
	"slices"
	"strings"
	"sync"
)

// ModuleID is the stable identity of a module in the module graph.
type ModuleID string

// BlockID is the stable identity of an AsyncBlock.
type BlockID string

// SourceType names one kind of emitted source ("javascript", "css", ...).
type SourceType string

// Well-known source types.
const (
	SourceJavaScript SourceType = "javascript"
	SourceCSS        SourceType = "css"
	SourceAsset      SourceType = "asset"
)

// Sizes maps source type to a byte-equivalent cost.
type Sizes map[SourceType]int64

// Total returns the sum over all source types.
func (s Sizes) Total() int64 {
	var n int64
	for _, v := range s {
		n += v
	}
	return n
}

// Plus returns a new Sizes holding s + o. Addition is per source type, so
// folding any number of Sizes yields the same result in any order.
func (s Sizes) Plus(o Sizes) Sizes {
	out := make(Sizes, len(s)+len(o))
	for k, v := range s {
		out[k] += v
	}
	for k, v := range o {
		out[k] += v
	}
	return out
}

// Minus returns a new Sizes holding s - o, dropping types that reach zero.
func (s Sizes) Minus(o Sizes) Sizes {
	out := make(Sizes, len(s))
	for k, v := range s {
		if r := v - o[k]; r != 0 {
			out[k] = r
		}
	}
	return out
}

// Types returns the source types in sorted order.
func (s Sizes) Types() []SourceType {
	types := make([]SourceType, 0, len(s))
	for k := range s {
		types = append(types, k)
	}
	slices.Sort(types)
	return types
}

// Module is one node of the module graph. The engine never mutates modules.
type Module struct {
	ID           ModuleID   `yaml:"id" json:"id"`
	Type         string     `yaml:"type,omitempty" json:"type,omitempty"`
	Layer        string     `yaml:"layer,omitempty" json:"layer,omitempty"`
	Sizes        Sizes      `yaml:"sizes,omitempty" json:"sizes,omitempty"`
	Dependencies []ModuleID `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Blocks       []BlockID  `yaml:"blocks,omitempty" json:"blocks,omitempty"`

	// UsedExports lists the externally used exports of the module per
	// runtime name. A runtime without an entry means "usage unknown".
	UsedExports map[string][]string `yaml:"used_exports,omitempty" json:"used_exports,omitempty"`
}

// UsageKey summarizes the used exports of m under every runtime in rt.
// Two runtimes with equal keys cannot change tree-shaking outcomes when
// their chunks are merged.
func (m *Module) UsageKey(rt RuntimeSpec) string {
	if len(rt) == 0 {
		return "*"
	}
	seen := make(map[string]struct{})
	for _, name := range rt {
		used, ok := m.UsedExports[name]
		if !ok {
			return "*"
		}
		for _, e := range used {
			seen[e] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for e := range seen {
		names = append(names, e)
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}

// EntryOptions turns an AsyncBlock into an async entrypoint (e.g. a worker).
type EntryOptions struct {
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
	Runtime string `yaml:"runtime,omitempty" json:"runtime,omitempty"`
}

// AsyncBlock is a code-split boundary declared inside a module.
type AsyncBlock struct {
	ID           BlockID    `yaml:"id" json:"id"`
	ChunkName    string     `yaml:"chunk_name,omitempty" json:"chunk_name,omitempty"`
	Dependencies []ModuleID `yaml:"dependencies" json:"dependencies"`

	// PreloadOrder and PrefetchOrder are priority hints; zero means unset.
	PreloadOrder  int `yaml:"preload_order,omitempty" json:"preload_order,omitempty"`
	PrefetchOrder int `yaml:"prefetch_order,omitempty" json:"prefetch_order,omitempty"`

	Entry *EntryOptions `yaml:"entry,omitempty" json:"entry,omitempty"`
}

// Entry is a configured entry point.
type Entry struct {
	Name         string     `yaml:"name" json:"name"`
	Dependencies []ModuleID `yaml:"dependencies" json:"dependencies"`
	DependOn     []string   `yaml:"depend_on,omitempty" json:"depend_on,omitempty"`
	Runtime      string     `yaml:"runtime,omitempty" json:"runtime,omitempty"`
}

// ModuleGraph is a finished module graph snapshot.
//
// Entries keep declaration order; Modules and Blocks are looked up by id.
// Call lookups only after the graph is fully populated: the index is built
// once on first use and never refreshed.
type ModuleGraph struct {
	Entries []Entry      `yaml:"entries" json:"entries"`
	Modules []Module     `yaml:"modules" json:"modules"`
	Blocks  []AsyncBlock `yaml:"blocks,omitempty" json:"blocks,omitempty"`

	once       sync.Once
	modules    map[ModuleID]*Module
	blocks     map[BlockID]*AsyncBlock
	blockOwner map[BlockID]ModuleID
}

func (g *ModuleGraph) index() {
	g.once.Do(func() {
		g.modules = make(map[ModuleID]*Module, len(g.Modules))
		g.blocks = make(map[BlockID]*AsyncBlock, len(g.Blocks))
		g.blockOwner = make(map[BlockID]ModuleID)
		for i := range g.Modules {
			m := &g.Modules[i]
			if _, dup := g.modules[m.ID]; !dup {
				g.modules[m.ID] = m
			}
		}
		for i := range g.Blocks {
			b := &g.Blocks[i]
			if _, dup := g.blocks[b.ID]; !dup {
				g.blocks[b.ID] = b
			}
		}
		for _, id := range g.ModuleIDs() {
			for _, b := range g.modules[id].Blocks {
				if _, owned := g.blockOwner[b]; !owned {
					g.blockOwner[b] = id
				}
			}
		}
	})
}

// Module returns the module with the given id.
func (g *ModuleGraph) Module(id ModuleID) (*Module, bool) {
	g.index()
	m, ok := g.modules[id]
	return m, ok
}

// Block returns the AsyncBlock with the given id.
func (g *ModuleGraph) Block(id BlockID) (*AsyncBlock, bool) {
	g.index()
	b, ok := g.blocks[id]
	return b, ok
}

// BlockOwner returns the module that declares the block.
func (g *ModuleGraph) BlockOwner(id BlockID) (ModuleID, bool) {
	g.index()
	m, ok := g.blockOwner[id]
	return m, ok
}

// ModuleIDs returns all module ids in sorted order.
func (g *ModuleGraph) ModuleIDs() []ModuleID {
	ids := make([]ModuleID, 0, len(g.Modules))
	seen := make(map[ModuleID]struct{}, len(g.Modules))
	for _, m := range g.Modules {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	return ids
}

// DuplicateModules returns module ids declared more than once, sorted.
func (g *ModuleGraph) DuplicateModules() []ModuleID {
	count := make(map[ModuleID]int, len(g.Modules))
	for _, m := range g.Modules {
		count[m.ID]++
	}
	var dups []ModuleID
	for id, n := range count {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	slices.Sort(dups)
	return dups
}

// Delta describes an incremental change of the module graph.
type Delta struct {
	Added   []ModuleID `yaml:"added,omitempty" json:"added,omitempty"`
	Removed []ModuleID `yaml:"removed,omitempty" json:"removed,omitempty"`
	Updated []ModuleID `yaml:"updated,omitempty" json:"updated,omitempty"`
}

// IsEmpty reports whether the delta names no module.
func (d Delta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}

// All returns every module named by the delta, sorted and deduplicated.
func (d Delta) All() []ModuleID {
	all := make([]ModuleID, 0, len(d.Added)+len(d.Removed)+len(d.Updated))
	all = append(all, d.Added...)
	all = append(all, d.Removed...)
	all = append(all, d.Updated...)
	slices.Sort(all)
	return slices.Compact(all)
}

// RuntimeSpec is a sorted set of runtime names.
type RuntimeSpec []string

// NewRuntimeSpec builds a RuntimeSpec from arbitrary names.
func NewRuntimeSpec(names ...string) RuntimeSpec {
	out := make(RuntimeSpec, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Union returns the runtimes in either spec.
func (r RuntimeSpec) Union(o RuntimeSpec) RuntimeSpec {
	return NewRuntimeSpec(append(slices.Clone(r), o...)...)
}

// Contains reports whether name is part of the spec.
func (r RuntimeSpec) Contains(name string) bool {
	_, ok := slices.BinarySearch(r, name)
	return ok
}

// Equal reports whether both specs list the same runtimes.
func (r RuntimeSpec) Equal(o RuntimeSpec) bool {
	return slices.Equal(r, o)
}

// Key returns a stable string form, e.g. "main|worker".
func (r RuntimeSpec) Key() string {
	return strings.Join(r, "|")
}
