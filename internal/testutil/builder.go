// Package testutil provides module-graph builders, a seeded random graph
// generator and execution-path checks shared by the package tests.
package testutil

import (
	"fmt"

	"github.com/roach88/chunkgraph/internal/ir"
)

// GraphBuilder assembles a module graph fluently.
//
//	mg := testutil.NewGraph().
//		Entry("main", "a").
//		Module("a", 100, "b").
//		Module("b", 50).
//		Lazy("a", "a#0", "", "b").
//		Build()
//
// Modules must be declared before Lazy attaches blocks to them.
type GraphBuilder struct {
	mg ir.ModuleGraph
}

// NewGraph starts an empty module graph.
func NewGraph() *GraphBuilder {
	return &GraphBuilder{}
}

// Entry adds an entry with root dependencies.
func (b *GraphBuilder) Entry(name string, deps ...string) *GraphBuilder {
	return b.EntryWith(ir.Entry{Name: name, Dependencies: ids(deps)})
}

// EntryWith adds a fully specified entry.
func (b *GraphBuilder) EntryWith(e ir.Entry) *GraphBuilder {
	b.mg.Entries = append(b.mg.Entries, e)
	return b
}

// Module adds a javascript module of the given size.
func (b *GraphBuilder) Module(id string, size int64, deps ...string) *GraphBuilder {
	return b.ModuleWith(ir.Module{
		ID:           ir.ModuleID(id),
		Sizes:        ir.Sizes{ir.SourceJavaScript: size},
		Dependencies: ids(deps),
	})
}

// ModuleWith adds a fully specified module.
func (b *GraphBuilder) ModuleWith(m ir.Module) *GraphBuilder {
	b.mg.Modules = append(b.mg.Modules, m)
	return b
}

// Lazy declares block id on owner, loading deps into a group named name
// (empty for anonymous).
func (b *GraphBuilder) Lazy(owner, id, name string, deps ...string) *GraphBuilder {
	return b.LazyWith(owner, ir.AsyncBlock{ID: ir.BlockID(id), ChunkName: name, Dependencies: ids(deps)})
}

// LazyWith attaches a fully specified block to owner.
func (b *GraphBuilder) LazyWith(owner string, blk ir.AsyncBlock) *GraphBuilder {
	for i := range b.mg.Modules {
		if b.mg.Modules[i].ID == ir.ModuleID(owner) {
			b.mg.Modules[i].Blocks = append(b.mg.Modules[i].Blocks, blk.ID)
			b.mg.Blocks = append(b.mg.Blocks, blk)
			return b
		}
	}
	panic(fmt.Sprintf("testutil: Lazy on undeclared module %q", owner))
}

// Used sets the used exports of module id under runtime.
func (b *GraphBuilder) Used(id, runtime string, exports ...string) *GraphBuilder {
	for i := range b.mg.Modules {
		m := &b.mg.Modules[i]
		if m.ID == ir.ModuleID(id) {
			if m.UsedExports == nil {
				m.UsedExports = make(map[string][]string)
			}
			m.UsedExports[runtime] = append([]string{}, exports...)
			return b
		}
	}
	panic(fmt.Sprintf("testutil: Used on undeclared module %q", id))
}

// Build returns the graph. The builder must not be reused afterwards.
func (b *GraphBuilder) Build() *ir.ModuleGraph {
	mg := &ir.ModuleGraph{Entries: b.mg.Entries, Modules: b.mg.Modules, Blocks: b.mg.Blocks}
	b.mg = ir.ModuleGraph{}
	return mg
}

func ids(deps []string) []ir.ModuleID {
	if len(deps) == 0 {
		return nil
	}
	out := make([]ir.ModuleID, len(deps))
	for i, d := range deps {
		out[i] = ir.ModuleID(d)
	}
	return out
}

// NestedABC is the reference scenario: entry E imports A, A lazily imports
// B and C, and B lazily imports C again.
func NestedABC() *ir.ModuleGraph {
	return NewGraph().
		Entry("E", "A").
		Module("A", 100).
		Module("B", 100).
		Module("C", 100).
		Lazy("A", "A#0", "", "B", "C").
		Lazy("B", "B#0", "", "C").
		Build()
}
