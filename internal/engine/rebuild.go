package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/chunkgraph/internal/availability"
	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
)

// Rebuild recomputes the chunk graph for next, reusing what it can from
// prev. The result is always identical to Build(ctx, next).
//
// An empty delta with an unchanged graph hash returns prev itself. An empty
// delta with a changed hash, a nil prev, a prev built under other options
// or a delta that disagrees with next falls back to Build.
func (e *Engine) Rebuild(ctx context.Context, prev *Result, next *ir.ModuleGraph, delta ir.Delta) (*Result, error) {
	if prev == nil || prev.Graph == nil {
		return e.Build(ctx, next)
	}
	if opts := e.Fingerprint(); opts == "" || opts != prev.Options {
		e.log.Info("engine options changed, rebuilding from scratch")
		return e.Build(ctx, next)
	}
	hash, err := ir.GraphHash(next)
	if err != nil {
		return nil, fmt.Errorf("hash module graph: %w", err)
	}
	if delta.IsEmpty() {
		if hash == prev.GraphHash {
			e.log.Debug("module graph unchanged, reusing previous chunk graph")
			return prev, nil
		}
		e.log.Info("module graph changed without a delta, rebuilding from scratch")
		return e.Build(ctx, next)
	}
	if err := CheckDelta(next, delta); err != nil {
		e.log.Warn("delta does not match module graph, rebuilding from scratch", "error", err)
		return e.Build(ctx, next)
	}

	cache := availability.NewCache()
	if prev.Cache != nil {
		cache = availability.RestoreCache(prev.Cache.Entries())
	}
	// Restored entries belong to the previous generation until used.
	cache.Advance()

	changed := delta.All()
	res, err := e.run(ctx, next, cache, func(cg *graph.ChunkGraph) map[graph.GroupUkey]bool {
		dirty := DirtyGroups(prev.Graph, cg, changed)
		e.log.Debug("incremental rebuild", "changed", len(changed), "dirty_groups", len(dirty))
		return dirty
	})
	if err != nil {
		return nil, err
	}
	res.Stats.Incremental = true
	return res, nil
}

// CheckDelta reports a delta naming added or updated modules missing from
// next, or removed modules still in it.
func CheckDelta(next *ir.ModuleGraph, delta ir.Delta) error {
	for _, id := range slices.Concat(delta.Added, delta.Updated) {
		if _, ok := next.Module(id); !ok {
			return fmt.Errorf("delta module %s not in module graph", id)
		}
	}
	for _, id := range delta.Removed {
		if _, ok := next.Module(id); ok {
			return fmt.Errorf("removed module %s still in module graph", id)
		}
	}
	return nil
}

// DirtyGroups returns the groups of cg that must not reuse cached
// availability: groups holding a changed module in prev or cg, and all of
// their descendants in cg. Groups of prev are matched to cg by entrypoint
// name and by the blocks they originate from.
func DirtyGroups(prev, cg *graph.ChunkGraph, changed []ir.ModuleID) map[graph.GroupUkey]bool {
	dirty := make(map[graph.GroupUkey]bool)
	var queue []graph.GroupUkey
	mark := func(u graph.GroupUkey) {
		if !dirty[u] {
			dirty[u] = true
			queue = append(queue, u)
		}
	}
	holds := func(g *graph.ChunkGraph, u graph.GroupUkey) bool {
		return slices.ContainsFunc(changed, func(m ir.ModuleID) bool { return g.GroupHasModule(u, m) })
	}

	for _, u := range cg.GroupKeys() {
		if holds(cg, u) {
			mark(u)
		}
	}
	if prev != nil {
		for _, grp := range prev.Groups() {
			if !holds(prev, grp.Ukey) {
				continue
			}
			if grp.Kind.IsEntrypoint() && grp.Name != "" {
				if match, ok := cg.Entrypoint(grp.Name); ok {
					mark(match.Ukey)
				}
			}
			for _, b := range grp.Origins {
				if match, ok := cg.BlockGroup(b); ok {
					mark(match)
				}
			}
		}
	}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, child := range cg.MustGroup(u).Children() {
			mark(child)
		}
	}
	return dirty
}
