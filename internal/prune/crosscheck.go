package prune

import (
	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
)

// LoadedOnAllPaths is the direct recursive formulation of availability: m
// is loaded before grp runs if every parent either holds m or has m loaded
// before it. An entrypoint with depend-on parents needs only one such
// parent. Roots and async entrypoints have nothing loaded.
//
// A parent still being evaluated higher up the recursion only counts if it
// holds m itself, so cycles resolve to the conservative answer.
func LoadedOnAllPaths(cg *graph.ChunkGraph, grp graph.GroupUkey, m ir.ModuleID) bool {
	c := &crossChecker{cg: cg, m: m, inProgress: map[graph.GroupUkey]bool{}, memo: map[graph.GroupUkey]bool{}}
	return c.loaded(grp)
}

type crossChecker struct {
	cg         *graph.ChunkGraph
	m          ir.ModuleID
	inProgress map[graph.GroupUkey]bool
	memo       map[graph.GroupUkey]bool
}

func (c *crossChecker) loaded(u graph.GroupUkey) bool {
	if v, ok := c.memo[u]; ok {
		return v
	}
	grp := c.cg.MustGroup(u)
	if grp.IsRootEntry() || grp.Kind == graph.GroupAsyncEntrypoint {
		return false
	}
	c.inProgress[u] = true
	defer delete(c.inProgress, u)

	union := grp.IsDependentEntry()
	someLoaded, allLoaded, seen := false, true, false
	for _, p := range grp.Parents() {
		if p == u {
			continue
		}
		seen = true
		ok := c.cg.GroupHasModule(p, c.m) || (!c.inProgress[p] && c.loaded(p))
		someLoaded = someLoaded || ok
		allLoaded = allLoaded && ok
	}
	result := seen && ((union && someLoaded) || (!union && allLoaded))
	// Memoized answers may be pessimistic inside cycles, never optimistic.
	c.memo[u] = result
	return result
}
