package prune

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/chunkgraph/internal/availability"
	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
	"github.com/roach88/chunkgraph/internal/modset"
	"github.com/roach88/chunkgraph/internal/workpool"
)

// ErrMissingModule reports a chunk module absent from the module graph.
var ErrMissingModule = errors.New("chunk module not in module graph")

// Options controls pruning.
type Options struct {
	Pool   workpool.Pool
	Logger *slog.Logger

	// Cache and Dirty are forwarded to the first availability analysis.
	Cache *availability.Cache
	Dirty map[graph.GroupUkey]bool

	// Strict fails on chunk modules missing from the module graph instead
	// of keeping their edges untouched.
	Strict bool
}

// Result summarizes a Prune run.
type Result struct {
	// Removed counts detached module↔chunk associations.
	Removed int

	// Detached counts removed parent→child group edges.
	Detached int

	// Rounds counts analyze-and-sweep rounds, including the final one that
	// changed nothing.
	Rounds int

	// CacheHits sums availability cache hits over all rounds.
	CacheHits int

	// Swept counts chunks visited by the sweep over all rounds. Rounds after
	// the first only visit chunks of groups whose available set changed.
	Swept int

	// Availability is the analysis of the final, unchanged graph.
	Availability *availability.Result
}

// Prune removes available modules from cg until a fixed point.
func Prune(ctx context.Context, cg *graph.ChunkGraph, mg *ir.ModuleGraph, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	res := &Result{}
	var last *availability.Result
	for {
		res.Rounds++
		aopts := availability.Options{Pool: opts.Pool, Logger: log}
		if res.Rounds == 1 {
			aopts.Cache, aopts.Dirty = opts.Cache, opts.Dirty
		}
		avail, err := availability.Analyze(ctx, cg, aopts)
		if err != nil {
			return nil, err
		}
		res.CacheHits += avail.CacheHits
		res.Availability = avail

		var only map[graph.GroupUkey]bool
		if last != nil {
			only = changedGroups(cg, last, avail)
		}
		last = avail
		changed, swept, err := sweep(ctx, cg, avail, opts.Pool, only)
		if err != nil {
			return nil, err
		}
		res.Swept += swept
		removed := 0
		touched := make(map[graph.GroupUkey]bool)
		for _, c := range changed {
			for _, m := range c.modules {
				if cg.DisconnectChunkAndModule(c.chunk, m) {
					removed++
				}
			}
			for _, g := range cg.MustChunk(c.chunk).Groups() {
				touched[g] = true
			}
		}
		detached, err := detachDangling(cg, mg, touched, opts.Strict, log)
		if err != nil {
			return nil, err
		}
		res.Removed += removed
		res.Detached += detached
		log.Debug("prune round", "round", res.Rounds, "removed", removed, "detached", detached)
		if removed == 0 && detached == 0 {
			return res, nil
		}
	}
}

type removal struct {
	chunk   graph.ChunkUkey
	modules []ir.ModuleID
}

// changedGroups returns the groups whose available set differs between two
// consecutive analyses.
func changedGroups(cg *graph.ChunkGraph, before, after *availability.Result) map[graph.GroupUkey]bool {
	out := make(map[graph.GroupUkey]bool)
	for _, u := range cg.GroupKeys() {
		if !slices.Equal(before.AvailableIDs(u), after.AvailableIDs(u)) {
			out[u] = true
		}
	}
	return out
}

// sweep computes, for every chunk, the modules available in all of its
// groups. When only is set, chunks outside those groups are skipped: their
// available sets are the ones the previous sweep already applied. Workers
// read the graph and write only their own slot.
func sweep(ctx context.Context, cg *graph.ChunkGraph, avail *availability.Result, pool workpool.Pool, only map[graph.GroupUkey]bool) ([]removal, int, error) {
	keys := cg.ChunkKeys()
	if only != nil {
		keys = slices.DeleteFunc(keys, func(c graph.ChunkUkey) bool {
			return !slices.ContainsFunc(cg.MustChunk(c).Groups(), func(g graph.GroupUkey) bool { return only[g] })
		})
	}
	slots := make([]removal, len(keys))
	err := pool.Run(ctx, len(keys), func(_ context.Context, i int) error {
		c := cg.MustChunk(keys[i])
		if Exempt(cg, c) {
			return nil
		}
		var all modset.Set
		for j, g := range c.Groups() {
			if j == 0 {
				all = avail.Available(g)
			} else {
				all = all.Intersect(avail.Available(g))
			}
		}
		if all.Count() == 0 {
			return nil
		}
		var drop []ir.ModuleID
		for _, m := range cg.ChunkModules(c.Ukey) {
			if cg.IsEntryModuleInChunk(m, c.Ukey) {
				continue
			}
			if ord, ok := avail.Ordinals.Of(m); ok && all.Has(ord) {
				drop = append(drop, m)
			}
		}
		slots[i] = removal{chunk: c.Ukey, modules: drop}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	var out []removal
	for _, s := range slots {
		if len(s.modules) > 0 {
			out = append(out, s)
		}
	}
	return out, len(keys), nil
}

// Exempt reports whether c must keep all its modules: runtime chunks,
// chunks without groups, and chunks of a root or async entrypoint.
func Exempt(cg *graph.ChunkGraph, c *graph.Chunk) bool {
	if c.Kind == graph.KindRuntime {
		return true
	}
	groups := c.Groups()
	if len(groups) == 0 {
		return true
	}
	for _, g := range groups {
		grp := cg.MustGroup(g)
		if grp.IsRootEntry() || grp.Kind == graph.GroupAsyncEntrypoint {
			return true
		}
	}
	return false
}

// detachDangling removes g→t block edges when no module left in g owns a
// block targeting t. Depend-on edges into entrypoints are kept.
func detachDangling(cg *graph.ChunkGraph, mg *ir.ModuleGraph, touched map[graph.GroupUkey]bool, strict bool, log *slog.Logger) (int, error) {
	detached := 0
	for _, u := range cg.GroupKeys() {
		if !touched[u] {
			continue
		}
		grp := cg.MustGroup(u)
		children := grp.Children()
		if len(children) == 0 {
			continue
		}
		needed := make(map[graph.GroupUkey]bool)
		intact := true
		for _, m := range cg.GroupModules(u) {
			mod, ok := mg.Module(m)
			if !ok {
				if strict {
					return 0, fmt.Errorf("%w: %s", ErrMissingModule, m)
				}
				log.Warn("keeping edges of group with unknown module", "group", u, "module", m)
				intact = false
				break
			}
			for _, b := range mod.Blocks {
				if t, ok := cg.BlockGroup(b); ok {
					needed[t] = true
				}
			}
		}
		if !intact {
			continue
		}
		for _, t := range children {
			if needed[t] || cg.MustGroup(t).Kind == graph.GroupEntrypoint {
				continue
			}
			if cg.DisconnectGroups(u, t) {
				detached++
			}
		}
	}
	return detached, nil
}
