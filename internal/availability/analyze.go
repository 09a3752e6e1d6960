package availability

import (
	"context"
	"log/slog"

	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
	"github.com/roach88/chunkgraph/internal/modset"
	"github.com/roach88/chunkgraph/internal/workpool"
)

// Options controls an analysis run.
type Options struct {
	Pool   workpool.Pool
	Logger *slog.Logger

	// Cache, when set, is consulted and filled for groups whose ancestry is
	// acyclic.
	Cache *Cache

	// Dirty lists groups that must be recomputed even when the cache holds
	// their signature.
	Dirty map[graph.GroupUkey]bool
}

// Result holds the available set of every group.
type Result struct {
	Ordinals *modset.Ordinals

	available map[graph.GroupUkey]modset.Set
	modules   map[graph.GroupUkey]modset.Set

	// Forced lists the groups finalized by cycle breaking, in order.
	Forced []graph.GroupUkey

	// CacheHits counts groups taken from the cache.
	CacheHits int
}

// Available returns the available set of grp.
func (r *Result) Available(grp graph.GroupUkey) modset.Set {
	return r.available[grp]
}

// AvailableIDs returns the available module ids of grp in sorted order.
func (r *Result) AvailableIDs(grp graph.GroupUkey) []ir.ModuleID {
	return r.available[grp].IDs(r.Ordinals)
}

// GroupModules returns the union of grp's chunk modules at analysis time.
func (r *Result) GroupModules(grp graph.GroupUkey) modset.Set {
	return r.modules[grp]
}

// IsAvailable reports whether m is available in grp.
func (r *Result) IsAvailable(grp graph.GroupUkey, m ir.ModuleID) bool {
	ord, ok := r.Ordinals.Of(m)
	return ok && r.available[grp].Has(ord)
}

type state uint8

const (
	notComputed state = iota
	pending
	computed
)

// Analyze computes available modules for every group of cg. The graph is
// only read.
func Analyze(ctx context.Context, cg *graph.ChunkGraph, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	keys := cg.GroupKeys()
	res := &Result{
		Ordinals:  modset.NewOrdinals(cg.Modules()),
		available: make(map[graph.GroupUkey]modset.Set, len(keys)),
		modules:   make(map[graph.GroupUkey]modset.Set, len(keys)),
	}

	sets := make([]modset.Set, len(keys))
	err := opts.Pool.Run(ctx, len(keys), func(_ context.Context, i int) error {
		sets[i] = res.Ordinals.SetOf(cg.GroupModules(keys[i])...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, u := range keys {
		res.modules[u] = sets[i]
	}

	var sigs *signer
	if opts.Cache != nil {
		sigs = newSigner(cg, res.modules, res.Ordinals)
	}

	st := make(map[graph.GroupUkey]state, len(keys))
	waiting := make(map[graph.GroupUkey]int, len(keys))
	var queue []graph.GroupUkey
	for _, u := range keys {
		grp := cg.MustGroup(u)
		n := externalParents(grp)
		if isRoot(grp) || n == 0 {
			queue = append(queue, u)
			st[u] = pending
			continue
		}
		waiting[u] = n
	}

	finalize := func(u graph.GroupUkey) {
		grp := cg.MustGroup(u)
		res.available[u] = res.value(cg, grp, st, sigs, opts)
		st[u] = computed
		for _, child := range grp.Children() {
			if child == u || st[child] != notComputed {
				continue
			}
			waiting[child]--
			if waiting[child] == 0 {
				st[child] = pending
				queue = append(queue, child)
			}
		}
	}

	done := 0
	for done < len(keys) {
		if len(queue) == 0 {
			forced := smallestWaiting(keys, st)
			res.Forced = append(res.Forced, forced)
			log.Debug("forcing cyclic chunk group", "group", forced, "name", cg.MustGroup(forced).Name)
			finalize(forced)
			done++
			continue
		}
		u := queue[0]
		queue = queue[1:]
		finalize(u)
		done++
	}

	log.Debug("computed available modules",
		"groups", len(keys),
		"forced", len(res.Forced),
		"cache_hits", res.CacheHits)
	return res, nil
}

func (r *Result) value(cg *graph.ChunkGraph, grp *graph.ChunkGroup, st map[graph.GroupUkey]state, sigs *signer, opts Options) modset.Set {
	if isRoot(grp) {
		return modset.Empty()
	}

	sig, cacheable := "", false
	if sigs != nil && !opts.Dirty[grp.Ukey] {
		sig, cacheable = sigs.signature(grp.Ukey)
		if cacheable {
			if ids, ok := opts.Cache.Get(sig); ok {
				r.CacheHits++
				return r.Ordinals.SetOf(ids...)
			}
		}
	}

	var acc modset.Set
	first := true
	for _, p := range grp.Parents() {
		if p == grp.Ukey {
			continue
		}
		contrib := r.modules[p]
		if st[p] == computed {
			contrib = contrib.Union(r.available[p])
		}
		switch {
		case first:
			acc = contrib
			first = false
		case grp.IsDependentEntry():
			acc = acc.Union(contrib)
		default:
			acc = acc.Intersect(contrib)
		}
	}

	if cacheable {
		opts.Cache.Put(sig, acc.IDs(r.Ordinals))
	}
	return acc
}

// isRoot reports whether grp starts with nothing available.
func isRoot(grp *graph.ChunkGroup) bool {
	return grp.IsRootEntry() || grp.Kind == graph.GroupAsyncEntrypoint
}

func externalParents(grp *graph.ChunkGroup) int {
	n := 0
	for _, p := range grp.Parents() {
		if p != grp.Ukey {
			n++
		}
	}
	return n
}

func smallestWaiting(keys []graph.GroupUkey, st map[graph.GroupUkey]state) graph.GroupUkey {
	for _, u := range keys {
		if st[u] == notComputed {
			return u
		}
	}
	panic("availability: stalled without waiting groups")
}
