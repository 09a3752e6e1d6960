package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/chunkgraph/internal/availability"
	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
	"github.com/roach88/chunkgraph/internal/merge"
	"github.com/roach88/chunkgraph/internal/partition"
	"github.com/roach88/chunkgraph/internal/prune"
	"github.com/roach88/chunkgraph/internal/splitchunks"
	"github.com/roach88/chunkgraph/internal/workpool"
)

// Engine runs the chunk graph pipeline.
//
// An Engine holds configuration only. Build and Rebuild may be called from
// any goroutine; each call owns the chunk graph it produces.
//
// Pass order:
//  1. partition
//  2. parent-module pruning (to a fixed point)
//  3. empty chunk removal
//  4. duplicate chunk merging
//  5. cache-group splitting
//  6. module hashes per (module, runtime)
type Engine struct {
	pool        workpool.Pool
	strict      bool
	log         *slog.Logger
	cacheGroups []splitchunks.CacheGroup

	removeAvailable bool
	removeEmpty     bool
	mergeDuplicates bool
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := defaults()
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// Stats counts the work done by each pass.
type Stats struct {
	Chunks int `json:"chunks"`
	Groups int `json:"groups"`

	// SkippedEdges counts malformed edges skipped by the partitioner.
	SkippedEdges int `json:"skipped_edges"`

	Pruned      int `json:"pruned"`
	Detached    int `json:"detached"`
	PruneRounds int `json:"prune_rounds"`
	Forced      int `json:"forced"`
	CacheHits   int `json:"cache_hits"`
	Evicted     int `json:"evicted"`

	EmptyRemoved     int `json:"empty_removed"`
	Merged           int `json:"merged"`
	RuntimeConflicts int `json:"runtime_conflicts"`

	SplitCreated int `json:"split_created"`
	SplitReused  int `json:"split_reused"`
	SplitSkipped int `json:"split_skipped"`
	SplitParts   int `json:"split_parts"`

	ModuleHashes int `json:"module_hashes"`

	// Incremental is set when the result came from Rebuild's cached path.
	Incremental bool `json:"incremental"`
}

// Result is one computed chunk graph.
type Result struct {
	Graph *graph.ChunkGraph

	// GraphHash is the content hash of the module graph it was built from.
	GraphHash string

	// Options is the Fingerprint of the engine that built it.
	Options string

	// Cache holds the availability signatures of this build and seeds the
	// next Rebuild.
	Cache *availability.Cache

	Stats Stats
}

// Build computes the chunk graph of mg from scratch.
func (e *Engine) Build(ctx context.Context, mg *ir.ModuleGraph) (*Result, error) {
	return e.run(ctx, mg, availability.NewCache(), nil)
}

// run executes the pipeline. dirty, when set, picks the groups that must
// not reuse cached availability once the partition is known.
func (e *Engine) run(ctx context.Context, mg *ir.ModuleGraph, cache *availability.Cache, dirty func(*graph.ChunkGraph) map[graph.GroupUkey]bool) (*Result, error) {
	hash, err := ir.GraphHash(mg)
	if err != nil {
		return nil, fmt.Errorf("hash module graph: %w", err)
	}
	res := &Result{GraphHash: hash, Options: e.Fingerprint(), Cache: cache}
	st := &res.Stats

	parts, err := partition.Partition(mg, partition.Options{Strict: e.strict, Logger: e.log})
	if err != nil {
		return nil, classify(err)
	}
	cg := parts.Graph
	res.Graph = cg
	st.SkippedEdges = parts.Skipped

	if e.removeAvailable {
		var dirtyGroups map[graph.GroupUkey]bool
		if dirty != nil {
			dirtyGroups = dirty(cg)
		}
		pr, err := prune.Prune(ctx, cg, mg, prune.Options{
			Pool:   e.pool,
			Logger: e.log,
			Cache:  cache,
			Dirty:  dirtyGroups,
			Strict: e.strict,
		})
		if err != nil {
			return nil, classify(err)
		}
		st.Pruned, st.Detached, st.PruneRounds = pr.Removed, pr.Detached, pr.Rounds
		st.CacheHits = pr.CacheHits
		st.Forced = len(pr.Availability.Forced)
	}

	if e.removeEmpty {
		st.EmptyRemoved = merge.RemoveEmpty(cg)
	}

	if e.mergeDuplicates {
		mr, err := merge.Merge(cg, mg, merge.Options{Logger: e.log, Strict: e.strict})
		if err != nil {
			return nil, classify(err)
		}
		st.Merged, st.RuntimeConflicts = len(mr.Merged), mr.RuntimeConflicts
	}

	if len(e.cacheGroups) > 0 {
		sr, err := splitchunks.Split(cg, mg, splitchunks.Options{
			CacheGroups: e.cacheGroups,
			Logger:      e.log,
			Strict:      e.strict,
		})
		if err != nil {
			return nil, classify(err)
		}
		st.SplitCreated, st.SplitReused = len(sr.Created), sr.Reused
		st.SplitSkipped, st.SplitParts = sr.Skipped, sr.Parts
	}

	n, err := e.hashModules(ctx, cg, mg)
	if err != nil {
		return nil, classify(err)
	}
	st.ModuleHashes = n

	if err := cg.CheckConsistency(); err != nil {
		if e.strict {
			return nil, classify(err)
		}
		e.log.Warn("chunk graph index inconsistent", "error", err)
	}

	st.Evicted = cache.Advance()
	st.Chunks, st.Groups = len(cg.ChunkKeys()), len(cg.GroupKeys())
	e.log.Info("built chunk graph",
		"chunks", st.Chunks,
		"groups", st.Groups,
		"pruned", st.Pruned,
		"merged", st.Merged,
		"split", st.SplitCreated)
	return res, nil
}

type moduleHash struct {
	runtime string
	hash    string
}

// hashModules stores a hash for every module under every runtime of the
// chunks holding it. Modules are hashed in parallel; results are stored in
// module order.
func (e *Engine) hashModules(ctx context.Context, cg *graph.ChunkGraph, mg *ir.ModuleGraph) (int, error) {
	ids := cg.Modules()
	out := make([][]moduleHash, len(ids))
	err := e.pool.Run(ctx, len(ids), func(_ context.Context, i int) error {
		m, ok := mg.Module(ids[i])
		if !ok {
			if e.strict {
				return fmt.Errorf("%w: %s", errMissingModule, ids[i])
			}
			return nil
		}
		var rt ir.RuntimeSpec
		for _, c := range cg.ModuleChunks(m.ID) {
			rt = rt.Union(cg.MustChunk(c).Runtime)
		}
		names := []string(rt)
		if len(names) == 0 {
			names = []string{""}
		}
		for _, r := range names {
			h, err := ir.ModuleHash(m, r)
			if err != nil {
				return fmt.Errorf("hash module %s: %w", m.ID, err)
			}
			out[i] = append(out[i], moduleHash{runtime: r, hash: h})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for i, hashes := range out {
		if hashes == nil {
			e.log.Warn("module not in module graph, not hashed", "module", ids[i])
		}
		for _, h := range hashes {
			cg.SetModuleHash(ids[i], h.runtime, h.hash)
			n++
		}
	}
	return n, nil
}
