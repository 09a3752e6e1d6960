package merge

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
)

// ErrMissingModule reports a chunk module absent from the module graph.
var ErrMissingModule = errors.New("chunk module not in module graph")

// Options controls merging.
type Options struct {
	Logger *slog.Logger

	// Strict fails on modules missing from the module graph instead of
	// treating their chunk as unmergeable.
	Strict bool
}

// Pair records one merge: Removed was folded into Survivor.
type Pair struct {
	Survivor graph.ChunkUkey
	Removed  graph.ChunkUkey
}

// Result summarizes a Merge run.
type Result struct {
	Merged []Pair

	// RuntimeConflicts counts equal-module pairs kept apart because a
	// module is used differently under their runtimes.
	RuntimeConflicts int
}

// Order returns chunks sorted by name, unnamed chunks last, then by ukey.
func Order(cg *graph.ChunkGraph) []*graph.Chunk {
	chunks := cg.Chunks()
	slices.SortStableFunc(chunks, func(a, b *graph.Chunk) int {
		switch {
		case a.Name == "" && b.Name != "":
			return 1
		case a.Name != "" && b.Name == "":
			return -1
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return int(a.Ukey) - int(b.Ukey)
	})
	return chunks
}

// Merge folds every chunk into the first earlier chunk (in Order) holding
// exactly the same modules, provided neither holds entry modules and the
// modules are used identically under both runtimes.
func Merge(cg *graph.ChunkGraph, mg *ir.ModuleGraph, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	res := &Result{}
	order := Order(cg)
	removed := make(map[graph.ChunkUkey]bool)

	for i, a := range order {
		if removed[a.Ukey] || !candidate(cg, a) {
			continue
		}
		n := cg.ChunkModuleCount(a.Ukey)
		for _, b := range order[i+1:] {
			if removed[b.Ukey] || !candidate(cg, b) || cg.ChunkModuleCount(b.Ukey) != n {
				continue
			}
			if !cg.HasEqualModules(a.Ukey, b.Ukey) {
				continue
			}
			ok, err := sameUsage(cg, mg, a, b, opts.Strict)
			if err != nil {
				return nil, err
			}
			if !ok {
				res.RuntimeConflicts++
				log.Debug("keeping duplicate chunks apart", "chunk", a.Name, "other", b.Name,
					"runtime", a.Runtime.Key(), "other_runtime", b.Runtime.Key())
				continue
			}
			into(cg, a, b)
			removed[b.Ukey] = true
			res.Merged = append(res.Merged, Pair{Survivor: a.Ukey, Removed: b.Ukey})
		}
	}
	if len(res.Merged) > 0 {
		log.Debug("merged duplicate chunks", "merged", len(res.Merged))
	}
	return res, nil
}

func candidate(cg *graph.ChunkGraph, c *graph.Chunk) bool {
	return c.Kind != graph.KindRuntime && !cg.HasEntryModules(c.Ukey) && cg.ChunkModuleCount(c.Ukey) > 0
}

func sameUsage(cg *graph.ChunkGraph, mg *ir.ModuleGraph, a, b *graph.Chunk, strict bool) (bool, error) {
	if a.Runtime.Equal(b.Runtime) {
		return true, nil
	}
	for _, id := range cg.ChunkModules(a.Ukey) {
		m, ok := mg.Module(id)
		if !ok {
			if strict {
				return false, fmt.Errorf("%w: %s", ErrMissingModule, id)
			}
			return false, nil
		}
		if m.UsageKey(a.Runtime) != m.UsageKey(b.Runtime) {
			return false, nil
		}
	}
	return true, nil
}

// into moves b's group memberships to a and removes b.
func into(cg *graph.ChunkGraph, a, b *graph.Chunk) {
	for _, g := range b.Groups() {
		cg.ReplaceChunkInGroup(g, b.Ukey, a.Ukey)
	}
	a.Runtime = a.Runtime.Union(b.Runtime)
	cg.RemoveChunk(b.Ukey)
}

// RemoveEmpty drops async chunks without modules and returns how many it
// removed. Their groups stay, possibly with no chunks.
func RemoveEmpty(cg *graph.ChunkGraph) int {
	n := 0
	for _, c := range cg.Chunks() {
		if c.Kind == graph.KindAsync && cg.ChunkModuleCount(c.Ukey) == 0 {
			cg.RemoveChunk(c.Ukey)
			n++
		}
	}
	return n
}
