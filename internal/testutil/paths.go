package testutil

import (
	"errors"
	"fmt"

	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
)

// ErrPathLimit reports that CheckLoadedOnPaths stopped early.
var ErrPathLimit = errors.New("testutil: path limit reached")

// CheckLoadedOnPaths simulates execution over every simple chunk-group
// path of before, starting at root entrypoints and async entrypoints.
// Entering a group loads the modules of its chunks in after. Every module
// the group held in before must be loaded by then; otherwise it returns an
// error naming the path.
//
// A dependent entrypoint loads its whole depend-on ancestry first. Paths do
// not descend into async entrypoints; those start their own walk with
// nothing loaded. At most limit paths are explored.
func CheckLoadedOnPaths(before, after *graph.ChunkGraph, limit int) error {
	w := &pathWalker{before: before, after: after, limit: limit, onPath: map[graph.GroupUkey]bool{}}
	for _, grp := range before.Groups() {
		if grp.IsRootEntry() || grp.Kind == graph.GroupAsyncEntrypoint {
			if err := w.walk(grp.Ukey, nil, map[ir.ModuleID]bool{}); err != nil {
				return err
			}
		}
	}
	return nil
}

type pathWalker struct {
	before, after *graph.ChunkGraph
	limit, paths  int
	onPath        map[graph.GroupUkey]bool
}

func (w *pathWalker) walk(u graph.GroupUkey, path []graph.GroupUkey, loaded map[ir.ModuleID]bool) error {
	w.paths++
	if w.limit > 0 && w.paths > w.limit {
		return ErrPathLimit
	}
	grp := w.before.MustGroup(u)
	path = append(path, u)

	next := make(map[ir.ModuleID]bool, len(loaded))
	for m := range loaded {
		next[m] = true
	}
	if grp.IsDependentEntry() {
		for _, a := range w.entryAncestors(u) {
			for _, m := range w.after.GroupModules(a) {
				next[m] = true
			}
		}
	}
	for _, m := range w.after.GroupModules(u) {
		next[m] = true
	}
	for _, m := range w.before.GroupModules(u) {
		if !next[m] {
			return fmt.Errorf("module %s not loaded on path %v", m, path)
		}
	}

	w.onPath[u] = true
	defer delete(w.onPath, u)
	for _, child := range grp.Children() {
		if w.onPath[child] || w.before.MustGroup(child).Kind == graph.GroupAsyncEntrypoint {
			continue
		}
		if err := w.walk(child, path, next); err != nil {
			return err
		}
	}
	return nil
}

// entryAncestors returns the entrypoints u transitively depends on.
func (w *pathWalker) entryAncestors(u graph.GroupUkey) []graph.GroupUkey {
	seen := map[graph.GroupUkey]bool{u: true}
	var out []graph.GroupUkey
	work := []graph.GroupUkey{u}
	for len(work) > 0 {
		cur := work[0]
		work = work[1:]
		for _, p := range w.before.MustGroup(cur).Parents() {
			if seen[p] || w.before.MustGroup(p).Kind != graph.GroupEntrypoint {
				continue
			}
			seen[p] = true
			out = append(out, p)
			work = append(work, p)
		}
	}
	return out
}
