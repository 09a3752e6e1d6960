package partition

import (
	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
)

// propagateRuntimes seeds entrypoint groups with their runtime name and
// flows runtimes into normal groups until nothing changes. Entrypoints of
// either kind keep only their own runtime. Chunk runtimes are the union
// over their groups.
func propagateRuntimes(cg *graph.ChunkGraph, names map[graph.GroupUkey]string) {
	for _, u := range cg.GroupKeys() {
		if name, ok := names[u]; ok {
			cg.MustGroup(u).Runtime = ir.NewRuntimeSpec(name)
		}
	}
	work := cg.GroupKeys()
	for len(work) > 0 {
		grp := cg.MustGroup(work[0])
		work = work[1:]
		for _, child := range grp.Children() {
			c := cg.MustGroup(child)
			if c.Kind != graph.GroupNormal {
				continue
			}
			merged := c.Runtime.Union(grp.Runtime)
			if !merged.Equal(c.Runtime) {
				c.Runtime = merged
				work = append(work, child)
			}
		}
	}
	for _, c := range cg.Chunks() {
		c.Runtime = cg.GroupsRuntime(c.Ukey)
	}
}
