package graph

import (
	"fmt"
	"slices"
)

// InconsistencyError reports a broken index invariant.
type InconsistencyError struct {
	Message string
}

func (e *InconsistencyError) Error() string {
	return "graph: inconsistent index: " + e.Message
}

// CheckConsistency verifies the bijective module↔chunk index and the
// symmetric chunk↔group and parent↔child adjacency. It returns the first
// violation found, scanning in ukey order.
func (g *ChunkGraph) CheckConsistency() error {
	for _, c := range g.ChunkKeys() {
		for _, m := range g.ChunkModules(c) {
			if _, ok := g.moduleChunks[m][c]; !ok {
				return &InconsistencyError{Message: fmt.Sprintf("chunk %d lists module %q without the reverse entry", c, m)}
			}
		}
		for m := range g.entryModules[c] {
			if !g.IsModuleInChunk(m, c) {
				return &InconsistencyError{Message: fmt.Sprintf("entry module %q of chunk %d is not in the chunk", m, c)}
			}
		}
		for _, grp := range g.chunks[c].Groups() {
			cg, ok := g.groups[grp]
			if !ok {
				return &InconsistencyError{Message: fmt.Sprintf("chunk %d lists unknown group %d", c, grp)}
			}
			if !slices.Contains(cg.chunks, c) {
				return &InconsistencyError{Message: fmt.Sprintf("chunk %d lists group %d without the reverse entry", c, grp)}
			}
		}
	}
	for _, m := range g.Modules() {
		for _, c := range g.ModuleChunks(m) {
			if !g.IsModuleInChunk(m, c) {
				return &InconsistencyError{Message: fmt.Sprintf("module %q lists chunk %d without the reverse entry", m, c)}
			}
		}
	}
	for _, grp := range g.GroupKeys() {
		cg := g.groups[grp]
		seen := make(map[ChunkUkey]struct{}, len(cg.chunks))
		for _, c := range cg.chunks {
			chunk, ok := g.chunks[c]
			if !ok {
				return &InconsistencyError{Message: fmt.Sprintf("group %d lists unknown chunk %d", grp, c)}
			}
			if !chunk.InGroup(grp) {
				return &InconsistencyError{Message: fmt.Sprintf("group %d lists chunk %d without the reverse entry", grp, c)}
			}
			if _, dup := seen[c]; dup {
				return &InconsistencyError{Message: fmt.Sprintf("group %d lists chunk %d twice", grp, c)}
			}
			seen[c] = struct{}{}
		}
		for _, child := range cg.Children() {
			cc, ok := g.groups[child]
			if !ok || !cc.HasParent(grp) {
				return &InconsistencyError{Message: fmt.Sprintf("edge %d→%d has no reverse entry", grp, child)}
			}
		}
		for _, parent := range cg.Parents() {
			pg, ok := g.groups[parent]
			if !ok {
				return &InconsistencyError{Message: fmt.Sprintf("group %d lists unknown parent %d", grp, parent)}
			}
			if _, ok := pg.children[grp]; !ok {
				return &InconsistencyError{Message: fmt.Sprintf("edge %d→%d has no forward entry", parent, grp)}
			}
		}
	}
	for _, b := range g.Blocks() {
		if grp := g.blockGroups[b]; g.groups[grp] == nil {
			return &InconsistencyError{Message: fmt.Sprintf("block %q targets unknown group %d", b, grp)}
		}
	}
	return nil
}
