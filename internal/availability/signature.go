package availability

import (
	"slices"

	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
	"github.com/roach88/chunkgraph/internal/modset"
)

// signer derives cache keys for groups. A signature covers the group's kind
// and, recursively, the signatures and module sets of all its ancestors, so
// it determines the available set without referring to ukeys.
//
// Groups inside a cycle of two or more groups, or reachable from one, have
// no signature: their value depends on forcing order.
type signer struct {
	cg      *graph.ChunkGraph
	modules map[graph.GroupUkey]modset.Set
	ord     *modset.Ordinals
	tainted map[graph.GroupUkey]bool
	memo    map[graph.GroupUkey]string
}

func newSigner(cg *graph.ChunkGraph, modules map[graph.GroupUkey]modset.Set, ord *modset.Ordinals) *signer {
	return &signer{
		cg:      cg,
		modules: modules,
		ord:     ord,
		tainted: Cyclic(cg),
		memo:    make(map[graph.GroupUkey]string),
	}
}

func (s *signer) signature(u graph.GroupUkey) (string, bool) {
	if s.tainted[u] {
		return "", false
	}
	if sig, ok := s.memo[u]; ok {
		return sig, true
	}
	grp := s.cg.MustGroup(u)
	var parents []string
	for _, p := range grp.Parents() {
		if p == u {
			continue
		}
		psig, ok := s.signature(p)
		if !ok {
			return "", false
		}
		parents = append(parents, psig+":"+s.moduleHash(p))
	}
	slices.Sort(parents)

	sig, err := ir.HashCanonical(ir.DomainSignature, map[string]any{
		"kind":      grp.Kind.String(),
		"dependent": grp.IsDependentEntry(),
		"parents":   parents,
	})
	if err != nil {
		return "", false
	}
	s.memo[u] = sig
	return sig, true
}

func (s *signer) moduleHash(u graph.GroupUkey) string {
	ids := s.modules[u].IDs(s.ord)
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	h, err := ir.HashCanonical(ir.DomainSignature, map[string]any{"modules": list})
	if err != nil {
		// module id lists always encode
		panic(err)
	}
	return h
}

// Cyclic returns the groups that sit on a cycle of at least two groups or
// are reachable from one. Self edges do not count.
func Cyclic(cg *graph.ChunkGraph) map[graph.GroupUkey]bool {
	keys := cg.GroupKeys()
	index := make(map[graph.GroupUkey]int, len(keys))
	low := make(map[graph.GroupUkey]int, len(keys))
	onStack := make(map[graph.GroupUkey]bool)
	var stack []graph.GroupUkey
	next := 0
	tainted := make(map[graph.GroupUkey]bool)

	var strongConnect func(u graph.GroupUkey)
	strongConnect = func(u graph.GroupUkey) {
		index[u] = next
		low[u] = next
		next++
		stack = append(stack, u)
		onStack[u] = true
		for _, v := range cg.MustGroup(u).Children() {
			if v == u {
				continue
			}
			if _, seen := index[v]; !seen {
				strongConnect(v)
				low[u] = min(low[u], low[v])
			} else if onStack[v] {
				low[u] = min(low[u], index[v])
			}
		}
		if low[u] != index[u] {
			return
		}
		var scc []graph.GroupUkey
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			scc = append(scc, top)
			if top == u {
				break
			}
		}
		if len(scc) > 1 {
			for _, m := range scc {
				tainted[m] = true
			}
		}
	}
	for _, u := range keys {
		if _, seen := index[u]; !seen {
			strongConnect(u)
		}
	}

	work := make([]graph.GroupUkey, 0, len(tainted))
	for _, u := range keys {
		if tainted[u] {
			work = append(work, u)
		}
	}
	for len(work) > 0 {
		u := work[0]
		work = work[1:]
		for _, v := range cg.MustGroup(u).Children() {
			if !tainted[v] {
				tainted[v] = true
				work = append(work, v)
			}
		}
	}
	return tainted
}
