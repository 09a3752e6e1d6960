package testutil

import (
	"fmt"
	"math/rand"

	"github.com/roach88/chunkgraph/internal/ir"
)

// RandomOptions shapes RandomGraph output.
type RandomOptions struct {
	Modules int
	Entries int

	// MaxDeps bounds the static dependencies per module.
	MaxDeps int

	// BlockPercent is the chance (0-100) that a module declares a block.
	BlockPercent int

	// AllowCycles lets dependencies point at any module, which produces
	// circular imports and cyclic chunk-group graphs. Without it every edge
	// points to a higher module index and the group graph is acyclic.
	AllowCycles bool

	// Runtimes, when non-empty, are assigned round-robin to entries and get
	// random used exports.
	Runtimes []string
}

// RandomGraph generates a module graph from seed. Equal seeds and options
// give equal graphs.
func RandomGraph(seed int64, opts RandomOptions) *ir.ModuleGraph {
	if opts.Modules < 2 {
		opts.Modules = 2
	}
	if opts.Entries < 1 {
		opts.Entries = 1
	}
	r := rand.New(rand.NewSource(seed))
	name := func(i int) string { return fmt.Sprintf("m%03d", i) }

	// pick returns a dependency target for module i, or -1.
	pick := func(i int) int {
		if opts.AllowCycles {
			j := r.Intn(opts.Modules)
			if j == i {
				return -1
			}
			return j
		}
		if i+1 >= opts.Modules {
			return -1
		}
		return i + 1 + r.Intn(opts.Modules-i-1)
	}
	uniq := func(i, n int) []string {
		seen := map[int]bool{}
		var out []string
		for k := 0; k < n; k++ {
			if j := pick(i); j >= 0 && !seen[j] {
				seen[j] = true
				out = append(out, name(j))
			}
		}
		return out
	}

	b := NewGraph()
	for i := 0; i < opts.Modules; i++ {
		m := ir.Module{
			ID:    ir.ModuleID(name(i)),
			Sizes: ir.Sizes{ir.SourceJavaScript: int64(1 + r.Intn(500))},
		}
		if r.Intn(5) == 0 {
			m.Sizes[ir.SourceCSS] = int64(1 + r.Intn(200))
		}
		if opts.MaxDeps > 0 {
			m.Dependencies = ids(uniq(i, r.Intn(opts.MaxDeps+1)))
		}
		for _, rt := range opts.Runtimes {
			if r.Intn(2) == 0 {
				continue
			}
			if m.UsedExports == nil {
				m.UsedExports = make(map[string][]string)
			}
			m.UsedExports[rt] = []string{"default"}
			if r.Intn(2) == 0 {
				m.UsedExports[rt] = append(m.UsedExports[rt], "named")
			}
		}
		b.ModuleWith(m)
	}
	for i := 0; i < opts.Modules; i++ {
		if r.Intn(100) >= opts.BlockPercent {
			continue
		}
		deps := uniq(i, 1+r.Intn(3))
		if len(deps) == 0 {
			continue
		}
		b.Lazy(name(i), fmt.Sprintf("%s#0", name(i)), "", deps...)
	}

	span := max(1, opts.Modules/3)
	for e := 0; e < opts.Entries; e++ {
		entry := ir.Entry{Name: fmt.Sprintf("entry%d", e)}
		for k := 0; k <= r.Intn(2); k++ {
			entry.Dependencies = append(entry.Dependencies, ir.ModuleID(name(r.Intn(span))))
		}
		if len(opts.Runtimes) > 0 {
			entry.Runtime = opts.Runtimes[e%len(opts.Runtimes)]
		}
		b.EntryWith(entry)
	}
	return b.Build()
}
