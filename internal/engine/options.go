package engine

import (
	"log/slog"
	"slices"

	"github.com/roach88/chunkgraph/internal/ir"
	"github.com/roach88/chunkgraph/internal/splitchunks"
	"github.com/roach88/chunkgraph/internal/workpool"
)

// DefaultWorkers is the default size of the fork-join pool.
const DefaultWorkers = 4

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of goroutines used by parallel phases.
// Values below 2 run every phase inline.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.pool.Workers = n
	}
}

// WithScheduleSeed shuffles task submission order in parallel phases.
// Output never depends on it; tests use it to check that.
func WithScheduleSeed(seed int64) Option {
	return func(e *Engine) {
		e.pool.Seed = seed
	}
}

// WithStrictInvariants makes invariant violations fail the build with an
// InvariantError instead of being logged and skipped.
func WithStrictInvariants(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithCacheGroups sets the cache groups of the split-chunks pass. The slice
// is copied.
func WithCacheGroups(groups ...splitchunks.CacheGroup) Option {
	return func(e *Engine) {
		e.cacheGroups = slices.Clone(groups)
	}
}

// WithRemoveAvailableModules toggles parent-module pruning. Default: on.
func WithRemoveAvailableModules(on bool) Option {
	return func(e *Engine) {
		e.removeAvailable = on
	}
}

// WithRemoveEmptyChunks toggles removal of async chunks left empty by
// pruning. Default: on.
func WithRemoveEmptyChunks(on bool) Option {
	return func(e *Engine) {
		e.removeEmpty = on
	}
}

// WithMergeDuplicateChunks toggles the duplicate-chunk merger. Default: on.
func WithMergeDuplicateChunks(on bool) Option {
	return func(e *Engine) {
		e.mergeDuplicates = on
	}
}

func defaults() *Engine {
	return &Engine{
		pool:            workpool.Pool{Workers: DefaultWorkers},
		log:             slog.Default(),
		removeAvailable: true,
		removeEmpty:     true,
		mergeDuplicates: true,
	}
}

// Fingerprint hashes the options that shape the chunk graph. Workers,
// schedule seed and logger are left out. A result can only be reused by an
// engine with the same fingerprint. It is empty when a cache group carries
// a ChunkFilter, which cannot be hashed; such engines never reuse results.
func (e *Engine) Fingerprint() string {
	groups := make([]any, len(e.cacheGroups))
	for i, g := range e.cacheGroups {
		if g.ChunkFilter != nil {
			return ""
		}
		test := ""
		if g.Test != nil {
			test = g.Test.String()
		}
		groups[i] = map[string]any{
			"key":                  g.Key,
			"test":                 test,
			"type":                 g.Type,
			"layer":                g.Layer,
			"chunks":               g.Chunks.String(),
			"min_chunks":           g.MinChunks,
			"min_size":             sizesObject(g.MinSize),
			"max_size":             sizesObject(g.MaxSize),
			"priority":             g.Priority,
			"reuse_existing_chunk": g.ReuseExistingChunk,
			"name":                 g.Name,
		}
	}
	h, err := ir.HashCanonical(ir.DomainEngine, map[string]any{
		"engine_version":   ir.EngineVersion,
		"strict":           e.strict,
		"remove_available": e.removeAvailable,
		"remove_empty":     e.removeEmpty,
		"merge_duplicates": e.mergeDuplicates,
		"cache_groups":     groups,
	})
	if err != nil {
		// every field above is encodable
		panic(err)
	}
	return h
}

func sizesObject(s ir.Sizes) map[string]any {
	out := make(map[string]any, len(s))
	for t, n := range s {
		out[string(t)] = n
	}
	return out
}
