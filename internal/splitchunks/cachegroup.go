package splitchunks

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
)

// ChunkType selects the chunks a cache group may split from.
type ChunkType int

const (
	// ChunksAsync limits a cache group to chunks never loaded initially.
	ChunksAsync ChunkType = iota
	// ChunksInitial limits a cache group to initial chunks.
	ChunksInitial
	// ChunksAll accepts every chunk.
	ChunksAll
)

// ParseChunkType parses "async", "initial" or "all".
func ParseChunkType(s string) (ChunkType, error) {
	switch s {
	case "", "async":
		return ChunksAsync, nil
	case "initial":
		return ChunksInitial, nil
	case "all":
		return ChunksAll, nil
	}
	return 0, fmt.Errorf("unknown chunks value %q (want initial, async or all)", s)
}

func (t ChunkType) String() string {
	switch t {
	case ChunksInitial:
		return "initial"
	case ChunksAll:
		return "all"
	default:
		return "async"
	}
}

// ErrInvalidCacheGroup classifies cache-group validation failures.
var ErrInvalidCacheGroup = errors.New("invalid cache group")

// CacheGroup is one extraction rule.
type CacheGroup struct {
	// Key identifies the group and prefixes generated chunk names.
	Key string

	// Test matches module ids; nil matches every module.
	Test *regexp.Regexp
	// Type and Layer, when set, must equal the module's.
	Type  string
	Layer string

	Chunks ChunkType
	// ChunkFilter replaces Chunks when set.
	ChunkFilter func(cg *graph.ChunkGraph, c *graph.Chunk) bool

	// MinChunks is the least number of chunks a module must share;
	// values below 1 mean 1.
	MinChunks int

	// MinSize must be reached for every listed source type.
	MinSize ir.Sizes
	// MaxSize, for listed types, triggers part splitting.
	MaxSize ir.Sizes

	Priority int

	ReuseExistingChunk bool

	// Name puts every extracted module of the group into one chunk of
	// that name.
	Name string
}

// Validate reports configuration errors.
func (g *CacheGroup) Validate() error {
	if g.Key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidCacheGroup)
	}
	if g.MinChunks < 0 {
		return fmt.Errorf("%w %q: minChunks %d is negative", ErrInvalidCacheGroup, g.Key, g.MinChunks)
	}
	for _, t := range g.MinSize.Types() {
		if g.MinSize[t] < 0 {
			return fmt.Errorf("%w %q: minSize.%s is negative", ErrInvalidCacheGroup, g.Key, t)
		}
	}
	for _, t := range g.MaxSize.Types() {
		if g.MaxSize[t] <= 0 {
			return fmt.Errorf("%w %q: maxSize.%s must be positive", ErrInvalidCacheGroup, g.Key, t)
		}
		if g.MaxSize[t] < g.MinSize[t] {
			return fmt.Errorf("%w %q: maxSize.%s is below minSize", ErrInvalidCacheGroup, g.Key, t)
		}
	}
	return nil
}

func (g *CacheGroup) minChunks() int {
	return max(1, g.MinChunks)
}

func (g *CacheGroup) matchesModule(m *ir.Module) bool {
	if g.Test != nil && !g.Test.MatchString(string(m.ID)) {
		return false
	}
	if g.Type != "" && g.Type != m.Type {
		return false
	}
	if g.Layer != "" && g.Layer != m.Layer {
		return false
	}
	return true
}

func (g *CacheGroup) matchesChunk(cg *graph.ChunkGraph, c *graph.Chunk) bool {
	if g.ChunkFilter != nil {
		return g.ChunkFilter(cg, c)
	}
	switch g.Chunks {
	case ChunksAll:
		return true
	case ChunksInitial:
		return cg.IsChunkInitial(c.Ukey)
	default:
		return !cg.IsChunkInitial(c.Ukey)
	}
}

// reachesMin reports whether s reaches floor for every type floor lists.
func reachesMin(s, floor ir.Sizes) bool {
	for t, v := range floor {
		if s[t] < v {
			return false
		}
	}
	return true
}

// exceedsMax reports whether s is above ceil for some type ceil lists.
func exceedsMax(s, ceil ir.Sizes) bool {
	for t, v := range ceil {
		if s[t] > v {
			return true
		}
	}
	return false
}
