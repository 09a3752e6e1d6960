package splitchunks

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
)

var (
	// ErrNameConflict: a cache group name belongs to an entry or runtime chunk.
	ErrNameConflict = errors.New("cache group name is taken by an entry or runtime chunk")

	// ErrMissingModule: a chunk module is absent from the module graph.
	ErrMissingModule = errors.New("chunk module not in module graph")
)

// Options controls splitting.
type Options struct {
	CacheGroups []CacheGroup
	Logger      *slog.Logger

	// Strict fails on chunk modules missing from the module graph instead
	// of leaving them where they are.
	Strict bool
}

// Result summarizes a Split run.
type Result struct {
	// Created lists new chunks in creation order, parts included.
	Created []graph.ChunkUkey

	// Reused counts extractions into chunks that already existed.
	Reused int

	// Skipped counts candidates dropped for missing minSize or minChunks.
	Skipped int

	// Parts counts chunks added by maxSize splitting.
	Parts int
}

type candidate struct {
	key      string
	group    int
	priority int
	modules  map[ir.ModuleID]struct{}
	chunks   map[graph.ChunkUkey]struct{}
	sizes    ir.Sizes
}

func (c *candidate) moduleIDs() []ir.ModuleID {
	return slices.Sorted(maps.Keys(c.modules))
}

func (c *candidate) chunkKeys() []graph.ChunkUkey {
	return slices.Sorted(maps.Keys(c.chunks))
}

func (c *candidate) sizeReduction() int64 {
	return c.sizes.Total() * int64(len(c.chunks)-1)
}

// compareCandidates orders a before b when a should be extracted first.
func compareCandidates(a, b *candidate) int {
	if c := cmp.Compare(b.priority, a.priority); c != 0 {
		return c
	}
	if c := cmp.Compare(len(b.chunks), len(a.chunks)); c != 0 {
		return c
	}
	if c := cmp.Compare(b.sizeReduction(), a.sizeReduction()); c != 0 {
		return c
	}
	if c := cmp.Compare(len(b.modules), len(a.modules)); c != 0 {
		return c
	}
	if c := slices.Compare(a.moduleIDs(), b.moduleIDs()); c != 0 {
		return c
	}
	return strings.Compare(a.key, b.key)
}

type splitter struct {
	cg     *graph.ChunkGraph
	mg     *ir.ModuleGraph
	groups []CacheGroup
	opts   Options
	log    *slog.Logger
	res    *Result

	cands    map[string]*candidate
	produced map[graph.ChunkUkey]int
}

// Split runs every cache group over cg.
func Split(cg *graph.ChunkGraph, mg *ir.ModuleGraph, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	keys := make(map[string]bool, len(opts.CacheGroups))
	for i := range opts.CacheGroups {
		g := &opts.CacheGroups[i]
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if keys[g.Key] {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrInvalidCacheGroup, g.Key)
		}
		keys[g.Key] = true
	}
	s := &splitter{
		cg:       cg,
		mg:       mg,
		groups:   opts.CacheGroups,
		opts:     opts,
		log:      log,
		res:      &Result{},
		cands:    make(map[string]*candidate),
		produced: make(map[graph.ChunkUkey]int),
	}
	if len(s.groups) == 0 {
		return s.res, nil
	}
	if err := s.collect(); err != nil {
		return nil, err
	}
	if err := s.extract(); err != nil {
		return nil, err
	}
	s.enforceMaxSize()
	log.Debug("split chunks",
		"created", len(s.res.Created),
		"reused", s.res.Reused,
		"skipped", s.res.Skipped,
		"parts", s.res.Parts)
	return s.res, nil
}

func (s *splitter) collect() error {
	type chunkSet struct {
		key  string
		bits *bitset.BitSet
	}
	moduleSets := make(map[ir.ModuleID]*bitset.BitSet)
	distinct := make(map[string]*bitset.BitSet)
	var order []ir.ModuleID
	for _, m := range s.cg.Modules() {
		bits := bitset.New(0)
		for _, c := range s.cg.ModuleChunks(m) {
			if !s.cg.IsEntryModuleInChunk(m, c) {
				bits.Set(uint(c))
			}
		}
		if bits.Count() == 0 {
			continue
		}
		moduleSets[m] = bits
		distinct[bitsKey(bits)] = bits
		order = append(order, m)
	}
	sets := make([]chunkSet, 0, len(distinct))
	for _, k := range slices.Sorted(maps.Keys(distinct)) {
		sets = append(sets, chunkSet{key: k, bits: distinct[k]})
	}

	for _, id := range order {
		mod, ok := s.mg.Module(id)
		if !ok {
			if s.opts.Strict {
				return fmt.Errorf("%w: %s", ErrMissingModule, id)
			}
			s.log.Warn("module not in module graph, not splitting it", "module", id)
			continue
		}
		own := moduleSets[id]
		var combos []*bitset.BitSet
		for _, set := range sets {
			if own.IsSuperSet(set.bits) {
				combos = append(combos, set.bits)
			}
		}
		for gi := range s.groups {
			grp := &s.groups[gi]
			if !grp.matchesModule(mod) {
				continue
			}
			for _, combo := range combos {
				var selected []graph.ChunkUkey
				for i, ok := combo.NextSet(0); ok; i, ok = combo.NextSet(i + 1) {
					c := s.cg.MustChunk(graph.ChunkUkey(i))
					if grp.matchesChunk(s.cg, c) {
						selected = append(selected, c.Ukey)
					}
				}
				if len(selected) < grp.minChunks() {
					continue
				}
				s.add(gi, mod, selected)
			}
		}
	}

	for _, k := range slices.Sorted(maps.Keys(s.cands)) {
		c := s.cands[k]
		c.sizes = s.sizeOf(c.moduleIDs())
		if !reachesMin(c.sizes, s.groups[c.group].MinSize) {
			delete(s.cands, k)
			s.res.Skipped++
		}
	}
	return nil
}

func (s *splitter) add(gi int, mod *ir.Module, chunks []graph.ChunkUkey) {
	grp := &s.groups[gi]
	var key string
	if grp.Name != "" {
		key = grp.Key + "|name:" + grp.Name
	} else {
		parts := make([]string, len(chunks))
		for i, c := range chunks {
			parts[i] = strconv.FormatUint(uint64(c), 10)
		}
		key = grp.Key + "|" + strings.Join(parts, ",")
	}
	c, ok := s.cands[key]
	if !ok {
		c = &candidate{
			key:      key,
			group:    gi,
			priority: grp.Priority,
			modules:  make(map[ir.ModuleID]struct{}),
			chunks:   make(map[graph.ChunkUkey]struct{}),
		}
		s.cands[key] = c
	}
	c.modules[mod.ID] = struct{}{}
	for _, u := range chunks {
		c.chunks[u] = struct{}{}
	}
}

func (s *splitter) sizeOf(ids []ir.ModuleID) ir.Sizes {
	total := ir.Sizes{}
	for _, id := range ids {
		if m, ok := s.mg.Module(id); ok {
			total = total.Plus(m.Sizes)
		}
	}
	return total
}

func (s *splitter) best() *candidate {
	var best *candidate
	for _, c := range s.cands {
		if best == nil || compareCandidates(c, best) < 0 {
			best = c
		}
	}
	return best
}

func (s *splitter) extract() error {
	for len(s.cands) > 0 {
		item := s.best()
		delete(s.cands, item.key)
		grp := &s.groups[item.group]
		mods := item.moduleIDs()

		var used []graph.ChunkUkey
		for _, c := range item.chunkKeys() {
			if slices.ContainsFunc(mods, func(m ir.ModuleID) bool { return s.cg.IsModuleInChunk(m, c) }) {
				used = append(used, c)
			}
		}
		if len(used) < grp.minChunks() {
			s.res.Skipped++
			continue
		}

		target, err := s.target(grp, mods, used)
		if err != nil {
			return err
		}
		for _, c := range used {
			if c == target {
				continue
			}
			for _, m := range mods {
				if !s.cg.IsEntryModuleInChunk(m, c) {
					s.cg.DisconnectChunkAndModule(c, m)
				}
			}
			for _, g := range s.cg.MustChunk(c).Groups() {
				s.cg.InsertChunkBefore(target, g, c)
			}
		}
		for _, m := range mods {
			s.cg.ConnectChunkAndModule(target, m)
		}
		tc := s.cg.MustChunk(target)
		tc.Runtime = s.cg.GroupsRuntime(target)
		if _, seen := s.produced[target]; !seen {
			s.produced[target] = item.group
		}
		s.log.Debug("extracted module group",
			"cache_group", grp.Key, "chunk", tc.Name, "modules", len(mods), "chunks", len(used))

		s.shrink(used, mods)
	}
	return nil
}

// target returns the chunk receiving an extracted module group.
func (s *splitter) target(grp *CacheGroup, mods []ir.ModuleID, used []graph.ChunkUkey) (graph.ChunkUkey, error) {
	if grp.Name != "" {
		if c, ok := s.cg.NamedChunk(grp.Name); ok {
			if c.Kind == graph.KindRuntime || s.cg.HasEntryModules(c.Ukey) {
				return 0, fmt.Errorf("%w: %q (cache group %s)", ErrNameConflict, grp.Name, grp.Key)
			}
			s.res.Reused++
			return c.Ukey, nil
		}
		return s.newChunk(grp.Name), nil
	}
	if grp.ReuseExistingChunk {
		for _, c := range used {
			if s.cg.ChunkModuleCount(c) != len(mods) || s.cg.HasEntryModules(c) {
				continue
			}
			if !slices.ContainsFunc(mods, func(m ir.ModuleID) bool { return !s.cg.IsModuleInChunk(m, c) }) {
				s.res.Reused++
				return c, nil
			}
		}
	}
	return s.newChunk(grp.Key + "-" + ir.ShortHash(mods)), nil
}

func (s *splitter) newChunk(name string) graph.ChunkUkey {
	if _, taken := s.cg.NamedChunk(name); taken {
		c := s.cg.NewChunk("", graph.KindAsync)
		s.cg.RenameChunk(c.Ukey, name+"-"+strconv.FormatUint(uint64(c.Ukey), 10))
		s.res.Created = append(s.res.Created, c.Ukey)
		return c.Ukey
	}
	c := s.cg.NewChunk(name, graph.KindAsync)
	s.res.Created = append(s.res.Created, c.Ukey)
	return c.Ukey
}

// shrink removes extracted modules from candidates sharing a used chunk.
func (s *splitter) shrink(used []graph.ChunkUkey, mods []ir.ModuleID) {
	for _, k := range slices.Sorted(maps.Keys(s.cands)) {
		c := s.cands[k]
		if !slices.ContainsFunc(used, func(u graph.ChunkUkey) bool { _, ok := c.chunks[u]; return ok }) {
			continue
		}
		changed := false
		for _, m := range mods {
			if _, ok := c.modules[m]; ok {
				delete(c.modules, m)
				changed = true
			}
		}
		if !changed {
			continue
		}
		if len(c.modules) == 0 {
			delete(s.cands, k)
			continue
		}
		c.sizes = s.sizeOf(c.moduleIDs())
		if !reachesMin(c.sizes, s.groups[c.group].MinSize) {
			delete(s.cands, k)
			s.res.Skipped++
		}
	}
}

// enforceMaxSize cuts produced chunks above their group's maxSize.
func (s *splitter) enforceMaxSize() {
	for _, u := range slices.Sorted(maps.Keys(s.produced)) {
		grp := &s.groups[s.produced[u]]
		if len(grp.MaxSize) == 0 || s.cg.HasEntryModules(u) {
			continue
		}
		mods := s.cg.ChunkModules(u)
		if !exceedsMax(s.sizeOf(mods), grp.MaxSize) {
			continue
		}
		parts := s.parts(grp, mods)
		if len(parts) < 2 {
			continue
		}
		orig := s.cg.MustChunk(u)
		for _, part := range parts[1:] {
			p := s.newChunk(orig.Name + "-" + ir.ShortHash(part))
			for _, m := range part {
				s.cg.DisconnectChunkAndModule(u, m)
				s.cg.ConnectChunkAndModule(p, m)
			}
			for _, g := range orig.Groups() {
				s.cg.InsertChunkBefore(p, g, u)
			}
			s.cg.MustChunk(p).Runtime = s.cg.GroupsRuntime(p)
			s.res.Parts++
		}
		s.log.Debug("split oversized chunk", "chunk", orig.Name, "parts", len(parts))
	}
}

// parts walks mods in id order, closing a part once it reaches minSize and
// the next module would push it over maxSize. A trailing part below
// minSize joins the previous one.
func (s *splitter) parts(grp *CacheGroup, mods []ir.ModuleID) [][]ir.ModuleID {
	var parts [][]ir.ModuleID
	var cur []ir.ModuleID
	curSize := ir.Sizes{}
	for _, m := range mods {
		ms := s.sizeOf([]ir.ModuleID{m})
		if len(cur) > 0 && reachesMin(curSize, grp.MinSize) && exceedsMax(curSize.Plus(ms), grp.MaxSize) {
			parts = append(parts, cur)
			cur, curSize = nil, ir.Sizes{}
		}
		cur = append(cur, m)
		curSize = curSize.Plus(ms)
	}
	if len(cur) > 0 {
		if len(parts) > 0 && !reachesMin(curSize, grp.MinSize) {
			parts[len(parts)-1] = append(parts[len(parts)-1], cur...)
		} else {
			parts = append(parts, cur)
		}
	}
	return parts
}

func bitsKey(b *bitset.BitSet) string {
	var sb strings.Builder
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(i), 10))
	}
	return sb.String()
}
