package partition

import (
	"log/slog"

	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
)

// Options controls partitioning.
type Options struct {
	// Strict returns invariant violations (missing modules or blocks) as
	// errors. Otherwise they are logged and the malformed edge is skipped.
	Strict bool

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// ChunkFact is one entry of the queue handed to the availability analyzer.
type ChunkFact struct {
	Chunk graph.ChunkUkey
	Group graph.GroupUkey

	// UnrootedInitial is set when the group is an entrypoint with incoming
	// depend-on edges.
	UnrootedInitial bool
}

// Result is the partitioner output.
type Result struct {
	Graph *graph.ChunkGraph
	Facts []ChunkFact

	// Skipped counts malformed edges dropped in non-strict mode.
	Skipped int
}

type queueItem struct {
	module ir.ModuleID
	group  graph.GroupUkey
	entry  bool

	// origin names the entry or block that enqueued the item, for
	// diagnostics.
	origin string
}

type partitioner struct {
	mg     *ir.ModuleGraph
	opts   Options
	log    *slog.Logger
	cg     *graph.ChunkGraph
	queue  []queueItem
	seen   map[graph.GroupUkey]map[ir.ModuleID]struct{}
	asyncE map[string]graph.GroupUkey
	rtName map[graph.GroupUkey]string

	runtimeChunks map[string]graph.ChunkUkey
	skipped       int
}

// Partition walks mg from its entries and returns the initial chunk graph.
func Partition(mg *ir.ModuleGraph, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &partitioner{
		mg:            mg,
		opts:          opts,
		log:           log,
		cg:            graph.New(),
		seen:          make(map[graph.GroupUkey]map[ir.ModuleID]struct{}),
		asyncE:        make(map[string]graph.GroupUkey),
		rtName:        make(map[graph.GroupUkey]string),
		runtimeChunks: make(map[string]graph.ChunkUkey),
	}
	if err := p.seedEntries(); err != nil {
		return nil, err
	}
	if err := p.walk(); err != nil {
		return nil, err
	}
	propagateRuntimes(p.cg, p.rtName)

	res := &Result{Graph: p.cg, Skipped: p.skipped}
	for _, grp := range p.cg.Groups() {
		for _, c := range grp.Chunks() {
			res.Facts = append(res.Facts, ChunkFact{
				Chunk:           c,
				Group:           grp.Ukey,
				UnrootedInitial: grp.IsDependentEntry(),
			})
		}
	}
	log.Debug("partitioned module graph",
		"entries", len(mg.Entries),
		"groups", len(p.cg.GroupKeys()),
		"chunks", len(p.cg.ChunkKeys()),
		"modules", len(p.cg.Modules()),
		"skipped", p.skipped)
	return res, nil
}

func (p *partitioner) seedEntries() error {
	byName := make(map[string]*ir.Entry, len(p.mg.Entries))
	for i := range p.mg.Entries {
		e := &p.mg.Entries[i]
		if _, dup := byName[e.Name]; dup {
			return &Error{Err: ErrDuplicateEntry, Name: e.Name}
		}
		byName[e.Name] = e
	}
	if err := checkDependOn(p.mg.Entries, byName); err != nil {
		return err
	}

	names := make(map[string]string, len(p.mg.Entries))
	for _, e := range p.mg.Entries {
		names[e.Name] = runtimeOf(e.Name, byName)
	}

	for _, e := range p.mg.Entries {
		grp := p.cg.NewGroup(e.Name, graph.GroupEntrypoint)
		chunk := p.cg.NewChunk(e.Name, graph.KindEntry)
		p.cg.ConnectChunkAndGroup(chunk.Ukey, grp.Ukey)
		p.rtName[grp.Ukey] = names[e.Name]

		if e.Runtime != "" && e.Runtime != e.Name {
			if _, clash := byName[e.Runtime]; clash {
				return &Error{Err: ErrNameConflict, Name: e.Runtime}
			}
			rc, ok := p.runtimeChunks[e.Runtime]
			if !ok {
				rc = p.cg.NewChunk(e.Runtime, graph.KindRuntime).Ukey
				p.runtimeChunks[e.Runtime] = rc
			}
			p.cg.SetRuntimeChunk(grp.Ukey, rc)
		}
		for _, dep := range e.Dependencies {
			p.queue = append(p.queue, queueItem{module: dep, group: grp.Ukey, entry: true, origin: e.Name})
		}
	}

	for _, e := range p.mg.Entries {
		dependent, _ := p.cg.Entrypoint(e.Name)
		for _, target := range e.DependOn {
			tg, _ := p.cg.Entrypoint(target)
			p.cg.ConnectGroups(tg.Ukey, dependent.Ukey)
		}
	}
	return nil
}

// checkDependOn rejects unknown targets and cycles, visiting entries in
// declaration order so the reported entry is stable.
func checkDependOn(entries []ir.Entry, byName map[string]*ir.Entry) error {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(entries))
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case inProgress:
			return &Error{Err: ErrDependOnCycle, Name: name}
		case done:
			return nil
		}
		state[name] = inProgress
		for _, target := range byName[name].DependOn {
			if _, ok := byName[target]; !ok {
				return &Error{Err: ErrUnknownDependOn, Name: target}
			}
			if err := visit(target); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for _, e := range entries {
		if err := visit(e.Name); err != nil {
			return err
		}
	}
	return nil
}

// runtimeOf resolves the runtime name of an entry. A depend-on entry
// without an explicit runtime shares the runtime of its first target.
// The depend-on graph must be acyclic.
func runtimeOf(name string, byName map[string]*ir.Entry) string {
	e := byName[name]
	switch {
	case e.Runtime != "":
		return e.Runtime
	case len(e.DependOn) > 0:
		return runtimeOf(e.DependOn[0], byName)
	default:
		return e.Name
	}
}

func (p *partitioner) walk() error {
	for len(p.queue) > 0 {
		item := p.queue[0]
		p.queue = p.queue[1:]
		if err := p.visit(item); err != nil {
			return err
		}
	}
	return nil
}

func (p *partitioner) visit(item queueItem) error {
	m, ok := p.mg.Module(item.module)
	if !ok {
		return p.invariant(&Error{Err: ErrMissingModule, Module: item.module, Name: item.origin})
	}
	grp := p.cg.MustGroup(item.group)
	main := grp.MainChunk()
	if item.entry {
		p.cg.ConnectChunkAndEntryModule(main, m.ID, grp.Ukey)
	}

	seen := p.seen[grp.Ukey]
	if seen == nil {
		seen = make(map[ir.ModuleID]struct{})
		p.seen[grp.Ukey] = seen
	}
	if _, done := seen[m.ID]; done {
		return nil
	}
	seen[m.ID] = struct{}{}
	p.cg.ConnectChunkAndModule(main, m.ID)

	for _, dep := range m.Dependencies {
		p.queue = append(p.queue, queueItem{module: dep, group: grp.Ukey, origin: item.origin})
	}
	for _, id := range m.Blocks {
		b, ok := p.mg.Block(id)
		if !ok {
			if err := p.invariant(&Error{Err: ErrMissingBlock, Block: id, Module: m.ID}); err != nil {
				return err
			}
			continue
		}
		target, err := p.blockTarget(b)
		if err != nil {
			return err
		}
		p.cg.SetBlockGroup(b.ID, target)
		p.cg.ConnectGroups(grp.Ukey, target)
		for _, dep := range b.Dependencies {
			p.queue = append(p.queue, queueItem{
				module: dep,
				group:  target,
				entry:  b.Entry != nil,
				origin: string(b.ID),
			})
		}
	}
	return nil
}

// blockTarget returns the group a block loads, creating it on first use.
func (p *partitioner) blockTarget(b *ir.AsyncBlock) (graph.GroupUkey, error) {
	if b.Entry != nil {
		return p.asyncEntrypoint(b)
	}
	if b.ChunkName != "" {
		if _, clash := p.cg.Entrypoint(b.ChunkName); clash {
			return 0, &Error{Err: ErrNameConflict, Name: b.ChunkName, Block: b.ID}
		}
		if grp, ok := p.cg.NamedGroup(b.ChunkName); ok {
			return grp.Ukey, nil
		}
	} else if grp, ok := p.cg.BlockGroup(b.ID); ok {
		return grp, nil
	}
	grp := p.cg.NewGroup(b.ChunkName, graph.GroupNormal)
	chunk := p.cg.NewChunk(b.ChunkName, graph.KindAsync)
	p.cg.ConnectChunkAndGroup(chunk.Ukey, grp.Ukey)
	return grp.Ukey, nil
}

func (p *partitioner) asyncEntrypoint(b *ir.AsyncBlock) (graph.GroupUkey, error) {
	name := b.Entry.Name
	if name == "" {
		name = b.ChunkName
	}
	if name != "" {
		if _, clash := p.cg.Entrypoint(name); clash {
			return 0, &Error{Err: ErrNameConflict, Name: name, Block: b.ID}
		}
		if grp, ok := p.asyncE[name]; ok {
			return grp, nil
		}
	} else if grp, ok := p.cg.BlockGroup(b.ID); ok {
		return grp, nil
	}

	grp := p.cg.NewGroup(name, graph.GroupAsyncEntrypoint)
	chunk := p.cg.NewChunk(name, graph.KindEntry)
	p.cg.ConnectChunkAndGroup(chunk.Ukey, grp.Ukey)
	if name != "" {
		p.asyncE[name] = grp.Ukey
	}
	rt := b.Entry.Runtime
	if rt == "" {
		rt = name
	}
	if rt == "" {
		rt = string(b.ID)
	}
	p.rtName[grp.Ukey] = rt
	return grp.Ukey, nil
}

func (p *partitioner) invariant(err *Error) error {
	if p.opts.Strict {
		return err
	}
	p.skipped++
	p.log.Warn("skipping malformed edge", "error", err.Error())
	return nil
}
