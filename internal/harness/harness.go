package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/chunkgraph/internal/config"
	"github.com/roach88/chunkgraph/internal/engine"
	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
	"github.com/roach88/chunkgraph/internal/store"
	"github.com/roach88/chunkgraph/internal/testutil"
)

// Harness is the scenario execution engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory snapshot store with
// sequential snapshot ids, so runs are reproducible.
//
// Execution flow:
// 1. Load the config and create the engine
// 2. Build the module graph
// 3. If a rebuild step is present, save the snapshot, load it back,
// validate it against the new graph and rebuild from it
// 4. Check the build error against expect_error
// 5. Evaluate assertions against the final chunk graph
//
// An error is returned only when the scenario cannot be executed at all;
// expectation failures are reported on the Result.
func Run(scenario *Scenario) (*Result, error) {
	cfg := config.Default()
	if scenario.Config != "" {
		loaded, err := config.Load(scenario.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	st, err := store.Open(":memory:", store.WithIDGenerator(testutil.NewSequentialIDs()))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		store:  st,
		engine: engine.New(append(cfg.EngineOptions(), engine.WithLogger(logger))...),
		logger: logger,
	}

	ctx := context.Background()
	result := NewResult()

	res, buildErr := h.engine.Build(ctx, scenario.Graph)
	if scenario.Rebuild != nil {
		if buildErr != nil {
			return nil, fmt.Errorf("first build failed: %w", buildErr)
		}
		res, buildErr = h.rebuild(ctx, scenario, res, result)
	}

	if !h.checkError(scenario, buildErr, result) {
		return result, nil
	}
	result.Graph = res.Graph
	result.Stats = res.Stats

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// rebuild persists the first build, restores it through the store and
// rebuilds the changed graph from it. The rebuilt graph must render
// identically to a full build of the changed graph.
func (h *Harness) rebuild(ctx context.Context, scenario *Scenario, first *engine.Result, result *Result) (*engine.Result, error) {
	step := scenario.Rebuild
	id, err := h.store.SaveSnapshot(ctx, scenario.Name, first.Snapshot())
	if err != nil {
		return nil, err
	}
	rec, err := h.store.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	v, err := store.Validate(rec.Snapshot, step.Graph, step.Delta, h.engine.Fingerprint())
	if err != nil {
		return nil, err
	}
	result.Reuse = v.Reuse
	h.logger.Info("snapshot validated",
		"snapshot", id,
		"reuse", v.Reuse.String(),
		"reason", v.Reason,
	)

	var res *engine.Result
	switch v.Reuse {
	case store.ReuseNone:
		res, err = h.engine.Build(ctx, step.Graph)
	default:
		prev, rerr := engine.Restore(rec.Snapshot)
		if rerr != nil {
			return nil, rerr
		}
		res, err = h.engine.Rebuild(ctx, prev, step.Graph, step.Delta)
	}
	if err != nil {
		return nil, err
	}

	full, err := h.engine.Build(ctx, step.Graph)
	if err != nil {
		return nil, err
	}
	if got, want := string(graph.Render(res.Graph)), string(graph.Render(full.Graph)); got != want {
		result.AddError(fmt.Sprintf("rebuild diverges from full build\n--- rebuild\n%s--- full\n%s", got, want))
	}
	return res, nil
}

// checkError compares the build error with the scenario's expectation.
// It reports whether the build succeeded.
func (h *Harness) checkError(scenario *Scenario, err error, result *Result) bool {
	result.Err = err
	want := scenario.ExpectError
	switch {
	case err == nil && want != "":
		result.AddError(fmt.Sprintf("expected error %s, build succeeded", want))
	case err != nil && want == "":
		result.AddError(fmt.Sprintf("build failed: %v", err))
	case err != nil && string(engine.CodeOf(err)) != want:
		result.AddError(fmt.Sprintf("expected error %s, got %v", want, err))
	case err != nil:
		h.logger.Info("build failed as expected", "code", want)
	}
	return err == nil
}

// groupModules returns the modules of every chunk of the group the name
// resolves to: an entrypoint, then a block id, then a named group.
func groupModules(cg *graph.ChunkGraph, name string) ([]ir.ModuleID, bool) {
	var grp *graph.ChunkGroup
	if g, ok := cg.Entrypoint(name); ok {
		grp = g
	} else if u, ok := cg.BlockGroup(ir.BlockID(name)); ok {
		grp = cg.MustGroup(u)
	} else if g, ok := cg.NamedGroup(name); ok {
		grp = g
	} else {
		return nil, false
	}

	seen := make(map[ir.ModuleID]struct{})
	var out []ir.ModuleID
	for _, c := range grp.Chunks() {
		for _, m := range cg.ChunkModules(c) {
			if _, dup := seen[m]; !dup {
				seen[m] = struct{}{}
				out = append(out, m)
			}
		}
	}
	return out, true
}
