package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/chunkgraph/internal/engine"
	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
	"github.com/roach88/chunkgraph/internal/store"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Config string // CUE optimization config
	DB     string // snapshot database; enables incremental rebuilds
	Delta  string // YAML delta against the latest snapshot
	Label  string // label of the saved snapshot
	Render bool   // print the rendered chunk graph
}

// BuildResult is the build command's output.
type BuildResult struct {
	GraphHash string       `json:"graph_hash"`
	Reuse     string       `json:"reuse,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Snapshot  string       `json:"snapshot,omitempty"`
	Stats     engine.Stats `json:"stats"`
	Render    string       `json:"render,omitempty"`
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build <graph.yaml>",
		Short: "Build the chunk graph of a module graph",
		Long: `Partition a module graph into chunks and run the optimization passes.

With --db, the latest stored snapshot seeds an incremental rebuild when it
is still valid for the module graph and --delta, and the result is saved as
a new snapshot.

Exit codes:
  0 - Build succeeded
  1 - Build failed (configuration conflict, invariant violation)
  2 - Command error (missing files, unusable database)

Examples:
  chunkgraph build graph.yaml
  chunkgraph build graph.yaml --config chunks.cue --render
  chunkgraph build graph.yaml --db .chunkgraph.db --delta delta.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "CUE optimization config file or directory")
	cmd.Flags().StringVar(&opts.DB, "db", "", "snapshot database path")
	cmd.Flags().StringVar(&opts.Delta, "delta", "", "YAML file listing added, removed and updated modules")
	cmd.Flags().StringVar(&opts.Label, "label", "", "label for the saved snapshot")
	cmd.Flags().BoolVar(&opts.Render, "render", false, "print the rendered chunk graph")

	return cmd
}

func runBuild(opts *BuildOptions, graphPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	mg, err := LoadGraph(graphPath)
	if err != nil {
		return f.Fail(inputExitCode(err), errorCode(err), err.Error(), err)
	}
	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return f.Fail(inputExitCode(err), errorCode(err), err.Error(), err)
	}
	var delta ir.Delta
	if opts.Delta != "" {
		if delta, err = LoadDelta(opts.Delta); err != nil {
			return f.Fail(inputExitCode(err), errorCode(err), err.Error(), err)
		}
	}
	f.VerboseLog("Loaded %d modules and %d entries from %s", len(mg.Modules), len(mg.Entries), graphPath)

	eng := engine.New(append(cfg.EngineOptions(), engine.WithLogger(f.Logger()))...)
	ctx := commandContext(cmd)

	out := BuildResult{}
	var res *engine.Result
	if opts.DB == "" {
		res, err = eng.Build(ctx, mg)
		if err != nil {
			return f.Fail(ExitFailure, errorCode(err), err.Error(), err)
		}
	} else {
		st, err := store.Open(opts.DB)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), err)
		}
		defer st.Close()

		res, err = buildFromStore(ctx, eng, st, mg, delta, &out)
		if err != nil {
			return f.Fail(ExitFailure, errorCode(err), err.Error(), err)
		}
		id, err := st.SaveSnapshot(ctx, opts.Label, res.Snapshot())
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeWriteFailed, err.Error(), err)
		}
		out.Snapshot = id
	}

	out.GraphHash = res.GraphHash
	out.Stats = res.Stats
	if opts.Render {
		out.Render = string(graph.Render(res.Graph))
	}

	if f.JSON() {
		return f.Success(out)
	}
	printBuild(f, out)
	return nil
}

// buildFromStore rebuilds from the latest snapshot when store.Validate
// allows it and builds from scratch otherwise.
func buildFromStore(ctx context.Context, eng *engine.Engine, st *store.Store, mg *ir.ModuleGraph, delta ir.Delta, out *BuildResult) (*engine.Result, error) {
	rec, err := st.LatestSnapshot(ctx)
	if errors.Is(err, store.ErrNotFound) {
		out.Reuse = store.ReuseNone.String()
		out.Reason = "no stored snapshot"
		return eng.Build(ctx, mg)
	}
	if err != nil {
		return nil, err
	}

	v, err := store.Validate(rec.Snapshot, mg, delta, eng.Fingerprint())
	if err != nil {
		return nil, err
	}
	out.Reuse = v.Reuse.String()
	out.Reason = v.Reason
	if v.Reuse == store.ReuseNone {
		return eng.Build(ctx, mg)
	}

	prev, err := engine.Restore(rec.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("restore snapshot %s: %w", rec.ID, err)
	}
	return eng.Rebuild(ctx, prev, mg, delta)
}

func printBuild(f *OutputFormatter, out BuildResult) {
	w := f.Writer
	if out.Render != "" {
		fmt.Fprint(w, out.Render)
	}
	s := out.Stats
	fmt.Fprintf(w, "Built %d chunks in %d groups (graph %s)\n", s.Chunks, s.Groups, out.GraphHash)
	fmt.Fprintf(w, "  pruned %d, merged %d, empty removed %d, split %d (+%d parts)\n",
		s.Pruned, s.Merged, s.EmptyRemoved, s.SplitCreated, s.SplitParts)
	if s.SkippedEdges > 0 {
		fmt.Fprintf(w, "  skipped %d malformed edges\n", s.SkippedEdges)
	}
	if out.Snapshot != "" {
		fmt.Fprintf(w, "Snapshot %s (reuse: %s, %s)\n", out.Snapshot, out.Reuse, out.Reason)
	}
}
