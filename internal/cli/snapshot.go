package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chunkgraph/internal/engine"
	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/store"
)

// SnapshotOptions holds flags shared by the snapshot subcommands.
type SnapshotOptions struct {
	*RootOptions
	DB     string
	Keep   int
	Render bool
}

// SnapshotView is one snapshot in list and show output.
type SnapshotView struct {
	ID              string           `json:"id"`
	Seq             int64            `json:"seq"`
	Label           string           `json:"label,omitempty"`
	GraphHash       string           `json:"graph_hash"`
	SnapshotVersion string           `json:"snapshot_version"`
	EngineVersion   string           `json:"engine_version"`
	Chunks          int              `json:"chunks"`
	Groups          int              `json:"groups"`
	ChunkIndex      []store.ChunkRow `json:"chunk_index,omitempty"`
	Render          string           `json:"render,omitempty"`
}

// NewSnapshotCommand creates the snapshot command and its subcommands.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and trim stored chunk graph snapshots",
		Long: `Inspect the snapshots that build --db saves.

Examples:
  chunkgraph snapshot list --db .chunkgraph.db
  chunkgraph snapshot show latest --db .chunkgraph.db --render
  chunkgraph snapshot trim --keep 5 --db .chunkgraph.db`,
	}
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "snapshot database path (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List stored snapshots, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotList(opts, cmd)
		},
	}

	show := &cobra.Command{
		Use:           "show <id|latest>",
		Short:         "Show one snapshot and its chunk index",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotShow(opts, args[0], cmd)
		},
	}
	show.Flags().BoolVar(&opts.Render, "render", false, "print the restored chunk graph")

	trim := &cobra.Command{
		Use:           "trim",
		Short:         "Delete all but the newest snapshots",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotTrim(opts, cmd)
		},
	}
	trim.Flags().IntVar(&opts.Keep, "keep", 10, "number of snapshots to keep")

	cmd.AddCommand(list, show, trim)
	return cmd
}

// openExisting opens the database at opts.DB, refusing to create a new one.
func openExisting(opts *SnapshotOptions, f *OutputFormatter) (*store.Store, error) {
	if _, err := os.Stat(opts.DB); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.DB), err)
	}
	st, err := store.Open(opts.DB)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), err)
	}
	return st, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runSnapshotList(opts *SnapshotOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	st, err := openExisting(opts, f)
	if err != nil {
		return err
	}
	defer st.Close()

	sums, err := st.ListSnapshots(commandContext(cmd))
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeStoreFailed, err.Error(), err)
	}
	views := make([]SnapshotView, len(sums))
	for i, s := range sums {
		views[i] = viewOf(s)
	}

	if f.JSON() {
		return f.Success(views)
	}
	if len(views) == 0 {
		fmt.Fprintln(f.Writer, "No snapshots")
		return nil
	}
	fmt.Fprintf(f.Writer, "%-5s %-36s %-12s %6s %6s  %s\n", "SEQ", "ID", "LABEL", "CHUNKS", "GROUPS", "GRAPH")
	for _, v := range views {
		label := v.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(f.Writer, "%-5d %-36s %-12s %6d %6d  %s\n", v.Seq, v.ID, label, v.Chunks, v.Groups, shortHash(v.GraphHash))
	}
	return nil
}

func runSnapshotShow(opts *SnapshotOptions, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	st, err := openExisting(opts, f)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	var rec *store.Record
	if id == "latest" {
		rec, err = st.LatestSnapshot(ctx)
	} else {
		rec, err = st.LoadSnapshot(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return f.Fail(ExitFailure, ErrCodeNotFound, err.Error(), err)
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeStoreFailed, err.Error(), err)
	}

	view := viewOf(rec.Summary)
	if view.ChunkIndex, err = st.Chunks(ctx, rec.ID); err != nil {
		return f.Fail(ExitFailure, ErrCodeStoreFailed, err.Error(), err)
	}
	if opts.Render {
		res, err := engine.Restore(rec.Snapshot)
		if err != nil {
			return f.Fail(ExitFailure, errorCode(err), err.Error(), err)
		}
		view.Render = string(graph.Render(res.Graph))
	}

	if f.JSON() {
		return f.Success(view)
	}
	w := f.Writer
	fmt.Fprintf(w, "Snapshot %s (seq %d)\n", view.ID, view.Seq)
	if view.Label != "" {
		fmt.Fprintf(w, "  label:   %s\n", view.Label)
	}
	fmt.Fprintf(w, "  graph:   %s\n", view.GraphHash)
	fmt.Fprintf(w, "  version: %s (engine %s)\n", view.SnapshotVersion, view.EngineVersion)
	fmt.Fprintf(w, "  %d chunks, %d groups\n", view.Chunks, view.Groups)
	for _, c := range view.ChunkIndex {
		name := c.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "  chunk %d %s name=%s modules=%d\n", c.Ukey, c.Kind, name, c.Modules)
	}
	if view.Render != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, view.Render)
	}
	return nil
}

func runSnapshotTrim(opts *SnapshotOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	if opts.Keep < 0 {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "--keep must not be negative", nil)
	}
	st, err := openExisting(opts, f)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.Trim(commandContext(cmd), opts.Keep)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeWriteFailed, err.Error(), err)
	}
	if f.JSON() {
		return f.Success(map[string]int{"deleted": n, "kept": opts.Keep})
	}
	fmt.Fprintf(f.Writer, "Deleted %d snapshot(s)\n", n)
	return nil
}

func viewOf(s store.Summary) SnapshotView {
	return SnapshotView{
		ID:              s.ID,
		Seq:             s.Seq,
		Label:           s.Label,
		GraphHash:       s.GraphHash,
		SnapshotVersion: s.SnapshotVersion,
		EngineVersion:   s.EngineVersion,
		Chunks:          s.Chunks,
		Groups:          s.Groups,
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
