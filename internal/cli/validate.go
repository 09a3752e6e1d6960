package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chunkgraph/internal/engine"
	"github.com/roach88/chunkgraph/internal/ir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Config string
}

// ValidateResult is the validate command's output.
type ValidateResult struct {
	Valid  bool   `json:"valid"`
	Config string `json:"config,omitempty"`
	Graph  string `json:"graph,omitempty"`
	Chunks int    `json:"chunks,omitempty"`
	Groups int    `json:"groups,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [graph.yaml]",
		Short: "Validate a config and module graph without saving anything",
		Long: `Check an optimization config against the CUE schema and, when a module
graph is given, build it with strict invariants so that malformed edges and
configuration conflicts are reported instead of skipped.

Examples:
  chunkgraph validate --config chunks.cue
  chunkgraph validate graph.yaml --config chunks.cue`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			graphPath := ""
			if len(args) == 1 {
				graphPath = args[0]
			}
			return runValidate(opts, graphPath, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "CUE optimization config file or directory")

	return cmd
}

func runValidate(opts *ValidateOptions, graphPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	if graphPath == "" && opts.Config == "" {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "nothing to validate: pass a module graph or --config", nil)
	}

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return f.Fail(inputExitCode(err), errorCode(err), err.Error(), err)
	}
	out := ValidateResult{Valid: true, Config: opts.Config, Graph: graphPath}

	if graphPath != "" {
		mg, err := LoadGraph(graphPath)
		if err != nil {
			return f.Fail(inputExitCode(err), errorCode(err), err.Error(), err)
		}
		if dups := mg.DuplicateModules(); len(dups) > 0 {
			msg := "duplicate module ids: " + joinIDs(dups)
			return f.Fail(ExitFailure, ErrCodeDuplicateModule, msg, nil)
		}

		eng := engine.New(append(cfg.EngineOptions(),
			engine.WithStrictInvariants(true),
			engine.WithLogger(f.Logger()),
		)...)
		ctx := commandContext(cmd)
		res, err := eng.Build(ctx, mg)
		if err != nil {
			return f.Fail(ExitFailure, errorCode(err), err.Error(), err)
		}
		out.Chunks = res.Stats.Chunks
		out.Groups = res.Stats.Groups
	}

	if f.JSON() {
		return f.Success(out)
	}
	switch {
	case graphPath != "":
		fmt.Fprintf(f.Writer, "✓ %s is valid (%d chunks, %d groups)\n", graphPath, out.Chunks, out.Groups)
	default:
		fmt.Fprintf(f.Writer, "✓ %s is valid\n", opts.Config)
	}
	return nil
}

func joinIDs(ids []ir.ModuleID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
