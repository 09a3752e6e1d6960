package partition

import (
	"errors"
	"fmt"

	"github.com/roach88/chunkgraph/internal/ir"
)

// Sentinel classes for partitioning failures. Match them with errors.Is.
var (
	// ErrNameConflict: an AsyncBlock or runtime names an existing entrypoint.
	ErrNameConflict = errors.New("chunk name conflicts with an entrypoint")

	// ErrDuplicateEntry: two entries share a name.
	ErrDuplicateEntry = errors.New("duplicate entry name")

	// ErrUnknownDependOn: depend-on names an entry that does not exist.
	ErrUnknownDependOn = errors.New("depend-on names an unknown entry")

	// ErrDependOnCycle: depend-on relationships form a cycle.
	ErrDependOnCycle = errors.New("depend-on cycle")

	// ErrMissingModule: a dependency points at a module absent from the graph.
	ErrMissingModule = errors.New("module not in module graph")

	// ErrMissingBlock: a module declares a block absent from the graph.
	ErrMissingBlock = errors.New("block not in module graph")
)

// Error carries the offending names of a partitioning failure.
type Error struct {
	Err error

	// Name is the entry or chunk name involved, if any.
	Name string

	// Module and Block locate invariant violations.
	Module ir.ModuleID
	Block  ir.BlockID
}

func (e *Error) Error() string {
	switch {
	case e.Block != "" && e.Name != "":
		return fmt.Sprintf("%v: %q (block %s)", e.Err, e.Name, e.Block)
	case e.Block != "" && e.Module != "":
		return fmt.Sprintf("%v: %s (declared by %s)", e.Err, e.Block, e.Module)
	case e.Module != "" && e.Name != "":
		return fmt.Sprintf("%v: %s (from entry %q)", e.Err, e.Module, e.Name)
	case e.Module != "":
		return fmt.Sprintf("%v: %s", e.Err, e.Module)
	default:
		return fmt.Sprintf("%v: %q", e.Err, e.Name)
	}
}

func (e *Error) Unwrap() error { return e.Err }
