package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
	"github.com/roach88/chunkgraph/internal/merge"
	"github.com/roach88/chunkgraph/internal/partition"
	"github.com/roach88/chunkgraph/internal/prune"
	"github.com/roach88/chunkgraph/internal/splitchunks"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeChunkNameConflict indicates a block, runtime or cache group
	// names a chunk that belongs to an entrypoint.
	ErrCodeChunkNameConflict ErrorCode = "CHUNK_NAME_CONFLICT"

	// ErrCodeUnknownDependOn indicates depend-on names a missing entry.
	ErrCodeUnknownDependOn ErrorCode = "UNKNOWN_DEPEND_ON"

	// ErrCodeDependOnCycle indicates depend-on relationships form a cycle.
	ErrCodeDependOnCycle ErrorCode = "DEPEND_ON_CYCLE"

	// ErrCodeDuplicateEntry indicates two entries share a name.
	ErrCodeDuplicateEntry ErrorCode = "DUPLICATE_ENTRY"

	// ErrCodeInvalidCacheGroup indicates a cache group failed validation.
	ErrCodeInvalidCacheGroup ErrorCode = "INVALID_CACHE_GROUP"
)

const (
	// ErrCodeMissingModule indicates a module referenced by an entry, block
	// or chunk is absent from the module graph.
	ErrCodeMissingModule ErrorCode = "MISSING_MODULE"

	// ErrCodeMissingBlock indicates a module declares an unknown block.
	ErrCodeMissingBlock ErrorCode = "MISSING_BLOCK"

	// ErrCodeInconsistentIndex indicates the chunk graph's two-way indexes
	// disagree, or a snapshot could not be restored.
	ErrCodeInconsistentIndex ErrorCode = "INCONSISTENT_INDEX"
)

// ConfigError is a fatal configuration conflict. The build is aborted and
// Name identifies the offending entry, chunk or cache group.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Name    string

	// Err is the underlying error from the pass that detected the conflict.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (name=%q)", e.Code, e.Message, e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// InvariantError is an internal-consistency failure. It is only returned
// when strict invariants are enabled; otherwise the passes log and skip the
// malformed edge.
type InvariantError struct {
	Code    ErrorCode
	Message string
	Module  ir.ModuleID
	Block   ir.BlockID
	Err     error
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	switch {
	case e.Module != "":
		return fmt.Sprintf("%s: %s (module=%s)", e.Code, e.Message, e.Module)
	case e.Block != "":
		return fmt.Sprintf("%s: %s (block=%s)", e.Code, e.Message, e.Block)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// IsConfigError returns true if err is a configuration conflict.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsNameConflict returns true if err is a chunk name conflict.
func IsNameConflict(err error) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeChunkNameConflict
	}
	return false
}

// IsInvariantError returns true if err is an internal-consistency failure.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// CodeOf returns the code of a ConfigError or InvariantError in err's
// chain, or "" for any other error.
func CodeOf(err error) ErrorCode {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var ie *InvariantError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// classify maps pass errors onto the engine taxonomy. Errors it does not
// recognize, such as context cancellation, are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pe *partition.Error
	name, module, block := "", ir.ModuleID(""), ir.BlockID("")
	if errors.As(err, &pe) {
		name, module, block = pe.Name, pe.Module, pe.Block
	}
	config := func(code ErrorCode) error {
		return &ConfigError{Code: code, Message: err.Error(), Name: name, Err: err}
	}
	invariant := func(code ErrorCode) error {
		return &InvariantError{Code: code, Message: err.Error(), Module: module, Block: block, Err: err}
	}

	switch {
	case errors.Is(err, partition.ErrNameConflict), errors.Is(err, splitchunks.ErrNameConflict):
		return config(ErrCodeChunkNameConflict)
	case errors.Is(err, partition.ErrUnknownDependOn):
		return config(ErrCodeUnknownDependOn)
	case errors.Is(err, partition.ErrDependOnCycle):
		return config(ErrCodeDependOnCycle)
	case errors.Is(err, partition.ErrDuplicateEntry):
		return config(ErrCodeDuplicateEntry)
	case errors.Is(err, splitchunks.ErrInvalidCacheGroup):
		return config(ErrCodeInvalidCacheGroup)
	case errors.Is(err, partition.ErrMissingModule),
		errors.Is(err, prune.ErrMissingModule),
		errors.Is(err, merge.ErrMissingModule),
		errors.Is(err, splitchunks.ErrMissingModule),
		errors.Is(err, errMissingModule):
		return invariant(ErrCodeMissingModule)
	case errors.Is(err, partition.ErrMissingBlock):
		return invariant(ErrCodeMissingBlock)
	}
	var ie *graph.InconsistencyError
	if errors.As(err, &ie) {
		return invariant(ErrCodeInconsistentIndex)
	}
	return err
}

var errMissingModule = errors.New("chunk module not in module graph")
