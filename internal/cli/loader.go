package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chunkgraph/internal/config"
	"github.com/roach88/chunkgraph/internal/engine"
	"github.com/roach88/chunkgraph/internal/ir"
)

// Error code constants - unified across all CLI commands. Engine failures
// use the engine's own codes (CHUNK_NAME_CONFLICT, ...) and config failures
// the config package's (E101-E105).
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeLoadFailed      = "E004" // YAML parse failed
	ErrCodeNotFound        = "E005" // Path not found
	ErrCodeWriteFailed     = "E007" // Snapshot store write error
	ErrCodeStoreFailed     = "E008" // Snapshot store open or read error
	ErrCodeDuplicateModule = "E201" // Module id declared twice
)

// LoadError represents an error that occurred while loading a YAML input.
type LoadError struct {
	Code    string
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
}

// LoadGraph reads a module graph from a YAML file.
// Unknown fields are rejected.
func LoadGraph(path string) (*ir.ModuleGraph, error) {
	var mg ir.ModuleGraph
	if err := decodeStrict(path, &mg); err != nil {
		return nil, err
	}
	return &mg, nil
}

// LoadDelta reads an incremental change description from a YAML file.
func LoadDelta(path string) (ir.Delta, error) {
	var d ir.Delta
	err := decodeStrict(path, &d)
	return d, err
}

func decodeStrict(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &LoadError{Code: ErrCodeNotFound, Path: path, Message: "file not found"}
	}
	if err != nil {
		return &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: err.Error()}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: err.Error()}
	}
	return nil
}

// loadConfig returns config.Default() for an empty path.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// errorCode maps an error onto the code shown to the user.
func errorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	var ce *config.LoadError
	if errors.As(err, &ce) {
		return ce.Code
	}
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	return ErrCodeGeneric
}

// inputExitCode is ExitCommandError for missing inputs and ExitFailure for
// inputs that were read but rejected.
func inputExitCode(err error) int {
	var le *LoadError
	if errors.As(err, &le) && le.Code == ErrCodeNotFound {
		return ExitCommandError
	}
	var ce *config.LoadError
	if errors.As(err, &ce) && ce.Code == config.ErrCodeNotFound {
		return ExitCommandError
	}
	return ExitFailure
}
