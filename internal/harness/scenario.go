package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chunkgraph/internal/ir"
)

// Scenario defines a chunk graph conformance scenario: a module graph, an
// optional optimization config, an optional incremental rebuild step and the
// assertions the resulting chunk graph must satisfy.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is a path to a CUE optimization config. Relative paths are
	// resolved against the scenario file. Empty means config.Default().
	Config string `yaml:"config,omitempty"`

	// Graph is the module graph of the first build.
	Graph *ir.ModuleGraph `yaml:"graph"`

	// Rebuild, if set, rebuilds from the snapshot of the first build.
	Rebuild *RebuildStep `yaml:"rebuild,omitempty"`

	// ExpectError is the engine error code the build must fail with, e.g.
	// CHUNK_NAME_CONFLICT. Empty means the build must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the final chunk graph.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RebuildStep changes the module graph after the first build.
type RebuildStep struct {
	Graph *ir.ModuleGraph `yaml:"graph"`
	Delta ir.Delta        `yaml:"delta"`
}

// Assertion validates the final chunk graph or build stats.
type Assertion struct {
	// Type specifies the assertion type:
	// - "chunk_count": Number of chunks equals Count
	// - "group_count": Number of chunk groups equals Count
	// - "group_modules": Modules of Group (entry name, block id or group
	//   name) equal Modules
	// - "chunk_modules": Modules of the chunk named Chunk equal Modules
	// - "module_chunks": Module is in exactly Count chunks
	// - "stats": Every listed stats counter matches
	// - "reuse": The rebuild step reused the snapshot as Reuse says
	Type string `yaml:"type"`

	Group   string   `yaml:"group,omitempty"`
	Chunk   string   `yaml:"chunk,omitempty"`
	Module  string   `yaml:"module,omitempty"`
	Modules []string `yaml:"modules,omitempty"`

	// Count is the expected number (chunk_count, group_count, module_chunks).
	Count int `yaml:"count,omitempty"`

	// Stats maps JSON stats keys (e.g. "pruned") to expected values.
	Stats map[string]int `yaml:"stats,omitempty"`

	// Reuse is "none", "incremental" or "exact".
	Reuse string `yaml:"reuse,omitempty"`
}

// Assertion type constants.
const (
	AssertChunkCount   = "chunk_count"
	AssertGroupCount   = "group_count"
	AssertGroupModules = "group_modules"
	AssertChunkModules = "chunk_modules"
	AssertModuleChunks = "module_chunks"
	AssertStats        = "stats"
	AssertReuse        = "reuse"
)

// LoadScenario reads and parses a scenario YAML file, resolving the config
// path against the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Config != "" && !filepath.IsAbs(scenario.Config) {
		scenario.Config = filepath.Join(filepath.Dir(path), scenario.Config)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Graph == nil {
		return fmt.Errorf("graph is required")
	}

	if s.ExpectError == "" && len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}

	if s.Config != "" {
		if _, err := os.Stat(s.Config); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", s.Config)
		}
	}

	if s.Rebuild != nil && s.Rebuild.Graph == nil {
		return fmt.Errorf("rebuild: graph is required")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertChunkCount, AssertGroupCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertGroupModules:
		if a.Group == "" {
			return fmt.Errorf("assertions[%d]: group is required for group_modules", index)
		}
	case AssertChunkModules:
		if a.Chunk == "" {
			return fmt.Errorf("assertions[%d]: chunk is required for chunk_modules", index)
		}
	case AssertModuleChunks:
		if a.Module == "" {
			return fmt.Errorf("assertions[%d]: module is required for module_chunks", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for module_chunks", index)
		}
	case AssertStats:
		if len(a.Stats) == 0 {
			return fmt.Errorf("assertions[%d]: stats is required for stats", index)
		}
	case AssertReuse:
		switch a.Reuse {
		case "none", "incremental", "exact":
		default:
			return fmt.Errorf("assertions[%d]: reuse must be none, incremental or exact, got %q", index, a.Reuse)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
