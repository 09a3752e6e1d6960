package harness

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/chunkgraph/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the rendered chunk graph to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Render   []byte // Rendered chunk graph for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Render) > 0 {
		fmt.Fprintf(&buf, "\nChunk graph:\n")
		for _, line := range strings.SplitAfter(string(e.Render), "\n") {
			if line != "" {
				fmt.Fprintf(&buf, "  %s", line)
			}
		}
	}

	return buf.String()
}

func assertCount(result *Result, a Assertion) error {
	var got int
	switch a.Type {
	case AssertChunkCount:
		got = len(result.Graph.ChunkKeys())
	case AssertGroupCount:
		got = len(result.Graph.GroupKeys())
	case AssertModuleChunks:
		got = result.Graph.ModuleChunkCount(ir.ModuleID(a.Module))
	}
	if got == a.Count {
		return nil
	}
	what := strings.TrimSuffix(a.Type, "_count")
	if a.Type == AssertModuleChunks {
		what = "chunks holding " + a.Module
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d %s", a.Count, what),
		Actual:   fmt.Sprintf("%d", got),
		Render:   result.Render(),
	}
}

// assertModules compares module sets. Order is irrelevant.
func assertModules(result *Result, a Assertion) error {
	var (
		got []ir.ModuleID
		ok  bool
		of  string
	)
	if a.Type == AssertGroupModules {
		got, ok = groupModules(result.Graph, a.Group)
		of = "group " + a.Group
	} else if c, found := result.Graph.NamedChunk(a.Chunk); found {
		got, ok = result.Graph.ChunkModules(c.Ukey), true
		of = "chunk " + a.Chunk
	}
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s%s with modules %v", a.Group, a.Chunk, a.Modules),
			Actual:   "not found",
			Render:   result.Render(),
		}
	}

	gotIDs := make([]string, len(got))
	for i, m := range got {
		gotIDs[i] = string(m)
	}
	slices.Sort(gotIDs)
	want := slices.Sorted(slices.Values(a.Modules))
	if slices.Equal(gotIDs, want) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s holds %v", of, want),
		Actual:   fmt.Sprintf("%v", gotIDs),
		Render:   result.Render(),
	}
}

// assertStats compares the listed counters with the final build's stats.
// Keys are the JSON names of engine.Stats; booleans compare as 0 or 1.
func assertStats(result *Result, a Assertion) error {
	raw, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	var stats map[string]any
	if err := json.Unmarshal(raw, &stats); err != nil {
		return fmt.Errorf("unmarshal stats: %w", err)
	}

	var mismatches []string
	for _, key := range slices.Sorted(maps.Keys(a.Stats)) {
		want := a.Stats[key]
		v, ok := stats[key]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: unknown counter", key))
			continue
		}
		var got int
		switch x := v.(type) {
		case float64:
			got = int(x)
		case bool:
			if x {
				got = 1
			}
		}
		if got != want {
			mismatches = append(mismatches, fmt.Sprintf("%s=%d (want %d)", key, got, want))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertStats,
		Expected: fmt.Sprintf("%v", a.Stats),
		Actual:   strings.Join(mismatches, ", "),
	}
}

func assertReuse(result *Result, a Assertion) error {
	if got := result.Reuse.String(); got != a.Reuse {
		return &AssertionError{
			Type:     AssertReuse,
			Expected: a.Reuse,
			Actual:   got,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		if result.Graph == nil {
			errors = append(errors, fmt.Sprintf("assertion[%d]: no chunk graph to assert on", i))
			continue
		}

		switch assertion.Type {
		case AssertChunkCount, AssertGroupCount, AssertModuleChunks:
			err = assertCount(result, assertion)
		case AssertGroupModules, AssertChunkModules:
			err = assertModules(result, assertion)
		case AssertStats:
			err = assertStats(result, assertion)
		case AssertReuse:
			err = assertReuse(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
