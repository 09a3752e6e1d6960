package cli

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const conflictGraph = `
entries:
  - name: main
    dependencies: [a]
modules:
  - id: a
    blocks: ["a#0"]
  - id: b
blocks:
  - id: "a#0"
    chunk_name: main
    dependencies: [b]
`

func TestBuild_Text(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "graph.yaml", fmt.Sprintf(nestedGraph, 100))

	out, err := execute(t, "build", graphPath, "--render")
	require.NoError(t, err)
	assert.Contains(t, out, nestedRender)
	assert.Contains(t, out, "Built 2 chunks in 3 groups")
	assert.Contains(t, out, "pruned 1, merged 0, empty removed 1")
	assert.NotContains(t, out, "Snapshot")
}

func TestBuild_JSON(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "graph.yaml", fmt.Sprintf(nestedGraph, 100))

	out, err := execute(t, "--format", "json", "build", graphPath)
	require.NoError(t, err)

	var res BuildResult
	resp := decodeResponse(t, out, &res)
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, res.GraphHash, 64)
	assert.Equal(t, 2, res.Stats.Chunks)
	assert.Equal(t, 3, res.Stats.Groups)
	assert.Empty(t, res.Render)
	assert.Empty(t, res.Snapshot)
}

func TestBuild_WithStore(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "chunks.db")
	before := writeFile(t, dir, "before.yaml", fmt.Sprintf(nestedGraph, 100))
	after := writeFile(t, dir, "after.yaml", fmt.Sprintf(nestedGraph, 250))
	delta := writeFile(t, dir, "delta.yaml", "updated: [C]\n")

	build := func(args ...string) BuildResult {
		t.Helper()
		out, err := execute(t, append([]string{"--format", "json", "build", "--db", db}, args...)...)
		require.NoError(t, err, out)
		var res BuildResult
		decodeResponse(t, out, &res)
		require.NotEmpty(t, res.Snapshot)
		return res
	}

	first := build(before, "--label", "first")
	assert.Equal(t, "none", first.Reuse)
	assert.Equal(t, "no stored snapshot", first.Reason)

	again := build(before)
	assert.Equal(t, "exact", again.Reuse)
	assert.Equal(t, first.GraphHash, again.GraphHash)
	assert.NotEqual(t, first.Snapshot, again.Snapshot)

	inc := build(after, "--delta", delta, "--render")
	assert.Equal(t, "incremental", inc.Reuse)
	assert.Equal(t, "1 changed modules", inc.Reason)
	assert.NotEqual(t, first.GraphHash, inc.GraphHash)
	assert.Equal(t, nestedRender, inc.Render)

	stale := build(before)
	assert.Equal(t, "none", stale.Reuse)
	assert.Equal(t, "module graph changed without a delta", stale.Reason)
}

func TestBuild_StoreText(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "graph.yaml", fmt.Sprintf(nestedGraph, 100))

	out, err := execute(t, "build", graphPath, "--db", filepath.Join(dir, "chunks.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "Snapshot ")
	assert.Contains(t, out, "(reuse: none, no stored snapshot)")
}

func TestBuild_Errors(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "graph.yaml", fmt.Sprintf(nestedGraph, 100))

	tests := []struct {
		name     string
		args     []string
		wantExit int
		wantCode string
	}{
		{
			name:     "missing graph",
			args:     []string{"build", filepath.Join(dir, "missing.yaml")},
			wantExit: ExitCommandError,
			wantCode: ErrCodeNotFound,
		},
		{
			name:     "unknown field",
			args:     []string{"build", writeFile(t, dir, "bad.yaml", "entries: []\nchunks: []\n")},
			wantExit: ExitFailure,
			wantCode: ErrCodeLoadFailed,
		},
		{
			name:     "missing config",
			args:     []string{"build", graphPath, "--config", filepath.Join(dir, "missing.cue")},
			wantExit: ExitCommandError,
			wantCode: "E101",
		},
		{
			name:     "missing delta",
			args:     []string{"build", graphPath, "--delta", filepath.Join(dir, "missing-delta.yaml")},
			wantExit: ExitCommandError,
			wantCode: ErrCodeNotFound,
		},
		{
			name:     "name conflict",
			args:     []string{"build", writeFile(t, dir, "conflict.yaml", conflictGraph)},
			wantExit: ExitFailure,
			wantCode: "CHUNK_NAME_CONFLICT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.wantCode+"]")
		})
	}
}

func TestBuild_ErrorJSON(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "conflict.yaml", conflictGraph)

	out, err := execute(t, "--format", "json", "build", graphPath)
	require.Error(t, err)

	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CHUNK_NAME_CONFLICT", resp.Error.Code)
}
