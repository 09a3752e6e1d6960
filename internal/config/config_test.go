package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chunkgraph/internal/ir"
	"github.com/roach88/chunkgraph/internal/splitchunks"
)

func compile(t *testing.T, src string) (*Config, error) {
	t.Helper()
	return Compile(cuecontext.New().CompileString(src))
}

func TestCompile_Full(t *testing.T) {
	cfg, err := compile(t, `
		optimization: {
			removeAvailableModules: false
			mergeDuplicateChunks: true
			workers: 8
			strict: true
			splitChunks: cacheGroups: {
				vendors: {
					test: "^node_modules/"
					chunks: "all"
					minChunks: 1
					minSize: {javascript: 1000, css: 10}
					maxSize: 50000
					priority: 10
					reuseExistingChunk: true
					name: "vendors"
				}
				common: {
					minChunks: 2
					layer: "client"
				}
			}
		}
	`)
	require.NoError(t, err)

	assert.False(t, cfg.RemoveAvailableModules)
	assert.True(t, cfg.RemoveEmptyChunks)
	assert.True(t, cfg.MergeDuplicateChunks)
	assert.True(t, cfg.Strict)
	assert.Equal(t, 8, cfg.Workers)
	require.Len(t, cfg.CacheGroups, 2)

	v := cfg.CacheGroups[0]
	assert.Equal(t, "vendors", v.Key)
	assert.True(t, v.Test.MatchString("node_modules/react"))
	assert.Equal(t, splitchunks.ChunksAll, v.Chunks)
	assert.Equal(t, ir.Sizes{ir.SourceJavaScript: 1000, ir.SourceCSS: 10}, v.MinSize)
	assert.Equal(t, ir.Sizes{ir.SourceJavaScript: 50000}, v.MaxSize)
	assert.Equal(t, 10, v.Priority)
	assert.True(t, v.ReuseExistingChunk)
	assert.Equal(t, "vendors", v.Name)

	c := cfg.CacheGroups[1]
	assert.Equal(t, "common", c.Key)
	assert.Nil(t, c.Test)
	assert.Equal(t, splitchunks.ChunksAsync, c.Chunks)
	assert.Equal(t, "client", c.Layer)

	assert.Len(t, cfg.EngineOptions(), 6)
}

func TestCompile_Defaults(t *testing.T) {
	cfg, err := compile(t, `{}`)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Len(t, cfg.EngineOptions(), 5)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"unknown field", `optimization: mergeDuplicate: true`, ErrCodeBuildFailed},
		{"wrong type", `optimization: workers: "four"`, ErrCodeBuildFailed},
		{"bad chunks", `optimization: splitChunks: cacheGroups: a: chunks: "sync"`, ErrCodeBuildFailed},
		{"bad regexp", `optimization: splitChunks: cacheGroups: a: test: "("`, ErrCodeInvalidValue},
		{"max below min", `optimization: splitChunks: cacheGroups: a: {minSize: 10, maxSize: 5}`, ErrCodeInvalidCacheGroup},
		{"syntax", `optimization: {`, ErrCodeBuildFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compile(t, tt.src)
			var le *LoadError
			require.True(t, errors.As(err, &le), "got %v", err)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkgraph.cue")
	require.NoError(t, os.WriteFile(path, []byte("optimization: {\n\tworkers: 2\n\tbogus: 1\n}\n"), 0o644))

	_, err := Load(path)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.True(t, le.Pos.IsValid())
	assert.Contains(t, err.Error(), "chunkgraph.cue:")

	require.NoError(t, os.WriteFile(path, []byte("optimization: workers: 2\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte("package cfg\noptimization: workers: 3\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cue"), []byte("package cfg\noptimization: strict: true\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.Strict)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)
}
