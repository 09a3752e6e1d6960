package config

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/chunkgraph/internal/engine"
	"github.com/roach88/chunkgraph/internal/ir"
	"github.com/roach88/chunkgraph/internal/splitchunks"
)

//go:embed schema.cue
var schemaSource string

// Error codes of LoadError.
const (
	ErrCodeNotFound          = "E101" // config path missing
	ErrCodeLoadFailed        = "E102" // CUE files could not be loaded
	ErrCodeBuildFailed       = "E103" // CUE evaluation or schema check failed
	ErrCodeInvalidValue      = "E104" // a field has an unusable value
	ErrCodeInvalidCacheGroup = "E105" // a cache group failed validation
)

// LoadError is a configuration error with its CUE position, if known.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	prefix := e.Code
	if e.Field != "" {
		prefix += " " + e.Field
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), prefix, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Config is a compiled optimization configuration.
type Config struct {
	RemoveAvailableModules bool
	RemoveEmptyChunks      bool
	MergeDuplicateChunks   bool

	// Workers is the pool size; zero keeps the engine default.
	Workers int
	Strict  bool

	// CacheGroups keep declaration order.
	CacheGroups []splitchunks.CacheGroup
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		RemoveAvailableModules: true,
		RemoveEmptyChunks:      true,
		MergeDuplicateChunks:   true,
	}
}

// EngineOptions translates c into engine options.
func (c *Config) EngineOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithRemoveAvailableModules(c.RemoveAvailableModules),
		engine.WithRemoveEmptyChunks(c.RemoveEmptyChunks),
		engine.WithMergeDuplicateChunks(c.MergeDuplicateChunks),
		engine.WithStrictInvariants(c.Strict),
		engine.WithCacheGroups(c.CacheGroups...),
	}
	if c.Workers > 0 {
		opts = append(opts, engine.WithWorkers(c.Workers))
	}
	return opts
}

// Load reads a CUE file, or every CUE file of a directory's package, and
// compiles it.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config not found: %v", err)}
	}
	ctx := cuecontext.New()

	var v cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
		}
		if err := instances[0].Err; err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", err)}
		}
		v = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		}
		v = ctx.CompileBytes(data, cue.Filename(path))
	}
	return Compile(v)
}

// Compile checks v against the config schema and extracts the config.
func Compile(v cue.Value) (*Config, error) {
	if err := v.Err(); err != nil {
		return nil, cueError(err)
	}
	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, cueError(err)
	}
	v = schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(err)
	}

	cfg := Default()
	opt := v.LookupPath(cue.ParsePath("optimization"))
	if !opt.Exists() {
		return cfg, nil
	}
	for field, dst := range map[string]*bool{
		"removeAvailableModules": &cfg.RemoveAvailableModules,
		"removeEmptyChunks":      &cfg.RemoveEmptyChunks,
		"mergeDuplicateChunks":   &cfg.MergeDuplicateChunks,
		"strict":                 &cfg.Strict,
	} {
		if err := lookupBool(opt, field, dst); err != nil {
			return nil, err
		}
	}
	if w := opt.LookupPath(cue.ParsePath("workers")); w.Exists() {
		n, err := w.Int64()
		if err != nil {
			return nil, cueError(err)
		}
		cfg.Workers = int(n)
	}

	groups := opt.LookupPath(cue.ParsePath("splitChunks.cacheGroups"))
	if !groups.Exists() {
		return cfg, nil
	}
	iter, err := groups.Fields()
	if err != nil {
		return nil, cueError(err)
	}
	for iter.Next() {
		g, err := compileCacheGroup(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		cfg.CacheGroups = append(cfg.CacheGroups, *g)
	}
	return cfg, nil
}

func compileCacheGroup(key string, v cue.Value) (*splitchunks.CacheGroup, error) {
	g := &splitchunks.CacheGroup{Key: key}
	field := func(name string) string { return "cacheGroups." + key + "." + name }

	if t := v.LookupPath(cue.ParsePath("test")); t.Exists() {
		s, err := t.String()
		if err != nil {
			return nil, cueError(err)
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidValue, Field: field("test"), Message: err.Error(), Pos: t.Pos()}
		}
		g.Test = re
	}
	if c := v.LookupPath(cue.ParsePath("chunks")); c.Exists() {
		s, err := c.String()
		if err != nil {
			return nil, cueError(err)
		}
		if g.Chunks, err = splitchunks.ParseChunkType(s); err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidValue, Field: field("chunks"), Message: err.Error(), Pos: c.Pos()}
		}
	}
	for name, dst := range map[string]*string{"name": &g.Name, "type": &g.Type, "layer": &g.Layer} {
		if s := v.LookupPath(cue.ParsePath(name)); s.Exists() {
			str, err := s.String()
			if err != nil {
				return nil, cueError(err)
			}
			*dst = str
		}
	}
	for name, dst := range map[string]*int{"minChunks": &g.MinChunks, "priority": &g.Priority} {
		if n := v.LookupPath(cue.ParsePath(name)); n.Exists() {
			i, err := n.Int64()
			if err != nil {
				return nil, cueError(err)
			}
			*dst = int(i)
		}
	}
	if err := lookupBool(v, "reuseExistingChunk", &g.ReuseExistingChunk); err != nil {
		return nil, err
	}
	var err error
	if g.MinSize, err = sizes(v.LookupPath(cue.ParsePath("minSize"))); err != nil {
		return nil, err
	}
	if g.MaxSize, err = sizes(v.LookupPath(cue.ParsePath("maxSize"))); err != nil {
		return nil, err
	}

	if err := g.Validate(); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalidCacheGroup, Field: "cacheGroups." + key, Message: err.Error(), Pos: v.Pos()}
	}
	return g, nil
}

// sizes reads a bare number as a javascript size or a struct of sizes per
// source type.
func sizes(v cue.Value) (ir.Sizes, error) {
	if !v.Exists() {
		return nil, nil
	}
	if v.Kind() == cue.IntKind {
		n, err := v.Int64()
		if err != nil {
			return nil, cueError(err)
		}
		return ir.Sizes{ir.SourceJavaScript: n}, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, cueError(err)
	}
	out := ir.Sizes{}
	for iter.Next() {
		n, err := iter.Value().Int64()
		if err != nil {
			return nil, cueError(err)
		}
		out[ir.SourceType(iter.Selector().Unquoted())] = n
	}
	return out, nil
}

func lookupBool(v cue.Value, name string, dst *bool) error {
	b := v.LookupPath(cue.ParsePath(name))
	if !b.Exists() {
		return nil
	}
	val, err := b.Bool()
	if err != nil {
		return cueError(err)
	}
	*dst = val
	return nil
}

// cueError turns the first CUE error into a LoadError with its position.
func cueError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: ErrCodeBuildFailed, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
