package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/chunkgraph/internal/availability"
	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/ir"
)

// ErrSnapshotVersion reports a snapshot written by an incompatible version.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

// Snapshot is the persistable form of a Result.
type Snapshot struct {
	Version       string                    `json:"version"`
	EngineVersion string                    `json:"engine_version"`
	GraphHash     string                    `json:"graph_hash"`
	Options       string                    `json:"options,omitempty"`
	Graph         graph.Snapshot            `json:"graph"`
	Cache         []availability.CacheEntry `json:"cache,omitempty"`
	Stats         Stats                     `json:"stats"`
}

// Snapshot exports r. The result is independent of r.
func (r *Result) Snapshot() Snapshot {
	s := Snapshot{
		Version:       ir.SnapshotVersion,
		EngineVersion: ir.EngineVersion,
		GraphHash:     r.GraphHash,
		Options:       r.Options,
		Graph:         r.Graph.Export(),
		Stats:         r.Stats,
	}
	if r.Cache != nil {
		s.Cache = r.Cache.Entries()
	}
	return s
}

// Restore rebuilds a Result from a snapshot, typically to seed Rebuild.
func Restore(s Snapshot) (*Result, error) {
	if s.Version != ir.SnapshotVersion {
		return nil, fmt.Errorf("%w: %q (want %q)", ErrSnapshotVersion, s.Version, ir.SnapshotVersion)
	}
	cg, err := graph.Import(s.Graph)
	if err != nil {
		return nil, &InvariantError{
			Code:    ErrCodeInconsistentIndex,
			Message: "restore snapshot: " + err.Error(),
			Err:     err,
		}
	}
	return &Result{
		Graph:     cg,
		GraphHash: s.GraphHash,
		Options:   s.Options,
		Cache:     availability.RestoreCache(s.Cache),
		Stats:     s.Stats,
	}, nil
}
