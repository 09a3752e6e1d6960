package store

import (
	"fmt"

	"github.com/roach88/chunkgraph/internal/engine"
	"github.com/roach88/chunkgraph/internal/ir"
)

// Reuse says how a stored snapshot can serve a new module graph.
type Reuse int

const (
	// ReuseNone: the snapshot cannot seed a rebuild; build from scratch.
	ReuseNone Reuse = iota
	// ReuseIncremental: restore and call Rebuild with the delta.
	ReuseIncremental
	// ReuseExact: the snapshot was built from this very module graph.
	ReuseExact
)

func (r Reuse) String() string {
	switch r {
	case ReuseIncremental:
		return "incremental"
	case ReuseExact:
		return "exact"
	default:
		return "none"
	}
}

// Validation is the outcome of Validate.
type Validation struct {
	Reuse  Reuse
	Reason string
}

// Validate checks whether snap can seed a rebuild of next given delta.
// options is the Fingerprint of the engine that will run the rebuild.
func Validate(snap engine.Snapshot, next *ir.ModuleGraph, delta ir.Delta, options string) (Validation, error) {
	if snap.Version != ir.SnapshotVersion {
		return Validation{Reason: fmt.Sprintf("snapshot version %q, want %q", snap.Version, ir.SnapshotVersion)}, nil
	}
	if options == "" || options != snap.Options {
		return Validation{Reason: "engine options changed"}, nil
	}
	hash, err := ir.GraphHash(next)
	if err != nil {
		return Validation{}, fmt.Errorf("validate snapshot: %w", err)
	}
	if hash == snap.GraphHash {
		return Validation{Reuse: ReuseExact, Reason: "module graph unchanged"}, nil
	}
	if delta.IsEmpty() {
		return Validation{Reason: "module graph changed without a delta"}, nil
	}
	if err := engine.CheckDelta(next, delta); err != nil {
		return Validation{Reason: err.Error()}, nil
	}
	return Validation{
		Reuse:  ReuseIncremental,
		Reason: fmt.Sprintf("%d changed modules", len(delta.All())),
	}, nil
}
