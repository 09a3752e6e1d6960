package harness

import (
	"github.com/roach88/chunkgraph/internal/engine"
	"github.com/roach88/chunkgraph/internal/graph"
	"github.com/roach88/chunkgraph/internal/store"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: the build behaved as expected and
	// every assertion matched.
	Pass bool `json:"pass"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Stats are the counters of the final build. Zero when the build failed.
	Stats engine.Stats `json:"stats"`

	// Reuse records how the snapshot of the first build served the rebuild
	// step. ReuseNone when the scenario has no rebuild step.
	Reuse store.Reuse `json:"reuse"`

	// Graph is the final chunk graph, nil when the build failed.
	Graph *graph.ChunkGraph `json:"-"`

	// Err is the build error, if any.
	Err error `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Render returns the deterministic dump of the final graph, or nil.
func (r *Result) Render() []byte {
	if r.Graph == nil {
		return nil
	}
	return graph.Render(r.Graph)
}
