// Package harness provides scenario-based conformance testing for the chunk
// graph engine.
//
// A scenario is a module graph, an optional CUE optimization config, an
// optional rebuild step and a list of assertions on the resulting chunk
// graph. Rendered graphs are compared against golden files.
//
// # Scenario Format
//
//	name: nested_blocks
//	description: "What this scenario validates"
//	config: nested.cue            # optional, relative to the scenario file
//	graph:
//	  entries:
//	    - name: main
//	      dependencies: [a]
//	  modules:
//	    - id: a
//	      sizes: {javascript: 100}
//	      blocks: ["a#0"]
//	  blocks:
//	    - id: "a#0"
//	      dependencies: [b]
//	rebuild:                      # optional
//	  graph: {...}
//	  delta: {updated: [b]}
//	expect_error: ""              # e.g. CHUNK_NAME_CONFLICT
//	assertions:
//	  - type: group_modules
//	    group: "a#0"
//	    modules: [b]
//
// # Assertion Types
//
//   - chunk_count, group_count: number of chunks or groups
//   - group_modules: modules across the chunks of a group, found by entry
//     name, block id or group name
//   - chunk_modules: modules of a named chunk
//   - module_chunks: number of chunks holding a module
//   - stats: engine.Stats counters by JSON name
//   - reuse: how the rebuild step used the stored snapshot
//
// # Rebuild Steps
//
// The snapshot of the first build is saved to a fresh in-memory store,
// loaded back and checked with store.Validate. The rebuilt graph must render
// byte-identical to a full build of the new module graph; a divergence fails
// the scenario regardless of its assertions.
package harness
