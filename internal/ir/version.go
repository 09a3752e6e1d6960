package ir

// Version constants for snapshots and the engine.
const (
	// SnapshotVersion is the persisted chunk graph snapshot schema version.
	SnapshotVersion = "1"

	// EngineVersion is the chunk graph engine version.
	EngineVersion = "0.1.0"
)
