package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/chunkgraph/internal/engine"
)

// ErrNotFound reports a missing snapshot.
var ErrNotFound = errors.New("snapshot not found")

// Summary describes a stored snapshot without its body.
type Summary struct {
	ID              string
	Seq             int64
	Label           string
	GraphHash       string
	SnapshotVersion string
	EngineVersion   string
	Chunks          int
	Groups          int
}

// Record is a stored snapshot.
type Record struct {
	Summary
	Snapshot engine.Snapshot
}

// ChunkRow is the per-chunk index kept beside each snapshot.
type ChunkRow struct {
	Ukey    int64  `json:"ukey"`
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind"`
	Modules int    `json:"modules"`
}

// SaveSnapshot stores snap and returns its id. Snapshots are numbered by a
// monotonic seq in insertion order.
func (s *Store) SaveSnapshot(ctx context.Context, label string, snap engine.Snapshot) (string, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("save snapshot: marshal: %w", err)
	}
	id := s.ids.Next()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM snapshots`).Scan(&seq); err != nil {
		return "", fmt.Errorf("save snapshot: next seq: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots
		(id, seq, label, graph_hash, snapshot_version, engine_version, chunk_count, group_count, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		seq,
		label,
		snap.GraphHash,
		snap.Version,
		snap.EngineVersion,
		len(snap.Graph.Chunks),
		len(snap.Graph.Groups),
		string(body),
	)
	if err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_chunks (snapshot_id, ukey, name, kind, module_count)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("save snapshot: prepare chunks: %w", err)
	}
	defer stmt.Close()
	for _, c := range snap.Graph.Chunks {
		if _, err := stmt.ExecContext(ctx, id, int64(c.Ukey), c.Name, c.Kind.String(), len(c.Modules)); err != nil {
			return "", fmt.Errorf("save snapshot: chunk %d: %w", c.Ukey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("save snapshot: commit: %w", err)
	}
	return id, nil
}

const selectRecord = `
	SELECT id, seq, label, graph_hash, snapshot_version, engine_version, chunk_count, group_count, body
	FROM snapshots
`

// LoadSnapshot returns the snapshot with the given id.
func (s *Store) LoadSnapshot(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+`WHERE id = ?`, id)
	return scanRecord(row, id)
}

// LatestSnapshot returns the most recently saved snapshot.
func (s *Store) LatestSnapshot(ctx context.Context) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+`ORDER BY seq DESC LIMIT 1`)
	return scanRecord(row, "latest")
}

// FindByGraphHash returns the latest snapshot built from a module graph
// with the given hash.
func (s *Store) FindByGraphHash(ctx context.Context, hash string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+`WHERE graph_hash = ? ORDER BY seq DESC LIMIT 1`, hash)
	return scanRecord(row, "graph "+hash)
}

func scanRecord(row *sql.Row, what string) (*Record, error) {
	var rec Record
	var body string
	err := row.Scan(
		&rec.ID,
		&rec.Seq,
		&rec.Label,
		&rec.GraphHash,
		&rec.SnapshotVersion,
		&rec.EngineVersion,
		&rec.Chunks,
		&rec.Groups,
		&body,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(body), &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// ListSnapshots returns every snapshot summary in seq order.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) ListSnapshots(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, label, graph_hash, snapshot_version, engine_version, chunk_count, group_count
		FROM snapshots
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(
			&sum.ID,
			&sum.Seq,
			&sum.Label,
			&sum.GraphHash,
			&sum.SnapshotVersion,
			&sum.EngineVersion,
			&sum.Chunks,
			&sum.Groups,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// Chunks returns the chunk index of a snapshot in ukey order.
func (s *Store) Chunks(ctx context.Context, id string) ([]ChunkRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ukey, name, kind, module_count
		FROM snapshot_chunks
		WHERE snapshot_id = ?
		ORDER BY ukey ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	out := []ChunkRow{}
	for rows.Next() {
		var c ChunkRow
		if err := rows.Scan(&c.Ukey, &c.Name, &c.Kind, &c.Modules); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

// Trim deletes all but the newest keep snapshots and returns how many it
// deleted. Chunk rows go with them.
func (s *Store) Trim(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE seq NOT IN (SELECT seq FROM snapshots ORDER BY seq DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("trim snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("trim snapshots: %w", err)
	}
	return int(n), nil
}
