package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS canvases (
	canvas_id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	project_id TEXT NOT NULL DEFAULT '',
	document TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_canvases_owner ON canvases(owner_id);
`

// SQLStore is the SQLite-backed canvas snapshot source. Ownership is
// enforced at read time: a canvas owned by another user is indistinguishable
// from a missing one.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (creating if needed) the canvas database at dbPath.
func NewSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening graph database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating graph schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Snapshot returns the current graph for a canvas owned by userID. A
// malformed stored document is reported as ErrSnapshotUnavailable; context
// degradation is the caller's concern.
func (s *SQLStore) Snapshot(ctx context.Context, userID, canvasID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document FROM canvases WHERE canvas_id = ? AND owner_id = ?`, canvasID, userID)
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotUnavailable
		}
		return nil, fmt.Errorf("querying canvas: %w", err)
	}
	snap, err := ParseSnapshot([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	return snap, nil
}

// Put stores or replaces a canvas document. Used by sync tooling and tests;
// the production writer is the external graph store.
func (s *SQLStore) Put(ctx context.Context, userID, projectID, canvasID string, document []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO canvases (canvas_id, owner_id, project_id, document, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(canvas_id) DO UPDATE SET owner_id = excluded.owner_id,
		   project_id = excluded.project_id, document = excluded.document,
		   updated_at = excluded.updated_at`,
		canvasID, userID, projectID, string(document), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing canvas: %w", err)
	}
	return nil
}
