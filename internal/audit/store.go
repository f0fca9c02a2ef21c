// Package audit records per-request usage metadata in an append-only
// SQLite log. Rows carry token counts, op counts, and risk level — never
// prompt or response content. That boundary is deliberate: operators get
// billing-grade accounting without the log becoming a store of user data.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	correlation_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	owner_id TEXT NOT NULL,
	org_id TEXT NOT NULL DEFAULT '',
	mode TEXT NOT NULL,
	task TEXT NOT NULL,
	model TEXT NOT NULL,
	tokens_in INTEGER NOT NULL,
	tokens_out INTEGER NOT NULL,
	ops_count INTEGER NOT NULL,
	risk_level TEXT NOT NULL,
	model_response_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_owner ON audit_log(owner_id);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_log(correlation_id);
`

// Entry is one audit row.
type Entry struct {
	ID              string    `json:"id"`
	CorrelationID   string    `json:"correlation_id"`
	CreatedAt       time.Time `json:"created_at"`
	OwnerID         string    `json:"owner_id"`
	OrgID           string    `json:"org_id,omitempty"`
	Mode            string    `json:"mode"`
	Task            string    `json:"task"`
	Model           string    `json:"model"`
	TokensIn        int       `json:"tokens_in"`
	TokensOut       int       `json:"tokens_out"`
	OpsCount        int       `json:"ops_count"`
	RiskLevel       string    `json:"risk_level"`
	ModelResponseID string    `json:"model_response_id,omitempty"`
}

// Store persists audit entries in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the audit database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends an entry, assigning its id and timestamp. Entries are
// never mutated afterwards.
func (s *Store) Insert(ctx context.Context, e *Entry) error {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, correlation_id, created_at, owner_id, org_id, mode, task, model,
		   tokens_in, tokens_out, ops_count, risk_level, model_response_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CorrelationID, e.CreatedAt, e.OwnerID, e.OrgID, e.Mode, e.Task, e.Model,
		e.TokensIn, e.TokensOut, e.OpsCount, e.RiskLevel, e.ModelResponseID)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// CountSince returns how many entries an owner produced since the cutoff.
func (s *Store) CountSince(ctx context.Context, ownerID string, since time.Time) (int64, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE owner_id = ? AND created_at >= ?`, ownerID, since)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting audit entries: %w", err)
	}
	return n, nil
}

// PruneOlderThan deletes entries created before the cutoff and returns how
// many were removed. Called by the retention janitor.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning audit entries: %w", err)
	}
	return n, nil
}
