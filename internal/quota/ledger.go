// Package quota tracks per-owner token consumption per billing period.
//
// The ledger is read before the model call and committed only after a
// validated model response, so a failed call never advances the counters.
// Commit uses a database-native atomic upsert increment, so concurrent
// commits for one owner cannot under-count. The check-then-commit window
// across two simultaneous requests remains: both can pass CheckAndReserve
// before either commits, allowing transient over-quota spend. That race is
// accepted (the alternative is a distributed reservation protocol) and is
// surfaced to operators in the audit log rather than silently masked.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrQuotaExceeded is returned when an owner's period consumption has
// reached the token limit.
var ErrQuotaExceeded = errors.New("monthly token quota exceeded")

const schema = `
CREATE TABLE IF NOT EXISTS quota_records (
	owner_id TEXT NOT NULL,
	period_start TEXT NOT NULL,
	tokens_in INTEGER NOT NULL DEFAULT 0,
	tokens_out INTEGER NOT NULL DEFAULT 0,
	request_count INTEGER NOT NULL DEFAULT 0,
	last_request_at TIMESTAMP,
	PRIMARY KEY (owner_id, period_start)
);
`

// Record is one owner's consumption within one billing period.
type Record struct {
	OwnerID       string
	PeriodStart   string
	TokensIn      int64
	TokensOut     int64
	RequestCount  int64
	LastRequestAt time.Time
}

// Ledger persists quota records in SQLite.
type Ledger struct {
	db *sql.DB
}

// NewLedger opens (creating if needed) the quota database at dbPath.
func NewLedger(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening quota database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating quota schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// PeriodStart returns the billing-period key for now: the first day of the
// current UTC month, formatted as YYYY-MM-DD. Period rollover supersedes
// the old record under a new key; records are never merged or deleted
// within a period.
func PeriodStart(now time.Time) string {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// CheckAndReserve returns the owner's current period consumption, failing
// with ErrQuotaExceeded when it has reached limit. Called before the model
// invocation; a missing record counts as zero.
func (l *Ledger) CheckAndReserve(ctx context.Context, ownerID, periodStart string, limit int64) (current int64, err error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT tokens_in + tokens_out FROM quota_records WHERE owner_id = ? AND period_start = ?`,
		ownerID, periodStart)
	if err := row.Scan(&current); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("reading quota record: %w", err)
	}
	if current >= limit {
		return current, ErrQuotaExceeded
	}
	return current, nil
}

// Commit adds a request's token usage to the owner's period record,
// creating it on first use. The increment is a single atomic upsert.
func (l *Ledger) Commit(ctx context.Context, ownerID, periodStart string, tokensIn, tokensOut int64) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO quota_records (owner_id, period_start, tokens_in, tokens_out, request_count, last_request_at)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT(owner_id, period_start) DO UPDATE SET
		   tokens_in = tokens_in + excluded.tokens_in,
		   tokens_out = tokens_out + excluded.tokens_out,
		   request_count = request_count + 1,
		   last_request_at = excluded.last_request_at`,
		ownerID, periodStart, tokensIn, tokensOut, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("committing quota usage: %w", err)
	}
	return nil
}

// Get returns the owner's record for a period, or a zero record when none
// exists yet.
func (l *Ledger) Get(ctx context.Context, ownerID, periodStart string) (*Record, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT tokens_in, tokens_out, request_count, last_request_at
		 FROM quota_records WHERE owner_id = ? AND period_start = ?`,
		ownerID, periodStart)
	rec := &Record{OwnerID: ownerID, PeriodStart: periodStart}
	var last sql.NullTime
	if err := row.Scan(&rec.TokensIn, &rec.TokensOut, &rec.RequestCount, &last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, nil
		}
		return nil, fmt.Errorf("reading quota record: %w", err)
	}
	if last.Valid {
		rec.LastRequestAt = last.Time
	}
	return rec, nil
}
