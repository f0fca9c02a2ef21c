package entitlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrAccountNotFound is returned when a user has no account row.
var ErrAccountNotFound = errors.New("account not found")

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id TEXT PRIMARY KEY,
	plan TEXT NOT NULL,
	is_developer INTEGER NOT NULL DEFAULT 0,
	is_admin INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS org_members (
	org_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	PRIMARY KEY (org_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_org_members_user ON org_members(user_id);

CREATE TABLE IF NOT EXISTS org_policies (
	org_id TEXT PRIMARY KEY,
	allow_bypass INTEGER NOT NULL DEFAULT 0,
	monthly_token_limit_per_seat INTEGER NOT NULL DEFAULT 0,
	ai_enabled INTEGER NOT NULL DEFAULT 1,
	allowed_modes TEXT NOT NULL DEFAULT '[]'
);
`

// SQLStore is the SQLite-backed entitlement store.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (creating if needed) the entitlement database at dbPath.
func NewSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening entitlement database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating entitlement schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Account returns the billing account for a user.
func (s *SQLStore) Account(ctx context.Context, userID string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, plan, is_developer, is_admin FROM accounts WHERE user_id = ?`, userID)
	var a Account
	var dev, admin int
	if err := row.Scan(&a.UserID, &a.Plan, &dev, &admin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("querying account: %w", err)
	}
	a.IsDeveloper = dev != 0
	a.IsAdmin = admin != 0
	return &a, nil
}

// Memberships returns the org ids the user belongs to, ordered by org id.
func (s *SQLStore) Memberships(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT org_id FROM org_members WHERE user_id = ? ORDER BY org_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying memberships: %w", err)
	}
	defer rows.Close()
	var orgs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		orgs = append(orgs, id)
	}
	return orgs, rows.Err()
}

// Policy returns the org's AI policy, or nil when none is configured.
func (s *SQLStore) Policy(ctx context.Context, orgID string) (*OrgPolicy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT org_id, allow_bypass, monthly_token_limit_per_seat, ai_enabled, allowed_modes
		 FROM org_policies WHERE org_id = ?`, orgID)
	var p OrgPolicy
	var bypass, enabled int
	var modesJSON string
	if err := row.Scan(&p.OrgID, &bypass, &p.MonthlyTokenLimitPerSeat, &enabled, &modesJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying org policy: %w", err)
	}
	p.AllowBypass = bypass != 0
	p.AIEnabled = enabled != 0
	if err := json.Unmarshal([]byte(modesJSON), &p.AllowedModes); err != nil {
		return nil, fmt.Errorf("decoding allowed_modes: %w", err)
	}
	return &p, nil
}

// UpsertAccount creates or replaces an account row. Used by admin tooling
// and billing-webhook reconciliation outside this core.
func (s *SQLStore) UpsertAccount(ctx context.Context, a *Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, plan, is_developer, is_admin) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET plan = excluded.plan,
		   is_developer = excluded.is_developer, is_admin = excluded.is_admin`,
		a.UserID, a.Plan, boolInt(a.IsDeveloper), boolInt(a.IsAdmin))
	if err != nil {
		return fmt.Errorf("upserting account: %w", err)
	}
	return nil
}

// AddMember records org membership for a user. Idempotent.
func (s *SQLStore) AddMember(ctx context.Context, orgID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO org_members (org_id, user_id) VALUES (?, ?)`, orgID, userID)
	if err != nil {
		return fmt.Errorf("adding org member: %w", err)
	}
	return nil
}

// UpsertPolicy creates or replaces an org's AI policy.
func (s *SQLStore) UpsertPolicy(ctx context.Context, p *OrgPolicy) error {
	modesJSON, err := json.Marshal(p.AllowedModes)
	if err != nil {
		return fmt.Errorf("encoding allowed_modes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO org_policies (org_id, allow_bypass, monthly_token_limit_per_seat, ai_enabled, allowed_modes)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(org_id) DO UPDATE SET allow_bypass = excluded.allow_bypass,
		   monthly_token_limit_per_seat = excluded.monthly_token_limit_per_seat,
		   ai_enabled = excluded.ai_enabled, allowed_modes = excluded.allowed_modes`,
		p.OrgID, boolInt(p.AllowBypass), p.MonthlyTokenLimitPerSeat, boolInt(p.AIEnabled), string(modesJSON))
	if err != nil {
		return fmt.Errorf("upserting org policy: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
