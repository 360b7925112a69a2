// Package activity persists the append-only audit trail and the latest AI
// status in a local sqlite database.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"vault-operator/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS activities (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	activity_type TEXT NOT NULL,
	role          TEXT NOT NULL,
	amount        TEXT NOT NULL,
	asset         TEXT NOT NULL,
	tx_hash       TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	pnl           TEXT,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_activities_created ON activities(created_at DESC);

CREATE TABLE IF NOT EXISTS ai_status (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	status     TEXT NOT NULL,
	action     TEXT NOT NULL DEFAULT 'HOLD',
	size_pct   REAL NOT NULL DEFAULT 0,
	leverage   INTEGER NOT NULL DEFAULT 1,
	reasoning  TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store wraps the sqlite database. Safe for concurrent use; database/sql
// pools connections underneath.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows one writer; serialize access at the pool level.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one activity entry and returns it with ID and timestamp
// filled in.
func (s *Store) Record(ctx context.Context, rec types.ActivityRecord) (*types.ActivityRecord, error) {
	var pnl any
	if rec.PnL != nil {
		pnl = rec.PnL.String()
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (activity_type, role, amount, asset, tx_hash, description, pnl, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.ActivityType), string(rec.Role), rec.Amount.String(), rec.Asset,
		rec.TxHash, rec.Description, pnl, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	rec.ID = id
	rec.CreatedAt = now
	return &rec, nil
}

// List returns up to limit activity entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]types.ActivityRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, activity_type, role, amount, asset, tx_hash, description, pnl, created_at
		 FROM activities ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var out []types.ActivityRecord
	for rows.Next() {
		var (
			rec      types.ActivityRecord
			aType    string
			role     string
			amount   string
			pnl      sql.NullString
			createdA time.Time
		)
		if err := rows.Scan(&rec.ID, &aType, &role, &amount, &rec.Asset, &rec.TxHash, &rec.Description, &pnl, &createdA); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		rec.ActivityType = types.ActivityType(aType)
		rec.Role = types.Role(role)
		rec.CreatedAt = createdA

		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		rec.Amount = d

		if pnl.Valid {
			p, err := decimal.NewFromString(pnl.String)
			if err != nil {
				return nil, fmt.Errorf("parse pnl %q: %w", pnl.String, err)
			}
			rec.PnL = &p
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetAIStatus upserts the single latest-decision row.
func (s *Store) SetAIStatus(ctx context.Context, d types.AIDecision) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_status (id, status, action, size_pct, leverage, reasoning, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status, action = excluded.action,
		   size_pct = excluded.size_pct, leverage = excluded.leverage,
		   reasoning = excluded.reasoning, updated_at = excluded.updated_at`,
		string(d.Status), string(d.Action), d.PositionSizePercent, d.Leverage,
		d.Reasoning, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert ai status: %w", err)
	}
	return nil
}

// AIStatus returns the latest stored decision, or a NEUTRAL/HOLD default if
// none has been recorded yet (zero updatedAt marks the default).
func (s *Store) AIStatus(ctx context.Context) (types.AIDecision, time.Time, error) {
	var (
		d         types.AIDecision
		status    string
		action    string
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, action, size_pct, leverage, reasoning, updated_at FROM ai_status WHERE id = 1`,
	).Scan(&status, &action, &d.PositionSizePercent, &d.Leverage, &d.Reasoning, &updatedAt)
	if err == sql.ErrNoRows {
		return types.AIDecision{Status: types.StatusNeutral, Action: types.ActionHold, Leverage: 1}, time.Time{}, nil
	}
	if err != nil {
		return types.AIDecision{}, time.Time{}, fmt.Errorf("query ai status: %w", err)
	}
	d.Status = types.SignalStatus(status)
	d.Action = types.Action(action)
	return d, updatedAt, nil
}
