package quota

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
)

// SQLiteLedger persists the ledger in the catalog's SQLite database. The
// check-and-increment runs inside one transaction so concurrent adapters
// serialize on the write lock.
type SQLiteLedger struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a ledger over an already-open database handle.
func NewSQLite(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (l *SQLiteLedger) SetClock(now func() time.Time) { l.now = now }

const sqliteQuotaMigration = `
CREATE TABLE IF NOT EXISTS request_quotas (
	adapter       TEXT PRIMARY KEY,
	request_count INTEGER NOT NULL DEFAULT 0,
	reset_at      DATETIME NOT NULL
);
`

// Migrate creates the quota table.
func (l *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, sqliteQuotaMigration)
	return eris.Wrap(err, "quota: migrate")
}

func (l *SQLiteLedger) Take(ctx context.Context, adapter string, limit int) (int, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "quota: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	now := l.now().UTC()

	var count int
	var resetAt time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT request_count, reset_at FROM request_quotas WHERE adapter = ?`, adapter).
		Scan(&count, &resetAt)
	switch {
	case err == sql.ErrNoRows:
		count = 0
		resetAt = now
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO request_quotas (adapter, request_count, reset_at) VALUES (?, 0, ?)`,
			adapter, resetAt); err != nil {
			return 0, eris.Wrap(err, "quota: insert entry")
		}
	case err != nil:
		return 0, eris.Wrap(err, "quota: read entry")
	}

	if now.Sub(resetAt) > ResetWindow {
		count = 0
		resetAt = now
	}

	if limit > 0 && count >= limit {
		return count, eris.Wrapf(ErrRateLimited, "adapter %s at %d/%d", adapter, count, limit)
	}

	count++
	if _, err := tx.ExecContext(ctx,
		`UPDATE request_quotas SET request_count = ?, reset_at = ? WHERE adapter = ?`,
		count, resetAt, adapter); err != nil {
		return 0, eris.Wrap(err, "quota: update entry")
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "quota: commit")
	}
	return count, nil
}

func (l *SQLiteLedger) Status(ctx context.Context, adapter string) (*Status, error) {
	var s Status
	s.Adapter = adapter
	err := l.db.QueryRowContext(ctx,
		`SELECT request_count, reset_at FROM request_quotas WHERE adapter = ?`, adapter).
		Scan(&s.Count, &s.ResetAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "quota: status")
	}
	return &s, nil
}
