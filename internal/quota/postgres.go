package quota

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/bitebase/catalog-cli/internal/catalog"
)

// PostgresLedger persists the ledger in the catalog's Postgres database.
// Take locks the adapter's row (SELECT ... FOR UPDATE) so concurrent page
// requests serialize on the check-and-increment.
type PostgresLedger struct {
	pool catalog.PgxPool
	now  func() time.Time
}

// NewPostgres creates a ledger over a shared pool.
func NewPostgres(pool catalog.PgxPool) *PostgresLedger {
	return &PostgresLedger{pool: pool, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (l *PostgresLedger) SetClock(now func() time.Time) { l.now = now }

const postgresQuotaMigration = `
CREATE TABLE IF NOT EXISTS request_quotas (
	adapter       TEXT PRIMARY KEY,
	request_count INTEGER NOT NULL DEFAULT 0,
	reset_at      TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the quota table.
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, postgresQuotaMigration)
	return eris.Wrap(err, "quota: migrate")
}

func (l *PostgresLedger) Take(ctx context.Context, adapter string, limit int) (int, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "quota: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := l.now().UTC()

	var count int
	var resetAt time.Time
	err = tx.QueryRow(ctx,
		`SELECT request_count, reset_at FROM request_quotas WHERE adapter = $1 FOR UPDATE`, adapter).
		Scan(&count, &resetAt)
	switch {
	case err == pgx.ErrNoRows:
		count = 0
		resetAt = now
		if _, err := tx.Exec(ctx,
			`INSERT INTO request_quotas (adapter, request_count, reset_at) VALUES ($1, 0, $2)`,
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
	if _, err := tx.Exec(ctx,
		`UPDATE request_quotas SET request_count = $1, reset_at = $2 WHERE adapter = $3`,
		count, resetAt, adapter); err != nil {
		return 0, eris.Wrap(err, "quota: update entry")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "quota: commit")
	}
	return count, nil
}

func (l *PostgresLedger) Status(ctx context.Context, adapter string) (*Status, error) {
	var s Status
	s.Adapter = adapter
	err := l.pool.QueryRow(ctx,
		`SELECT request_count, reset_at FROM request_quotas WHERE adapter = $1`, adapter).
		Scan(&s.Count, &s.ResetAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "quota: status")
	}
	return &s, nil
}
