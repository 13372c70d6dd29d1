package quota

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitebase/catalog-cli/internal/catalog"
)

func newTestSQLiteLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	st, err := catalog.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	l := NewSQLite(st.DB())
	require.NoError(t, l.Migrate(context.Background()))
	return l
}

func TestSQLiteLedger_TakeUpToLimit(t *testing.T) {
	l := newTestSQLiteLedger(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := l.Take(ctx, "yelp", 3)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	// Fourth tracked request exceeds the budget.
	_, err := l.Take(ctx, "yelp", 3)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRateLimited))
}

func TestSQLiteLedger_ResetAfterWindow(t *testing.T) {
	l := newTestSQLiteLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return base })

	for range 2 {
		_, err := l.Take(ctx, "yelp", 2)
		require.NoError(t, err)
	}
	_, err := l.Take(ctx, "yelp", 2)
	require.True(t, eris.Is(err, ErrRateLimited))

	// Past one rolling month the counter restarts at 1.
	l.SetClock(func() time.Time { return base.Add(ResetWindow + time.Hour) })
	n, err := l.Take(ctx, "yelp", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteLedger_NoLimitUnconstrained(t *testing.T) {
	l := newTestSQLiteLedger(t)
	ctx := context.Background()

	for i := 1; i <= 50; i++ {
		n, err := l.Take(ctx, "instagram", 0)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
}

func TestSQLiteLedger_StatusMissing(t *testing.T) {
	l := newTestSQLiteLedger(t)

	s, err := l.Status(context.Background(), "never-used")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSQLiteLedger_IndependentAdapters(t *testing.T) {
	l := newTestSQLiteLedger(t)
	ctx := context.Background()

	_, err := l.Take(ctx, "yelp", 1)
	require.NoError(t, err)
	_, err = l.Take(ctx, "yelp", 1)
	require.True(t, eris.Is(err, ErrRateLimited))

	// A different adapter has its own budget.
	n, err := l.Take(ctx, "google", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryLedger_Semantics(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return base })

	n, err := l.Take(ctx, "yelp", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = l.Take(ctx, "yelp", 2)
	require.NoError(t, err)
	_, err = l.Take(ctx, "yelp", 2)
	assert.True(t, eris.Is(err, ErrRateLimited))

	s, err := l.Status(ctx, "yelp")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 2, s.Count)

	l.SetClock(func() time.Time { return base.Add(ResetWindow + time.Minute) })
	n, err = l.Take(ctx, "yelp", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
