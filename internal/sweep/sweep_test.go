package sweep

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitebase/catalog-cli/internal/catalog"
	"github.com/bitebase/catalog-cli/internal/model"
)

func newTestStore(t *testing.T) *catalog.SQLiteStore {
	t.Helper()
	store, err := catalog.NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedRestaurant(t *testing.T, store catalog.Store, name string, lat, lon *float64, sources ...model.Source) *model.Restaurant {
	t.Helper()
	ctx := context.Background()
	r := &model.Restaurant{
		ID:        uuid.NewString(),
		Name:      name,
		Latitude:  lat,
		Longitude: lon,
		Location:  "New York",
	}
	require.NoError(t, store.Create(ctx, r))
	for _, s := range sources {
		require.NoError(t, store.SaveExternalID(ctx, r.ID, s, model.PrefixExternalID(s, uuid.NewString())))
	}
	return r
}

func TestSweepMergesNameSimilarDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	target := seedRestaurant(t, store, "Joe's Pizza",
		model.Float64Ptr(40.7305), model.Float64Ptr(-74.0021),
		model.SourceYelp, model.SourceGoogle)
	dupe := seedRestaurant(t, store, "Joes Pizza", nil, nil, model.GPSWeakSource)
	require.NoError(t, store.UpsertRating(ctx, dupe.ID, model.GPSWeakSource, 4.0, 55))

	report, err := New(store).Run(ctx, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Examined)
	require.Len(t, report.Merged, 1)
	assert.Equal(t, dupe.ID, report.Merged[0].DuplicateID)
	assert.Equal(t, target.ID, report.Merged[0].TargetID)
	assert.GreaterOrEqual(t, report.Merged[0].Similarity, SimilarityFloor)

	// The duplicate is gone; its source link and rating moved to the target.
	_, err = store.Get(ctx, dupe.ID)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	ids, err := store.ExternalIDs(ctx, target.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	ratings, err := store.Ratings(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	assert.Equal(t, model.GPSWeakSource, ratings[0].Source)
}

func TestSweepLeavesDissimilarNamesAlone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedRestaurant(t, store, "Joe's Pizza",
		model.Float64Ptr(40.7305), model.Float64Ptr(-74.0021),
		model.SourceYelp)
	dupe := seedRestaurant(t, store, "Jolly Burgers", nil, nil, model.GPSWeakSource)

	report, err := New(store).Run(ctx, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Examined)
	assert.Equal(t, 1, report.NoMatch)
	assert.Empty(t, report.Merged)

	_, err = store.Get(ctx, dupe.ID)
	assert.NoError(t, err)
}

func TestSweepDryRunTouchesNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	target := seedRestaurant(t, store, "Joe's Pizza",
		model.Float64Ptr(40.7305), model.Float64Ptr(-74.0021),
		model.SourceYelp)
	dupe := seedRestaurant(t, store, "Joes Pizza", nil, nil, model.GPSWeakSource)

	report, err := New(store).Run(ctx, Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	require.Len(t, report.Merged, 1)
	assert.Equal(t, target.ID, report.Merged[0].TargetID)

	// Both rows still exist.
	_, err = store.Get(ctx, dupe.ID)
	assert.NoError(t, err)
	_, err = store.Get(ctx, target.ID)
	assert.NoError(t, err)
}

func TestSweepRespectsBoundingBox(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Same chain name in another city: identical names, far-apart coords.
	seedRestaurant(t, store, "Joe's Pizza",
		model.Float64Ptr(43.6532), model.Float64Ptr(-79.3832), // Toronto
		model.SourceYelp)
	dupe := seedRestaurant(t, store, "Joe's Pizza",
		model.Float64Ptr(40.7305), model.Float64Ptr(-74.0021), // New York
		model.GPSWeakSource)

	report, err := New(store).Run(ctx, Options{})
	require.NoError(t, err)

	assert.Empty(t, report.Merged)
	assert.Equal(t, 1, report.NoMatch)
	_, err = store.Get(ctx, dupe.ID)
	assert.NoError(t, err)
}

func TestSweepIgnoresMultiSourceEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedRestaurant(t, store, "Joe's Pizza",
		model.Float64Ptr(40.7305), model.Float64Ptr(-74.0021),
		model.SourceYelp)
	// Attested by the GPS-weak source AND another: already resolved, not a
	// sweep candidate.
	multi := seedRestaurant(t, store, "Joes Pizza", nil, nil,
		model.GPSWeakSource, model.SourceGoogle)

	report, err := New(store).Run(ctx, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Examined)
	_, err = store.Get(ctx, multi.ID)
	assert.NoError(t, err)
}

func TestSweepPicksMostSimilarTarget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedRestaurant(t, store, "Joe's Pizza Palace",
		model.Float64Ptr(40.7305), model.Float64Ptr(-74.0021),
		model.SourceYelp)
	best := seedRestaurant(t, store, "Joe's Pizza",
		model.Float64Ptr(40.7306), model.Float64Ptr(-74.0022),
		model.SourceGoogle)
	seedRestaurant(t, store, "Joes Pizza", nil, nil, model.GPSWeakSource)

	report, err := New(store).Run(ctx, Options{})
	require.NoError(t, err)

	require.Len(t, report.Merged, 1)
	assert.Equal(t, best.ID, report.Merged[0].TargetID)
}
