package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitebase/catalog-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testRestaurant(name string) *model.Restaurant {
	return &model.Restaurant{
		ID:        uuid.NewString(),
		Name:      name,
		Address:   "7 Carmine St",
		Latitude:  model.Float64Ptr(40.7305),
		Longitude: model.Float64Ptr(-74.0021),
		Phone:     "+12125550199",
		Location:  "New York",
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRestaurant("Joe's Pizza")
	require.NoError(t, store.Create(ctx, r))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Joe's Pizza", got.Name)
	assert.Equal(t, "7 Carmine St", got.Address)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, 40.7305, *got.Latitude, 1e-9)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetUnknownID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNullCoordinatesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := &model.Restaurant{ID: uuid.NewString(), Name: "No Coords"}
	require.NoError(t, store.Create(ctx, r))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Latitude)
	assert.Nil(t, got.Longitude)
	assert.False(t, got.HasCoordinates())
}

func TestFindByExternalID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRestaurant("Joe's Pizza")
	require.NoError(t, store.Create(ctx, r))
	require.NoError(t, store.SaveExternalID(ctx, r.ID, model.SourceYelp, "yelp:j1"))

	got, err := store.FindByExternalID(ctx, model.SourceYelp, "yelp:j1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)

	// Absence is (nil, nil), not an error.
	got, err = store.FindByExternalID(ctx, model.SourceGoogle, "google:xyz")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveExternalIDIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRestaurant("Joe's Pizza")
	require.NoError(t, store.Create(ctx, r))

	require.NoError(t, store.SaveExternalID(ctx, r.ID, model.SourceYelp, "yelp:j1"))
	require.NoError(t, store.SaveExternalID(ctx, r.ID, model.SourceYelp, "yelp:j1"))

	ids, err := store.ExternalIDs(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestFindCandidatesNear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inside := testRestaurant("Inside")
	require.NoError(t, store.Create(ctx, inside))

	outside := testRestaurant("Outside")
	outside.Latitude = model.Float64Ptr(41.5)
	require.NoError(t, store.Create(ctx, outside))

	noCoords := &model.Restaurant{ID: uuid.NewString(), Name: "Blind"}
	require.NoError(t, store.Create(ctx, noCoords))

	got, err := store.FindCandidatesNear(ctx, 40.7305, -74.0021, 0.01)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inside.ID, got[0].ID)
}

func TestUpdateFieldsPartial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRestaurant("Joe's Pizza")
	require.NoError(t, store.Create(ctx, r))

	err := store.UpdateFields(ctx, r.ID, model.FieldPatch{Phone: model.StringPtr("+12125550000")})
	require.NoError(t, err)

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "+12125550000", got.Phone)
	assert.Equal(t, "Joe's Pizza", got.Name) // untouched

	err = store.UpdateFields(ctx, "nope", model.FieldPatch{Phone: model.StringPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertRatingKeepsLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRestaurant("Joe's Pizza")
	require.NoError(t, store.Create(ctx, r))

	require.NoError(t, store.UpsertRating(ctx, r.ID, model.SourceYelp, 4.2, 100))
	require.NoError(t, store.UpsertRating(ctx, r.ID, model.SourceYelp, 4.5, 150))
	require.NoError(t, store.UpsertRating(ctx, r.ID, model.SourceGoogle, 4.0, 80))

	ratings, err := store.Ratings(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, ratings, 2)
	// Ordered by source: google, yelp.
	assert.Equal(t, model.SourceGoogle, ratings[0].Source)
	assert.Equal(t, 4.5, ratings[1].Score)
	assert.Equal(t, 150, ratings[1].ReviewCount)
}

func TestReplaceMediaSwapsSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRestaurant("Joe's Pizza")
	require.NoError(t, store.Create(ctx, r))

	require.NoError(t, store.ReplaceMedia(ctx, r.ID, model.SourceYelp, model.MediaPhoto,
		[]string{"https://img/a.jpg", "https://img/b.jpg"}))
	require.NoError(t, store.ReplaceMedia(ctx, r.ID, model.SourceYelp, model.MediaPhoto,
		[]string{"https://img/c.jpg"}))

	n, err := store.MediaCount(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLinkCategoriesIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRestaurant("Joe's Pizza")
	require.NoError(t, store.Create(ctx, r))

	require.NoError(t, store.LinkCategories(ctx, r.ID, []string{"Pizza", "Italian", ""}))
	require.NoError(t, store.LinkCategories(ctx, r.ID, []string{"Pizza"}))

	cats, err := store.Categories(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Italian", "Pizza"}, cats)
}

func TestAllIndexedLocations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testRestaurant("A")
	a.Location = "Toronto"
	b := testRestaurant("B")
	b.Location = "New York"
	c := testRestaurant("C")
	c.Location = "Toronto"
	for _, r := range []*model.Restaurant{a, b, c} {
		require.NoError(t, store.Create(ctx, r))
	}

	locations, err := store.AllIndexedLocations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"New York", "Toronto"}, locations)
}

func TestSearchRowsAggregates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRestaurant("Joe's Pizza")
	require.NoError(t, store.Create(ctx, r))
	require.NoError(t, store.LinkCategories(ctx, r.ID, []string{"Pizza", "Italian"}))
	require.NoError(t, store.UpsertRating(ctx, r.ID, model.SourceYelp, 4.0, 100))
	require.NoError(t, store.UpsertRating(ctx, r.ID, model.SourceGoogle, 5.0, 50))

	unrated := testRestaurant("Quiet Corner")
	require.NoError(t, store.Create(ctx, unrated))

	rows, err := store.SearchRows(ctx, "New York")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	joes := rows[0]
	assert.Equal(t, "Joe's Pizza", joes.Restaurant.Name)
	assert.ElementsMatch(t, []string{"Pizza", "Italian"}, joes.Categories)
	require.NotNil(t, joes.AvgRating)
	assert.InDelta(t, 4.5, *joes.AvgRating, 1e-9)
	assert.Equal(t, 150, joes.TotalReviews)

	assert.Nil(t, rows[1].AvgRating)
	assert.Equal(t, 0, rows[1].TotalReviews)
}

func TestSoleSourceRestaurants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sole := testRestaurant("Sole")
	require.NoError(t, store.Create(ctx, sole))
	require.NoError(t, store.SaveExternalID(ctx, sole.ID, model.SourceTripAdvisor, "tripadvisor:1"))

	multi := testRestaurant("Multi")
	require.NoError(t, store.Create(ctx, multi))
	require.NoError(t, store.SaveExternalID(ctx, multi.ID, model.SourceTripAdvisor, "tripadvisor:2"))
	require.NoError(t, store.SaveExternalID(ctx, multi.ID, model.SourceYelp, "yelp:2"))

	unlinked := testRestaurant("Unlinked")
	require.NoError(t, store.Create(ctx, unlinked))

	got, err := store.SoleSourceRestaurants(ctx, model.SourceTripAdvisor)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sole.ID, got[0].ID)
}

func TestAttestedCandidates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	joes := testRestaurant("Joe's Pizza")
	require.NoError(t, store.Create(ctx, joes))
	require.NoError(t, store.SaveExternalID(ctx, joes.ID, model.SourceYelp, "yelp:1"))

	taOnly := testRestaurant("Jim's Pizza")
	require.NoError(t, store.Create(ctx, taOnly))
	require.NoError(t, store.SaveExternalID(ctx, taOnly.ID, model.SourceTripAdvisor, "tripadvisor:1"))

	far := testRestaurant("Jolly Pizza")
	far.Latitude = model.Float64Ptr(43.65)
	far.Longitude = model.Float64Ptr(-79.38)
	require.NoError(t, store.Create(ctx, far))
	require.NoError(t, store.SaveExternalID(ctx, far.ID, model.SourceGoogle, "google:1"))

	// Prefix filter only: both non-TripAdvisor entries qualify.
	got, err := store.AttestedCandidates(ctx, model.SourceTripAdvisor, "j", nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Adding the box keeps only the nearby one.
	box := BoxAround(40.7305, -74.0021, 0.005)
	got, err = store.AttestedCandidates(ctx, model.SourceTripAdvisor, "j", &box)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, joes.ID, got[0].ID)
}

func TestMergeRestaurants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	target := testRestaurant("Joe's Pizza")
	target.Phone = ""
	target.Latitude = nil
	target.Longitude = nil
	require.NoError(t, store.Create(ctx, target))
	require.NoError(t, store.SaveExternalID(ctx, target.ID, model.SourceYelp, "yelp:1"))
	require.NoError(t, store.UpsertRating(ctx, target.ID, model.SourceYelp, 4.5, 100))
	require.NoError(t, store.ReplaceMedia(ctx, target.ID, model.SourceYelp, model.MediaPhoto,
		[]string{"https://img/shared.jpg"}))

	dupe := testRestaurant("Joes Pizza")
	require.NoError(t, store.Create(ctx, dupe))
	require.NoError(t, store.SaveExternalID(ctx, dupe.ID, model.SourceTripAdvisor, "tripadvisor:1"))
	require.NoError(t, store.UpsertRating(ctx, dupe.ID, model.SourceTripAdvisor, 4.0, 55))
	// Yelp rating on the duplicate must NOT move: the target already has one.
	require.NoError(t, store.UpsertRating(ctx, dupe.ID, model.SourceYelp, 1.0, 1))
	require.NoError(t, store.ReplaceMedia(ctx, dupe.ID, model.SourceTripAdvisor, model.MediaPhoto,
		[]string{"https://img/shared.jpg", "https://img/new.jpg"}))
	require.NoError(t, store.LinkCategories(ctx, dupe.ID, []string{"Pizza"}))

	require.NoError(t, store.MergeRestaurants(ctx, dupe.ID, target.ID))

	// Duplicate row is gone.
	_, err := store.Get(ctx, dupe.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// External ids moved wholesale.
	ids, err := store.ExternalIDs(ctx, target.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	// Target's yelp rating survived; tripadvisor's moved over.
	ratings, err := store.Ratings(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, ratings, 2)
	for _, rt := range ratings {
		if rt.Source == model.SourceYelp {
			assert.Equal(t, 4.5, rt.Score)
		}
	}

	// Shared URL deduplicated, new URL moved: shared + new = 2 total.
	n, err := store.MediaCount(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Category link copied.
	cats, err := store.Categories(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pizza"}, cats)

	// Null coordinates and empty phone backfilled from the duplicate.
	got, err := store.Get(ctx, target.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, 40.7305, *got.Latitude, 1e-9)
	assert.Equal(t, "+12125550199", got.Phone)
}
