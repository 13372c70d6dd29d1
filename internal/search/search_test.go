package search

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

type seed struct {
	name       string
	categories []string
	rating     float64
	reviews    int
}

func seedLocation(t *testing.T, store catalog.Store, location string, seeds []seed) {
	t.Helper()
	ctx := context.Background()
	for _, s := range seeds {
		r := &model.Restaurant{ID: uuid.NewString(), Name: s.name, Location: location}
		require.NoError(t, store.Create(ctx, r))
		if len(s.categories) > 0 {
			require.NoError(t, store.LinkCategories(ctx, r.ID, s.categories))
		}
		if s.rating > 0 {
			require.NoError(t, store.UpsertRating(ctx, r.ID, model.SourceYelp, s.rating, s.reviews))
		}
	}
}

func TestSearchFuzzyNameMatch(t *testing.T) {
	store := newTestStore(t)
	seedLocation(t, store, "Toronto", []seed{
		{name: "Tim Hortons", categories: []string{"Coffee"}, rating: 3.9, reviews: 420},
		{name: "Sushi Palace", categories: []string{"Japanese"}, rating: 4.4, reviews: 88},
	})

	// Misspelled query still finds the coffee chain and nothing else.
	results, err := New(store).Search(context.Background(), Query{Location: "Toronto", Name: "tim hortin"})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "Tim Hortons", results[0].Restaurant.Name)
	assert.GreaterOrEqual(t, results[0].Score, FuzzyFloor)
}

func TestSearchSubstringBeatsFuzzy(t *testing.T) {
	store := newTestStore(t)
	seedLocation(t, store, "Toronto", []seed{
		{name: "Golden Dragon"},
		{name: "Golden Gate Grill"},
	})

	results, err := New(store).Search(context.Background(), Query{Location: "Toronto", Name: "golden"})
	require.NoError(t, err)

	require.Len(t, results, 2)
	// Both are substring hits; ties break alphabetically.
	assert.Equal(t, "Golden Dragon", results[0].Restaurant.Name)
	assert.Equal(t, "Golden Gate Grill", results[1].Restaurant.Name)
}

func TestSearchCategoryFilter(t *testing.T) {
	store := newTestStore(t)
	seedLocation(t, store, "Toronto", []seed{
		{name: "Sushi Palace", categories: []string{"Japanese", "Sushi"}},
		{name: "Taco Fiesta", categories: []string{"Mexican"}},
	})

	results, err := New(store).Search(context.Background(), Query{Location: "Toronto", Category: "sushi"})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "Sushi Palace", results[0].Restaurant.Name)
}

func TestSearchBothFiltersMustPass(t *testing.T) {
	store := newTestStore(t)
	seedLocation(t, store, "Toronto", []seed{
		{name: "Sushi Palace", categories: []string{"Japanese"}},
		{name: "Sushi Garden", categories: []string{"Korean"}},
	})

	results, err := New(store).Search(context.Background(), Query{
		Location: "Toronto",
		Name:     "sushi",
		Category: "japanese",
	})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "Sushi Palace", results[0].Restaurant.Name)
}

func TestSearchOverallRank(t *testing.T) {
	store := newTestStore(t)
	seedLocation(t, store, "Toronto", []seed{
		{name: "Hidden Gem", rating: 4.6, reviews: 3},
		{name: "Crowd Favourite", rating: 4.5, reviews: 2400},
		{name: "Unrated Diner"},
	})

	results, err := New(store).Search(context.Background(), Query{Location: "Toronto", Sort: SortOverallRank})
	require.NoError(t, err)

	require.Len(t, results, 3)
	// Review volume lifts the 4.5 past the barely-reviewed 4.6; the unrated
	// entry always ranks last.
	assert.Equal(t, "Crowd Favourite", results[0].Restaurant.Name)
	assert.Equal(t, "Hidden Gem", results[1].Restaurant.Name)
	assert.Equal(t, "Unrated Diner", results[2].Restaurant.Name)
}

func TestSearchLimit(t *testing.T) {
	store := newTestStore(t)
	seedLocation(t, store, "Toronto", []seed{
		{name: "A"}, {name: "B"}, {name: "C"},
	})

	results, err := New(store).Search(context.Background(), Query{Location: "Toronto", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchWithoutLocationSpansCatalog(t *testing.T) {
	store := newTestStore(t)
	seedLocation(t, store, "Toronto", []seed{
		{name: "Tim Hortons", categories: []string{"Coffee"}},
	})
	seedLocation(t, store, "New York", []seed{
		{name: "Joe's Pizza", categories: []string{"Pizza"}},
	})

	// No location filter: the name query runs over every indexed location.
	results, err := New(store).Search(context.Background(), Query{Name: "Tim Horton's"})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "Tim Hortons", results[0].Restaurant.Name)

	// And with no filters at all, everything comes back.
	all, err := New(store).Search(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, SortRelevance, ParseSort(""))
	assert.Equal(t, SortRelevance, ParseSort("nonsense"))
	assert.Equal(t, SortOverallRank, ParseSort("overall_rank"))
	assert.Equal(t, SortOverallRank, ParseSort(" Overall_Rank "))
}
