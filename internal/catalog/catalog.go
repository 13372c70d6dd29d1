// Package catalog persists the canonical restaurant graph and exposes the
// query operations the indexer, sweep, and search engine need. It carries no
// matching or ranking logic of its own; similarity scoring happens in
// application code over coarsely filtered candidate rows.
package catalog

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/bitebase/catalog-cli/internal/model"
)

// ErrNotFound is returned when a restaurant id does not exist.
var ErrNotFound = eris.New("catalog: restaurant not found")

// BoundingBox restricts candidate queries to a coordinate window.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoxAround builds a bounding box of ±delta degrees around a point.
func BoxAround(lat, lon, delta float64) BoundingBox {
	return BoundingBox{
		MinLat: lat - delta, MaxLat: lat + delta,
		MinLon: lon - delta, MaxLon: lon + delta,
	}
}

// SearchRow is one restaurant plus the aggregates the search engine ranks on.
type SearchRow struct {
	Restaurant   model.Restaurant
	Categories   []string
	AvgRating    *float64 // nil when no source has rated it
	TotalReviews int
}

// Store is the persistence interface for the catalog.
type Store interface {
	// Restaurants
	Get(ctx context.Context, id string) (*model.Restaurant, error)
	FindByExternalID(ctx context.Context, source model.Source, externalID string) (*model.Restaurant, error)
	FindCandidatesNear(ctx context.Context, lat, lon, delta float64) ([]*model.Restaurant, error)
	Create(ctx context.Context, r *model.Restaurant) error
	Update(ctx context.Context, r *model.Restaurant) error
	UpdateFields(ctx context.Context, id string, patch model.FieldPatch) error

	// Dependent rows
	SaveExternalID(ctx context.Context, restaurantID string, source model.Source, externalID string) error
	ExternalIDs(ctx context.Context, restaurantID string) ([]model.ExternalID, error)
	UpsertRating(ctx context.Context, restaurantID string, source model.Source, score float64, reviewCount int) error
	Ratings(ctx context.Context, restaurantID string) ([]model.Rating, error)
	ReplaceMedia(ctx context.Context, restaurantID string, source model.Source, mediaType model.MediaType, urls []string) error
	MediaCount(ctx context.Context, restaurantID string) (int, error)
	LinkCategories(ctx context.Context, restaurantID string, names []string) error
	Categories(ctx context.Context, restaurantID string) ([]string, error)

	// Search support
	AllIndexedLocations(ctx context.Context) ([]string, error)
	SearchRows(ctx context.Context, location string) ([]SearchRow, error)

	// Sweep support
	SoleSourceRestaurants(ctx context.Context, source model.Source) ([]*model.Restaurant, error)
	AttestedCandidates(ctx context.Context, excludeSource model.Source, namePrefix string, box *BoundingBox) ([]*model.Restaurant, error)
	MergeRestaurants(ctx context.Context, duplicateID, targetID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
