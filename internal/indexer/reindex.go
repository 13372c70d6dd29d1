package indexer

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/bitebase/catalog-cli/internal/model"
)

// SourceRefresh records what one source contributed to a re-index.
type SourceRefresh struct {
	Source     model.Source `json:"source"`
	Changed    []string     `json:"changed,omitempty"` // field names that moved
	PhotoDelta int          `json:"photo_delta,omitempty"`
	Err        error        `json:"-"`
}

// RefreshResult is the outcome of re-indexing one restaurant.
type RefreshResult struct {
	RestaurantID string          `json:"restaurant_id"`
	Name         string          `json:"name"`
	Sources      []SourceRefresh `json:"sources"`
}

// Refresh re-fetches one restaurant from every source that attests it and
// applies the fresh data. A source whose fetch fails is reported and skipped;
// the rest still apply. Errors only when the restaurant has no external ids
// or every source failed.
func (ix *Indexer) Refresh(ctx context.Context, restaurantID string) (*RefreshResult, error) {
	r, err := ix.store.Get(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	ids, err := ix.store.ExternalIDs(ctx, restaurantID)
	if err != nil {
		return nil, eris.Wrap(err, "load external ids")
	}
	if len(ids) == 0 {
		return nil, eris.Errorf("indexer: restaurant %s has no source links", restaurantID)
	}

	res := &RefreshResult{RestaurantID: restaurantID, Name: r.Name}
	failures := 0
	for _, eid := range ids {
		sr := ix.refreshFromSource(ctx, restaurantID, eid)
		if sr.Err != nil {
			failures++
		}
		res.Sources = append(res.Sources, sr)
	}
	if failures == len(ids) {
		return res, eris.Errorf("indexer: every source failed for %s", restaurantID)
	}
	return res, nil
}

func (ix *Indexer) refreshFromSource(ctx context.Context, restaurantID string, eid model.ExternalID) SourceRefresh {
	sr := SourceRefresh{Source: eid.Source}

	a, err := ix.registry.BySource(eid.Source)
	if err != nil {
		sr.Err = err
		return sr
	}
	rec, err := a.GetBusiness(ctx, model.RawExternalID(eid.ExternalID))
	if err != nil {
		sr.Err = eris.Wrapf(err, "fetch %s", eid.ExternalID)
		return sr
	}

	// Snapshot the state this source is about to change. Earlier sources in
	// the same refresh may already have written, so read fresh every time.
	r, err := ix.store.Get(ctx, restaurantID)
	if err != nil {
		sr.Err = err
		return sr
	}
	ratings, err := ix.store.Ratings(ctx, restaurantID)
	if err != nil {
		sr.Err = eris.Wrap(err, "load ratings")
		return sr
	}
	photosBefore, err := ix.store.MediaCount(ctx, restaurantID)
	if err != nil {
		sr.Err = eris.Wrap(err, "count media")
		return sr
	}

	sr.Changed = diffFields(r, ratingFor(ratings, eid.Source), rec)

	ix.mu.Lock()
	err = ix.updateExisting(ctx, r, rec, eid.Source)
	ix.mu.Unlock()
	if err != nil {
		sr.Err = err
		sr.Changed = nil
		return sr
	}

	photosAfter, err := ix.store.MediaCount(ctx, restaurantID)
	if err != nil {
		sr.Err = eris.Wrap(err, "count media")
		return sr
	}
	if photosAfter != photosBefore {
		sr.PhotoDelta = photosAfter - photosBefore
		sr.Changed = append(sr.Changed, "photos")
	}
	return sr
}

func ratingFor(ratings []model.Rating, source model.Source) *model.Rating {
	for i := range ratings {
		if ratings[i].Source == source {
			return &ratings[i]
		}
	}
	return nil
}

// diffFields names the core fields whose fresh value differs from the stored
// state, including the source's own rating row.
func diffFields(r *model.Restaurant, prev *model.Rating, rec *model.SourceRecord) []string {
	var changed []string
	if rec.Name != "" && rec.Name != r.Name {
		changed = append(changed, "name")
	}
	if rec.Address != "" && rec.Address != r.Address {
		changed = append(changed, "address")
	}
	if rec.Latitude != nil && (r.Latitude == nil || *rec.Latitude != *r.Latitude) {
		changed = append(changed, "latitude")
	}
	if rec.Longitude != nil && (r.Longitude == nil || *rec.Longitude != *r.Longitude) {
		changed = append(changed, "longitude")
	}
	if rec.Phone != "" && rec.Phone != r.Phone {
		changed = append(changed, "phone")
	}
	if rec.Rating != nil && (prev == nil || *rec.Rating != prev.Score || rec.ReviewCount != prev.ReviewCount) {
		changed = append(changed, "rating")
	}
	return changed
}
