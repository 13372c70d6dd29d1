package indexer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/bitebase/catalog-cli/internal/matcher"
	"github.com/bitebase/catalog-cli/internal/model"
)

// candidateDelta is the ± degree window for match candidate retrieval; about
// a kilometre of latitude, comfortably wider than the 200 m GPS cutoff.
const candidateDelta = 0.01

// storeBusiness persists one normalized record and reports which of the three
// paths it took:
//
//   - the (source, external id) pair is already known → update that entry
//   - an entry nearby scores past the match threshold → merge into it
//   - otherwise → create a fresh entry
//
// Records without coordinates skip matching entirely and create; the dedupe
// sweep repairs any duplicates this leaves behind.
func (ix *Indexer) storeBusiness(ctx context.Context, rec *model.SourceRecord, source model.Source, location string) (model.Outcome, error) {
	// File imports may carry no external id; an empty id must never hit the
	// exact-id path or every such record would resolve to the same entry.
	if rec.ExternalID != "" {
		existing, err := ix.store.FindByExternalID(ctx, source, rec.ExternalID)
		if err != nil {
			return "", eris.Wrap(err, "lookup by external id")
		}
		if existing != nil {
			if err := ix.updateExisting(ctx, existing, rec, source); err != nil {
				return "", err
			}
			return model.OutcomeUpdated, nil
		}
	}

	if rec.HasCoordinates() {
		candidates, err := ix.store.FindCandidatesNear(ctx, *rec.Latitude, *rec.Longitude, candidateDelta)
		if err != nil {
			return "", eris.Wrap(err, "find candidates")
		}
		if m := matcher.FindMatch(rec, candidates); m != nil {
			if err := ix.mergeInto(ctx, m.Restaurant, rec, source); err != nil {
				return "", err
			}
			return model.OutcomeMerged, nil
		}
	}

	if err := ix.createNew(ctx, rec, source, location); err != nil {
		return "", err
	}
	return model.OutcomeCreated, nil
}

// updateExisting overwrites the entry's core fields with this source's fresh
// data. The source already owns the entry, so non-empty values win.
func (ix *Indexer) updateExisting(ctx context.Context, r *model.Restaurant, rec *model.SourceRecord, source model.Source) error {
	patch := model.FieldPatch{}
	if rec.Name != "" && rec.Name != r.Name {
		patch.Name = &rec.Name
	}
	if rec.Address != "" && rec.Address != r.Address {
		patch.Address = &rec.Address
	}
	if rec.Latitude != nil {
		patch.Latitude = rec.Latitude
	}
	if rec.Longitude != nil {
		patch.Longitude = rec.Longitude
	}
	if rec.Phone != "" && rec.Phone != r.Phone {
		patch.Phone = &rec.Phone
	}
	if err := ix.store.UpdateFields(ctx, r.ID, patch); err != nil {
		return eris.Wrap(err, "update fields")
	}
	return ix.attachSourceData(ctx, r.ID, rec, source)
}

// mergeInto folds the record into a matched entry another lookup created.
// Core fields fill nulls only; the matched entry's data is never overwritten.
func (ix *Indexer) mergeInto(ctx context.Context, r *model.Restaurant, rec *model.SourceRecord, source model.Source) error {
	patch := model.FieldPatch{}
	if r.Address == "" && rec.Address != "" {
		patch.Address = &rec.Address
	}
	if r.Latitude == nil && rec.Latitude != nil {
		patch.Latitude = rec.Latitude
	}
	if r.Longitude == nil && rec.Longitude != nil {
		patch.Longitude = rec.Longitude
	}
	if r.Phone == "" && rec.Phone != "" {
		patch.Phone = &rec.Phone
	}
	if patch != (model.FieldPatch{}) {
		if err := ix.store.UpdateFields(ctx, r.ID, patch); err != nil {
			return eris.Wrap(err, "backfill fields")
		}
	}
	if rec.ExternalID != "" {
		if err := ix.store.SaveExternalID(ctx, r.ID, source, rec.ExternalID); err != nil {
			return eris.Wrap(err, "save external id")
		}
	}
	return ix.attachSourceData(ctx, r.ID, rec, source)
}

func (ix *Indexer) createNew(ctx context.Context, rec *model.SourceRecord, source model.Source, location string) error {
	now := time.Now().UTC()
	r := &model.Restaurant{
		ID:        uuid.NewString(),
		Name:      rec.Name,
		Address:   rec.Address,
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		Phone:     rec.Phone,
		Location:  location,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ix.store.Create(ctx, r); err != nil {
		return eris.Wrap(err, "create restaurant")
	}
	if rec.ExternalID != "" {
		if err := ix.store.SaveExternalID(ctx, r.ID, source, rec.ExternalID); err != nil {
			return eris.Wrap(err, "save external id")
		}
	}
	return ix.attachSourceData(ctx, r.ID, rec, source)
}

// attachSourceData writes the per-source dependent rows shared by all three
// paths: rating, photo set, and category links.
func (ix *Indexer) attachSourceData(ctx context.Context, restaurantID string, rec *model.SourceRecord, source model.Source) error {
	if rec.Rating != nil {
		if err := ix.store.UpsertRating(ctx, restaurantID, source, *rec.Rating, rec.ReviewCount); err != nil {
			return eris.Wrap(err, "upsert rating")
		}
	}
	if len(rec.Photos) > 0 {
		if err := ix.store.ReplaceMedia(ctx, restaurantID, source, model.MediaPhoto, rec.Photos); err != nil {
			return eris.Wrap(err, "replace media")
		}
	}
	if len(rec.Categories) > 0 {
		if err := ix.store.LinkCategories(ctx, restaurantID, rec.Categories); err != nil {
			return eris.Wrap(err, "link categories")
		}
	}
	return nil
}
