// Package sweep finds and merges duplicate catalog entries left behind by
// coordinate-free ingestion. Entries attested only by the GPS-weak source are
// compared by normalized name against entries other sources attested; pairs
// past the similarity floor are folded together.
package sweep

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/bitebase/catalog-cli/internal/catalog"
	"github.com/bitebase/catalog-cli/internal/model"
	"github.com/bitebase/catalog-cli/internal/similarity"
)

// SimilarityFloor is the minimum normalized-name similarity for a sweep merge.
// Deliberately stricter than ingestion matching: the sweep has no GPS or
// phone signal to corroborate, so the name must carry the decision alone.
const SimilarityFloor = 0.85

// boxDelta bounds candidate retrieval when the duplicate has coordinates.
const boxDelta = 0.005

// Options tunes one sweep run.
type Options struct {
	// DryRun reports what would merge without touching the catalog.
	DryRun bool
}

// Merge describes one duplicate folded into (or matched against, under
// DryRun) a surviving entry.
type Merge struct {
	DuplicateID   string  `json:"duplicate_id"`
	DuplicateName string  `json:"duplicate_name"`
	TargetID      string  `json:"target_id"`
	TargetName    string  `json:"target_name"`
	Similarity    float64 `json:"similarity"`
}

// Report summarizes a sweep run.
type Report struct {
	Examined int     `json:"examined"`
	Merged   []Merge `json:"merged"`
	NoMatch  int     `json:"no_match"` // duplicates with no candidate past the floor
	Skipped  int     `json:"skipped"`  // merge attempts that errored
	DryRun   bool    `json:"dry_run"`
}

// Sweeper runs the duplicate-merge pass.
type Sweeper struct {
	store catalog.Store
}

// New creates a Sweeper.
func New(store catalog.Store) *Sweeper {
	return &Sweeper{store: store}
}

// Run examines every entry attested solely by the GPS-weak source and merges
// each into its best name-similar counterpart, if one clears the floor. A
// failed merge is logged and counted, never fatal to the rest of the sweep.
func (sw *Sweeper) Run(ctx context.Context, opts Options) (*Report, error) {
	dupes, err := sw.store.SoleSourceRestaurants(ctx, model.GPSWeakSource)
	if err != nil {
		return nil, err
	}

	report := &Report{DryRun: opts.DryRun}
	for _, dupe := range dupes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++

		target, score, err := sw.bestTarget(ctx, dupe)
		if err != nil {
			zap.L().Warn("sweep: candidate lookup failed",
				zap.String("duplicate_id", dupe.ID),
				zap.Error(err),
			)
			report.Skipped++
			continue
		}
		if target == nil {
			report.NoMatch++
			continue
		}

		m := Merge{
			DuplicateID:   dupe.ID,
			DuplicateName: dupe.Name,
			TargetID:      target.ID,
			TargetName:    target.Name,
			Similarity:    score,
		}
		if !opts.DryRun {
			if err := sw.store.MergeRestaurants(ctx, dupe.ID, target.ID); err != nil {
				zap.L().Warn("sweep: merge failed",
					zap.String("duplicate_id", dupe.ID),
					zap.String("target_id", target.ID),
					zap.Error(err),
				)
				report.Skipped++
				continue
			}
			zap.L().Info("sweep: merged duplicate",
				zap.String("duplicate", dupe.Name),
				zap.String("target", target.Name),
				zap.Float64("similarity", score),
			)
		}
		report.Merged = append(report.Merged, m)
	}
	return report, nil
}

// bestTarget picks the most name-similar attested entry past the floor.
// Candidates are pre-filtered in SQL by the name's first rune and, when the
// duplicate has coordinates, a small bounding box; exact similarity is
// computed here.
func (sw *Sweeper) bestTarget(ctx context.Context, dupe *model.Restaurant) (*model.Restaurant, float64, error) {
	prefix := namePrefix(dupe.Name)
	if prefix == "" {
		return nil, 0, nil
	}

	var box *catalog.BoundingBox
	if dupe.HasCoordinates() {
		b := catalog.BoxAround(*dupe.Latitude, *dupe.Longitude, boxDelta)
		box = &b
	}

	candidates, err := sw.store.AttestedCandidates(ctx, model.GPSWeakSource, prefix, box)
	if err != nil {
		return nil, 0, err
	}

	type scored struct {
		r *model.Restaurant
		s float64
	}
	var past []scored
	dn := similarity.NormalizeName(dupe.Name)
	for _, cand := range candidates {
		if cand.ID == dupe.ID {
			continue
		}
		s := similarity.Similarity(dn, similarity.NormalizeName(cand.Name))
		if s >= SimilarityFloor {
			past = append(past, scored{cand, s})
		}
	}
	if len(past) == 0 {
		return nil, 0, nil
	}
	sort.SliceStable(past, func(i, j int) bool { return past[i].s > past[j].s })
	return past[0].r, past[0].s, nil
}

// namePrefix is the first rune of the normalized name, the coarse SQL filter
// key for candidate retrieval.
func namePrefix(name string) string {
	n := similarity.NormalizeName(name)
	for _, r := range n {
		return string(r)
	}
	return ""
}
