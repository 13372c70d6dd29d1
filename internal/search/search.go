// Package search ranks indexed restaurants for interactive queries. It runs
// entirely over rows the catalog returns for a location label (or the whole
// catalog); fuzzy scoring happens here, not in SQL.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/bitebase/catalog-cli/internal/catalog"
	"github.com/bitebase/catalog-cli/internal/similarity"
)

// FuzzyFloor is the minimum fuzzy score for a name or category to count as a
// match when no substring hit exists.
const FuzzyFloor = 0.6

// Sort selects the result ordering.
type Sort string

const (
	// SortRelevance orders by match score, name as tie-break.
	SortRelevance Sort = "relevance"
	// SortOverallRank orders by aggregate rating with a review-count boost;
	// unrated entries sink to the bottom.
	SortOverallRank Sort = "overall_rank"
)

// ParseSort maps a user-supplied sort name onto a Sort. Unknown values fall
// back to relevance.
func ParseSort(s string) Sort {
	switch Sort(strings.ToLower(strings.TrimSpace(s))) {
	case SortOverallRank:
		return SortOverallRank
	default:
		return SortRelevance
	}
}

// Query is one search request.
type Query struct {
	Location string // optional location label; empty searches the whole catalog
	Name     string // optional name filter, substring or fuzzy
	Category string // optional category filter, substring or fuzzy
	Sort     Sort
	Limit    int // <= 0 means unlimited
}

// Result is one ranked hit.
type Result struct {
	catalog.SearchRow
	Score float64 `json:"score"`
}

// Engine executes queries against the catalog.
type Engine struct {
	store catalog.Store
}

// New creates an Engine.
func New(store catalog.Store) *Engine {
	return &Engine{store: store}
}

// Search filters and ranks the location's rows. An empty name and category
// matches everything, useful with SortOverallRank for "best restaurants in X".
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	rows, err := e.store.SearchRows(ctx, q.Location)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, row := range rows {
		score, ok := e.score(&row, &q)
		if !ok {
			continue
		}
		results = append(results, Result{SearchRow: row, Score: score})
	}

	e.rank(results, q.Sort)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// score filters one row against the query and computes its relevance score.
// Both filters must pass when both are present.
func (e *Engine) score(row *catalog.SearchRow, q *Query) (float64, bool) {
	score := 0.0

	if q.Name != "" {
		s, ok := nameScore(row.Restaurant.Name, q.Name)
		if !ok {
			return 0, false
		}
		score += s
	}
	if q.Category != "" {
		s, ok := categoryScore(row.Categories, q.Category)
		if !ok {
			return 0, false
		}
		score += s
	}
	return score, true
}

// nameScore matches on folded substring first (a certain hit, scored 1.0),
// then token-level fuzzy similarity.
func nameScore(name, query string) (float64, bool) {
	if strings.Contains(similarity.Fold(name), similarity.Fold(query)) {
		return 1.0, true
	}
	if s := similarity.FuzzyMatch(name, query); s >= FuzzyFloor {
		return s, true
	}
	return 0, false
}

// categoryScore takes the best hit across the row's categories.
func categoryScore(categories []string, query string) (float64, bool) {
	fq := similarity.Fold(query)
	best := 0.0
	for _, c := range categories {
		fc := similarity.Fold(c)
		if strings.Contains(fc, fq) || strings.Contains(fq, fc) {
			return 1.0, true
		}
		if s := similarity.Similarity(fc, fq); s > best {
			best = s
		}
	}
	if best >= FuzzyFloor {
		return best, true
	}
	return 0, false
}

func (e *Engine) rank(results []Result, s Sort) {
	switch s {
	case SortOverallRank:
		sort.SliceStable(results, func(i, j int) bool {
			ri, rj := overallRank(&results[i]), overallRank(&results[j])
			if ri != rj {
				return ri > rj
			}
			return results[i].Restaurant.Name < results[j].Restaurant.Name
		})
	default:
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score
			}
			return results[i].Restaurant.Name < results[j].Restaurant.Name
		})
	}
}

// overallRank blends the cross-source average rating with a small
// review-volume boost, so a 4.5 with thousands of reviews outranks a 4.6
// with three. Unrated entries rank below every rated one.
func overallRank(r *Result) float64 {
	if r.AvgRating == nil {
		return -1
	}
	boost := 0.0
	switch {
	case r.TotalReviews >= 1000:
		boost = 0.5
	case r.TotalReviews >= 100:
		boost = 0.3
	case r.TotalReviews >= 10:
		boost = 0.1
	}
	return *r.AvgRating + boost
}
