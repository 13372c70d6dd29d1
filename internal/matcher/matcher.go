// Package matcher decides whether a normalized source record and an existing
// catalog entry describe the same physical restaurant.
package matcher

import (
	"math"

	"go.uber.org/zap"

	"github.com/bitebase/catalog-cli/internal/model"
	"github.com/bitebase/catalog-cli/internal/similarity"
)

// Signal weights. They sum to 100; a composite at or above MatchThreshold is
// treated as the same restaurant.
const (
	NameWeight    = 35
	AddressWeight = 20
	GPSWeight     = 25
	PhoneWeight   = 20

	MatchThreshold = 50

	// GPSCutoffMeters is the distance beyond which the GPS signal scores zero.
	GPSCutoffMeters = 200.0
)

// Match pairs a catalog candidate with its composite score.
type Match struct {
	Restaurant *model.Restaurant
	Score      int
}

// Score computes the additive four-signal composite for one candidate.
func Score(rec *model.SourceRecord, cand *model.Restaurant) int {
	score := nameScore(rec.Name, cand.Name)
	score += addressScore(rec.Address, cand.Address)
	score += gpsScore(rec, cand)
	score += phoneScore(rec.Phone, cand.Phone)
	return score
}

// FindMatch scores every candidate and returns the single best one if its
// score clears the threshold, nil otherwise. Ties break on input order: the
// first-seen candidate wins. Greedy by design; no backtracking when a later
// record would have matched better.
func FindMatch(rec *model.SourceRecord, candidates []*model.Restaurant) *Match {
	var best *Match
	for _, cand := range candidates {
		s := Score(rec, cand)
		if best == nil || s > best.Score {
			best = &Match{Restaurant: cand, Score: s}
		}
	}
	if best == nil || best.Score < MatchThreshold {
		return nil
	}
	zap.L().Debug("matcher: candidate accepted",
		zap.String("name", rec.Name),
		zap.String("restaurant_id", best.Restaurant.ID),
		zap.Int("score", best.Score),
	)
	return best
}

func nameScore(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	na := similarity.NormalizeName(a)
	nb := similarity.NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	return int(math.Round(NameWeight * similarity.Similarity(na, nb)))
}

func addressScore(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	na := similarity.NormalizeAddress(a)
	nb := similarity.NormalizeAddress(b)
	if na == "" || nb == "" {
		return 0
	}
	return int(math.Round(AddressWeight * similarity.Similarity(na, nb)))
}

func gpsScore(rec *model.SourceRecord, cand *model.Restaurant) int {
	if !rec.HasCoordinates() || !cand.HasCoordinates() {
		return 0
	}
	d := similarity.Haversine(*rec.Latitude, *rec.Longitude, *cand.Latitude, *cand.Longitude)
	if d > GPSCutoffMeters {
		return 0
	}
	return int(math.Round(GPSWeight * (1 - d/GPSCutoffMeters)))
}

func phoneScore(a, b string) int {
	da := similarity.NormalizePhone(a)
	db := similarity.NormalizePhone(b)
	if da == "" || db == "" || da != db {
		return 0
	}
	return PhoneWeight
}
