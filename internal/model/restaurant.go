package model

import "time"

// Source identifies an external directory a record came from.
type Source string

const (
	SourceYelp        Source = "yelp"
	SourceGoogle      Source = "google"
	SourceTripAdvisor Source = "tripadvisor"
	SourceInstagram   Source = "instagram"
	SourceFile        Source = "file"
)

// GPSWeakSource is the source that omits coordinates in its search results,
// leaving its restaurants invisible to GPS-bounded match candidates. The
// dedupe sweep exists to repair duplicates created this way.
const GPSWeakSource = SourceTripAdvisor

// Restaurant is the canonical, deduplicated catalog entity. Mutated only by
// the indexer and the dedupe sweep.
type Restaurant struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Location  string     `json:"location,omitempty"` // query label the entry was indexed under
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// HasCoordinates reports whether both latitude and longitude are present.
func (r *Restaurant) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// ExternalID maps one source record onto a Restaurant. (source, external_id)
// is globally unique; rows move between restaurants only during a merge.
type ExternalID struct {
	RestaurantID string `json:"restaurant_id"`
	Source       Source `json:"source"`
	ExternalID   string `json:"external_id"`
}

// Rating is the latest observed score from one source, not a history.
type Rating struct {
	RestaurantID string    `json:"restaurant_id"`
	Source       Source    `json:"source"`
	Score        float64   `json:"score"`
	ReviewCount  int       `json:"review_count"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// MediaType distinguishes media rows; photos are the only type current
// sources produce.
type MediaType string

const MediaPhoto MediaType = "photo"

// Media is one URL attached to a restaurant by a source. The full set per
// (restaurant, source, type) is replaced on each ingestion from that source.
type Media struct {
	RestaurantID string    `json:"restaurant_id"`
	Source       Source    `json:"source"`
	Type         MediaType `json:"media_type"`
	URL          string    `json:"url"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Review is a user review body attached by a source. No current adapter
// yields review text, but the sweep moves existing rows during a merge.
type Review struct {
	RestaurantID string    `json:"restaurant_id"`
	Source       Source    `json:"source"`
	Author       string    `json:"author,omitempty"`
	Body         string    `json:"body"`
	URL          string    `json:"url,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// FieldPatch carries a partial update; nil pointers leave columns untouched.
type FieldPatch struct {
	Name      *string
	Address   *string
	Latitude  *float64
	Longitude *float64
	Phone     *string
}

// Float64Ptr returns a pointer to v. Convenience for literals in callers and
// tests.
func Float64Ptr(v float64) *float64 { return &v }

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
