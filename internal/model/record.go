package model

import "strings"

// SourceRecord is the normalized shape every adapter must produce. ExternalID
// is already namespaced by source (e.g. "yelp:abc123").
type SourceRecord struct {
	ExternalID  string   `json:"external_id" yaml:"external_id"`
	Name        string   `json:"name" yaml:"name"`
	Address     string   `json:"address,omitempty" yaml:"address,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	Phone       string   `json:"phone,omitempty" yaml:"phone,omitempty"`
	Rating      *float64 `json:"rating,omitempty" yaml:"rating,omitempty"`
	ReviewCount int      `json:"review_count,omitempty" yaml:"review_count,omitempty"`
	Categories  []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Photos      []string `json:"photos,omitempty" yaml:"photos,omitempty"`
}

// HasCoordinates reports whether both coordinates are present.
func (r *SourceRecord) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// PrefixExternalID namespaces a raw source id, e.g. ("yelp", "abc") → "yelp:abc".
func PrefixExternalID(source Source, raw string) string {
	return string(source) + ":" + raw
}

// RawExternalID strips the source namespace from a prefixed external id.
func RawExternalID(externalID string) string {
	if _, raw, ok := strings.Cut(externalID, ":"); ok {
		return raw
	}
	return externalID
}

// Progress reports position within one adapter's paginated search.
type Progress struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// NewProgress computes percent from current/total, guarding zero totals.
func NewProgress(current, total int) Progress {
	p := Progress{Current: current, Total: total}
	if total > 0 {
		p.Percent = float64(current) / float64(total) * 100
	}
	return p
}

// Outcome is the closed set of decisions the indexer makes per record.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeMerged  Outcome = "merged"
)

// IngestStats aggregates outcomes across all adapters in one run.
type IngestStats struct {
	Total        int  `json:"total"`
	Created      int  `json:"created"`
	Updated      int  `json:"updated"`
	Merged       int  `json:"merged"`
	Limit        int  `json:"limit"`
	LimitReached bool `json:"limit_reached"`
}

// Add records one outcome.
func (s *IngestStats) Add(o Outcome) {
	s.Total++
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeMerged:
		s.Merged++
	}
}
