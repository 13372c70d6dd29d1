// Package adapter turns third-party business-directory APIs into the common
// SourceRecord shape the indexer consumes. Each adapter owns its pagination
// protocol and checks the request-quota ledger before every outbound page.
package adapter

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/bitebase/catalog-cli/internal/model"
)

// ErrNotConfigured is returned when an adapter is missing required
// credentials. Surfaced before any network activity, never retried.
var ErrNotConfigured = eris.New("adapter: missing credentials")

// Callback receives each normalized record as the paginated search produces
// it. Callbacks are synchronous and ordered; returning an error aborts the
// search.
type Callback func(rec model.SourceRecord, p model.Progress) error

// Adapter is the contract every source client implements.
type Adapter interface {
	// Configured reports whether required credentials are present.
	Configured() bool

	// SourceName is the namespace for external ids ("yelp", "google", ...).
	SourceName() model.Source

	// SearchAllBusinesses pages through the source's search results for a
	// location, invoking fn once per normalized record. The effective total
	// is the lesser of the source's reported result count and limit; the
	// return value is the number of records actually yielded.
	SearchAllBusinesses(ctx context.Context, location string, categories []string, limit int, fn Callback) (int, error)

	// GetBusiness fetches one record by its raw (un-prefixed) external id.
	GetBusiness(ctx context.Context, rawExternalID string) (*model.SourceRecord, error)

	// RequestLimit is the adapter's monthly request budget; <= 0 means
	// unconstrained.
	RequestLimit() int
}

// effectiveTotal caps a source-reported result count by the run limit.
func effectiveTotal(reported, limit int) int {
	if limit > 0 && reported > limit {
		return limit
	}
	return reported
}
