package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitebase/catalog-cli/internal/model"
	"github.com/bitebase/catalog-cli/internal/quota"
)

func yelpPage(offset, pageSize, total int) yelpSearchResponse {
	resp := yelpSearchResponse{Total: total}
	for i := offset; i < offset+pageSize && i < total; i++ {
		lat, lon := 43.65, -79.38
		rating := 4.0
		resp.Businesses = append(resp.Businesses, yelpBusiness{
			ID:     fmt.Sprintf("biz-%d", i),
			Name:   fmt.Sprintf("Restaurant %d", i),
			Phone:  "+14165550100",
			Rating: &rating,
			Coordinates: struct {
				Latitude  *float64 `json:"latitude"`
				Longitude *float64 `json:"longitude"`
			}{&lat, &lon},
		})
	}
	return resp
}

func TestYelpSearchPaginates(t *testing.T) {
	const total = 120

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		offset := 0
		fmt.Sscan(r.URL.Query().Get("offset"), &offset)
		require.NoError(t, json.NewEncoder(w).Encode(yelpPage(offset, yelpPageSize, total)))
	}))
	defer srv.Close()

	y := NewYelp(YelpConfig{APIKey: "test-key", BaseURL: srv.URL}, quota.NewMemoryLedger())

	var records []model.SourceRecord
	var lastProgress model.Progress
	n, err := y.SearchAllBusinesses(context.Background(), "Toronto", nil, 0, func(rec model.SourceRecord, p model.Progress) error {
		records = append(records, rec)
		lastProgress = p
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, total, n)
	assert.Len(t, records, total)
	assert.Equal(t, 3, requests)
	assert.Equal(t, "yelp:biz-0", records[0].ExternalID)
	assert.Equal(t, 100.0, lastProgress.Percent)
}

func TestYelpSearchHonorsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := 0
		fmt.Sscan(r.URL.Query().Get("offset"), &offset)
		require.NoError(t, json.NewEncoder(w).Encode(yelpPage(offset, yelpPageSize, 500)))
	}))
	defer srv.Close()

	y := NewYelp(YelpConfig{APIKey: "test-key", BaseURL: srv.URL}, quota.NewMemoryLedger())

	var totals []int
	n, err := y.SearchAllBusinesses(context.Background(), "Toronto", nil, 60, func(_ model.SourceRecord, p model.Progress) error {
		totals = append(totals, p.Total)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 60, n)
	// The progress denominator is the run limit, not the source's total.
	assert.Equal(t, 60, totals[0])
	assert.Equal(t, 60, totals[len(totals)-1])
}

func TestYelpSearchStopsWhenBudgetSpent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := 0
		fmt.Sscan(r.URL.Query().Get("offset"), &offset)
		require.NoError(t, json.NewEncoder(w).Encode(yelpPage(offset, yelpPageSize, 500)))
	}))
	defer srv.Close()

	// Budget of one request: the first page succeeds, the second is refused
	// by the ledger before it reaches the network.
	y := NewYelp(YelpConfig{APIKey: "test-key", BaseURL: srv.URL, RequestBudget: 1}, quota.NewMemoryLedger())

	n, err := y.SearchAllBusinesses(context.Background(), "Toronto", nil, 0, func(model.SourceRecord, model.Progress) error {
		return nil
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, quota.ErrRateLimited))
	assert.Equal(t, yelpPageSize, n)
}

func TestYelpNotConfigured(t *testing.T) {
	y := NewYelp(YelpConfig{}, quota.NewMemoryLedger())

	assert.False(t, y.Configured())
	_, err := y.SearchAllBusinesses(context.Background(), "Toronto", nil, 0, nil)
	assert.True(t, eris.Is(err, ErrNotConfigured))
}

func TestYelpGetBusiness(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/businesses/abc123", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(yelpBusiness{
			ID:       "abc123",
			Name:     "Golden Dragon",
			ImageURL: "https://img.example/front.jpg",
		}))
	}))
	defer srv.Close()

	y := NewYelp(YelpConfig{APIKey: "test-key", BaseURL: srv.URL}, quota.NewMemoryLedger())

	rec, err := y.GetBusiness(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "yelp:abc123", rec.ExternalID)
	assert.Equal(t, "Golden Dragon", rec.Name)
	// image_url is the photo fallback when the photos array is empty.
	assert.Equal(t, []string{"https://img.example/front.jpg"}, rec.Photos)
}
