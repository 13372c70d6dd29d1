package adapter

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bitebase/catalog-cli/internal/model"
	"github.com/bitebase/catalog-cli/internal/quota"
)

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	APIKey        string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	RequestBudget int    `yaml:"request_budget" mapstructure:"request_budget"`
}

// GooglePlaces adapts the Places text-search API. Pagination is
// cursor-based: each page returns a next_page_token that becomes valid a
// moment after the page is served.
type GooglePlaces struct {
	cfg  GoogleConfig
	http *httpClient

	// pageTokenDelay gives the token time to activate; shortened in tests.
	pageTokenDelay time.Duration
}

// NewGooglePlaces creates the Google Places adapter.
func NewGooglePlaces(cfg GoogleConfig, ledger quota.Ledger) *GooglePlaces {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://maps.googleapis.com/maps/api/place"
	}
	return &GooglePlaces{
		cfg:            cfg,
		http:           newHTTPClient(string(model.SourceGoogle), ledger, cfg.RequestBudget, 5),
		pageTokenDelay: 2 * time.Second,
	}
}

func (g *GooglePlaces) Configured() bool { return g.cfg.APIKey != "" }

func (g *GooglePlaces) SourceName() model.Source { return model.SourceGoogle }

func (g *GooglePlaces) RequestLimit() int { return g.cfg.RequestBudget }

type googlePlace struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Vicinity         string   `json:"vicinity"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	FormattedPhone   string   `json:"formatted_phone_number"`
	Types            []string `json:"types"`
	Geometry         struct {
		Location struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Photos []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos"`
}

type googleSearchResponse struct {
	Results       []googlePlace `json:"results"`
	NextPageToken string        `json:"next_page_token"`
	Status        string        `json:"status"`
}

type googleDetailsResponse struct {
	Result googlePlace `json:"result"`
	Status string      `json:"status"`
}

func (g *GooglePlaces) SearchAllBusinesses(ctx context.Context, location string, categories []string, limit int, fn Callback) (int, error) {
	if !g.Configured() {
		return 0, ErrNotConfigured
	}

	query := "restaurants in " + location
	if len(categories) > 0 {
		query = strings.Join(categories, " ") + " in " + location
	}

	// The text-search API reports no grand total; treat the run limit as the
	// progress denominator and refine when the last page arrives.
	yielded := 0
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("key", g.cfg.APIKey)
		if pageToken == "" {
			params.Set("query", query)
			params.Set("type", "restaurant")
		} else {
			params.Set("pagetoken", pageToken)
		}

		var page googleSearchResponse
		if err := g.http.getJSON(ctx, g.cfg.BaseURL+"/textsearch/json?"+params.Encode(), nil, &page); err != nil {
			return yielded, err
		}
		if page.Status != "OK" && page.Status != "ZERO_RESULTS" {
			return yielded, eris.Errorf("google: search status %s", page.Status)
		}

		total := limit
		if page.NextPageToken == "" {
			total = effectiveTotal(yielded+len(page.Results), limit)
		}

		for _, p := range page.Results {
			if limit > 0 && yielded >= limit {
				return yielded, nil
			}
			yielded++
			if err := fn(g.normalize(p), model.NewProgress(yielded, total)); err != nil {
				return yielded, err
			}
		}

		if page.NextPageToken == "" || (limit > 0 && yielded >= limit) {
			return yielded, nil
		}
		pageToken = page.NextPageToken

		t := time.NewTimer(g.pageTokenDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return yielded, ctx.Err()
		case <-t.C:
		}
	}
}

func (g *GooglePlaces) GetBusiness(ctx context.Context, rawExternalID string) (*model.SourceRecord, error) {
	if !g.Configured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("key", g.cfg.APIKey)
	params.Set("place_id", rawExternalID)

	var resp googleDetailsResponse
	if err := g.http.getJSON(ctx, g.cfg.BaseURL+"/details/json?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, eris.Errorf("google: details status %s", resp.Status)
	}
	rec := g.normalize(resp.Result)
	return &rec, nil
}

func (g *GooglePlaces) normalize(p googlePlace) model.SourceRecord {
	address := p.FormattedAddress
	if address == "" {
		address = p.Vicinity
	}
	rec := model.SourceRecord{
		ExternalID:  model.PrefixExternalID(model.SourceGoogle, p.PlaceID),
		Name:        p.Name,
		Address:     address,
		Latitude:    p.Geometry.Location.Lat,
		Longitude:   p.Geometry.Location.Lng,
		Phone:       p.FormattedPhone,
		Rating:      p.Rating,
		ReviewCount: p.UserRatingsTotal,
	}
	for _, t := range p.Types {
		if t == "restaurant" || t == "food" || t == "point_of_interest" || t == "establishment" {
			continue // generic types, not cuisine categories
		}
		rec.Categories = append(rec.Categories, strings.ReplaceAll(t, "_", " "))
	}
	for _, ph := range p.Photos {
		rec.Photos = append(rec.Photos,
			g.cfg.BaseURL+"/photo?maxwidth=800&photo_reference="+url.QueryEscape(ph.PhotoReference))
	}
	return rec
}
