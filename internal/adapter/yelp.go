package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bitebase/catalog-cli/internal/model"
	"github.com/bitebase/catalog-cli/internal/quota"
)

// YelpConfig holds Yelp Fusion API settings.
type YelpConfig struct {
	APIKey        string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	RequestBudget int    `yaml:"request_budget" mapstructure:"request_budget"`
}

const yelpPageSize = 50

// Yelp adapts the Yelp Fusion business search API.
type Yelp struct {
	cfg  YelpConfig
	http *httpClient
}

// NewYelp creates the Yelp adapter.
func NewYelp(cfg YelpConfig, ledger quota.Ledger) *Yelp {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.yelp.com/v3"
	}
	return &Yelp{
		cfg:  cfg,
		http: newHTTPClient(string(model.SourceYelp), ledger, cfg.RequestBudget, 5),
	}
}

func (y *Yelp) Configured() bool { return y.cfg.APIKey != "" }

func (y *Yelp) SourceName() model.Source { return model.SourceYelp }

func (y *Yelp) RequestLimit() int { return y.cfg.RequestBudget }

func (y *Yelp) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + y.cfg.APIKey}
}

type yelpBusiness struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Phone       string   `json:"phone"`
	Rating      *float64 `json:"rating"`
	ReviewCount int      `json:"review_count"`
	ImageURL    string   `json:"image_url"`
	Photos      []string `json:"photos"`
	Location    struct {
		DisplayAddress []string `json:"display_address"`
	} `json:"location"`
	Coordinates struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"coordinates"`
	Categories []struct {
		Title string `json:"title"`
	} `json:"categories"`
}

type yelpSearchResponse struct {
	Total      int            `json:"total"`
	Businesses []yelpBusiness `json:"businesses"`
}

func (y *Yelp) SearchAllBusinesses(ctx context.Context, location string, categories []string, limit int, fn Callback) (int, error) {
	if !y.Configured() {
		return 0, ErrNotConfigured
	}

	yielded := 0
	total := -1 // unknown until the first page

	for offset := 0; ; offset += yelpPageSize {
		params := url.Values{}
		params.Set("location", location)
		params.Set("limit", fmt.Sprint(yelpPageSize))
		params.Set("offset", fmt.Sprint(offset))
		if len(categories) > 0 {
			params.Set("categories", strings.Join(categories, ","))
		}

		var page yelpSearchResponse
		if err := y.http.getJSON(ctx, y.cfg.BaseURL+"/businesses/search?"+params.Encode(), y.headers(), &page); err != nil {
			return yielded, err
		}
		if total < 0 {
			total = effectiveTotal(page.Total, limit)
		}

		for _, b := range page.Businesses {
			if limit > 0 && yielded >= limit {
				return yielded, nil
			}
			yielded++
			if err := fn(y.normalize(b), model.NewProgress(yielded, total)); err != nil {
				return yielded, err
			}
		}

		if len(page.Businesses) < yelpPageSize || yielded >= total {
			return yielded, nil
		}
	}
}

func (y *Yelp) GetBusiness(ctx context.Context, rawExternalID string) (*model.SourceRecord, error) {
	if !y.Configured() {
		return nil, ErrNotConfigured
	}

	var b yelpBusiness
	if err := y.http.getJSON(ctx, y.cfg.BaseURL+"/businesses/"+url.PathEscape(rawExternalID), y.headers(), &b); err != nil {
		return nil, err
	}
	rec := y.normalize(b)
	return &rec, nil
}

func (y *Yelp) normalize(b yelpBusiness) model.SourceRecord {
	rec := model.SourceRecord{
		ExternalID:  model.PrefixExternalID(model.SourceYelp, b.ID),
		Name:        b.Name,
		Address:     strings.Join(b.Location.DisplayAddress, ", "),
		Latitude:    b.Coordinates.Latitude,
		Longitude:   b.Coordinates.Longitude,
		Phone:       b.Phone,
		Rating:      b.Rating,
		ReviewCount: b.ReviewCount,
	}
	for _, c := range b.Categories {
		rec.Categories = append(rec.Categories, c.Title)
	}
	rec.Photos = b.Photos
	if len(rec.Photos) == 0 && b.ImageURL != "" {
		rec.Photos = []string{b.ImageURL}
	}
	return rec
}
