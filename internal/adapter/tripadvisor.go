package adapter

import (
	"context"
	"fmt"
	"net/url"

	"github.com/bitebase/catalog-cli/internal/model"
	"github.com/bitebase/catalog-cli/internal/quota"
)

// TripAdvisorConfig holds TripAdvisor Content API settings.
type TripAdvisorConfig struct {
	APIKey        string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	RequestBudget int    `yaml:"request_budget" mapstructure:"request_budget"`
}

const tripAdvisorPageSize = 30

// TripAdvisor adapts the Content API. Its location search omits coordinates,
// so records from this source can't be GPS-matched at ingestion time; the
// dedupe sweep cleans up after it.
type TripAdvisor struct {
	cfg  TripAdvisorConfig
	http *httpClient
}

// NewTripAdvisor creates the TripAdvisor adapter.
func NewTripAdvisor(cfg TripAdvisorConfig, ledger quota.Ledger) *TripAdvisor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.content.tripadvisor.com/api/v1"
	}
	return &TripAdvisor{
		cfg:  cfg,
		http: newHTTPClient(string(model.SourceTripAdvisor), ledger, cfg.RequestBudget, 2),
	}
}

func (t *TripAdvisor) Configured() bool { return t.cfg.APIKey != "" }

func (t *TripAdvisor) SourceName() model.Source { return model.SourceTripAdvisor }

func (t *TripAdvisor) RequestLimit() int { return t.cfg.RequestBudget }

type tripAdvisorLocation struct {
	LocationID string `json:"location_id"`
	Name       string `json:"name"`
	AddressObj struct {
		AddressString string `json:"address_string"`
	} `json:"address_obj"`
	Phone     string   `json:"phone"`
	Rating    *float64 `json:"rating,string"`
	NumReview int      `json:"num_reviews,string"`
	Cuisine   []struct {
		LocalizedName string `json:"localized_name"`
	} `json:"cuisine"`
}

type tripAdvisorSearchResponse struct {
	Data   []tripAdvisorLocation `json:"data"`
	Paging struct {
		TotalResults int `json:"total_results,string"`
	} `json:"paging"`
}

type tripAdvisorPhotosResponse struct {
	Data []struct {
		Images struct {
			Large struct {
				URL string `json:"url"`
			} `json:"large"`
		} `json:"images"`
	} `json:"data"`
}

func (t *TripAdvisor) SearchAllBusinesses(ctx context.Context, location string, categories []string, limit int, fn Callback) (int, error) {
	if !t.Configured() {
		return 0, ErrNotConfigured
	}

	yielded := 0
	total := -1

	for offset := 0; ; offset += tripAdvisorPageSize {
		params := url.Values{}
		params.Set("key", t.cfg.APIKey)
		params.Set("searchQuery", location)
		params.Set("category", "restaurants")
		params.Set("offset", fmt.Sprint(offset))

		var page tripAdvisorSearchResponse
		if err := t.http.getJSON(ctx, t.cfg.BaseURL+"/location/search?"+params.Encode(), nil, &page); err != nil {
			return yielded, err
		}
		if total < 0 {
			reported := page.Paging.TotalResults
			if reported == 0 {
				reported = len(page.Data)
			}
			total = effectiveTotal(reported, limit)
		}

		for _, loc := range page.Data {
			if limit > 0 && yielded >= limit {
				return yielded, nil
			}
			yielded++
			if err := fn(t.normalize(loc), model.NewProgress(yielded, total)); err != nil {
				return yielded, err
			}
		}

		if len(page.Data) < tripAdvisorPageSize || yielded >= total {
			return yielded, nil
		}
	}
}

func (t *TripAdvisor) GetBusiness(ctx context.Context, rawExternalID string) (*model.SourceRecord, error) {
	if !t.Configured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("key", t.cfg.APIKey)

	var loc tripAdvisorLocation
	if err := t.http.getJSON(ctx,
		t.cfg.BaseURL+"/location/"+url.PathEscape(rawExternalID)+"/details?"+params.Encode(), nil, &loc); err != nil {
		return nil, err
	}
	rec := t.normalize(loc)

	// Details calls also pull the photo set; search results carry none.
	var photos tripAdvisorPhotosResponse
	if err := t.http.getJSON(ctx,
		t.cfg.BaseURL+"/location/"+url.PathEscape(rawExternalID)+"/photos?"+params.Encode(), nil, &photos); err == nil {
		for _, p := range photos.Data {
			if p.Images.Large.URL != "" {
				rec.Photos = append(rec.Photos, p.Images.Large.URL)
			}
		}
	}
	return &rec, nil
}

func (t *TripAdvisor) normalize(loc tripAdvisorLocation) model.SourceRecord {
	rec := model.SourceRecord{
		ExternalID:  model.PrefixExternalID(model.SourceTripAdvisor, loc.LocationID),
		Name:        loc.Name,
		Address:     loc.AddressObj.AddressString,
		Phone:       loc.Phone,
		Rating:      loc.Rating,
		ReviewCount: loc.NumReview,
	}
	for _, c := range loc.Cuisine {
		rec.Categories = append(rec.Categories, c.LocalizedName)
	}
	return rec
}
