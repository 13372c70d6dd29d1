package adapter

import (
	"context"
	"fmt"
	"net/url"

	"github.com/bitebase/catalog-cli/internal/model"
	"github.com/bitebase/catalog-cli/internal/quota"
)

// InstagramConfig holds Instagram Graph API settings.
type InstagramConfig struct {
	AccessToken   string `yaml:"access_token" mapstructure:"access_token"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	RequestBudget int    `yaml:"request_budget" mapstructure:"request_budget"`
}

const instagramPageSize = 25

// Instagram is the photo-only source: venue search yields names and photo
// URLs but no address, coordinates, phone, or rating. Its records therefore
// only ever merge into restaurants another source attested, or create bare
// entries the sweep may later fold in.
type Instagram struct {
	cfg  InstagramConfig
	http *httpClient
}

// NewInstagram creates the Instagram adapter.
func NewInstagram(cfg InstagramConfig, ledger quota.Ledger) *Instagram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v19.0"
	}
	return &Instagram{
		cfg:  cfg,
		http: newHTTPClient(string(model.SourceInstagram), ledger, cfg.RequestBudget, 2),
	}
}

func (i *Instagram) Configured() bool { return i.cfg.AccessToken != "" }

func (i *Instagram) SourceName() model.Source { return model.SourceInstagram }

func (i *Instagram) RequestLimit() int { return i.cfg.RequestBudget }

type instagramVenue struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Media struct {
		Data []struct {
			MediaURL string `json:"media_url"`
		} `json:"data"`
	} `json:"media"`
}

type instagramSearchResponse struct {
	Data   []instagramVenue `json:"data"`
	Paging struct {
		Next    string `json:"next"`
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
	} `json:"paging"`
	Summary struct {
		TotalCount int `json:"total_count"`
	} `json:"summary"`
}

func (i *Instagram) SearchAllBusinesses(ctx context.Context, location string, categories []string, limit int, fn Callback) (int, error) {
	if !i.Configured() {
		return 0, ErrNotConfigured
	}

	yielded := 0
	total := -1
	after := ""

	for {
		params := url.Values{}
		params.Set("access_token", i.cfg.AccessToken)
		params.Set("q", location)
		params.Set("fields", "id,name,media{media_url}")
		params.Set("limit", fmt.Sprint(instagramPageSize))
		if after != "" {
			params.Set("after", after)
		}

		var page instagramSearchResponse
		if err := i.http.getJSON(ctx, i.cfg.BaseURL+"/pages/search?"+params.Encode(), nil, &page); err != nil {
			return yielded, err
		}
		if total < 0 {
			reported := page.Summary.TotalCount
			if reported == 0 {
				reported = len(page.Data)
			}
			total = effectiveTotal(reported, limit)
		}

		for _, v := range page.Data {
			if limit > 0 && yielded >= limit {
				return yielded, nil
			}
			yielded++
			if err := fn(i.normalize(v), model.NewProgress(yielded, total)); err != nil {
				return yielded, err
			}
		}

		if page.Paging.Next == "" || yielded >= total {
			return yielded, nil
		}
		after = page.Paging.Cursors.After
	}
}

func (i *Instagram) GetBusiness(ctx context.Context, rawExternalID string) (*model.SourceRecord, error) {
	if !i.Configured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("access_token", i.cfg.AccessToken)
	params.Set("fields", "id,name,media{media_url}")

	var v instagramVenue
	if err := i.http.getJSON(ctx, i.cfg.BaseURL+"/"+url.PathEscape(rawExternalID)+"?"+params.Encode(), nil, &v); err != nil {
		return nil, err
	}
	rec := i.normalize(v)
	return &rec, nil
}

func (i *Instagram) normalize(v instagramVenue) model.SourceRecord {
	rec := model.SourceRecord{
		ExternalID: model.PrefixExternalID(model.SourceInstagram, v.ID),
		Name:       v.Name,
	}
	for _, m := range v.Media.Data {
		if m.MediaURL != "" {
			rec.Photos = append(rec.Photos, m.MediaURL)
		}
	}
	return rec
}
