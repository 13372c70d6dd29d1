package adapter

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bitebase/catalog-cli/internal/quota"
)

// httpClient is the shared rate-limited JSON client the source adapters use.
// The rate.Limiter paces requests per second; the quota ledger enforces the
// monthly budget and is consulted before every page request.
type httpClient struct {
	client     *http.Client
	limiter    *rate.Limiter
	ledger     quota.Ledger
	adapter    string
	budget     int
	maxRetries int
	userAgent  string
}

func newHTTPClient(adapter string, ledger quota.Ledger, budget int, perSecond rate.Limit) *httpClient {
	return &httpClient{
		client:     &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(perSecond, 1),
		ledger:     ledger,
		adapter:    adapter,
		budget:     budget,
		maxRetries: 3,
		userAgent:  "catalog-cli/1.0",
	}
}

// getJSON performs a tracked GET and decodes the response body into out.
// The quota check happens first: an exhausted budget fails fast with
// quota.ErrRateLimited before any network activity.
func (c *httpClient) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	if _, err := c.ledger.Take(ctx, c.adapter, c.budget); err != nil {
		return err
	}

	var lastErr error
	for attempt := range c.maxRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return eris.Wrap(err, "create request")
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			zap.L().Warn("http request failed, retrying",
				zap.String("adapter", c.adapter),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, url)
			zap.L().Warn("upstream error, retrying",
				zap.String("adapter", c.adapter),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			return eris.Errorf("%s: unexpected status %d: %s", c.adapter, resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		_ = resp.Body.Close()
		if err != nil {
			return eris.Wrapf(err, "%s: decode response", c.adapter)
		}
		return nil
	}

	return eris.Wrapf(lastErr, "%s: all retries exhausted", c.adapter)
}

func (c *httpClient) backoff(ctx context.Context, attempt int) {
	base := time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > 15*time.Second {
		d = 15 * time.Second
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
