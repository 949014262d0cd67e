package source

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clerasense/drugfacts-cli/internal/config"
)

const defaultUserAgent = "drugfacts-cli/1.0"

// httpClient is the shared rate-limited, retrying HTTP transport for all
// source adapters. Each adapter owns its own instance so one provider's
// limiter never stalls another.
type httpClient struct {
	base       string
	hc         *http.Client
	limiter    *rate.Limiter
	maxRetries int
	userAgent  string
}

func newHTTPClient(cfg config.SourceConfig) *httpClient {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 3
	}
	rps := cfg.RequestsPerSec
	if rps == 0 {
		rps = 1
	}
	return &httpClient{
		base: cfg.BaseURL,
		hc: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries: retries,
		userAgent:  defaultUserAgent,
	}
}

// do issues a rate-limited GET with retry on transient failures.
// A 404 response returns (nil, false, nil): the provider has nothing.
func (c *httpClient) do(ctx context.Context, rawURL string) ([]byte, bool, error) {
	var lastErr error
	for attempt := range c.maxRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, false, eris.Wrap(err, "rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, false, eris.Wrap(err, "create request")
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			lastErr = err
			zap.L().Warn("source request failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			return nil, false, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, rawURL)
			zap.L().Warn("source returned retryable status",
				zap.String("url", rawURL),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			return nil, false, eris.Errorf("http %d from %s: %s", resp.StatusCode, rawURL, string(body))
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, false, eris.Wrap(err, "read body")
		}
		return body, true, nil
	}

	return nil, false, eris.Wrap(lastErr, "all retries exhausted")
}

// getJSON fetches base+path with the given query and decodes JSON into out.
// found is false when the provider has no data (404 or empty body).
func (c *httpClient) getJSON(ctx context.Context, path string, q url.Values, out any) (bool, error) {
	rawURL := c.base + path
	if len(q) > 0 {
		rawURL += "?" + q.Encode()
	}
	body, found, err := c.do(ctx, rawURL)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, eris.Wrapf(err, "decode %s", path)
	}
	return true, nil
}

// getBytes fetches an absolute URL and returns the raw body.
func (c *httpClient) getBytes(ctx context.Context, rawURL string) ([]byte, bool, error) {
	return c.do(ctx, rawURL)
}

func (c *httpClient) backoff(ctx context.Context, attempt int) {
	base := time.Second
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(d) / 2))
	d = d + jitter

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
