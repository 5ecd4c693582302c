package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/justestif/soundify/internal/metrics"
)

const (
	// DefaultBaseURL is where the backend listens in local development.
	DefaultBaseURL = "http://127.0.0.1:8000"

	defaultTimeout = 60 * time.Second
	userAgent      = "soundify/1.0"
)

// ErrUpstream is returned for network failures, non-2xx responses and
// undecodable bodies. The backend is never retried.
var ErrUpstream = errors.New("recommendation backend request failed")

// Client is a recommendation backend client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d, Transport: c.httpClient.Transport}
		}
	}
}

// WithMetrics records each call.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new backend client. An empty baseURL means DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Recommendations calls POST /recommendations.
func (c *Client) Recommendations(ctx context.Context, req RecommendationsRequest) ([]Track, error) {
	return c.post(ctx, PathRecommendations, req)
}

// Filtered calls POST /filtered-recommendations.
func (c *Client) Filtered(ctx context.Context, req FilteredRequest) ([]Track, error) {
	return c.post(ctx, PathFiltered, req)
}

// Search calls POST /search-recommendations. An empty query is forwarded as-is.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Track, error) {
	return c.post(ctx, PathSearch, req)
}

// post sends body as JSON to path and decodes the recommendation list.
func (c *Client) post(ctx context.Context, path string, body any) ([]Track, error) {
	start := time.Now()
	tracks, err := c.doRequest(ctx, path, body)
	c.metrics.ObserveBackend(path, time.Since(start), err)
	return tracks, err
}

func (c *Client) doRequest(ctx context.Context, path string, body any) ([]Track, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading response body: %w", ErrUpstream, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr ErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%w: %s: status %d: %s", ErrUpstream, path, resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("%w: %s: status %d", ErrUpstream, path, resp.StatusCode)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: parsing response: %w", ErrUpstream, path, err)
	}
	if out.Recommendations == nil {
		out.Recommendations = []Track{}
	}
	return out.Recommendations, nil
}
