// Package lastfm looks up community tags on Last.fm and maps them to the
// genre vocabulary, for recommendations that arrive without a genre.
package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/justestif/soundify/internal/recommend"
)

const (
	// DefaultBaseURL is the Last.fm API root.
	DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

	// DefaultRateLimit is the request budget Last.fm asks clients to stay under.
	DefaultRateLimit = 5.0

	userAgent = "soundify/1.0"
)

// Last.fm API error codes.
const (
	errCodeInvalidAPIKey = 10
	errCodeRateLimited   = 29
)

var (
	// ErrMissingAPIKey is returned by NewClient without an API key.
	ErrMissingAPIKey = errors.New("missing Last.fm API key")

	// ErrRateLimited is returned when the API rate limit is exceeded after retries.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidAPIKey is returned when the API key is invalid.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// aliases maps normalized tag names onto the genre vocabulary.
var aliases = map[string]string{
	"hip hop":      "Hip-Hop",
	"hiphop":       "Hip-Hop",
	"rap":          "Hip-Hop",
	"rnb":          "R&B",
	"r and b":      "R&B",
	"soul":         "R&B",
	"electronica":  "Electronic",
	"edm":          "Electronic",
	"house":        "Electronic",
	"techno":       "Electronic",
	"heavy metal":  "Metal",
	"alternative":  "Rock",
	"indie rock":   "Rock",
	"classic rock": "Rock",
	"dancehall":    "Reggae",
	"ska":          "Reggae",
	"country pop":  "Country",
	"bluegrass":    "Country",
	"dance pop":    "Pop",
	"synthpop":     "Pop",
	"smooth jazz":  "Jazz",
	"bebop":        "Jazz",
	"baroque":      "Classical",
	"opera":        "Classical",
}

// Client is a Last.fm API client with caching, rate limiting and retry.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	delays     []time.Duration

	// key = "track:{artist}:{track}" or "artist:{artist}"
	cache   map[string][]Tag
	cacheMu sync.RWMutex
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit caps requests at rps per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = nil
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetryDelays sets the waits between rate-limited attempts.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(c *Client) {
		c.delays = delays
	}
}

// NewClient creates a new Last.fm API client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(DefaultRateLimit, 1),
		delays:     []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		cache:      make(map[string][]Tag),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Genre returns the first of the track's tags that names a known genre,
// or "" when none does.
func (c *Client) Genre(ctx context.Context, track, artist string) (string, error) {
	tags, err := c.Tags(ctx, artist, track)
	if err != nil {
		return "", err
	}
	return GenreOf(tags), nil
}

// GenreOf maps tags, most popular first, onto the genre vocabulary.
func GenreOf(tags []Tag) string {
	for _, t := range tags {
		name := normalize(t.Name)
		for _, g := range recommend.Genres {
			if name == normalize(g) {
				return g
			}
		}
		if g, ok := aliases[name]; ok {
			return g
		}
	}
	return ""
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Tags fetches tags for a track, falling back to artist tags if the track
// has none. Results are cached in memory. Returns an empty slice (not nil)
// if no tags are found.
func (c *Client) Tags(ctx context.Context, artist, track string) ([]Tag, error) {
	tags, err := c.topTags(ctx, "track:"+artist+":"+track, url.Values{
		"method": {"track.getTopTags"},
		"artist": {artist},
		"track":  {track},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching track tags: %w", err)
	}
	if len(tags) > 0 {
		return tags, nil
	}

	tags, err = c.topTags(ctx, "artist:"+artist, url.Values{
		"method": {"artist.getTopTags"},
		"artist": {artist},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching artist tags: %w", err)
	}
	return tags, nil
}

func (c *Client) topTags(ctx context.Context, cacheKey string, params url.Values) ([]Tag, error) {
	c.cacheMu.RLock()
	if cached, ok := c.cache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	params.Set("autocorrect", "1")
	params.Set("format", "json")
	params.Set("api_key", c.apiKey)

	body, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	var resp topTags
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	tags := resp.TopTags.Tag
	if tags == nil {
		tags = []Tag{}
	}

	c.cacheMu.Lock()
	c.cache[cacheKey] = tags
	c.cacheMu.Unlock()

	return tags, nil
}

// doRequest performs a GET, retrying with backoff while rate limited.
func (c *Client) doRequest(ctx context.Context, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= len(c.delays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.delays[attempt-1]):
			}
		}

		body, err := c.doSingleRequest(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func (c *Client) doSingleRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != 0 {
		switch apiErr.Error {
		case errCodeRateLimited:
			return nil, ErrRateLimited
		case errCodeInvalidAPIKey:
			return nil, ErrInvalidAPIKey
		default:
			return nil, fmt.Errorf("API error %d: %s", apiErr.Error, apiErr.Message)
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return body, nil
}
