// Package spotify provides a wrapper around the Spotify Web API.
package spotify

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/justestif/soundify/internal/auth"
)

const defaultTimeout = 15 * time.Second

var (
	// ErrUnauthorized is returned when Spotify rejects the credential (401/403).
	ErrUnauthorized = errors.New("spotify rejected credential")

	// ErrUpstream is returned for any other Spotify failure, including network errors.
	ErrUpstream = errors.New("spotify request failed")
)

// Catalog is a Spotify Web API client bound to no particular user. Each call
// takes the bearer credential it should act with.
type Catalog struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithBaseURL points the Catalog at a different API root (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Catalog) {
		if u != "" && !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

// WithHTTPClient sets the base HTTP client. Its transport is wrapped with the
// bearer credential on every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Catalog) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewCatalog creates a new Catalog.
func NewCatalog(opts ...Option) *Catalog {
	c := &Catalog{
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// api returns a zmb3 client authorized with cred. Retries are disabled: a
// failed call surfaces immediately.
func (c *Catalog) api(cred auth.Credential) *spotify.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	hc := &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: cred.TokenSource(),
			Base:   base,
		},
	}

	opts := []spotify.ClientOption{spotify.WithRetry(false)}
	if c.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(c.baseURL))
	}
	return spotify.New(hc, opts...)
}

// classify maps a zmb3 error onto ErrUnauthorized or ErrUpstream.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
			return fmt.Errorf("%s: %w: %s", op, ErrUnauthorized, apiErr.Message)
		}
		return fmt.Errorf("%s: %w: %s (status %d)", op, ErrUpstream, apiErr.Message, apiErr.Status)
	}

	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}

// joinArtists joins artist names with ", ".
func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}
