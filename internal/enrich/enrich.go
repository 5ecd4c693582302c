// Package enrich resolves a recommended track name and artist to a playable
// Spotify URI and an album cover.
package enrich

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/metrics"
	"github.com/justestif/soundify/internal/spotify"
)

const (
	// NoCoverImage is shown when the catalog has no match for a track.
	NoCoverImage = "/static/img/no-cover.svg"

	// PlaceholderCover is shown when the match has no album art or the lookup failed.
	PlaceholderCover = "https://via.placeholder.com/150"
)

// Outcome labels one enrichment for logs and metrics.
type Outcome string

const (
	OutcomeMatched Outcome = "matched"
	OutcomeNoCover Outcome = "no_cover"
	OutcomeMiss    Outcome = "miss"
	OutcomeFailed  Outcome = "failed"
)

// Metadata is the resolved playable reference and cover for one track.
// An empty URI means the track is not playable.
type Metadata struct {
	URI        string
	AlbumCover string
	Outcome    Outcome
}

// Searcher abstracts the Spotify client for testing.
type Searcher interface {
	SearchTrack(ctx context.Context, cred auth.Credential, query string) (*spotify.Match, error)
}

// Enricher looks tracks up in the Spotify catalog. It never fails: any
// problem degrades to a placeholder cover with no URI.
type Enricher struct {
	searcher Searcher
	limiter  *rate.Limiter
	logger   *log.Logger
	metrics  *metrics.Metrics
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithRateLimit caps catalog searches at rps requests per second.
// Zero or negative disables limiting.
func WithRateLimit(rps float64) Option {
	return func(e *Enricher) {
		if rps > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records each outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enricher) {
		e.metrics = m
	}
}

// New creates a new Enricher.
func New(searcher Searcher, opts ...Option) *Enricher {
	e := &Enricher{
		searcher: searcher,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query builds the catalog search query for a track.
func Query(track, artist string) string {
	return fmt.Sprintf("track:%s artist:%s", track, artist)
}

// Enrich resolves track by artist. The top match is accepted as-is.
func (e *Enricher) Enrich(ctx context.Context, track, artist string, cred auth.Credential) Metadata {
	md := e.lookup(ctx, track, artist, cred)
	e.metrics.ObserveEnrichment(string(md.Outcome))
	return md
}

func (e *Enricher) lookup(ctx context.Context, track, artist string, cred auth.Credential) Metadata {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			e.logger.Warn("enrichment rate limit wait failed", "track", track, "artist", artist, "err", err)
			return Metadata{AlbumCover: PlaceholderCover, Outcome: OutcomeFailed}
		}
	}

	match, err := e.searcher.SearchTrack(ctx, cred, Query(track, artist))
	if err != nil {
		e.logger.Warn("enrichment lookup failed", "track", track, "artist", artist, "err", err)
		return Metadata{AlbumCover: PlaceholderCover, Outcome: OutcomeFailed}
	}

	if match == nil {
		e.logger.Debug("no catalog match", "track", track, "artist", artist)
		return Metadata{AlbumCover: NoCoverImage, Outcome: OutcomeMiss}
	}

	if match.AlbumCover == "" {
		return Metadata{URI: match.URI, AlbumCover: PlaceholderCover, Outcome: OutcomeNoCover}
	}

	return Metadata{URI: match.URI, AlbumCover: match.AlbumCover, Outcome: OutcomeMatched}
}
