package history

import (
	"context"
	"fmt"
	"time"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/spotify"
)

// PageSize is the number of recent plays requested per load.
const PageSize = spotify.MaxRecentlyPlayed

// Entry is one play in the user's listening history.
type Entry struct {
	TrackName  string    `json:"track_name"`
	ArtistName string    `json:"artist_name"`
	PlayedAt   time.Time `json:"played_at"`
	TimeOfDay  Bucket    `json:"time_of_day"`
}

// RecentsFetcher abstracts the Spotify client for testing.
type RecentsFetcher interface {
	RecentlyPlayed(ctx context.Context, cred auth.Credential, limit int) ([]spotify.Play, error)
}

// Loader fetches listening history.
type Loader struct {
	fetcher RecentsFetcher
	loc     *time.Location
}

// Option configures a Loader.
type Option func(*Loader)

// WithLocation buckets plays in loc instead of local time.
func WithLocation(loc *time.Location) Option {
	return func(l *Loader) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// NewLoader creates a new Loader.
func NewLoader(fetcher RecentsFetcher, opts ...Option) *Loader {
	l := &Loader{fetcher: fetcher, loc: time.Local}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the user's most recent plays, most recent first, exactly in
// provider order. Errors wrap spotify.ErrUnauthorized or spotify.ErrUpstream.
func (l *Loader) Load(ctx context.Context, cred auth.Credential) ([]Entry, error) {
	plays, err := l.fetcher.RecentlyPlayed(ctx, cred, PageSize)
	if err != nil {
		return nil, fmt.Errorf("loading listening history: %w", err)
	}

	entries := make([]Entry, len(plays))
	for i, p := range plays {
		entries[i] = Entry{
			TrackName:  p.TrackName,
			ArtistName: p.Artist,
			PlayedAt:   p.PlayedAt,
			TimeOfDay:  BucketAt(p.PlayedAt, l.loc),
		}
	}
	return entries, nil
}
