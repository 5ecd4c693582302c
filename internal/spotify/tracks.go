package spotify

import (
	"context"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/soundify/internal/auth"
)

// MaxRecentlyPlayed is the largest page Spotify returns for recently played tracks.
const MaxRecentlyPlayed = 50

// RecentlyPlayed fetches up to limit of the user's most recent plays,
// most recent first, in the order Spotify returns them.
func (c *Catalog) RecentlyPlayed(ctx context.Context, cred auth.Credential, limit int) ([]Play, error) {
	if limit <= 0 || limit > MaxRecentlyPlayed {
		limit = MaxRecentlyPlayed
	}

	items, err := c.api(cred).PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{Limit: spotify.Numeric(limit)})
	if err != nil {
		return nil, classify("fetching recently played", err)
	}

	plays := make([]Play, len(items))
	for i, item := range items {
		plays[i] = convertPlay(item)
	}
	return plays, nil
}

// SearchTrack returns the top track match for query, or nil if there is none.
// The match is accepted as-is with no local scoring.
func (c *Catalog) SearchTrack(ctx context.Context, cred auth.Credential, query string) (*Match, error) {
	result, err := c.api(cred).Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return nil, classify("searching tracks", err)
	}

	if result == nil || result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return nil, nil
	}

	m := convertMatch(result.Tracks.Tracks[0])
	return &m, nil
}

// convertPlay converts a Spotify RecentlyPlayedItem to a Play.
func convertPlay(item spotify.RecentlyPlayedItem) Play {
	return Play{
		TrackID:   item.Track.ID.String(),
		TrackName: item.Track.Name,
		Artist:    joinArtists(item.Track.Artists),
		PlayedAt:  item.PlayedAt,
	}
}

// convertMatch converts a Spotify FullTrack to a Match.
func convertMatch(t spotify.FullTrack) Match {
	m := Match{
		URI:    string(t.URI),
		Name:   t.Name,
		Artist: joinArtists(t.Artists),
	}
	if len(t.Album.Images) > 0 {
		m.AlbumCover = t.Album.Images[0].URL
	}
	return m
}
