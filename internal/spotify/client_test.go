package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zmb3/spotify/v2"
)

func TestConvertPlay(t *testing.T) {
	playedAt := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name           string
		item           spotify.RecentlyPlayedItem
		expectedName   string
		expectedArtist string
	}{
		{
			name: "single artist",
			item: spotify.RecentlyPlayedItem{
				Track: spotify.SimpleTrack{
					ID:      "track123",
					Name:    "Test Song",
					Artists: []spotify.SimpleArtist{{Name: "Artist One"}},
				},
				PlayedAt: playedAt,
			},
			expectedName:   "Test Song",
			expectedArtist: "Artist One",
		},
		{
			name: "multiple artists",
			item: spotify.RecentlyPlayedItem{
				Track: spotify.SimpleTrack{
					ID:   "track456",
					Name: "Collab Track",
					Artists: []spotify.SimpleArtist{
						{Name: "Artist A"},
						{Name: "Artist B"},
						{Name: "Artist C"},
					},
				},
				PlayedAt: playedAt,
			},
			expectedName:   "Collab Track",
			expectedArtist: "Artist A, Artist B, Artist C",
		},
		{
			name: "no artists",
			item: spotify.RecentlyPlayedItem{
				Track:    spotify.SimpleTrack{ID: "track000", Name: "Unknown Track"},
				PlayedAt: playedAt,
			},
			expectedName:   "Unknown Track",
			expectedArtist: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertPlay(tt.item)

			if got.TrackName != tt.expectedName {
				t.Errorf("TrackName = %q, want %q", got.TrackName, tt.expectedName)
			}
			if got.Artist != tt.expectedArtist {
				t.Errorf("Artist = %q, want %q", got.Artist, tt.expectedArtist)
			}
			if !got.PlayedAt.Equal(playedAt) {
				t.Errorf("PlayedAt = %v, want %v", got.PlayedAt, playedAt)
			}
		})
	}
}

func TestConvertMatch(t *testing.T) {
	withImage := spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{
			Name:    "Study",
			URI:     "spotify:track:X",
			Artists: []spotify.SimpleArtist{{Name: "Chillhop"}},
		},
		Album: spotify.SimpleAlbum{
			Images: []spotify.Image{{URL: "https://i.scdn.co/a.jpg"}, {URL: "https://i.scdn.co/b.jpg"}},
		},
	}

	m := convertMatch(withImage)
	if m.URI != "spotify:track:X" {
		t.Errorf("URI = %q", m.URI)
	}
	if m.AlbumCover != "https://i.scdn.co/a.jpg" {
		t.Errorf("AlbumCover = %q, want first image", m.AlbumCover)
	}

	noImage := withImage
	noImage.Album.Images = nil
	if got := convertMatch(noImage).AlbumCover; got != "" {
		t.Errorf("AlbumCover = %q, want empty", got)
	}
}

func TestConvertNowPlaying(t *testing.T) {
	cp := spotify.CurrentlyPlaying{
		Playing: false,
		Item: &spotify.FullTrack{
			SimpleTrack: spotify.SimpleTrack{
				Name:    "Song",
				URI:     "spotify:track:1",
				Artists: []spotify.SimpleArtist{{Name: "A"}, {Name: "B"}},
			},
		},
	}

	np := convertNowPlaying(cp)
	if np.Title != "Song" || np.Artist != "A, B" {
		t.Errorf("got %+v", np)
	}
	if !np.Paused {
		t.Error("Paused = false, want true")
	}
	if np.AlbumCover != "" {
		t.Errorf("AlbumCover = %q, want empty", np.AlbumCover)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", spotify.Error{Status: http.StatusUnauthorized, Message: "expired"}, ErrUnauthorized},
		{"forbidden", spotify.Error{Status: http.StatusForbidden, Message: "scope"}, ErrUnauthorized},
		{"server error", spotify.Error{Status: http.StatusBadGateway, Message: "bad"}, ErrUpstream},
		{"network", errors.New("connection refused"), ErrUpstream},
		{"wrapped", fmt.Errorf("ctx: %w", spotify.Error{Status: 401}), ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify("op", tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}

	if classify("op", nil) != nil {
		t.Error("classify(nil) != nil")
	}
}

func TestCatalog_RecentlyPlayed(t *testing.T) {
	var gotAuth, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[
			{"track":{"id":"1","name":"Newest","artists":[{"name":"A"},{"name":"B"}]},"played_at":"2024-05-01T20:00:00Z"},
			{"track":{"id":"2","name":"Older","artists":[{"name":"C"}]},"played_at":"2024-05-01T09:00:00Z"}
		]}`)
	}))
	defer srv.Close()

	c := NewCatalog(WithBaseURL(srv.URL))
	plays, err := c.RecentlyPlayed(context.Background(), "tok", 0)
	if err != nil {
		t.Fatalf("RecentlyPlayed() error = %v", err)
	}

	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok")
	}
	if gotLimit != "50" {
		t.Errorf("limit = %q, want 50", gotLimit)
	}
	if len(plays) != 2 {
		t.Fatalf("got %d plays, want 2", len(plays))
	}
	if plays[0].TrackName != "Newest" || plays[0].Artist != "A, B" {
		t.Errorf("plays[0] = %+v", plays[0])
	}
	if plays[1].TrackName != "Older" {
		t.Errorf("order not preserved: plays[1] = %+v", plays[1])
	}
}

func TestCatalog_RecentlyPlayedLimit(t *testing.T) {
	tests := []struct {
		limit int
		want  string
	}{
		{limit: 10, want: "10"},
		{limit: 50, want: "50"},
		{limit: 0, want: "50"},
		{limit: 200, want: "50"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.limit), func(t *testing.T) {
			var gotLimit string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotLimit = r.URL.Query().Get("limit")
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"items":[]}`)
			}))
			defer srv.Close()

			c := NewCatalog(WithBaseURL(srv.URL))
			if _, err := c.RecentlyPlayed(context.Background(), "tok", tt.limit); err != nil {
				t.Fatalf("RecentlyPlayed() error = %v", err)
			}
			if gotLimit != tt.want {
				t.Errorf("limit = %q, want %q", gotLimit, tt.want)
			}
		})
	}
}

func TestCatalog_RecentlyPlayedUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"status":401,"message":"The access token expired"}}`)
	}))
	defer srv.Close()

	c := NewCatalog(WithBaseURL(srv.URL))
	_, err := c.RecentlyPlayed(context.Background(), "stale", 50)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("RecentlyPlayed() error = %v, want ErrUnauthorized", err)
	}
}

func TestCatalog_SearchTrack(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantMatch bool
		wantURI   string
	}{
		{
			name: "match",
			body: `{"tracks":{"items":[{"name":"Study","uri":"spotify:track:X",
				"artists":[{"name":"Chillhop"}],"album":{"images":[{"url":"https://img/x.jpg"}]}}]}}`,
			wantMatch: true,
			wantURI:   "spotify:track:X",
		},
		{
			name:      "no match",
			body:      `{"tracks":{"items":[]}}`,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery, gotType, gotLimit string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.Query().Get("q")
				gotType = r.URL.Query().Get("type")
				gotLimit = r.URL.Query().Get("limit")
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := NewCatalog(WithBaseURL(srv.URL))
			m, err := c.SearchTrack(context.Background(), "tok", "track:Study artist:Chillhop")
			if err != nil {
				t.Fatalf("SearchTrack() error = %v", err)
			}

			if gotQuery != "track:Study artist:Chillhop" {
				t.Errorf("q = %q", gotQuery)
			}
			if gotType != "track" || gotLimit != "1" {
				t.Errorf("type = %q, limit = %q", gotType, gotLimit)
			}
			if (m != nil) != tt.wantMatch {
				t.Fatalf("match = %v, want match %v", m, tt.wantMatch)
			}
			if m != nil && m.URI != tt.wantURI {
				t.Errorf("URI = %q, want %q", m.URI, tt.wantURI)
			}
		})
	}
}

func TestCatalog_Play(t *testing.T) {
	var gotMethod, gotDevice string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotDevice = r.URL.Query().Get("device_id")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewCatalog(WithBaseURL(srv.URL))
	if err := c.Play(context.Background(), "tok", "dev-1", []string{"spotify:track:X"}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotDevice != "dev-1" {
		t.Errorf("device_id = %q, want dev-1", gotDevice)
	}
}
