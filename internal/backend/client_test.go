package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justestif/soundify/internal/history"
)

func TestClient_Endpoints(t *testing.T) {
	hist := []history.Entry{
		{TrackName: "A", ArtistName: "B", PlayedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), TimeOfDay: history.Morning},
	}

	tests := []struct {
		name     string
		call     func(c *Client) ([]Track, error)
		wantPath string
		wantKeys []string
		noKeys   []string
	}{
		{
			name: "baseline",
			call: func(c *Client) ([]Track, error) {
				return c.Recommendations(context.Background(), RecommendationsRequest{TimeOfDay: history.Morning, ListeningHistory: hist})
			},
			wantPath: PathRecommendations,
			wantKeys: []string{"time_of_day", "listening_history"},
			noKeys:   []string{"genre", "mood", "query"},
		},
		{
			name: "filtered with empty mood",
			call: func(c *Client) ([]Track, error) {
				return c.Filtered(context.Background(), FilteredRequest{TimeOfDay: history.Evening, ListeningHistory: hist, Genre: "Jazz"})
			},
			wantPath: PathFiltered,
			wantKeys: []string{"time_of_day", "listening_history", "genre", "mood"},
			noKeys:   []string{"query"},
		},
		{
			name: "search",
			call: func(c *Client) ([]Track, error) {
				return c.Search(context.Background(), SearchRequest{Query: "lofi"})
			},
			wantPath: PathSearch,
			wantKeys: []string{"query"},
			noKeys:   []string{"time_of_day", "listening_history", "genre", "mood"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotMethod, gotType string
			var gotBody map[string]json.RawMessage

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotMethod = r.Method
				gotType = r.Header.Get("Content-Type")
				data, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(data, &gotBody)

				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(Response{Recommendations: []Track{
					{TrackName: "Study", ArtistName: "Chillhop", Genre: "Lo-fi"},
				}})
			}))
			defer srv.Close()

			tracks, err := tt.call(NewClient(srv.URL))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if gotMethod != http.MethodPost {
				t.Errorf("method = %s, want POST", gotMethod)
			}
			if gotPath != tt.wantPath {
				t.Errorf("path = %s, want %s", gotPath, tt.wantPath)
			}
			if gotType != "application/json" {
				t.Errorf("Content-Type = %q", gotType)
			}
			for _, k := range tt.wantKeys {
				if _, ok := gotBody[k]; !ok {
					t.Errorf("body missing %q: %v", k, gotBody)
				}
			}
			for _, k := range tt.noKeys {
				if _, ok := gotBody[k]; ok {
					t.Errorf("body has unexpected %q", k)
				}
			}
			if len(tracks) != 1 || tracks[0].TrackName != "Study" {
				t.Errorf("tracks = %+v", tracks)
			}
		})
	}
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"error body", http.StatusBadRequest, `{"error":"invalid JSON"}`, "invalid JSON"},
		{"server error", http.StatusInternalServerError, `oops`, "status 500"},
		{"undecodable success", http.StatusOK, `not json`, "parsing response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Search(context.Background(), SearchRequest{Query: "x"})
			if !errors.Is(err, ErrUpstream) {
				t.Fatalf("error = %v, want ErrUpstream", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want to contain %q", err, tt.wantMsg)
			}
			if calls.Load() != 1 {
				t.Errorf("calls = %d, want exactly 1 (no retries)", calls.Load())
			}
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Recommendations(context.Background(), RecommendationsRequest{})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("error = %v, want ErrUpstream", err)
	}
}

func TestClient_EmptyRecommendations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	tracks, err := NewClient(srv.URL).Search(context.Background(), SearchRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracks == nil || len(tracks) != 0 {
		t.Errorf("tracks = %#v, want empty non-nil slice", tracks)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	if got := NewClient("").BaseURL(); got != DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", got, DefaultBaseURL)
	}
	if got := NewClient("http://host:9000/").BaseURL(); got != "http://host:9000" {
		t.Errorf("BaseURL() = %q, want trailing slash trimmed", got)
	}
}
