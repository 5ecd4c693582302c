package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/backend"
	"github.com/justestif/soundify/internal/enrich"
	"github.com/justestif/soundify/internal/history"
)

// mockBackend implements Backend for testing.
type mockBackend struct {
	tracks []backend.Track
	err    error

	gotBaseline *backend.RecommendationsRequest
	gotFiltered *backend.FilteredRequest
	gotSearch   *backend.SearchRequest
	callCount   atomic.Int32
}

func (m *mockBackend) Recommendations(_ context.Context, req backend.RecommendationsRequest) ([]backend.Track, error) {
	m.callCount.Add(1)
	m.gotBaseline = &req
	return m.tracks, m.err
}

func (m *mockBackend) Filtered(_ context.Context, req backend.FilteredRequest) ([]backend.Track, error) {
	m.callCount.Add(1)
	m.gotFiltered = &req
	return m.tracks, m.err
}

func (m *mockBackend) Search(_ context.Context, req backend.SearchRequest) ([]backend.Track, error) {
	m.callCount.Add(1)
	m.gotSearch = &req
	return m.tracks, m.err
}

// mockEnricher implements Enricher for testing.
type mockEnricher struct {
	// results maps track name to metadata; missing tracks are misses
	results map[string]enrich.Metadata
	// delays maps track name to simulated latency
	delays map[string]time.Duration
	// callCount tracks number of Enrich calls
	callCount atomic.Int32
	// inFlight and peak track concurrent calls
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newMockEnricher() *mockEnricher {
	return &mockEnricher{
		results: make(map[string]enrich.Metadata),
		delays:  make(map[string]time.Duration),
	}
}

func (m *mockEnricher) Enrich(ctx context.Context, track, _ string, _ auth.Credential) enrich.Metadata {
	m.callCount.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if d := m.delays[track]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	}

	if md, ok := m.results[track]; ok {
		return md
	}
	return enrich.Metadata{AlbumCover: enrich.NoCoverImage, Outcome: enrich.OutcomeMiss}
}

// recordingSink implements Sink for testing.
type recordingSink struct {
	mu      sync.Mutex
	seq     uint64
	begins  int
	settled []Result
}

func (s *recordingSink) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	s.seq++
	return s.seq
}

func (s *recordingSink) Settle(seq uint64, r Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled = append(s.settled, r)
	return true
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestRun_SearchSingleResult(t *testing.T) {
	b := &mockBackend{tracks: []backend.Track{
		{TrackName: "Study", ArtistName: "Chillhop"},
	}}
	e := newMockEnricher()
	e.results["Study"] = enrich.Metadata{URI: "spotify:track:X", AlbumCover: "https://img/x.jpg"}
	sink := &recordingSink{}

	o := New(b, e, WithLogger(quietLogger()))
	r := o.Run(context.Background(), Search{Query: "lofi"}, "tok", sink)

	if b.gotSearch == nil || b.gotSearch.Query != "lofi" {
		t.Fatalf("search request = %+v", b.gotSearch)
	}
	if r.Status != StatusSucceeded {
		t.Fatalf("Status = %q, want succeeded", r.Status)
	}
	if len(r.Recommendations) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(r.Recommendations))
	}

	got := r.Recommendations[0]
	want := Enriched{
		Track:      backend.Track{TrackName: "Study", ArtistName: "Chillhop"},
		URI:        "spotify:track:X",
		AlbumCover: "https://img/x.jpg",
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if sink.begins != 1 || len(sink.settled) != 1 {
		t.Errorf("begins = %d, settles = %d, want 1 and 1", sink.begins, len(sink.settled))
	}
}

func TestRun_OrderPreservedWithFailures(t *testing.T) {
	var tracks []backend.Track
	e := newMockEnricher()
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for i, n := range names {
		tracks = append(tracks, backend.Track{TrackName: n, ArtistName: "x"})
		// Earlier items finish last
		e.delays[n] = time.Duration(len(names)-i) * 3 * time.Millisecond
		switch i % 3 {
		case 0:
			e.results[n] = enrich.Metadata{URI: "spotify:track:" + n, AlbumCover: "https://img/" + n}
		case 1:
			e.results[n] = enrich.Metadata{AlbumCover: enrich.PlaceholderCover, Outcome: enrich.OutcomeFailed}
		}
	}

	for _, concurrency := range []int{0, 1, 3} {
		b := &mockBackend{tracks: tracks}
		o := New(b, e, WithConcurrency(concurrency), WithLogger(quietLogger()))
		r := o.Run(context.Background(), Baseline{TimeOfDay: history.Evening}, "tok", &recordingSink{})

		if len(r.Recommendations) != len(tracks) {
			t.Fatalf("concurrency %d: got %d items, want %d", concurrency, len(r.Recommendations), len(tracks))
		}
		for i, item := range r.Recommendations {
			if item.TrackName != tracks[i].TrackName {
				t.Errorf("concurrency %d: item[%d] = %q, want %q", concurrency, i, item.TrackName, tracks[i].TrackName)
			}
			if item.AlbumCover == "" {
				t.Errorf("concurrency %d: item[%d] has empty cover", concurrency, i)
			}
		}
	}
}

func TestRun_NoMatchKeepsRecord(t *testing.T) {
	b := &mockBackend{tracks: []backend.Track{{TrackName: "Ghost", ArtistName: "Nobody", Genre: "Ambient"}}}
	r := New(b, newMockEnricher(), WithLogger(quietLogger())).
		Run(context.Background(), Search{Query: "x"}, "tok", &recordingSink{})

	if len(r.Recommendations) != 1 {
		t.Fatalf("got %d items, want 1", len(r.Recommendations))
	}
	item := r.Recommendations[0]
	if item.URI != "" || item.Playable() {
		t.Errorf("URI = %q, want empty", item.URI)
	}
	if item.AlbumCover == "" {
		t.Error("AlbumCover is empty, want placeholder")
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"uri":null`) {
		t.Errorf("JSON = %s, want uri null", data)
	}
}

func TestRun_BackendFailure(t *testing.T) {
	b := &mockBackend{err: errors.New("recommendation backend request failed: status 500")}
	e := newMockEnricher()
	sink := &recordingSink{}

	r := New(b, e, WithLogger(quietLogger())).
		Run(context.Background(), Baseline{TimeOfDay: history.Morning}, "tok", sink)

	if r.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", r.Status)
	}
	if r.Reason == "" {
		t.Error("Reason is empty")
	}
	if len(r.Recommendations) != 0 {
		t.Errorf("got %d items, want 0", len(r.Recommendations))
	}
	if e.callCount.Load() != 0 {
		t.Errorf("enrichment calls = %d, want 0", e.callCount.Load())
	}
	if b.callCount.Load() != 1 {
		t.Errorf("backend calls = %d, want 1", b.callCount.Load())
	}
	if len(sink.settled) != 1 || sink.settled[0].Status != StatusFailed {
		t.Errorf("settled = %+v", sink.settled)
	}
}

func TestRun_RequestShapes(t *testing.T) {
	hist := []history.Entry{{TrackName: "A", ArtistName: "B", TimeOfDay: history.Morning}}

	t.Run("baseline", func(t *testing.T) {
		b := &mockBackend{}
		New(b, newMockEnricher(), WithLogger(quietLogger())).
			Run(context.Background(), Baseline{TimeOfDay: history.Morning, History: hist}, "", &recordingSink{})
		if b.gotBaseline == nil || b.gotBaseline.TimeOfDay != history.Morning || len(b.gotBaseline.ListeningHistory) != 1 {
			t.Errorf("baseline request = %+v", b.gotBaseline)
		}
		if b.gotFiltered != nil || b.gotSearch != nil {
			t.Error("more than one endpoint called")
		}
	})

	t.Run("filtered", func(t *testing.T) {
		b := &mockBackend{}
		New(b, newMockEnricher(), WithLogger(quietLogger())).
			Run(context.Background(), Filtered{TimeOfDay: history.Evening, History: hist, Genre: "Jazz"}, "", &recordingSink{})
		if b.gotFiltered == nil || b.gotFiltered.Genre != "Jazz" || b.gotFiltered.Mood != "" {
			t.Errorf("filtered request = %+v", b.gotFiltered)
		}
	})

	t.Run("empty search forwarded", func(t *testing.T) {
		b := &mockBackend{}
		New(b, newMockEnricher(), WithLogger(quietLogger())).
			Run(context.Background(), Search{}, "", &recordingSink{})
		if b.gotSearch == nil || b.gotSearch.Query != "" {
			t.Errorf("search request = %+v", b.gotSearch)
		}
	})
}

func TestEnrichAll_ConcurrencyBound(t *testing.T) {
	e := newMockEnricher()
	var tracks []backend.Track
	for _, n := range []string{"a", "b", "c", "d", "e", "f"} {
		tracks = append(tracks, backend.Track{TrackName: n})
		e.delays[n] = 10 * time.Millisecond
	}

	o := New(&mockBackend{}, e, WithConcurrency(2), WithLogger(quietLogger()))
	o.EnrichAll(context.Background(), tracks, "tok")

	if p := e.peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
	if c := e.callCount.Load(); c != int32(len(tracks)) {
		t.Errorf("callCount = %d, want %d", c, len(tracks))
	}
}

// mockTagger implements GenreTagger for testing.
type mockTagger struct {
	genres    map[string]string
	err       error
	callCount atomic.Int32
}

func (m *mockTagger) Genre(_ context.Context, track, _ string) (string, error) {
	m.callCount.Add(1)
	return m.genres[track], m.err
}

func TestEnrichAll_GenreTagger(t *testing.T) {
	tests := []struct {
		name      string
		tagger    *mockTagger
		wantGenre []string
		wantCalls int32
	}{
		{
			name:      "fills missing genres only",
			tagger:    &mockTagger{genres: map[string]string{"a": "Jazz", "b": "Rock"}},
			wantGenre: []string{"Jazz", "Pop", ""},
			wantCalls: 2,
		},
		{
			name:      "lookup failure leaves genre empty",
			tagger:    &mockTagger{err: errors.New("last.fm down")},
			wantGenre: []string{"", "Pop", ""},
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracks := []backend.Track{
				{TrackName: "a"},
				{TrackName: "b", Genre: "Pop"},
				{TrackName: "c"},
			}
			o := New(&mockBackend{}, newMockEnricher(), WithGenreTagger(tt.tagger), WithLogger(quietLogger()))

			got := o.EnrichAll(context.Background(), tracks, "tok")
			if len(got) != len(tracks) {
				t.Fatalf("len = %d, want %d", len(got), len(tracks))
			}
			for i, want := range tt.wantGenre {
				if got[i].Genre != want {
					t.Errorf("item %d genre = %q, want %q", i, got[i].Genre, want)
				}
			}
			if c := tt.tagger.callCount.Load(); c != tt.wantCalls {
				t.Errorf("tagger calls = %d, want %d", c, tt.wantCalls)
			}
		})
	}
}

func TestEnrichAll_Empty(t *testing.T) {
	o := New(&mockBackend{}, newMockEnricher())
	if got := o.EnrichAll(context.Background(), nil, ""); got == nil || len(got) != 0 {
		t.Errorf("EnrichAll(nil) = %#v, want empty non-nil", got)
	}
}

func TestGo_ReturnsAfterBegin(t *testing.T) {
	b := &mockBackend{tracks: []backend.Track{{TrackName: "slow"}}}
	e := newMockEnricher()
	e.delays["slow"] = 20 * time.Millisecond
	sink := &recordingSink{}

	seq := New(b, e, WithLogger(quietLogger())).Go(context.Background(), Search{Query: "q"}, "", sink)
	if seq != 1 {
		t.Errorf("seq = %d, want 1", seq)
	}

	sink.mu.Lock()
	begins, settles := sink.begins, len(sink.settled)
	sink.mu.Unlock()
	if begins != 1 || settles != 0 {
		t.Errorf("begins = %d, settles = %d immediately after Go", begins, settles)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		settles = len(sink.settled)
		sink.mu.Unlock()
		if settles == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("Go() never settled")
}

func TestEnriched_JSONRoundTripNullURI(t *testing.T) {
	var e Enriched
	if err := json.Unmarshal([]byte(`{"track_name":"T","artist_name":"A","uri":null,"album_cover":"c"}`), &e); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if e.URI != "" || e.TrackName != "T" || e.AlbumCover != "c" {
		t.Errorf("got %+v", e)
	}
}

func TestResult_URIs(t *testing.T) {
	r := Succeeded([]Enriched{{URI: "a"}, {}, {URI: "b"}})
	got := r.URIs()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("URIs() = %v", got)
	}
}
