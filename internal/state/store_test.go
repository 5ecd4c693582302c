package state

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/backend"
	"github.com/justestif/soundify/internal/enrich"
	"github.com/justestif/soundify/internal/history"
	"github.com/justestif/soundify/internal/recommend"
)

func TestStore_InitialState(t *testing.T) {
	s := New()
	snap := s.Snapshot()

	if snap.Authenticated {
		t.Error("Authenticated = true, want false")
	}
	if snap.Recommendations.Status != recommend.StatusIdle {
		t.Errorf("Status = %q, want idle", snap.Recommendations.Status)
	}
	if snap.HistoryStatus != recommend.StatusIdle {
		t.Errorf("HistoryStatus = %q, want idle", snap.HistoryStatus)
	}
	if snap.History == nil || snap.Recommendations.Recommendations == nil {
		t.Error("collections must be empty, not nil")
	}
}

func TestStore_BeginAndSettle(t *testing.T) {
	s := New()

	seq := s.Begin()
	if got := s.Result().Status; got != recommend.StatusLoading {
		t.Fatalf("Status after Begin = %q, want loading", got)
	}

	items := []recommend.Enriched{{Track: backend.Track{TrackName: "A"}, URI: "u", AlbumCover: "c"}}
	if !s.Settle(seq, recommend.Succeeded(items)) {
		t.Fatal("Settle() = false, want true")
	}

	r := s.Result()
	if r.Status != recommend.StatusSucceeded || len(r.Recommendations) != 1 || r.Seq != seq {
		t.Errorf("Result = %+v", r)
	}
}

func TestStore_Policies(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		wantWinner string
		wantFirst  bool
	}{
		{"last write wins keeps late first request", LastWriteWins, "first", true},
		{"latest issued wins drops superseded request", LatestIssuedWins, "second", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(WithPolicy(tt.policy))

			first := s.Begin()
			second := s.Begin()

			// Second request resolves first, first resolves last
			s.Settle(second, recommend.Succeeded([]recommend.Enriched{{Track: backend.Track{TrackName: "second"}}}))
			accepted := s.Settle(first, recommend.Succeeded([]recommend.Enriched{{Track: backend.Track{TrackName: "first"}}}))

			if accepted != tt.wantFirst {
				t.Errorf("first Settle accepted = %v, want %v", accepted, tt.wantFirst)
			}
			if got := s.Result().Recommendations[0].TrackName; got != tt.wantWinner {
				t.Errorf("winner = %q, want %q", got, tt.wantWinner)
			}
		})
	}
}

func TestStore_ClearRecommendations(t *testing.T) {
	s := New()
	seq := s.Begin()
	s.Settle(seq, recommend.Succeeded([]recommend.Enriched{{URI: "x"}}))

	s.ClearRecommendations()
	r := s.Result()
	if r.Status != recommend.StatusIdle || len(r.Recommendations) != 0 {
		t.Errorf("Result after clear = %+v", r)
	}

	// In-flight requests may still land after a clear
	late := s.Begin()
	s.ClearRecommendations()
	if !s.Settle(late, recommend.Succeeded(nil)) {
		t.Error("Settle after clear = false, want true")
	}
}

func TestStore_ResetDropsInFlight(t *testing.T) {
	s := New()
	s.SetCredential("tok")
	s.SetTimeOfDay(history.Morning)
	s.SetHistory([]history.Entry{{TrackName: "A"}})
	seq := s.Begin()

	s.Reset()

	if s.Settle(seq, recommend.Succeeded([]recommend.Enriched{{URI: "x"}})) {
		t.Error("Settle from before Reset accepted")
	}

	snap := s.Snapshot()
	if snap.Authenticated || snap.TimeOfDay != "" || len(snap.History) != 0 {
		t.Errorf("snapshot after reset = %+v", snap)
	}
	if snap.Recommendations.Status != recommend.StatusIdle {
		t.Errorf("Status = %q, want idle", snap.Recommendations.Status)
	}
}

func TestStore_History(t *testing.T) {
	s := New()
	s.BeginHistoryLoad()
	if s.Snapshot().HistoryStatus != recommend.StatusLoading {
		t.Error("HistoryStatus != loading")
	}

	s.SetHistory([]history.Entry{{TrackName: "A"}, {TrackName: "B"}})
	h := s.History()
	h[0].TrackName = "mutated"
	if s.History()[0].TrackName != "A" {
		t.Error("History() returned a shared slice")
	}

	s.FailHistory(errors.New("boom"))
	snap := s.Snapshot()
	if snap.HistoryStatus != recommend.StatusFailed || snap.HistoryError != "boom" {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.History) != 2 {
		t.Errorf("failed load dropped history: %d entries", len(snap.History))
	}
}

func TestStore_Subscribe(t *testing.T) {
	s := New()

	var calls atomic.Int32
	var last atomic.Value
	cancel := s.Subscribe(func(snap Snapshot) {
		calls.Add(1)
		last.Store(snap)
	})

	s.SetCredential("tok")
	s.SetTimeOfDay(history.Afternoon)

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	snap := last.Load().(Snapshot)
	if !snap.Authenticated || snap.TimeOfDay != history.Afternoon {
		t.Errorf("last snapshot = %+v", snap)
	}

	cancel()
	cancel()
	s.ClearRecommendations()
	if calls.Load() != 2 {
		t.Errorf("calls after cancel = %d, want 2", calls.Load())
	}
}

func TestParsePolicy(t *testing.T) {
	if ParsePolicy("latest-issued-wins") != LatestIssuedWins {
		t.Error("latest-issued-wins not parsed")
	}
	if ParsePolicy("") != LastWriteWins || ParsePolicy("bogus") != LastWriteWins {
		t.Error("default policy is not LastWriteWins")
	}
	if LatestIssuedWins.String() != "latest-issued-wins" {
		t.Errorf("String() = %q", LatestIssuedWins.String())
	}
}

// gatedBackend lets a test decide when each search request resolves.
type gatedBackend struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func (g *gatedBackend) gate(q string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates[q] == nil {
		g.gates[q] = make(chan struct{})
	}
	return g.gates[q]
}

func (g *gatedBackend) Recommendations(context.Context, backend.RecommendationsRequest) ([]backend.Track, error) {
	return nil, nil
}

func (g *gatedBackend) Filtered(context.Context, backend.FilteredRequest) ([]backend.Track, error) {
	return nil, nil
}

func (g *gatedBackend) Search(_ context.Context, req backend.SearchRequest) ([]backend.Track, error) {
	<-g.gate(req.Query)
	return []backend.Track{{TrackName: req.Query}}, nil
}

type noopEnricher struct{}

func (noopEnricher) Enrich(context.Context, string, string, auth.Credential) enrich.Metadata {
	return enrich.Metadata{AlbumCover: enrich.NoCoverImage}
}

func TestStore_OverlappingOrchestratorRequests(t *testing.T) {
	tests := []struct {
		policy Policy
		want   string
	}{
		{LastWriteWins, "first"},
		{LatestIssuedWins, "second"},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			b := &gatedBackend{gates: make(map[string]chan struct{})}
			o := recommend.New(b, noopEnricher{}, recommend.WithLogger(log.New(io.Discard)))
			s := New(WithPolicy(tt.policy))

			settled := make(chan uint64, 2)
			s.Subscribe(func(snap Snapshot) {
				if snap.Recommendations.Status == recommend.StatusSucceeded {
					settled <- snap.Recommendations.Seq
				}
			})

			o.Go(context.Background(), recommend.Search{Query: "first"}, "", s)
			o.Go(context.Background(), recommend.Search{Query: "second"}, "", s)

			close(b.gate("second"))
			waitSettle(t, settled)
			close(b.gate("first"))
			if tt.policy == LastWriteWins {
				waitSettle(t, settled)
			} else {
				// Superseded result is discarded; give it time to be dropped
				time.Sleep(20 * time.Millisecond)
			}

			if got := s.Result().Recommendations[0].TrackName; got != tt.want {
				t.Errorf("slot holds %q, want %q", got, tt.want)
			}
		})
	}
}

func waitSettle(t *testing.T, ch <-chan uint64) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for settle")
	}
}
