package recommend

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/backend"
	"github.com/justestif/soundify/internal/enrich"
)

// Backend abstracts the recommendation backend client for testing.
type Backend interface {
	Recommendations(ctx context.Context, req backend.RecommendationsRequest) ([]backend.Track, error)
	Filtered(ctx context.Context, req backend.FilteredRequest) ([]backend.Track, error)
	Search(ctx context.Context, req backend.SearchRequest) ([]backend.Track, error)
}

// Enricher abstracts the catalog enricher for testing.
type Enricher interface {
	Enrich(ctx context.Context, track, artist string, cred auth.Credential) enrich.Metadata
}

// GenreTagger fills in a genre for tracks the backend sent without one.
type GenreTagger interface {
	Genre(ctx context.Context, track, artist string) (string, error)
}

// Sink receives the lifecycle of one request. Begin moves the slot to
// loading and returns the request's sequence number; Settle publishes the
// final result and reports whether it was accepted.
type Sink interface {
	Begin() uint64
	Settle(seq uint64, r Result) bool
}

// Orchestrator runs recommendation requests: one backend call, then
// concurrent enrichment of every returned item.
type Orchestrator struct {
	backend     Backend
	enricher    Enricher
	tagger      GenreTagger
	concurrency int
	logger      *log.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency bounds the number of concurrent enrichments.
// Zero means one worker per item.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.concurrency = n
		}
	}
}

// WithGenreTagger tags genre-less tracks during enrichment. Tagging
// failures leave the genre empty.
func WithGenreTagger(t GenreTagger) Option {
	return func(o *Orchestrator) {
		o.tagger = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates a new Orchestrator.
func New(b Backend, e Enricher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:  b,
		enricher: e,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes req synchronously and returns the settled result.
// The result is published to sink whether or not sink accepts it.
func (o *Orchestrator) Run(ctx context.Context, req Request, cred auth.Credential, sink Sink) Result {
	seq := sink.Begin()
	return o.settle(ctx, seq, req, cred, sink)
}

// Go executes req in the background and returns its sequence number once
// the slot is loading. In-flight requests are never cancelled by newer ones;
// ctx should outlive the caller if the result must still land.
func (o *Orchestrator) Go(ctx context.Context, req Request, cred auth.Credential, sink Sink) uint64 {
	seq := sink.Begin()
	go o.settle(ctx, seq, req, cred, sink)
	return seq
}

func (o *Orchestrator) settle(ctx context.Context, seq uint64, req Request, cred auth.Credential, sink Sink) Result {
	logger := o.logger.With("request", uuid.NewString(), "kind", req.Kind(), "seq", seq)

	tracks, err := o.fetch(ctx, req)
	if err != nil {
		logger.Error("recommendation request failed", "err", err)
		r := Failed(err.Error())
		r.Seq = seq
		sink.Settle(seq, r)
		return r
	}

	items := o.EnrichAll(ctx, tracks, cred)
	r := Succeeded(items)
	r.Seq = seq

	accepted := sink.Settle(seq, r)
	logger.Info("recommendations settled", "count", len(items), "playable", len(r.URIs()), "accepted", accepted)
	return r
}

// fetch makes exactly one backend call shaped by req.
func (o *Orchestrator) fetch(ctx context.Context, req Request) ([]backend.Track, error) {
	switch r := req.(type) {
	case Baseline:
		return o.backend.Recommendations(ctx, backend.RecommendationsRequest{
			TimeOfDay:        r.TimeOfDay,
			ListeningHistory: r.History,
		})
	case Filtered:
		return o.backend.Filtered(ctx, backend.FilteredRequest{
			TimeOfDay:        r.TimeOfDay,
			ListeningHistory: r.History,
			Genre:            r.Genre,
			Mood:             r.Mood,
		})
	case Search:
		return o.backend.Search(ctx, backend.SearchRequest{Query: r.Query})
	default:
		return nil, fmt.Errorf("unknown request type %T", req)
	}
}

// EnrichAll enriches tracks concurrently. Results are returned in the same
// order as input tracks and every track yields exactly one record.
func (o *Orchestrator) EnrichAll(ctx context.Context, tracks []backend.Track, cred auth.Credential) []Enriched {
	results := make([]Enriched, len(tracks))
	if len(tracks) == 0 {
		return results
	}

	workers := o.concurrency
	if workers == 0 || workers > len(tracks) {
		workers = len(tracks)
	}

	type workItem struct {
		index int
		track backend.Track
	}
	workCh := make(chan workItem, len(tracks))
	for i, t := range tracks {
		workCh <- workItem{index: i, track: t}
	}
	close(workCh)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workCh {
				md := o.enricher.Enrich(ctx, work.track.TrackName, work.track.ArtistName, cred)
				track := work.track
				if track.Genre == "" && o.tagger != nil {
					track.Genre = o.tagGenre(ctx, track)
				}
				results[work.index] = Enriched{
					Track:      track,
					URI:        md.URI,
					AlbumCover: md.AlbumCover,
				}
			}
		}()
	}

	wg.Wait()
	return results
}

func (o *Orchestrator) tagGenre(ctx context.Context, t backend.Track) string {
	genre, err := o.tagger.Genre(ctx, t.TrackName, t.ArtistName)
	if err != nil {
		o.logger.Debug("genre lookup failed", "track", t.TrackName, "artist", t.ArtistName, "err", err)
		return ""
	}
	return genre
}
