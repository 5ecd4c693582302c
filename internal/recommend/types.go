// Package recommend turns a recommendation request into enriched, playable
// recommendation records and reports progress through a Sink.
package recommend

import (
	"encoding/json"

	"github.com/justestif/soundify/internal/backend"
	"github.com/justestif/soundify/internal/history"
)

// Request is one of Baseline, Filtered or Search.
type Request interface {
	// Kind names the request shape for logs.
	Kind() string
	isRequest()
}

// Baseline asks for recommendations from listening history and time of day.
type Baseline struct {
	TimeOfDay history.Bucket
	History   []history.Entry
}

// Filtered is Baseline narrowed by a genre and mood. Either may be empty.
type Filtered struct {
	TimeOfDay history.Bucket
	History   []history.Entry
	Genre     string
	Mood      string
}

// Search asks for recommendations matching a free-text query.
type Search struct {
	Query string
}

func (Baseline) Kind() string { return "baseline" }
func (Filtered) Kind() string { return "filtered" }
func (Search) Kind() string   { return "search" }

func (Baseline) isRequest() {}
func (Filtered) isRequest() {}
func (Search) isRequest()   {}

// Status is the lifecycle of an asynchronous load.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Enriched is a backend recommendation plus its playable URI and cover.
// An empty URI is encoded as JSON null and means the track is not playable.
type Enriched struct {
	backend.Track
	URI        string
	AlbumCover string
}

// Playable reports whether the record has a URI.
func (e Enriched) Playable() bool {
	return e.URI != ""
}

type enrichedJSON struct {
	TrackName  string  `json:"track_name"`
	ArtistName string  `json:"artist_name"`
	Genre      string  `json:"genre,omitempty"`
	URI        *string `json:"uri"`
	AlbumCover string  `json:"album_cover"`
}

// MarshalJSON implements json.Marshaler.
func (e Enriched) MarshalJSON() ([]byte, error) {
	out := enrichedJSON{
		TrackName:  e.TrackName,
		ArtistName: e.ArtistName,
		Genre:      e.Genre,
		AlbumCover: e.AlbumCover,
	}
	if e.URI != "" {
		uri := e.URI
		out.URI = &uri
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Enriched) UnmarshalJSON(data []byte) error {
	var in enrichedJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Enriched{
		Track:      backend.Track{TrackName: in.TrackName, ArtistName: in.ArtistName, Genre: in.Genre},
		AlbumCover: in.AlbumCover,
	}
	if in.URI != nil {
		e.URI = *in.URI
	}
	return nil
}

// Result is the observable state of the recommendation slot.
type Result struct {
	Status          Status     `json:"status"`
	Recommendations []Enriched `json:"recommendations"`
	Reason          string     `json:"error,omitempty"`
	Seq             uint64     `json:"seq"`
}

// Idle returns the empty, not-yet-requested result.
func Idle() Result {
	return Result{Status: StatusIdle, Recommendations: []Enriched{}}
}

// Succeeded returns a settled result holding items.
func Succeeded(items []Enriched) Result {
	if items == nil {
		items = []Enriched{}
	}
	return Result{Status: StatusSucceeded, Recommendations: items}
}

// Failed returns a settled failure. Recommendations is empty.
func Failed(reason string) Result {
	return Result{Status: StatusFailed, Recommendations: []Enriched{}, Reason: reason}
}

// URIs returns the playable URIs in order.
func (r Result) URIs() []string {
	var uris []string
	for _, e := range r.Recommendations {
		if e.Playable() {
			uris = append(uris, e.URI)
		}
	}
	return uris
}
