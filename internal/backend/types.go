// Package backend is the client and wire format for the recommendation backend.
package backend

import "github.com/justestif/soundify/internal/history"

// Endpoint paths.
const (
	PathRecommendations = "/recommendations"
	PathFiltered        = "/filtered-recommendations"
	PathSearch          = "/search-recommendations"
)

// Track is one recommendation as produced by the backend. Fields are not
// validated beyond presence.
type Track struct {
	TrackName  string `json:"track_name"`
	ArtistName string `json:"artist_name"`
	Genre      string `json:"genre,omitempty"`
}

// RecommendationsRequest is the body of POST /recommendations.
type RecommendationsRequest struct {
	TimeOfDay        history.Bucket  `json:"time_of_day"`
	ListeningHistory []history.Entry `json:"listening_history"`
}

// FilteredRequest is the body of POST /filtered-recommendations. Genre and
// mood are always sent, empty when unset.
type FilteredRequest struct {
	TimeOfDay        history.Bucket  `json:"time_of_day"`
	ListeningHistory []history.Entry `json:"listening_history"`
	Genre            string          `json:"genre"`
	Mood             string          `json:"mood"`
}

// SearchRequest is the body of POST /search-recommendations.
type SearchRequest struct {
	Query string `json:"query"`
}

// Response is the success body of every endpoint.
type Response struct {
	Recommendations []Track `json:"recommendations"`
}

// ErrorResponse is the failure body of every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}
