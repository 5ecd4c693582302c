package recommender

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/soundify/internal/backend"
	"github.com/justestif/soundify/internal/metrics"
)

// maxBodyBytes bounds a request body.
const maxBodyBytes = 1 << 20

// ErrNoQuery is returned for a search without a query.
var ErrNoQuery = errors.New("No query provided")

// Service answers the three recommendation endpoints.
type Service struct {
	completer Completer
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records completions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service.
func NewService(completer Completer, opts ...Option) *Service {
	s := &Service{
		completer: completer,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the service's router.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post(backend.PathRecommendations, s.handleRecommendations)
	r.Post(backend.PathFiltered, s.handleFiltered)
	r.Post(backend.PathSearch, s.handleSearch)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// Recommend answers a baseline request.
func (s *Service) Recommend(ctx context.Context, req backend.RecommendationsRequest) ([]backend.Track, error) {
	return s.complete(ctx, backend.PathRecommendations, BaselinePrompt(req.TimeOfDay, req.ListeningHistory))
}

// RecommendFiltered answers a filtered request.
func (s *Service) RecommendFiltered(ctx context.Context, req backend.FilteredRequest) ([]backend.Track, error) {
	return s.complete(ctx, backend.PathFiltered, FilteredPrompt(req.TimeOfDay, req.ListeningHistory, req.Genre, req.Mood))
}

// RecommendSearch answers a free-text request. An empty query is ErrNoQuery.
func (s *Service) RecommendSearch(ctx context.Context, req backend.SearchRequest) ([]backend.Track, error) {
	if req.Query == "" {
		return nil, ErrNoQuery
	}
	return s.complete(ctx, backend.PathSearch, SearchPrompt(req.Query))
}

func (s *Service) complete(ctx context.Context, endpoint, prompt string) ([]backend.Track, error) {
	start := time.Now()
	content, err := s.completer.Complete(ctx, prompt)
	if err == nil {
		var tracks []backend.Track
		tracks, err = ParseTracks(content)
		if err == nil {
			s.metrics.ObserveCompletion(endpoint, nil)
			s.logger.Debug("completion parsed", "endpoint", endpoint, "tracks", len(tracks), "elapsed", time.Since(start))
			return tracks, nil
		}
	}
	s.metrics.ObserveCompletion(endpoint, err)
	s.logger.Error("completion failed", "endpoint", endpoint, "err", err, "elapsed", time.Since(start))
	return nil, err
}

func (s *Service) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req backend.RecommendationsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tracks, err := s.Recommend(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeTracks(w, tracks)
}

func (s *Service) handleFiltered(w http.ResponseWriter, r *http.Request) {
	var req backend.FilteredRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tracks, err := s.RecommendFiltered(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeTracks(w, tracks)
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req backend.SearchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	tracks, err := s.RecommendSearch(r.Context(), req)
	switch {
	case errors.Is(err, ErrNoQuery):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeTracks(w, tracks)
}

func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func writeTracks(w http.ResponseWriter, tracks []backend.Track) {
	writeJSON(w, http.StatusOK, backend.Response{Recommendations: tracks})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, backend.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
