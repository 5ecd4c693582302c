// Package web provides the HTTP server and web UI for Soundify.
package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/insights"
	"github.com/justestif/soundify/internal/metrics"
	"github.com/justestif/soundify/internal/player"
	"github.com/justestif/soundify/internal/session"
	"github.com/justestif/soundify/internal/state"
)

const (
	// DefaultAddr is the default server address.
	DefaultAddr = "127.0.0.1:8080"

	// DefaultPruneInterval is how often expired sessions are dropped.
	DefaultPruneInterval = time.Hour
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr        string
	Auth        *auth.Authenticator
	Sessions    SessionManager
	Storage     auth.Storage
	Loader      session.HistoryLoader
	Runner      session.Runner
	Remote      player.Remote
	Archive     session.Archive // optional
	Runs        RunRecorder     // optional
	Policy      state.Policy
	PlayerPoll  time.Duration
	PruneEvery  time.Duration
	Location    *time.Location
	Insights    insights.Config
	TemplatesFS fs.FS
	StaticFS    fs.FS
	Logger      *log.Logger
	Metrics     *metrics.Metrics
}

// Server is the HTTP server for the web application.
type Server struct {
	router     chi.Router
	server     *http.Server
	templates  *Templates
	sessions   SessionManager
	storage    auth.Storage
	registry   *Registry
	handlers   *Handlers
	logger     *log.Logger
	metrics    *metrics.Metrics
	pruneEvery time.Duration

	// background scopes work that outlives a request; canceled on shutdown.
	background context.Context
	cancel     context.CancelFunc
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewSessionStore(DefaultSessionTTL)
	}
	if cfg.Storage == nil {
		cfg.Storage = auth.NewMemoryStorage()
	}
	if cfg.PruneEvery <= 0 {
		cfg.PruneEvery = DefaultPruneInterval
	}
	if cfg.Insights.Location == nil {
		cfg.Insights.Location = cfg.Location
	}

	// Create template manager
	templates, err := NewTemplates(cfg.TemplatesFS)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	background, cancel := context.WithCancel(context.Background())

	s := &Server{
		router:     chi.NewRouter(),
		templates:  templates,
		sessions:   cfg.Sessions,
		storage:    cfg.Storage,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		pruneEvery: cfg.PruneEvery,
		background: background,
		cancel:     cancel,
	}
	s.registry = NewRegistry(s.liveFactory(cfg))
	s.handlers = NewHandlers(cfg.Auth, cfg.Sessions, cfg.Storage, s.registry, templates, cfg.Insights, cfg.Logger)

	// Configure middleware
	s.setupMiddleware()

	// Configure routes
	s.setupRoutes(cfg.StaticFS)

	// Create HTTP server
	s.server = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// liveFactory wires a fresh state, controller and player for a session.
func (s *Server) liveFactory(cfg ServerConfig) liveFactory {
	return func(id string) *Live {
		logger := cfg.Logger.With("component", "session")
		store := state.New(state.WithPolicy(cfg.Policy))

		opts := []session.Option{
			session.WithBackground(s.background),
			session.WithLogger(logger),
			session.WithMetrics(cfg.Metrics),
			session.WithLocation(cfg.Location),
		}
		if cfg.Archive != nil {
			opts = append(opts, session.WithArchive(cfg.Archive))
		}

		l := &Live{
			Controller: session.NewController(id, store, cfg.Loader, cfg.Runner, cfg.Storage, opts...),
			Player: player.NewConnectPlayer(cfg.Remote, credentialOf(store),
				player.WithPollInterval(cfg.PlayerPoll),
				player.WithLogger(cfg.Logger.With("component", "player")),
			),
		}
		if cfg.Runs != nil {
			l.unsubscribe = recordRuns(s.background, id, store, cfg.Runs, logger)
		}
		return l
	}
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes(staticFS fs.FS) {
	h := s.handlers

	// Streaming and scraping endpoints stay uncompressed
	s.router.Get("/ws", h.Stream)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))

		// Static files
		fileServer := http.FileServer(http.FS(staticFS))
		r.Handle("/static/*", http.StripPrefix("/static/", fileServer))

		// Pages
		r.Get("/", h.Home)
		r.Get("/main", h.Main)

		// Auth routes
		r.Get("/auth/login", h.Login)
		r.Get("/callback", h.Callback)
		r.Post("/auth/token", h.Token)
		r.Post("/auth/logout", h.Logout)

		// API
		r.Route("/api", func(r chi.Router) {
			r.Get("/filters", h.Filters)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)

				r.Get("/state", h.State)
				r.Get("/history", h.History)
				r.Post("/history/reload", h.ReloadHistory)
				r.Get("/insights", h.Insights)

				r.Post("/recommendations/filter", h.Filter)
				r.Post("/recommendations/search", h.Search)
				r.Post("/recommendations/clear", h.Clear)

				r.Get("/player", h.PlayerState)
				r.Get("/player/token", h.PlayerToken)
				r.Post("/player/connect", h.PlayerConnect)
				r.Post("/player/play", h.PlayerPlay)
				r.Post("/player/pause", h.PlayerPause)
				r.Post("/player/resume", h.PlayerResume)
				r.Post("/player/next", h.PlayerNext)
				r.Post("/player/previous", h.PlayerPrevious)
				r.Post("/player/volume", h.PlayerVolume)
			})
		})
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "url", "http://"+s.server.Addr)
	return s.server.ListenAndServe()
}

// PruneSessions drops expired sessions. Each one's Live is torn down,
// which stops its player polling, and its mirrored credential is forgotten.
// It returns how many sessions were dropped.
func (s *Server) PruneSessions(ctx context.Context) (int, error) {
	ids, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	for _, id := range ids {
		s.registry.Remove(id)
		if err := auth.ForgetCredential(ctx, s.storage, id); err != nil {
			s.logger.Warn("forgetting expired credential failed", "err", err)
		}
	}
	return len(ids), nil
}

// pruneLoop runs PruneSessions every pruneEvery until ctx is done.
func (s *Server) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PruneSessions(ctx)
			if err != nil {
				s.logger.Warn("pruning sessions failed", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("pruned sessions", "count", n)
			}
		}
	}
}

// Shutdown gracefully shuts down the server and stops background work.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.cancel()
	s.registry.Close()
	return err
}

// Run starts the server and shuts it down gracefully when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.pruneLoop(s.background)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for cancellation or error
	select {
	case err := <-errCh:
		s.cancel()
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
