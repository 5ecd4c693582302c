package main

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/backend"
	"github.com/justestif/soundify/internal/db"
	"github.com/justestif/soundify/internal/enrich"
	"github.com/justestif/soundify/internal/history"
	"github.com/justestif/soundify/internal/lastfm"
	"github.com/justestif/soundify/internal/metrics"
	"github.com/justestif/soundify/internal/recommend"
	"github.com/justestif/soundify/internal/spotify"
	"github.com/justestif/soundify/internal/state"
	"github.com/justestif/soundify/internal/web"
	webfs "github.com/justestif/soundify/web"
)

func serveCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web application",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides config)",
			},
		},
		Action: a.serve,
	}
}

// pipeline is the Spotify catalog plus the recommendation pipeline on top.
type pipeline struct {
	catalog      *spotify.Catalog
	loader       *history.Loader
	orchestrator *recommend.Orchestrator
}

func (a *app) newPipeline(m *metrics.Metrics) pipeline {
	catalog := spotify.NewCatalog()
	enricher := enrich.New(catalog,
		enrich.WithRateLimit(a.cfg.Backend.SearchRateLimit),
		enrich.WithLogger(a.logger.With("component", "enrich")),
		enrich.WithMetrics(m),
	)
	client := backend.NewClient(a.cfg.Backend.URL,
		backend.WithTimeout(a.cfg.Backend.Timeout),
		backend.WithMetrics(m),
	)

	opts := []recommend.Option{
		recommend.WithConcurrency(a.cfg.Backend.Concurrency),
		recommend.WithLogger(a.logger.With("component", "recommend")),
	}
	if tagger, err := lastfm.NewClient(a.cfg.LastFM.APIKey, lastfm.WithRateLimit(a.cfg.LastFM.RateLimit)); err == nil {
		opts = append(opts, recommend.WithGenreTagger(tagger))
	}

	return pipeline{
		catalog:      catalog,
		loader:       history.NewLoader(catalog),
		orchestrator: recommend.New(client, enricher, opts...),
	}
}

func (a *app) serve(ctx context.Context, cmd *cli.Command) error {
	if err := a.cfg.ValidateServe(); err != nil {
		return err
	}
	if addr := cmd.String("addr"); addr != "" {
		a.cfg.Server.Addr = addr
	}

	authenticator, err := auth.New(a.cfg.Spotify.ClientID, a.cfg.Spotify.RedirectURI)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	// Create sub-filesystems for templates and static files
	templates, err := fs.Sub(webfs.TemplatesFS, "templates")
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}
	static, err := fs.Sub(webfs.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	m := metrics.New()
	p := a.newPipeline(m)

	cfg := web.ServerConfig{
		Addr:        a.cfg.Server.Addr,
		Auth:        authenticator,
		Loader:      p.loader,
		Runner:      p.orchestrator,
		Remote:      p.catalog,
		Policy:      state.ParsePolicy(a.cfg.Server.Supersession),
		PlayerPoll:  a.cfg.Server.PlayerPollInterval,
		Location:    time.Local,
		TemplatesFS: templates,
		StaticFS:    static,
		Logger:      a.logger,
		Metrics:     m,
	}

	if a.cfg.Database.URL != "" {
		database, err := db.New(ctx, a.cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		cfg.Sessions = web.NewDBSessionStore(database.Sessions(), a.cfg.Server.SessionTTL, a.logger)
		cfg.Storage = database.Storage()
		cfg.Archive = database.History()
		cfg.Runs = database.Recommendations()
		a.logger.Info("using database storage")
	} else {
		storage, err := a.fileStorage()
		if err != nil {
			return err
		}
		cfg.Sessions = web.NewSessionStore(a.cfg.Server.SessionTTL)
		cfg.Storage = storage
		a.logger.Info("using file storage", "path", storage.Path())
	}

	server, err := web.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run(ctx)
}

func (a *app) fileStorage() (*auth.FileStorage, error) {
	if a.cfg.Storage.Path != "" {
		return auth.NewFileStorage(a.cfg.Storage.Path), nil
	}
	storage, err := auth.DefaultFileStorage()
	if err != nil {
		return nil, fmt.Errorf("locating storage file: %w", err)
	}
	return storage, nil
}
