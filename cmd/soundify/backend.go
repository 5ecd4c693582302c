package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/justestif/soundify/internal/metrics"
	"github.com/justestif/soundify/internal/recommender"
)

func backendCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "backend",
		Usage: "Run the recommendation backend service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides config)",
			},
		},
		Action: a.backend,
	}
}

func (a *app) backend(ctx context.Context, cmd *cli.Command) error {
	if err := a.cfg.ValidateRecommender(); err != nil {
		return err
	}
	addr := a.cfg.Recommender.Addr
	if v := cmd.String("addr"); v != "" {
		addr = v
	}

	completer, err := recommender.NewOpenAICompleter(recommender.CompleterConfig{
		BaseURL: a.cfg.Recommender.BaseURL,
		APIKey:  a.cfg.Recommender.APIKey,
		Model:   a.cfg.Recommender.Model,
		Timeout: a.cfg.Recommender.Timeout,
	}, nil)
	if err != nil {
		return fmt.Errorf("creating completer: %w", err)
	}

	logger := a.logger.With("component", "recommender")
	service := recommender.NewService(completer,
		recommender.WithLogger(logger),
		recommender.WithMetrics(metrics.New()),
	)

	server := &http.Server{
		Addr:        addr,
		Handler:     service.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting backend", "url", "http://"+addr, "model", completer.Model())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down backend")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("backend shutdown: %w", err)
	}
	return nil
}
