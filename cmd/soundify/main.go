// Command soundify runs the Soundify web application, its recommendation
// backend and a few maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/justestif/soundify/internal/config"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}

	cmd := &cli.Command{
		Name:    "soundify",
		Usage:   "Your personal AI music recommender",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file",
				Sources: cli.EnvVars("SOUNDIFY_CONFIG"),
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "dotenv files to load before reading the environment",
				Value: []string{".env", ".env.local"},
			},
		},
		Before: a.before,
		Commands: []*cli.Command{
			serveCommand(a),
			backendCommand(a),
			historyCommand(a),
			recommendCommand(a),
			migrateCommand(a),
			configCommand(),
		},
	}

	return cmd.Run(ctx, os.Args)
}

// app carries what every subcommand needs.
type app struct {
	cfg    *config.Config
	logger *log.Logger
}

// before loads .env files and the configuration, then builds the logger.
func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	loaded, err := config.LoadDotEnv(cmd.StringSlice("env-file")...)
	if err != nil {
		return ctx, err
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}

	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return ctx, err
	}
	if len(loaded) > 0 {
		logger.Debug("loaded env files", "files", loaded)
	}

	a.cfg = cfg
	a.logger = logger
	return ctx, nil
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print an annotated example configuration file",
		Action: func(_ context.Context, _ *cli.Command) error {
			_, err := os.Stdout.Write(config.Example())
			return err
		},
	}
}
