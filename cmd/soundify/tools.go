package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/db"
	"github.com/justestif/soundify/internal/history"
	"github.com/justestif/soundify/internal/insights"
	"github.com/justestif/soundify/internal/recommend"
	"github.com/justestif/soundify/internal/state"
)

// cliScope is the storage scope of the credential used by CLI commands.
const cliScope = "cli"

func tokenFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "token",
		Usage:   "Spotify access token (remembered for later commands)",
		Sources: cli.EnvVars("SPOTIFY_TOKEN"),
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output JSON",
	}
}

func historyCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:   "history",
		Usage:  "Show recent listening history and when you listen most",
		Flags:  []cli.Flag{tokenFlag(), jsonFlag()},
		Action: a.showHistory,
	}
}

func recommendCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "recommend",
		Usage: "Fetch recommendations from the backend",
		Flags: []cli.Flag{
			tokenFlag(),
			jsonFlag(),
			&cli.StringFlag{Name: "genre", Usage: "Preferred genre"},
			&cli.StringFlag{Name: "mood", Usage: "Current mood"},
			&cli.StringFlag{Name: "search", Usage: "Free-text request, instead of history"},
		},
		Action: a.runRecommend,
	}
}

func migrateCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the database schema",
		Action: func(ctx context.Context, _ *cli.Command) error {
			if a.cfg.Database.URL == "" {
				return errors.New("database URL is required (set DATABASE_URL)")
			}
			database, err := db.New(ctx, a.cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer database.Close()

			if err := database.Migrate(ctx); err != nil {
				return err
			}
			a.logger.Info("database migrated")
			return nil
		},
	}
}

// credential returns the --token value, remembering it, or the one
// remembered by an earlier command.
func (a *app) credential(ctx context.Context, cmd *cli.Command) (auth.Credential, error) {
	storage, err := a.fileStorage()
	if err != nil {
		return "", err
	}

	if token := cmd.String("token"); token != "" {
		cred := auth.Credential(token)
		if err := auth.SaveCredential(ctx, storage, cliScope, cred); err != nil {
			a.logger.Warn("remembering token failed", "err", err)
		}
		return cred, nil
	}

	cred, err := auth.LoadCredential(ctx, storage, cliScope)
	if err != nil {
		return "", err
	}
	if cred.Empty() {
		return "", errors.New("no token: pass --token or set SPOTIFY_TOKEN")
	}
	return cred, nil
}

func (a *app) showHistory(ctx context.Context, cmd *cli.Command) error {
	cred, err := a.credential(ctx, cmd)
	if err != nil {
		return err
	}

	entries, err := a.newPipeline(nil).loader.Load(ctx, cred)
	if err != nil {
		return err
	}

	peaks, err := insights.PeakWindows(entries, insights.DefaultConfig())
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return writeJSON(map[string]any{
			"listening_history": entries,
			"peaks":             peaks,
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.PlayedAt.Local().Format("Jan 2 15:04"), e.TimeOfDay, e.TrackName, e.ArtistName)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(peaks) > 0 {
		fmt.Println()
		fmt.Println("Peak listening:")
		for _, p := range peaks {
			fmt.Printf("  %-22s %3d plays  %v\n", p.Label, p.Plays, p.TopArtists)
		}
	}
	return nil
}

func (a *app) runRecommend(ctx context.Context, cmd *cli.Command) error {
	genre, mood, query := cmd.String("genre"), cmd.String("mood"), cmd.String("search")
	if !recommend.KnownGenre(genre) {
		return fmt.Errorf("unknown genre %q (choose from %v)", genre, recommend.Genres)
	}
	if !recommend.KnownMood(mood) {
		return fmt.Errorf("unknown mood %q (choose from %v)", mood, recommend.Moods)
	}
	if query != "" && (genre != "" || mood != "") {
		return errors.New("--search cannot be combined with --genre or --mood")
	}

	cred, err := a.credential(ctx, cmd)
	if err != nil {
		return err
	}
	p := a.newPipeline(nil)

	var req recommend.Request
	if query != "" {
		req = recommend.Search{Query: query}
	} else {
		entries, err := p.loader.Load(ctx, cred)
		if err != nil {
			return err
		}
		tod := history.BucketAt(time.Now(), time.Local)
		if genre == "" && mood == "" {
			req = recommend.Baseline{TimeOfDay: tod, History: entries}
		} else {
			req = recommend.Filtered{TimeOfDay: tod, History: entries, Genre: genre, Mood: mood}
		}
	}

	result := p.orchestrator.Run(ctx, req, cred, state.New())
	if result.Status == recommend.StatusFailed {
		return fmt.Errorf("recommendations failed: %s", result.Reason)
	}

	if cmd.Bool("json") {
		return writeJSON(result)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, e := range result.Recommendations {
		uri := e.URI
		if uri == "" {
			uri = "(not playable)"
		}
		fmt.Fprintf(w, "%d.\t%s\t%s\t%s\n", i+1, e.TrackName, e.ArtistName, uri)
	}
	return w.Flush()
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
