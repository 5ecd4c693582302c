package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/soundify/internal/history"
)

// HistoryRepository stores the last loaded listening history per session.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// SaveHistory replaces the stored history for scope with entries, keeping
// their order.
func (r *HistoryRepository) SaveHistory(ctx context.Context, scope string, entries []history.Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM listening_history WHERE scope = $1`, scope); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}

	if len(entries) > 0 {
		query := `
			INSERT INTO listening_history (scope, position, track_name, artist_name, played_at, time_of_day, loaded_at)
			SELECT $1::text, * FROM unnest($2::int[], $3::text[], $4::text[], $5::timestamptz[], $6::text[], $7::timestamptz[])
		`

		positions := make([]int, len(entries))
		trackNames := make([]string, len(entries))
		artistNames := make([]string, len(entries))
		playedAts := make([]time.Time, len(entries))
		buckets := make([]string, len(entries))
		loadedAts := make([]time.Time, len(entries))

		now := time.Now()
		for i, e := range entries {
			positions[i] = i
			trackNames[i] = e.TrackName
			artistNames[i] = e.ArtistName
			playedAts[i] = e.PlayedAt
			buckets[i] = string(e.TimeOfDay)
			loadedAts[i] = now
		}

		if _, err := tx.Exec(ctx, query, scope, positions, trackNames, artistNames, playedAts, buckets, loadedAts); err != nil {
			return fmt.Errorf("batch inserting history: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
