package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecommendationRepository logs settled recommendation requests.
type RecommendationRepository struct {
	pool *pgxpool.Pool
}

// Record inserts a run with its items.
func (r *RecommendationRepository) Record(ctx context.Context, run *Run) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	runQuery := `
		INSERT INTO recommendation_runs (id, scope, seq, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	err = tx.QueryRow(ctx, runQuery,
		run.ID,
		run.Scope,
		int64(run.Seq),
		run.Status,
		run.Reason,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting recommendation run: %w", err)
	}

	if len(run.Items) > 0 {
		itemsQuery := `
			INSERT INTO recommendation_items (run_id, position, track_name, artist_name, genre, uri, album_cover)
			SELECT $1::uuid, * FROM unnest($2::int[], $3::text[], $4::text[], $5::text[], $6::text[], $7::text[])
		`

		positions := make([]int, len(run.Items))
		trackNames := make([]string, len(run.Items))
		artistNames := make([]string, len(run.Items))
		genres := make([]string, len(run.Items))
		uris := make([]*string, len(run.Items))
		covers := make([]string, len(run.Items))

		for i, it := range run.Items {
			positions[i] = i
			trackNames[i] = it.TrackName
			artistNames[i] = it.ArtistName
			genres[i] = it.Genre
			uris[i] = it.URI
			covers[i] = it.AlbumCover
		}

		if _, err := tx.Exec(ctx, itemsQuery, run.ID, positions, trackNames, artistNames, genres, uris, covers); err != nil {
			return fmt.Errorf("inserting recommendation items: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
