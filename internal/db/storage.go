package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StorageRepository is a durable key/value store partitioned by scope. It
// satisfies auth.Storage.
type StorageRepository struct {
	pool *pgxpool.Pool
}

// GetItem returns the value stored under scope/key.
func (r *StorageRepository) GetItem(ctx context.Context, scope, key string) (string, bool, error) {
	query := `SELECT value FROM storage_items WHERE scope = $1 AND key = $2`
	var value string
	err := r.pool.QueryRow(ctx, query, scope, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying storage item: %w", err)
	}
	return value, true, nil
}

// SetItem stores value under scope/key, replacing any previous value.
func (r *StorageRepository) SetItem(ctx context.Context, scope, key, value string) error {
	query := `
		INSERT INTO storage_items (scope, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (scope, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.pool.Exec(ctx, query, scope, key, value); err != nil {
		return fmt.Errorf("upserting storage item: %w", err)
	}
	return nil
}

// RemoveItem deletes scope/key. Removing a missing item is not an error.
func (r *StorageRepository) RemoveItem(ctx context.Context, scope, key string) error {
	query := `DELETE FROM storage_items WHERE scope = $1 AND key = $2`
	if _, err := r.pool.Exec(ctx, query, scope, key); err != nil {
		return fmt.Errorf("deleting storage item: %w", err)
	}
	return nil
}
