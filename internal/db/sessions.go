package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository handles session database operations.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (id, created_at, expires_at, last_seen_at)
		VALUES ($1, $2, $3, $2)
	`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	session.LastSeenAt = session.CreatedAt
	return nil
}

// Get retrieves an unexpired session by ID.
func (r *SessionRepository) Get(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, created_at, expires_at, last_seen_at
		FROM sessions
		WHERE id = $1 AND expires_at > NOW()
	`
	var session Session
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastSeenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &session, nil
}

// Touch records activity on a session.
func (r *SessionRepository) Touch(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `UPDATE sessions SET last_seen_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// sessionTables hold rows scoped to a session ID. They go when the session
// goes.
var sessionTables = []string{"storage_items", "listening_history"}

// deleteExpiredQuery removes expired sessions and their scoped rows in one
// statement and returns the removed IDs.
var deleteExpiredQuery = func() string {
	var b strings.Builder
	b.WriteString("WITH expired AS (DELETE FROM sessions WHERE expires_at <= NOW() RETURNING id)")
	for _, table := range sessionTables {
		fmt.Fprintf(&b, ", %s_gone AS (DELETE FROM %s WHERE scope IN (SELECT id FROM expired))", table, table)
	}
	b.WriteString(" SELECT id FROM expired")
	return b.String()
}()

// Delete removes a session by ID along with its stored items and history.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range sessionTables {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE scope = $1", id); err != nil {
			return fmt.Errorf("deleting session %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteExpired removes all expired sessions along with their stored items
// and history, returning the removed session IDs.
func (r *SessionRepository) DeleteExpired(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, deleteExpiredQuery)
	if err != nil {
		return nil, fmt.Errorf("deleting expired sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return ids, nil
}
