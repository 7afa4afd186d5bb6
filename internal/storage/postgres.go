package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/deusflow/pagepost/internal/retry"
)

// PostgresStore keeps processed records in the processed_items table.
type PostgresStore struct {
	db        *sql.DB
	retention time.Duration
}

// OpenPostgresStore connects, pings and creates the schema if needed.
func OpenPostgresStore(ctx context.Context, connectionString string, retention time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingError(err))
	}

	store := &PostgresStore{db: db, retention: retention}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// pingError marks errors the server itself returned (bad credentials,
// missing database) so callers stop retrying them.
func pingError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w: %w", retry.ErrNotRetryable, err)
	}
	return err
}

func (ps *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed_items (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		marked_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_processed_items_marked_at ON processed_items(marked_at);
	`
	_, err := ps.db.ExecContext(ctx, schema)
	return err
}

func (ps *PostgresStore) LoadIDs(ctx context.Context) ([]string, error) {
	rows, err := ps.db.QueryContext(ctx,
		`SELECT id FROM processed_items WHERE marked_at > $1 ORDER BY id`,
		cutoff(time.Now(), ps.retention))
	if err != nil {
		return nil, fmt.Errorf("failed to load processed ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Save upserts rec so concurrent runners marking the same id do not fail.
func (ps *PostgresStore) Save(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO processed_items (id, title, url, marked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET marked_at = EXCLUDED.marked_at
	`
	if _, err := ps.db.ExecContext(ctx, query, rec.ID, rec.Title, rec.URL, rec.MarkedAt); err != nil {
		return fmt.Errorf("failed to save processed item: %w", err)
	}
	return nil
}

// Cleanup deletes records older than the retention window.
func (ps *PostgresStore) Cleanup(ctx context.Context) (int64, error) {
	if ps.retention <= 0 {
		return 0, nil
	}
	result, err := ps.db.ExecContext(ctx, `DELETE FROM processed_items WHERE marked_at < $1`, cutoff(time.Now(), ps.retention))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}
	return result.RowsAffected()
}

func (ps *PostgresStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}
