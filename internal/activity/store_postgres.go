package activity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements EntryStore for PostgreSQL databases.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL activity store, creating the
// activity_log table if it doesn't exist.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	ctx := context.Background()
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS activity_log (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			owner_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			credential_id TEXT,
			action TEXT NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create activity_log table: %w", err)
	}
	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_activity_timestamp ON activity_log(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_activity_owner_provider ON activity_log(owner_id, provider)",
		"CREATE INDEX IF NOT EXISTS idx_activity_action ON activity_log(action)",
	} {
		if _, err := pool.Exec(ctx, idx); err != nil {
			return nil, fmt.Errorf("failed to create activity index: %w", err)
		}
	}

	return &PostgresStore{pool: pool}, nil
}

// WriteBatch inserts entries using a pgx batch for a single round trip.
func (s *PostgresStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO activity_log (id, timestamp, owner_id, provider, credential_id, action, description)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
			e.ID, e.Timestamp.UTC(), e.OwnerID, e.Provider, e.CredentialID, string(e.Action), e.Description,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert activity batch: %w", err)
		}
	}
	return nil
}

// Close is a no-op; the pool is managed by the storage layer.
func (s *PostgresStore) Close() error {
	return nil
}
