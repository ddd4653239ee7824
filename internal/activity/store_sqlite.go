package activity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLite limits bindable parameters per query; with 7 columns per entry
// we chunk batches well below that limit.
const (
	sqliteColumnsPerEntry    = 7
	sqliteMaxEntriesPerBatch = 999 / sqliteColumnsPerEntry
)

// SQLiteStore implements EntryStore for SQLite databases.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite activity store, creating the
// activity_log table if it doesn't exist.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS activity_log (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
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
		if _, err := db.Exec(idx); err != nil {
			return nil, fmt.Errorf("failed to create activity index: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// WriteBatch inserts entries in chunks sized for SQLite's parameter limit.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	for i := 0; i < len(entries); i += sqliteMaxEntriesPerBatch {
		end := i + sqliteMaxEntriesPerBatch
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[i:end]

		placeholders := make([]string, len(chunk))
		values := make([]any, 0, len(chunk)*sqliteColumnsPerEntry)
		for j, e := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?)"
			values = append(values,
				e.ID,
				e.Timestamp.UTC().Format(time.RFC3339Nano),
				e.OwnerID,
				e.Provider,
				e.CredentialID,
				string(e.Action),
				e.Description,
			)
		}

		query := "INSERT OR IGNORE INTO activity_log (id, timestamp, owner_id, provider, credential_id, action, description) VALUES " +
			strings.Join(placeholders, ",")
		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert activity batch: %w", err)
		}
	}
	return nil
}

// Close is a no-op; the DB connection is managed by the storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
