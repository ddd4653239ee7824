package keystore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"modelgate/internal/core"
)

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db     *sql.DB
	cipher *Cipher
	now    func() time.Time
}

// NewSQLiteStore creates a SQLite credential store, creating the
// credentials table if it doesn't exist.
func NewSQLiteStore(db *sql.DB, cipher *Cipher) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("cipher is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			name TEXT,
			secret_enc TEXT NOT NULL,
			is_selected INTEGER NOT NULL DEFAULT 0,
			disabled_until DATETIME,
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials table: %w", err)
	}
	if _, err := db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_credentials_owner_provider ON credentials(owner_id, provider)",
	); err != nil {
		return nil, fmt.Errorf("failed to create credentials index: %w", err)
	}

	return &SQLiteStore{db: db, cipher: cipher, now: time.Now}, nil
}

const sqliteCredColumns = "id, owner_id, provider, name, secret_enc, is_selected, disabled_until, created_at"

func (s *SQLiteStore) scan(row interface{ Scan(...any) error }) (*core.Credential, error) {
	var (
		cred          core.Credential
		name          sql.NullString
		secretEnc     string
		selectedInt   int
		disabledUntil sql.NullString
		createdAt     string
	)
	err := row.Scan(&cred.ID, &cred.OwnerID, &cred.Provider, &name, &secretEnc, &selectedInt, &disabledUntil, &createdAt)
	if err != nil {
		return nil, err
	}
	cred.Name = name.String
	cred.IsSelected = selectedInt != 0

	secret, err := s.cipher.Decrypt(secretEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential %s: %w", cred.ID, err)
	}
	cred.Secret = secret

	if disabledUntil.Valid && disabledUntil.String != "" {
		t, err := time.Parse(time.RFC3339Nano, disabledUntil.String)
		if err != nil {
			return nil, fmt.Errorf("parse disabled_until for %s: %w", cred.ID, err)
		}
		cred.DisabledUntil = &t
	}
	cred.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", cred.ID, err)
	}
	return &cred, nil
}

// Create inserts a credential, encrypting its secret. A missing ID or
// CreatedAt is filled in.
func (s *SQLiteStore) Create(ctx context.Context, cred *core.Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = s.now()
	}
	secretEnc, err := s.cipher.Encrypt(cred.Secret)
	if err != nil {
		return fmt.Errorf("encrypt credential secret: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO credentials (id, owner_id, provider, name, secret_enc, is_selected, created_at) VALUES (?, ?, ?, ?, ?, 0, ?)",
		cred.ID, cred.OwnerID, cred.Provider, cred.Name, secretEnc,
		cred.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// Get returns one credential by id, or nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sqliteCredColumns+" FROM credentials WHERE id = ?", id)
	cred, err := s.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return cred, err
}

// List returns every credential for an owner, ordered by creation time.
func (s *SQLiteStore) List(ctx context.Context, owner string) ([]*core.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteCredColumns+" FROM credentials WHERE owner_id = ? ORDER BY created_at ASC", owner)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*core.Credential
	for rows.Next() {
		cred, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// Delete removes a credential.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// GetSelected returns the selected credential for (owner, provider) when
// it is still eligible, or nil when there is no usable selection.
func (s *SQLiteStore) GetSelected(ctx context.Context, owner, provider string) (*core.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sqliteCredColumns+" FROM credentials WHERE owner_id = ? AND provider = ? AND is_selected = 1",
		owner, provider)
	cred, err := s.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !cred.Available(s.now()) {
		return nil, nil
	}
	return cred, nil
}

// ListCandidates returns the eligible credentials for (owner, provider)
// in creation order, skipping quarantined ones.
func (s *SQLiteStore) ListCandidates(ctx context.Context, owner, provider string) ([]*core.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteCredColumns+` FROM credentials
		 WHERE owner_id = ? AND provider = ?
		   AND (disabled_until IS NULL OR disabled_until <= ?)
		 ORDER BY created_at ASC`,
		owner, provider, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("list credential candidates: %w", err)
	}
	defer rows.Close()

	var creds []*core.Credential
	for rows.Next() {
		cred, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// Select marks id as the selected credential for its (owner, provider)
// pair, clearing any previous selection in the same transaction.
func (s *SQLiteStore) Select(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin select transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE credentials SET is_selected = 0
		WHERE (owner_id, provider) IN (SELECT owner_id, provider FROM credentials WHERE id = ?)`,
		id)
	if err != nil {
		return fmt.Errorf("clear previous selection: %w", err)
	}
	res, err := tx.ExecContext(ctx, "UPDATE credentials SET is_selected = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("select credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("credential %s not found", id)
	}
	return tx.Commit()
}

// Unselect clears the selection flag on id.
func (s *SQLiteStore) Unselect(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE credentials SET is_selected = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("unselect credential: %w", err)
	}
	return nil
}

// Quarantine disables id until the given time.
func (s *SQLiteStore) Quarantine(ctx context.Context, id string, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE credentials SET disabled_until = ? WHERE id = ?",
		until.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("quarantine credential: %w", err)
	}
	return nil
}

// Close is a no-op; the DB connection is managed by the storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
