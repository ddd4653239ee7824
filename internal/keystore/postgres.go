package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"modelgate/internal/core"
)

// PostgresStore implements Store for PostgreSQL databases.
type PostgresStore struct {
	pool   *pgxpool.Pool
	cipher *Cipher
	now    func() time.Time
}

// NewPostgresStore creates a PostgreSQL credential store, creating the
// credentials table if it doesn't exist.
func NewPostgresStore(pool *pgxpool.Pool, cipher *Cipher) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("cipher is required")
	}

	ctx := context.Background()
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			name TEXT,
			secret_enc TEXT NOT NULL,
			is_selected BOOLEAN NOT NULL DEFAULT FALSE,
			disabled_until TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials table: %w", err)
	}
	if _, err := pool.Exec(ctx,
		"CREATE INDEX IF NOT EXISTS idx_credentials_owner_provider ON credentials(owner_id, provider)",
	); err != nil {
		return nil, fmt.Errorf("failed to create credentials index: %w", err)
	}

	return &PostgresStore{pool: pool, cipher: cipher, now: time.Now}, nil
}

const pgCredColumns = "id, owner_id, provider, name, secret_enc, is_selected, disabled_until, created_at"

func (s *PostgresStore) scan(row pgx.Row) (*core.Credential, error) {
	var (
		cred      core.Credential
		name      *string
		secretEnc string
	)
	err := row.Scan(&cred.ID, &cred.OwnerID, &cred.Provider, &name, &secretEnc,
		&cred.IsSelected, &cred.DisabledUntil, &cred.CreatedAt)
	if err != nil {
		return nil, err
	}
	if name != nil {
		cred.Name = *name
	}
	secret, err := s.cipher.Decrypt(secretEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential %s: %w", cred.ID, err)
	}
	cred.Secret = secret
	return &cred, nil
}

// Create inserts a credential, encrypting its secret.
func (s *PostgresStore) Create(ctx context.Context, cred *core.Credential) error {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO credentials (id, owner_id, provider, name, secret_enc, is_selected, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		cred.ID, cred.OwnerID, cred.Provider, cred.Name, secretEnc, cred.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// Get returns one credential by id, or nil when absent.
func (s *PostgresStore) Get(ctx context.Context, id string) (*core.Credential, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+pgCredColumns+" FROM credentials WHERE id = $1", id)
	cred, err := s.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cred, err
}

// List returns every credential for an owner, ordered by creation time.
func (s *PostgresStore) List(ctx context.Context, owner string) ([]*core.Credential, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+pgCredColumns+" FROM credentials WHERE owner_id = $1 ORDER BY created_at ASC", owner)
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
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM credentials WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// GetSelected returns the selected credential for (owner, provider) when
// it is still eligible, or nil when there is no usable selection.
func (s *PostgresStore) GetSelected(ctx context.Context, owner, provider string) (*core.Credential, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+pgCredColumns+" FROM credentials WHERE owner_id = $1 AND provider = $2 AND is_selected",
		owner, provider)
	cred, err := s.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStore) ListCandidates(ctx context.Context, owner, provider string) ([]*core.Credential, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+pgCredColumns+` FROM credentials
		 WHERE owner_id = $1 AND provider = $2
		   AND (disabled_until IS NULL OR disabled_until <= $3)
		 ORDER BY created_at ASC`,
		owner, provider, s.now().UTC())
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
func (s *PostgresStore) Select(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin select transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE credentials SET is_selected = FALSE
		WHERE (owner_id, provider) IN (SELECT owner_id, provider FROM credentials WHERE id = $1)`,
		id)
	if err != nil {
		return fmt.Errorf("clear previous selection: %w", err)
	}
	tag, err := tx.Exec(ctx, "UPDATE credentials SET is_selected = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("select credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credential %s not found", id)
	}
	return tx.Commit(ctx)
}

// Unselect clears the selection flag on id.
func (s *PostgresStore) Unselect(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, "UPDATE credentials SET is_selected = FALSE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("unselect credential: %w", err)
	}
	return nil
}

// Quarantine disables id until the given time.
func (s *PostgresStore) Quarantine(ctx context.Context, id string, until time.Time) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE credentials SET disabled_until = $1 WHERE id = $2", until.UTC(), id)
	if err != nil {
		return fmt.Errorf("quarantine credential: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is managed by the storage layer.
func (s *PostgresStore) Close() error {
	return nil
}
