// Package keystore persists provider credentials. Secrets are encrypted
// at rest; rotation state (selection and quarantine) lives next to them
// so the failover controller and the management API see the same rows.
package keystore

import (
	"context"
	"fmt"

	"modelgate/internal/core"
	"modelgate/internal/storage"
)

// Store is the full credential store: the rotation interface consumed
// by the failover controller plus the management operations operators
// and tests seed credentials with.
type Store interface {
	core.CredentialStore

	Create(ctx context.Context, cred *core.Credential) error
	Get(ctx context.Context, id string) (*core.Credential, error)
	List(ctx context.Context, owner string) ([]*core.Credential, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// New creates a Store on top of the shared storage connection.
func New(st storage.Storage, cipher *Cipher) (Store, error) {
	switch st.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(st.SQLiteDB(), cipher)
	case storage.TypePostgreSQL:
		return NewPostgresStore(st.PostgreSQLPool(), cipher)
	default:
		return nil, fmt.Errorf("unsupported storage type for keystore: %s", st.Type())
	}
}
