// Package activity records credential-lifecycle events (selection,
// rotation, exhaustion) without blocking the request path. Entries are
// buffered in memory and flushed to storage in batches.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"modelgate/internal/core"
	"modelgate/internal/storage"
)

// Entry is one recorded credential event.
type Entry struct {
	ID           string
	Timestamp    time.Time
	OwnerID      string
	Provider     string
	CredentialID string
	Action       core.ActivityAction
	Description  string
}

// EntryStore persists batches of entries.
type EntryStore interface {
	WriteBatch(ctx context.Context, entries []*Entry) error
	Close() error
}

// Config controls the logger's buffering behavior.
type Config struct {
	// BufferSize is the queue capacity (default 1000). Events arriving
	// while the queue is full are dropped.
	BufferSize int
	// FlushInterval is how often buffered entries are written even when
	// the batch is not full (default 5s).
	FlushInterval time.Duration
}

// NewStore creates an EntryStore on the shared storage connection.
func NewStore(st storage.Storage) (EntryStore, error) {
	switch st.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(st.SQLiteDB())
	case storage.TypePostgreSQL:
		return NewPostgresStore(st.PostgreSQLPool())
	default:
		return nil, fmt.Errorf("unsupported storage type for activity log: %s", st.Type())
	}
}

func newEntry(owner, provider, credentialID string, action core.ActivityAction, description string) *Entry {
	return &Entry{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		OwnerID:      owner,
		Provider:     provider,
		CredentialID: credentialID,
		Action:       action,
		Description:  description,
	}
}
