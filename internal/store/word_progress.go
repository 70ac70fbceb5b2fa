package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/wordnest/wordnest/internal/domain"
)

// WordProgressStore defines the interface for word-progress persistence.
//
// Multi-row writes (introducing a batch, applying a pulled changeset) MUST run
// within a transaction: obtain a transactional store via WithTx inside
// store.RunInTransaction.
type WordProgressStore interface {
	// Create saves a new row. Returns ErrDuplicate when an active row for the
	// same (child, word) already exists.
	Create(ctx context.Context, wp *domain.WordProgress) error

	// Update replaces an existing row by local ID.
	// Returns ErrWordProgressNotFound when the row does not exist.
	Update(ctx context.Context, wp *domain.WordProgress) error

	// GetByID retrieves a row by its local ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WordProgress, error)

	// GetByWord retrieves the active row for (child, normalized word).
	GetByWord(ctx context.Context, childID uuid.UUID, word string) (*domain.WordProgress, error)

	// GetByWordIncludingArchived retrieves the row for (child, normalized
	// word) regardless of archival. The archive/unarchive and re-add paths
	// need this; gameplay reads stay on GetByWord.
	GetByWordIncludingArchived(ctx context.Context, childID uuid.UUID, word string) (*domain.WordProgress, error)

	// ListByChild returns all rows for a child, archived included.
	ListByChild(ctx context.Context, childID uuid.UUID) ([]*domain.WordProgress, error)

	// ListDue returns active, introduced words due at the given time, oldest
	// review date first, capped at limit.
	ListDue(ctx context.Context, childID uuid.UUID, now time.Time, limit int) ([]*domain.WordProgress, error)

	// ListAvailable returns active words not yet introduced, capped at limit.
	ListAvailable(ctx context.Context, childID uuid.UUID, limit int) ([]*domain.WordProgress, error)

	// ListPending returns rows with unpushed local changes across all children.
	ListPending(ctx context.Context) ([]*domain.WordProgress, error)

	// MarkSynced records a successful push: the row gains its server ID and
	// leaves the pending set. The stamp only lands when the row's updated_at
	// still equals updatedAt; a row modified after it was collected for the
	// push stays pending so the newer change reaches the server.
	MarkSynced(ctx context.Context, id uuid.UUID, serverID string, updatedAt time.Time) error

	// DeleteByChild removes every row for a child. Used only by the
	// server-reset wipe inside the sync apply transaction.
	DeleteByChild(ctx context.Context, childID uuid.UUID) error

	// WithTx returns a store bound to the given transaction.
	WithTx(tx *sql.Tx) WordProgressStore
}
