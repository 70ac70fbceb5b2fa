package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/wordnest/wordnest/internal/domain"
)

// CatalogStore caches the read-only word catalog. Unlike the synced entities,
// catalog rows are keyed by server ID: the catalog is pull-only, matched by
// server ID, and the server reports deletions explicitly.
type CatalogStore interface {
	// UpsertBatch inserts or refreshes catalog rows by server ID.
	UpsertBatch(ctx context.Context, words []*domain.CatalogWord) error

	// DeleteByServerIDs applies server-reported deletions.
	DeleteByServerIDs(ctx context.Context, serverIDs []string) error

	GetByServerID(ctx context.Context, serverID string) (*domain.CatalogWord, error)

	// ListByGrade returns cached words for a grade, custom words included.
	ListByGrade(ctx context.Context, grade int) ([]*domain.CatalogWord, error)

	WithTx(tx *sql.Tx) CatalogStore
}

// CursorStore persists per-child sync cursors. A cursor is never defaulted or
// shared across children; a missing cursor means "pull everything".
type CursorStore interface {
	// Get returns the child's last-pull timestamp, or nil when the child has
	// never synced.
	Get(ctx context.Context, childID uuid.UUID) (*time.Time, error)

	// Set records a successful pull boundary.
	Set(ctx context.Context, childID uuid.UUID, lastPulledAt time.Time) error

	// Delete drops the cursor, forcing the next round to pull everything.
	Delete(ctx context.Context, childID uuid.UUID) error

	WithTx(tx *sql.Tx) CursorStore
}

// CatalogSyncState tracks the client-side catalog refresh schedule per parent.
type CatalogSyncState struct {
	ParentID      string
	LastSyncedAt  *time.Time
	LastAttemptAt *time.Time
}

// CatalogSyncStore persists catalog refresh state keyed by parent account.
type CatalogSyncStore interface {
	Get(ctx context.Context, parentID string) (*CatalogSyncState, error)
	Set(ctx context.Context, state *CatalogSyncState) error
	WithTx(tx *sql.Tx) CatalogSyncStore
}
