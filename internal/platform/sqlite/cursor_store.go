package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wordnest/wordnest/internal/store"
)

// CursorStore implements store.CursorStore on sqlite. Cursors are keyed
// strictly by child ID; there is no shared or default row.
type CursorStore struct {
	db store.DBTX
}

// NewCursorStore creates the sqlite sync-cursor store.
func NewCursorStore(db store.DBTX) *CursorStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &CursorStore{db: db}
}

var _ store.CursorStore = (*CursorStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *CursorStore) WithTx(tx *sql.Tx) store.CursorStore {
	return &CursorStore{db: tx}
}

// Get implements store.CursorStore.Get.
func (s *CursorStore) Get(ctx context.Context, childID uuid.UUID) (*time.Time, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_pulled_at FROM sync_cursors WHERE child_id = ?`,
		childID.String()).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		// Never synced: the caller must pull everything.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := fromMillis(ms)
	return &t, nil
}

// Set implements store.CursorStore.Set.
func (s *CursorStore) Set(ctx context.Context, childID uuid.UUID, lastPulledAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (child_id, last_pulled_at)
		VALUES (?, ?)
		ON CONFLICT (child_id) DO UPDATE SET last_pulled_at = excluded.last_pulled_at
	`, childID.String(), toMillis(lastPulledAt))
	return err
}

// Delete implements store.CursorStore.Delete.
func (s *CursorStore) Delete(ctx context.Context, childID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_cursors WHERE child_id = ?`, childID.String())
	return err
}

// CatalogSyncStore implements store.CatalogSyncStore on sqlite.
type CatalogSyncStore struct {
	db store.DBTX
}

// NewCatalogSyncStore creates the sqlite catalog-sync-state store.
func NewCatalogSyncStore(db store.DBTX) *CatalogSyncStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &CatalogSyncStore{db: db}
}

var _ store.CatalogSyncStore = (*CatalogSyncStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *CatalogSyncStore) WithTx(tx *sql.Tx) store.CatalogSyncStore {
	return &CatalogSyncStore{db: tx}
}

// Get implements store.CatalogSyncStore.Get.
func (s *CatalogSyncStore) Get(ctx context.Context, parentID string) (*store.CatalogSyncState, error) {
	var (
		synced, attempted sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_synced_at, last_attempt_at FROM catalog_sync WHERE parent_id = ?`,
		parentID).Scan(&synced, &attempted)
	if errors.Is(err, sql.ErrNoRows) {
		return &store.CatalogSyncState{ParentID: parentID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &store.CatalogSyncState{
		ParentID:      parentID,
		LastSyncedAt:  fromNullMillis(synced),
		LastAttemptAt: fromNullMillis(attempted),
	}, nil
}

// Set implements store.CatalogSyncStore.Set.
func (s *CatalogSyncStore) Set(ctx context.Context, state *store.CatalogSyncState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_sync (parent_id, last_synced_at, last_attempt_at)
		VALUES (?, ?, ?)
		ON CONFLICT (parent_id) DO UPDATE SET
			last_synced_at = excluded.last_synced_at,
			last_attempt_at = excluded.last_attempt_at
	`, state.ParentID, toNullMillis(state.LastSyncedAt), toNullMillis(state.LastAttemptAt))
	return err
}
