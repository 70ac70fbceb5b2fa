package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/wordnest/wordnest/internal/domain"
)

// GameSessionStore persists the append-only played-round log. Rows are never
// updated semantically after creation; the only post-insert mutation is server
// ID attachment during sync.
type GameSessionStore interface {
	Create(ctx context.Context, gs *domain.GameSession) error

	// GetByClientSessionID looks a session up by its business key.
	GetByClientSessionID(ctx context.Context, childID, clientSessionID uuid.UUID) (*domain.GameSession, error)

	// ListByChild returns sessions played in [from, to), newest first.
	// Zero times disable the respective bound.
	ListByChild(ctx context.Context, childID uuid.UUID, from, to time.Time) ([]*domain.GameSession, error)

	ListPending(ctx context.Context) ([]*domain.GameSession, error)
	MarkSynced(ctx context.Context, id uuid.UUID, serverID string) error
	DeleteByChild(ctx context.Context, childID uuid.UUID) error
	WithTx(tx *sql.Tx) GameSessionStore
}

// CalibrationStore persists append-only calibration results with the same
// insert/dedup discipline as game sessions.
type CalibrationStore interface {
	Create(ctx context.Context, cr *domain.CalibrationResult) error
	GetByClientCalibrationID(ctx context.Context, childID, clientCalibrationID uuid.UUID) (*domain.CalibrationResult, error)
	ListByChild(ctx context.Context, childID uuid.UUID) ([]*domain.CalibrationResult, error)
	ListPending(ctx context.Context) ([]*domain.CalibrationResult, error)
	MarkSynced(ctx context.Context, id uuid.UUID, serverID string) error
	DeleteByChild(ctx context.Context, childID uuid.UUID) error
	WithTx(tx *sql.Tx) CalibrationStore
}

// WordAttemptStore persists the normalized insert-only attempt log, keyed by
// (child, client attempt ID). Replaying a word's entries in order must
// reproduce its WordProgress record.
type WordAttemptStore interface {
	Create(ctx context.Context, wa *domain.WordAttempt) error
	GetByClientAttemptID(ctx context.Context, childID, clientAttemptID uuid.UUID) (*domain.WordAttempt, error)

	// ListByWord returns a word's attempts oldest first, for replay.
	ListByWord(ctx context.Context, childID uuid.UUID, word string) ([]*domain.WordAttempt, error)

	// ListByChild returns all attempts for a child, oldest first.
	ListByChild(ctx context.Context, childID uuid.UUID) ([]*domain.WordAttempt, error)

	ListPending(ctx context.Context) ([]*domain.WordAttempt, error)
	MarkSynced(ctx context.Context, id uuid.UUID, serverID string) error
	DeleteByChild(ctx context.Context, childID uuid.UUID) error
	WithTx(tx *sql.Tx) WordAttemptStore
}
