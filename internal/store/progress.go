package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/wordnest/wordnest/internal/domain"
)

// StatisticsStore persists per-(child, mode) statistics buckets.
type StatisticsStore interface {
	Create(ctx context.Context, st *domain.Statistics) error
	Update(ctx context.Context, st *domain.Statistics) error
	GetByMode(ctx context.Context, childID uuid.UUID, mode domain.GameMode) (*domain.Statistics, error)
	ListByChild(ctx context.Context, childID uuid.UUID) ([]*domain.Statistics, error)
	ListPending(ctx context.Context) ([]*domain.Statistics, error)

	// MarkSynced stamps a pushed row synced, but only while the row's
	// updated_at still equals updatedAt; later local changes keep it pending.
	MarkSynced(ctx context.Context, id uuid.UUID, serverID string, updatedAt time.Time) error
	DeleteByChild(ctx context.Context, childID uuid.UUID) error
	WithTx(tx *sql.Tx) StatisticsStore
}

// LearningProgressStore persists the single lifetime-progress row per child.
type LearningProgressStore interface {
	Create(ctx context.Context, lp *domain.LearningProgress) error
	Update(ctx context.Context, lp *domain.LearningProgress) error
	GetByChild(ctx context.Context, childID uuid.UUID) (*domain.LearningProgress, error)
	ListPending(ctx context.Context) ([]*domain.LearningProgress, error)
	MarkSynced(ctx context.Context, id uuid.UUID, serverID string, updatedAt time.Time) error
	DeleteByChild(ctx context.Context, childID uuid.UUID) error
	WithTx(tx *sql.Tx) LearningProgressStore
}

// GradeProgressStore persists per-(child, grade) progress rows.
type GradeProgressStore interface {
	Create(ctx context.Context, gp *domain.GradeProgress) error
	Update(ctx context.Context, gp *domain.GradeProgress) error
	GetByGrade(ctx context.Context, childID uuid.UUID, grade int) (*domain.GradeProgress, error)
	ListByChild(ctx context.Context, childID uuid.UUID) ([]*domain.GradeProgress, error)
	ListPending(ctx context.Context) ([]*domain.GradeProgress, error)
	MarkSynced(ctx context.Context, id uuid.UUID, serverID string, updatedAt time.Time) error
	DeleteByChild(ctx context.Context, childID uuid.UUID) error
	WithTx(tx *sql.Tx) GradeProgressStore
}

// RotationStore persists the local-only daily introduction counter. The
// counter is device policy state, never pushed to the backend.
type RotationStore interface {
	// IntroducedOn returns how many words were auto-introduced for the child
	// on the given day (formatted YYYY-MM-DD).
	IntroducedOn(ctx context.Context, childID uuid.UUID, day string) (int, error)

	// AddIntroduced bumps the counter for the day.
	AddIntroduced(ctx context.Context, childID uuid.UUID, day string, n int) error

	WithTx(tx *sql.Tx) RotationStore
}
