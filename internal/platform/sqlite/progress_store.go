package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/store"
)

// LearningProgressStore implements store.LearningProgressStore on sqlite.
type LearningProgressStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewLearningProgressStore creates the sqlite learning-progress store.
func NewLearningProgressStore(db store.DBTX, log *slog.Logger) *LearningProgressStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &LearningProgressStore{
		db:     db,
		logger: log.With(slog.String("component", "learning_progress_store")),
	}
}

var _ store.LearningProgressStore = (*LearningProgressStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *LearningProgressStore) WithTx(tx *sql.Tx) store.LearningProgressStore {
	return &LearningProgressStore{db: tx, logger: s.logger}
}

const learningProgressColumns = `id, server_id, child_id, lifetime_points, milestone, updated_at, sync_status`

// Create implements store.LearningProgressStore.Create.
func (s *LearningProgressStore) Create(ctx context.Context, lp *domain.LearningProgress) error {
	if err := lp.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	query := `
		INSERT INTO learning_progress (` + learningProgressColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		lp.ID.String(),
		nullString(lp.ServerID),
		lp.ChildID.String(),
		lp.LifetimePoints,
		lp.Milestone,
		toMillis(lp.UpdatedAt),
		string(lp.SyncStatus),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: learning progress for child %s", store.ErrDuplicate, lp.ChildID)
		}
		return err
	}
	return nil
}

// Update implements store.LearningProgressStore.Update.
func (s *LearningProgressStore) Update(ctx context.Context, lp *domain.LearningProgress) error {
	if err := lp.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	query := `
		UPDATE learning_progress
		SET server_id = ?, lifetime_points = ?, milestone = ?, updated_at = ?, sync_status = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		nullString(lp.ServerID),
		lp.LifetimePoints,
		lp.Milestone,
		toMillis(lp.UpdatedAt),
		string(lp.SyncStatus),
		lp.ID.String(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrProgressNotFound
	}
	return nil
}

// GetByChild implements store.LearningProgressStore.GetByChild.
func (s *LearningProgressStore) GetByChild(ctx context.Context, childID uuid.UUID) (*domain.LearningProgress, error) {
	query := `SELECT ` + learningProgressColumns + ` FROM learning_progress WHERE child_id = ?`
	lp, err := scanLearningProgress(s.db.QueryRowContext(ctx, query, childID.String()).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProgressNotFound
		}
		return nil, err
	}
	return lp, nil
}

// ListPending implements store.LearningProgressStore.ListPending.
func (s *LearningProgressStore) ListPending(ctx context.Context) ([]*domain.LearningProgress, error) {
	query := `
		SELECT ` + learningProgressColumns + `
		FROM learning_progress
		WHERE sync_status <> 'synced'
		ORDER BY updated_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.LearningProgress
	for rows.Next() {
		lp, err := scanLearningProgress(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, lp)
	}
	return out, rows.Err()
}

// MarkSynced implements store.LearningProgressStore.MarkSynced. Rows modified
// since the push snapshot keep their pending status.
func (s *LearningProgressStore) MarkSynced(ctx context.Context, id uuid.UUID, serverID string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE learning_progress SET server_id = ?, sync_status = 'synced' WHERE id = ? AND updated_at = ?`,
		nullString(serverID), id.String(), toMillis(updatedAt))
	return err
}

// DeleteByChild implements store.LearningProgressStore.DeleteByChild.
func (s *LearningProgressStore) DeleteByChild(ctx context.Context, childID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM learning_progress WHERE child_id = ?`, childID.String())
	return err
}

func scanLearningProgress(scan func(dest ...any) error) (*domain.LearningProgress, error) {
	var (
		lp          domain.LearningProgress
		id, childID string
		status      string
		serverID    sql.NullString
		updatedAt   int64
	)
	err := scan(&id, &serverID, &childID, &lp.LifetimePoints, &lp.Milestone, &updatedAt, &status)
	if err != nil {
		return nil, err
	}
	if lp.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: bad row id %q", store.ErrInvalidEntity, id)
	}
	if lp.ChildID, err = uuid.Parse(childID); err != nil {
		return nil, fmt.Errorf("%w: bad child id %q", store.ErrInvalidEntity, childID)
	}
	lp.ServerID = serverID.String
	lp.UpdatedAt = fromMillis(updatedAt)
	lp.SyncStatus = domain.SyncStatus(status)
	return &lp, nil
}

// GradeProgressStore implements store.GradeProgressStore on sqlite.
type GradeProgressStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewGradeProgressStore creates the sqlite grade-progress store.
func NewGradeProgressStore(db store.DBTX, log *slog.Logger) *GradeProgressStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &GradeProgressStore{
		db:     db,
		logger: log.With(slog.String("component", "grade_progress_store")),
	}
}

var _ store.GradeProgressStore = (*GradeProgressStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *GradeProgressStore) WithTx(tx *sql.Tx) store.GradeProgressStore {
	return &GradeProgressStore{db: tx, logger: s.logger}
}

const gradeProgressColumns = `id, server_id, child_id, grade, words_completed, completed_at, updated_at, sync_status`

// Create implements store.GradeProgressStore.Create.
func (s *GradeProgressStore) Create(ctx context.Context, gp *domain.GradeProgress) error {
	if err := gp.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	query := `
		INSERT INTO grade_progress (` + gradeProgressColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		gp.ID.String(),
		nullString(gp.ServerID),
		gp.ChildID.String(),
		gp.Grade,
		gp.WordsCompleted,
		toNullMillis(gp.CompletedAt),
		toMillis(gp.UpdatedAt),
		string(gp.SyncStatus),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: grade %d for child %s", store.ErrDuplicate, gp.Grade, gp.ChildID)
		}
		return err
	}
	return nil
}

// Update implements store.GradeProgressStore.Update.
func (s *GradeProgressStore) Update(ctx context.Context, gp *domain.GradeProgress) error {
	if err := gp.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	query := `
		UPDATE grade_progress
		SET server_id = ?, words_completed = ?, completed_at = ?, updated_at = ?, sync_status = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		nullString(gp.ServerID),
		gp.WordsCompleted,
		toNullMillis(gp.CompletedAt),
		toMillis(gp.UpdatedAt),
		string(gp.SyncStatus),
		gp.ID.String(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrProgressNotFound
	}
	return nil
}

// GetByGrade implements store.GradeProgressStore.GetByGrade.
func (s *GradeProgressStore) GetByGrade(ctx context.Context, childID uuid.UUID, grade int) (*domain.GradeProgress, error) {
	query := `SELECT ` + gradeProgressColumns + ` FROM grade_progress WHERE child_id = ? AND grade = ?`
	gp, err := scanGradeProgress(s.db.QueryRowContext(ctx, query, childID.String(), grade).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProgressNotFound
		}
		return nil, err
	}
	return gp, nil
}

// ListByChild implements store.GradeProgressStore.ListByChild.
func (s *GradeProgressStore) ListByChild(ctx context.Context, childID uuid.UUID) ([]*domain.GradeProgress, error) {
	query := `SELECT ` + gradeProgressColumns + ` FROM grade_progress WHERE child_id = ? ORDER BY grade`
	return s.list(ctx, query, childID.String())
}

// ListPending implements store.GradeProgressStore.ListPending.
func (s *GradeProgressStore) ListPending(ctx context.Context) ([]*domain.GradeProgress, error) {
	query := `
		SELECT ` + gradeProgressColumns + `
		FROM grade_progress
		WHERE sync_status <> 'synced'
		ORDER BY updated_at
	`
	return s.list(ctx, query)
}

// MarkSynced implements store.GradeProgressStore.MarkSynced. Rows modified
// since the push snapshot keep their pending status.
func (s *GradeProgressStore) MarkSynced(ctx context.Context, id uuid.UUID, serverID string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE grade_progress SET server_id = ?, sync_status = 'synced' WHERE id = ? AND updated_at = ?`,
		nullString(serverID), id.String(), toMillis(updatedAt))
	return err
}

// DeleteByChild implements store.GradeProgressStore.DeleteByChild.
func (s *GradeProgressStore) DeleteByChild(ctx context.Context, childID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM grade_progress WHERE child_id = ?`, childID.String())
	return err
}

func (s *GradeProgressStore) list(ctx context.Context, query string, args ...any) ([]*domain.GradeProgress, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.GradeProgress
	for rows.Next() {
		gp, err := scanGradeProgress(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, gp)
	}
	return out, rows.Err()
}

func scanGradeProgress(scan func(dest ...any) error) (*domain.GradeProgress, error) {
	var (
		gp          domain.GradeProgress
		id, childID string
		status      string
		serverID    sql.NullString
		completedAt sql.NullInt64
		updatedAt   int64
	)
	err := scan(&id, &serverID, &childID, &gp.Grade, &gp.WordsCompleted, &completedAt, &updatedAt, &status)
	if err != nil {
		return nil, err
	}
	if gp.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: bad row id %q", store.ErrInvalidEntity, id)
	}
	if gp.ChildID, err = uuid.Parse(childID); err != nil {
		return nil, fmt.Errorf("%w: bad child id %q", store.ErrInvalidEntity, childID)
	}
	gp.ServerID = serverID.String
	gp.CompletedAt = fromNullMillis(completedAt)
	gp.UpdatedAt = fromMillis(updatedAt)
	gp.SyncStatus = domain.SyncStatus(status)
	return &gp, nil
}

// RotationStore implements store.RotationStore on sqlite.
type RotationStore struct {
	db store.DBTX
}

// NewRotationStore creates the sqlite rotation-state store.
func NewRotationStore(db store.DBTX) *RotationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &RotationStore{db: db}
}

var _ store.RotationStore = (*RotationStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *RotationStore) WithTx(tx *sql.Tx) store.RotationStore {
	return &RotationStore{db: tx}
}

// IntroducedOn implements store.RotationStore.IntroducedOn.
func (s *RotationStore) IntroducedOn(ctx context.Context, childID uuid.UUID, day string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT introduced_count FROM rotation_state WHERE child_id = ? AND day = ?`,
		childID.String(), day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AddIntroduced implements store.RotationStore.AddIntroduced.
func (s *RotationStore) AddIntroduced(ctx context.Context, childID uuid.UUID, day string, n int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rotation_state (child_id, day, introduced_count)
		VALUES (?, ?, ?)
		ON CONFLICT (child_id, day) DO UPDATE SET introduced_count = introduced_count + excluded.introduced_count
	`, childID.String(), day, n)
	return err
}
