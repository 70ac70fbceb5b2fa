package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/platform/logger"
	"github.com/wordnest/wordnest/internal/store"
)

const wordProgressColumns = `id, server_id, child_id, word_text, level, streak,
	times_used, times_correct, last_attempt_at, next_review_at, introduced_at,
	active, archived_at, definition, example, attempt_history, updated_at,
	sync_status`

// WordProgressStore implements store.WordProgressStore on sqlite.
type WordProgressStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewWordProgressStore creates the sqlite word-progress store.
// If logger is nil, a default logger will be used.
func NewWordProgressStore(db store.DBTX, log *slog.Logger) *WordProgressStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &WordProgressStore{
		db:     db,
		logger: log.With(slog.String("component", "word_progress_store")),
	}
}

var _ store.WordProgressStore = (*WordProgressStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *WordProgressStore) WithTx(tx *sql.Tx) store.WordProgressStore {
	return &WordProgressStore{db: tx, logger: s.logger}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Create implements store.WordProgressStore.Create.
func (s *WordProgressStore) Create(ctx context.Context, wp *domain.WordProgress) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := wp.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	history, err := marshalJSON(wp.AttemptHistory)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO word_progress (` + wordProgressColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		wp.ID.String(),
		nullString(wp.ServerID),
		wp.ChildID.String(),
		wp.WordText,
		wp.Level,
		wp.Streak,
		wp.TimesUsed,
		wp.TimesCorrect,
		toNullMillis(wp.LastAttemptAt),
		toMillis(wp.NextReviewAt),
		toNullMillis(wp.IntroducedAt),
		boolToInt(wp.Active),
		toNullMillis(wp.ArchivedAt),
		nullString(wp.Definition),
		nullString(wp.Example),
		history,
		toMillis(wp.UpdatedAt),
		string(wp.SyncStatus),
	)
	if err != nil {
		if isUniqueViolation(err) {
			log.Warn("duplicate active word progress",
				slog.String("child_id", wp.ChildID.String()),
				slog.String("word", wp.WordText))
			return fmt.Errorf("%w: word %q for child %s", store.ErrDuplicate, wp.WordText, wp.ChildID)
		}
		log.Error("failed to create word progress",
			slog.String("error", err.Error()),
			slog.String("word", wp.WordText))
		return err
	}
	return nil
}

// Update implements store.WordProgressStore.Update.
func (s *WordProgressStore) Update(ctx context.Context, wp *domain.WordProgress) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := wp.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	history, err := marshalJSON(wp.AttemptHistory)
	if err != nil {
		return err
	}

	query := `
		UPDATE word_progress
		SET server_id = ?, word_text = ?, level = ?, streak = ?, times_used = ?,
		    times_correct = ?, last_attempt_at = ?, next_review_at = ?,
		    introduced_at = ?, active = ?, archived_at = ?, definition = ?,
		    example = ?, attempt_history = ?, updated_at = ?, sync_status = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		nullString(wp.ServerID),
		wp.WordText,
		wp.Level,
		wp.Streak,
		wp.TimesUsed,
		wp.TimesCorrect,
		toNullMillis(wp.LastAttemptAt),
		toMillis(wp.NextReviewAt),
		toNullMillis(wp.IntroducedAt),
		boolToInt(wp.Active),
		toNullMillis(wp.ArchivedAt),
		nullString(wp.Definition),
		nullString(wp.Example),
		history,
		toMillis(wp.UpdatedAt),
		string(wp.SyncStatus),
		wp.ID.String(),
	)
	if err != nil {
		log.Error("failed to update word progress",
			slog.String("error", err.Error()),
			slog.String("id", wp.ID.String()))
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrWordProgressNotFound
	}
	return nil
}

// GetByID implements store.WordProgressStore.GetByID.
func (s *WordProgressStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.WordProgress, error) {
	query := `SELECT ` + wordProgressColumns + ` FROM word_progress WHERE id = ?`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id.String()))
}

// GetByWord implements store.WordProgressStore.GetByWord.
func (s *WordProgressStore) GetByWord(ctx context.Context, childID uuid.UUID, word string) (*domain.WordProgress, error) {
	query := `
		SELECT ` + wordProgressColumns + `
		FROM word_progress
		WHERE child_id = ? AND word_text = ? AND active = 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, childID.String(), domain.NormalizeWord(word)))
}

// GetByWordIncludingArchived implements
// store.WordProgressStore.GetByWordIncludingArchived. Prefers the active row
// should an archived duplicate ever exist alongside it.
func (s *WordProgressStore) GetByWordIncludingArchived(ctx context.Context, childID uuid.UUID, word string) (*domain.WordProgress, error) {
	query := `
		SELECT ` + wordProgressColumns + `
		FROM word_progress
		WHERE child_id = ? AND word_text = ?
		ORDER BY active DESC, updated_at DESC
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, childID.String(), domain.NormalizeWord(word)))
}

// ListByChild implements store.WordProgressStore.ListByChild.
func (s *WordProgressStore) ListByChild(ctx context.Context, childID uuid.UUID) ([]*domain.WordProgress, error) {
	query := `
		SELECT ` + wordProgressColumns + `
		FROM word_progress
		WHERE child_id = ?
		ORDER BY word_text
	`
	return s.list(ctx, query, childID.String())
}

// ListDue implements store.WordProgressStore.ListDue.
func (s *WordProgressStore) ListDue(ctx context.Context, childID uuid.UUID, now time.Time, limit int) ([]*domain.WordProgress, error) {
	query := `
		SELECT ` + wordProgressColumns + `
		FROM word_progress
		WHERE child_id = ? AND active = 1 AND introduced_at IS NOT NULL
		  AND next_review_at <= ?
		ORDER BY next_review_at
		LIMIT ?
	`
	return s.list(ctx, query, childID.String(), toMillis(now), limit)
}

// ListAvailable implements store.WordProgressStore.ListAvailable.
func (s *WordProgressStore) ListAvailable(ctx context.Context, childID uuid.UUID, limit int) ([]*domain.WordProgress, error) {
	query := `
		SELECT ` + wordProgressColumns + `
		FROM word_progress
		WHERE child_id = ? AND active = 1 AND introduced_at IS NULL
		ORDER BY word_text
		LIMIT ?
	`
	return s.list(ctx, query, childID.String(), limit)
}

// ListPending implements store.WordProgressStore.ListPending.
func (s *WordProgressStore) ListPending(ctx context.Context) ([]*domain.WordProgress, error) {
	query := `
		SELECT ` + wordProgressColumns + `
		FROM word_progress
		WHERE sync_status <> 'synced'
		ORDER BY updated_at
	`
	return s.list(ctx, query)
}

// MarkSynced implements store.WordProgressStore.MarkSynced. A row whose
// updated_at moved on since the push snapshot was taken keeps its pending
// status untouched.
func (s *WordProgressStore) MarkSynced(ctx context.Context, id uuid.UUID, serverID string, updatedAt time.Time) error {
	query := `
		UPDATE word_progress SET server_id = ?, sync_status = 'synced'
		WHERE id = ? AND updated_at = ?
	`
	_, err := s.db.ExecContext(ctx, query, nullString(serverID), id.String(), toMillis(updatedAt))
	return err
}

// DeleteByChild implements store.WordProgressStore.DeleteByChild.
func (s *WordProgressStore) DeleteByChild(ctx context.Context, childID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM word_progress WHERE child_id = ?`, childID.String())
	return err
}

func (s *WordProgressStore) list(ctx context.Context, query string, args ...any) ([]*domain.WordProgress, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.WordProgress
	for rows.Next() {
		wp, err := scanWordProgress(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, wp)
	}
	return out, rows.Err()
}

func (s *WordProgressStore) scanOne(row *sql.Row) (*domain.WordProgress, error) {
	wp, err := scanWordProgress(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrWordProgressNotFound
		}
		return nil, err
	}
	return wp, nil
}

func scanWordProgress(scan func(dest ...any) error) (*domain.WordProgress, error) {
	var (
		wp                                domain.WordProgress
		id, childID, syncStatus           string
		serverID, definition, example     sql.NullString
		lastAttempt, introduced, archived sql.NullInt64
		nextReview, updatedAt             int64
		active                            int
		history                           sql.NullString
	)
	err := scan(
		&id, &serverID, &childID, &wp.WordText, &wp.Level, &wp.Streak,
		&wp.TimesUsed, &wp.TimesCorrect, &lastAttempt, &nextReview, &introduced,
		&active, &archived, &definition, &example, &history, &updatedAt,
		&syncStatus,
	)
	if err != nil {
		return nil, err
	}

	if wp.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: bad row id %q", store.ErrInvalidEntity, id)
	}
	if wp.ChildID, err = uuid.Parse(childID); err != nil {
		return nil, fmt.Errorf("%w: bad child id %q", store.ErrInvalidEntity, childID)
	}
	wp.ServerID = serverID.String
	wp.LastAttemptAt = fromNullMillis(lastAttempt)
	wp.NextReviewAt = fromMillis(nextReview)
	wp.IntroducedAt = fromNullMillis(introduced)
	wp.Active = active != 0
	wp.ArchivedAt = fromNullMillis(archived)
	wp.Definition = definition.String
	wp.Example = example.String
	wp.UpdatedAt = fromMillis(updatedAt)
	wp.SyncStatus = domain.SyncStatus(syncStatus)
	if err := unmarshalJSON(history, &wp.AttemptHistory); err != nil {
		return nil, err
	}
	return &wp, nil
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
