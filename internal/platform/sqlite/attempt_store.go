package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/store"
)

const wordAttemptColumns = `id, server_id, child_id, client_attempt_id,
	word_text, attempted_at, first_try, correct, response_ms, sync_status`

// WordAttemptStore implements store.WordAttemptStore on sqlite.
type WordAttemptStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewWordAttemptStore creates the sqlite word-attempt store.
func NewWordAttemptStore(db store.DBTX, log *slog.Logger) *WordAttemptStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &WordAttemptStore{
		db:     db,
		logger: log.With(slog.String("component", "word_attempt_store")),
	}
}

var _ store.WordAttemptStore = (*WordAttemptStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *WordAttemptStore) WithTx(tx *sql.Tx) store.WordAttemptStore {
	return &WordAttemptStore{db: tx, logger: s.logger}
}

// Create implements store.WordAttemptStore.Create.
func (s *WordAttemptStore) Create(ctx context.Context, wa *domain.WordAttempt) error {
	if err := wa.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO word_attempts (` + wordAttemptColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		wa.ID.String(),
		nullString(wa.ServerID),
		wa.ChildID.String(),
		wa.ClientAttemptID.String(),
		wa.WordText,
		toMillis(wa.AttemptedAt),
		boolToInt(wa.FirstTry),
		boolToInt(wa.Correct),
		wa.ResponseMs,
		string(wa.SyncStatus),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: attempt %s", store.ErrDuplicate, wa.ClientAttemptID)
		}
		return err
	}
	return nil
}

// GetByClientAttemptID implements store.WordAttemptStore.GetByClientAttemptID.
func (s *WordAttemptStore) GetByClientAttemptID(ctx context.Context, childID, clientAttemptID uuid.UUID) (*domain.WordAttempt, error) {
	query := `
		SELECT ` + wordAttemptColumns + `
		FROM word_attempts
		WHERE child_id = ? AND client_attempt_id = ?
	`
	wa, err := scanWordAttempt(s.db.QueryRowContext(ctx, query, childID.String(), clientAttemptID.String()).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrWordAttemptNotFound
		}
		return nil, err
	}
	return wa, nil
}

// ListByWord implements store.WordAttemptStore.ListByWord.
func (s *WordAttemptStore) ListByWord(ctx context.Context, childID uuid.UUID, word string) ([]*domain.WordAttempt, error) {
	query := `
		SELECT ` + wordAttemptColumns + `
		FROM word_attempts
		WHERE child_id = ? AND word_text = ?
		ORDER BY attempted_at
	`
	return s.list(ctx, query, childID.String(), domain.NormalizeWord(word))
}

// ListByChild implements store.WordAttemptStore.ListByChild.
func (s *WordAttemptStore) ListByChild(ctx context.Context, childID uuid.UUID) ([]*domain.WordAttempt, error) {
	query := `
		SELECT ` + wordAttemptColumns + `
		FROM word_attempts
		WHERE child_id = ?
		ORDER BY attempted_at
	`
	return s.list(ctx, query, childID.String())
}

// ListPending implements store.WordAttemptStore.ListPending.
func (s *WordAttemptStore) ListPending(ctx context.Context) ([]*domain.WordAttempt, error) {
	query := `
		SELECT ` + wordAttemptColumns + `
		FROM word_attempts
		WHERE sync_status <> 'synced'
		ORDER BY attempted_at
	`
	return s.list(ctx, query)
}

// MarkSynced implements store.WordAttemptStore.MarkSynced.
func (s *WordAttemptStore) MarkSynced(ctx context.Context, id uuid.UUID, serverID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE word_attempts SET server_id = ?, sync_status = 'synced' WHERE id = ?`,
		nullString(serverID), id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrWordAttemptNotFound
	}
	return nil
}

// DeleteByChild implements store.WordAttemptStore.DeleteByChild.
func (s *WordAttemptStore) DeleteByChild(ctx context.Context, childID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM word_attempts WHERE child_id = ?`, childID.String())
	return err
}

func (s *WordAttemptStore) list(ctx context.Context, query string, args ...any) ([]*domain.WordAttempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.WordAttempt
	for rows.Next() {
		wa, err := scanWordAttempt(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, wa)
	}
	return out, rows.Err()
}

func scanWordAttempt(scan func(dest ...any) error) (*domain.WordAttempt, error) {
	var (
		wa                    domain.WordAttempt
		id, childID, clientID string
		status                string
		serverID              sql.NullString
		attemptedAt           int64
		firstTry, correct     int
	)
	err := scan(&id, &serverID, &childID, &clientID, &wa.WordText,
		&attemptedAt, &firstTry, &correct, &wa.ResponseMs, &status)
	if err != nil {
		return nil, err
	}

	if wa.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: bad row id %q", store.ErrInvalidEntity, id)
	}
	if wa.ChildID, err = uuid.Parse(childID); err != nil {
		return nil, fmt.Errorf("%w: bad child id %q", store.ErrInvalidEntity, childID)
	}
	if wa.ClientAttemptID, err = uuid.Parse(clientID); err != nil {
		return nil, fmt.Errorf("%w: bad client attempt id %q", store.ErrInvalidEntity, clientID)
	}
	wa.ServerID = serverID.String
	wa.AttemptedAt = fromMillis(attemptedAt)
	wa.FirstTry = firstTry != 0
	wa.Correct = correct != 0
	wa.SyncStatus = domain.SyncStatus(status)
	return &wa, nil
}
