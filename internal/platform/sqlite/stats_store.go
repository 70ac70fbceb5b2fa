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

const statisticsColumns = `id, server_id, child_id, mode, total_games_played,
	total_words_played, total_correct, current_streak, best_streak,
	gold_trophies, silver_trophies, bronze_trophies, word_accuracy,
	first_correct_at, personal_bests, error_patterns, updated_at, sync_status`

// StatisticsStore implements store.StatisticsStore on sqlite.
type StatisticsStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewStatisticsStore creates the sqlite statistics store.
func NewStatisticsStore(db store.DBTX, log *slog.Logger) *StatisticsStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &StatisticsStore{
		db:     db,
		logger: log.With(slog.String("component", "statistics_store")),
	}
}

var _ store.StatisticsStore = (*StatisticsStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *StatisticsStore) WithTx(tx *sql.Tx) store.StatisticsStore {
	return &StatisticsStore{db: tx, logger: s.logger}
}

// Create implements store.StatisticsStore.Create.
func (s *StatisticsStore) Create(ctx context.Context, st *domain.Statistics) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	cols, err := statisticsJSONColumns(st)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO statistics (` + statisticsColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		st.ID.String(),
		nullString(st.ServerID),
		st.ChildID.String(),
		string(st.Mode),
		st.TotalGamesPlayed,
		st.TotalWordsPlayed,
		st.TotalCorrect,
		st.CurrentStreak,
		st.BestStreak,
		st.GoldTrophies,
		st.SilverTrophies,
		st.BronzeTrophies,
		cols.accuracy,
		cols.firstCorrect,
		cols.bests,
		cols.errPatterns,
		toMillis(st.UpdatedAt),
		string(st.SyncStatus),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: statistics for mode %s", store.ErrDuplicate, st.Mode)
		}
		return err
	}
	return nil
}

// Update implements store.StatisticsStore.Update.
func (s *StatisticsStore) Update(ctx context.Context, st *domain.Statistics) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	cols, err := statisticsJSONColumns(st)
	if err != nil {
		return err
	}

	query := `
		UPDATE statistics
		SET server_id = ?, total_games_played = ?, total_words_played = ?,
		    total_correct = ?, current_streak = ?, best_streak = ?,
		    gold_trophies = ?, silver_trophies = ?, bronze_trophies = ?,
		    word_accuracy = ?, first_correct_at = ?, personal_bests = ?,
		    error_patterns = ?, updated_at = ?, sync_status = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		nullString(st.ServerID),
		st.TotalGamesPlayed,
		st.TotalWordsPlayed,
		st.TotalCorrect,
		st.CurrentStreak,
		st.BestStreak,
		st.GoldTrophies,
		st.SilverTrophies,
		st.BronzeTrophies,
		cols.accuracy,
		cols.firstCorrect,
		cols.bests,
		cols.errPatterns,
		toMillis(st.UpdatedAt),
		string(st.SyncStatus),
		st.ID.String(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrStatisticsNotFound
	}
	return nil
}

// GetByMode implements store.StatisticsStore.GetByMode.
func (s *StatisticsStore) GetByMode(ctx context.Context, childID uuid.UUID, mode domain.GameMode) (*domain.Statistics, error) {
	query := `
		SELECT ` + statisticsColumns + `
		FROM statistics
		WHERE child_id = ? AND mode = ?
	`
	st, err := scanStatistics(s.db.QueryRowContext(ctx, query, childID.String(), string(mode)).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrStatisticsNotFound
		}
		return nil, err
	}
	return st, nil
}

// ListByChild implements store.StatisticsStore.ListByChild.
func (s *StatisticsStore) ListByChild(ctx context.Context, childID uuid.UUID) ([]*domain.Statistics, error) {
	query := `
		SELECT ` + statisticsColumns + `
		FROM statistics
		WHERE child_id = ?
		ORDER BY mode
	`
	return s.list(ctx, query, childID.String())
}

// ListPending implements store.StatisticsStore.ListPending.
func (s *StatisticsStore) ListPending(ctx context.Context) ([]*domain.Statistics, error) {
	query := `
		SELECT ` + statisticsColumns + `
		FROM statistics
		WHERE sync_status <> 'synced'
		ORDER BY updated_at
	`
	return s.list(ctx, query)
}

// MarkSynced implements store.StatisticsStore.MarkSynced. Rows modified since
// the push snapshot keep their pending status.
func (s *StatisticsStore) MarkSynced(ctx context.Context, id uuid.UUID, serverID string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE statistics SET server_id = ?, sync_status = 'synced' WHERE id = ? AND updated_at = ?`,
		nullString(serverID), id.String(), toMillis(updatedAt))
	return err
}

// DeleteByChild implements store.StatisticsStore.DeleteByChild.
func (s *StatisticsStore) DeleteByChild(ctx context.Context, childID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM statistics WHERE child_id = ?`, childID.String())
	return err
}

func (s *StatisticsStore) list(ctx context.Context, query string, args ...any) ([]*domain.Statistics, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.Statistics
	for rows.Next() {
		st, err := scanStatistics(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type statsJSON struct {
	accuracy, firstCorrect, bests, errPatterns sql.NullString
}

func statisticsJSONColumns(st *domain.Statistics) (statsJSON, error) {
	var (
		cols statsJSON
		err  error
	)
	if cols.accuracy, err = marshalJSON(st.WordAccuracy); err != nil {
		return cols, err
	}
	if cols.firstCorrect, err = marshalJSON(st.FirstCorrectAt); err != nil {
		return cols, err
	}
	if cols.bests, err = marshalJSON(st.PersonalBests); err != nil {
		return cols, err
	}
	if cols.errPatterns, err = marshalJSON(st.ErrorPatterns); err != nil {
		return cols, err
	}
	return cols, nil
}

func scanStatistics(scan func(dest ...any) error) (*domain.Statistics, error) {
	var (
		st           domain.Statistics
		id, childID  string
		mode, status string
		serverID     sql.NullString
		updatedAt    int64
		cols         statsJSON
	)
	err := scan(
		&id, &serverID, &childID, &mode, &st.TotalGamesPlayed,
		&st.TotalWordsPlayed, &st.TotalCorrect, &st.CurrentStreak,
		&st.BestStreak, &st.GoldTrophies, &st.SilverTrophies,
		&st.BronzeTrophies, &cols.accuracy, &cols.firstCorrect, &cols.bests,
		&cols.errPatterns, &updatedAt, &status,
	)
	if err != nil {
		return nil, err
	}

	if st.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: bad row id %q", store.ErrInvalidEntity, id)
	}
	if st.ChildID, err = uuid.Parse(childID); err != nil {
		return nil, fmt.Errorf("%w: bad child id %q", store.ErrInvalidEntity, childID)
	}
	st.ServerID = serverID.String
	st.Mode = domain.GameMode(mode)
	st.UpdatedAt = fromMillis(updatedAt)
	st.SyncStatus = domain.SyncStatus(status)
	if err := unmarshalJSON(cols.accuracy, &st.WordAccuracy); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(cols.firstCorrect, &st.FirstCorrectAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(cols.bests, &st.PersonalBests); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(cols.errPatterns, &st.ErrorPatterns); err != nil {
		return nil, err
	}
	return &st, nil
}
