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
	"github.com/wordnest/wordnest/internal/platform/logger"
	"github.com/wordnest/wordnest/internal/store"
)

const gameSessionColumns = `id, server_id, child_id, client_session_id, mode,
	played_at, duration_ms, words_total, words_correct, outcome, trophy,
	completed_words, wrong_attempts, sync_status`

// GameSessionStore implements store.GameSessionStore on sqlite.
type GameSessionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewGameSessionStore creates the sqlite game-session store.
func NewGameSessionStore(db store.DBTX, log *slog.Logger) *GameSessionStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &GameSessionStore{
		db:     db,
		logger: log.With(slog.String("component", "game_session_store")),
	}
}

var _ store.GameSessionStore = (*GameSessionStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *GameSessionStore) WithTx(tx *sql.Tx) store.GameSessionStore {
	return &GameSessionStore{db: tx, logger: s.logger}
}

// Create implements store.GameSessionStore.Create.
func (s *GameSessionStore) Create(ctx context.Context, gs *domain.GameSession) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := gs.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	completed, err := marshalJSON(gs.CompletedWords)
	if err != nil {
		return err
	}
	wrong, err := marshalJSON(gs.WrongAttempts)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO game_sessions (` + gameSessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		gs.ID.String(),
		nullString(gs.ServerID),
		gs.ChildID.String(),
		gs.ClientSessionID.String(),
		string(gs.Mode),
		toMillis(gs.PlayedAt),
		gs.DurationMs,
		gs.WordsTotal,
		gs.WordsCorrect,
		string(gs.Outcome),
		string(gs.Trophy),
		completed,
		wrong,
		string(gs.SyncStatus),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: session %s", store.ErrDuplicate, gs.ClientSessionID)
		}
		log.Error("failed to create game session",
			slog.String("error", err.Error()),
			slog.String("client_session_id", gs.ClientSessionID.String()))
		return err
	}
	return nil
}

// GetByClientSessionID implements store.GameSessionStore.GetByClientSessionID.
func (s *GameSessionStore) GetByClientSessionID(ctx context.Context, childID, clientSessionID uuid.UUID) (*domain.GameSession, error) {
	query := `
		SELECT ` + gameSessionColumns + `
		FROM game_sessions
		WHERE child_id = ? AND client_session_id = ?
	`
	gs, err := scanGameSession(s.db.QueryRowContext(ctx, query, childID.String(), clientSessionID.String()).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrGameSessionNotFound
		}
		return nil, err
	}
	return gs, nil
}

// ListByChild implements store.GameSessionStore.ListByChild.
func (s *GameSessionStore) ListByChild(ctx context.Context, childID uuid.UUID, from, to time.Time) ([]*domain.GameSession, error) {
	query := `
		SELECT ` + gameSessionColumns + `
		FROM game_sessions
		WHERE child_id = ?
	`
	args := []any{childID.String()}
	if !from.IsZero() {
		query += ` AND played_at >= ?`
		args = append(args, toMillis(from))
	}
	if !to.IsZero() {
		query += ` AND played_at < ?`
		args = append(args, toMillis(to))
	}
	query += ` ORDER BY played_at DESC`
	return s.list(ctx, query, args...)
}

// ListPending implements store.GameSessionStore.ListPending.
func (s *GameSessionStore) ListPending(ctx context.Context) ([]*domain.GameSession, error) {
	query := `
		SELECT ` + gameSessionColumns + `
		FROM game_sessions
		WHERE sync_status <> 'synced'
		ORDER BY played_at
	`
	return s.list(ctx, query)
}

// MarkSynced implements store.GameSessionStore.MarkSynced.
func (s *GameSessionStore) MarkSynced(ctx context.Context, id uuid.UUID, serverID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE game_sessions SET server_id = ?, sync_status = 'synced' WHERE id = ?`,
		nullString(serverID), id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrGameSessionNotFound
	}
	return nil
}

// DeleteByChild implements store.GameSessionStore.DeleteByChild.
func (s *GameSessionStore) DeleteByChild(ctx context.Context, childID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM game_sessions WHERE child_id = ?`, childID.String())
	return err
}

func (s *GameSessionStore) list(ctx context.Context, query string, args ...any) ([]*domain.GameSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.GameSession
	for rows.Next() {
		gs, err := scanGameSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, gs)
	}
	return out, rows.Err()
}

func scanGameSession(scan func(dest ...any) error) (*domain.GameSession, error) {
	var (
		gs                            domain.GameSession
		id, childID, clientID         string
		mode, outcome, trophy, status string
		serverID                      sql.NullString
		playedAt                      int64
		completed, wrong              sql.NullString
	)
	err := scan(
		&id, &serverID, &childID, &clientID, &mode, &playedAt, &gs.DurationMs,
		&gs.WordsTotal, &gs.WordsCorrect, &outcome, &trophy, &completed, &wrong,
		&status,
	)
	if err != nil {
		return nil, err
	}

	if gs.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: bad row id %q", store.ErrInvalidEntity, id)
	}
	if gs.ChildID, err = uuid.Parse(childID); err != nil {
		return nil, fmt.Errorf("%w: bad child id %q", store.ErrInvalidEntity, childID)
	}
	if gs.ClientSessionID, err = uuid.Parse(clientID); err != nil {
		return nil, fmt.Errorf("%w: bad client session id %q", store.ErrInvalidEntity, clientID)
	}
	gs.ServerID = serverID.String
	gs.Mode = domain.GameMode(mode)
	gs.PlayedAt = fromMillis(playedAt)
	gs.Outcome = domain.SessionOutcome(outcome)
	gs.Trophy = domain.Trophy(trophy)
	gs.SyncStatus = domain.SyncStatus(status)
	if err := unmarshalJSON(completed, &gs.CompletedWords); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(wrong, &gs.WrongAttempts); err != nil {
		return nil, err
	}
	return &gs, nil
}

const calibrationColumns = `id, server_id, child_id, client_calibration_id,
	assessed_at, suggested_grade, score, level_details, sync_status`

// CalibrationStore implements store.CalibrationStore on sqlite.
type CalibrationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewCalibrationStore creates the sqlite calibration store.
func NewCalibrationStore(db store.DBTX, log *slog.Logger) *CalibrationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &CalibrationStore{
		db:     db,
		logger: log.With(slog.String("component", "calibration_store")),
	}
}

var _ store.CalibrationStore = (*CalibrationStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *CalibrationStore) WithTx(tx *sql.Tx) store.CalibrationStore {
	return &CalibrationStore{db: tx, logger: s.logger}
}

// Create implements store.CalibrationStore.Create.
func (s *CalibrationStore) Create(ctx context.Context, cr *domain.CalibrationResult) error {
	if err := cr.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	details, err := marshalJSON(cr.LevelDetails)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO calibration_results (` + calibrationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		cr.ID.String(),
		nullString(cr.ServerID),
		cr.ChildID.String(),
		cr.ClientCalibrationID.String(),
		toMillis(cr.AssessedAt),
		cr.SuggestedGrade,
		cr.Score,
		details,
		string(cr.SyncStatus),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: calibration %s", store.ErrDuplicate, cr.ClientCalibrationID)
		}
		return err
	}
	return nil
}

// GetByClientCalibrationID implements store.CalibrationStore.GetByClientCalibrationID.
func (s *CalibrationStore) GetByClientCalibrationID(ctx context.Context, childID, clientCalibrationID uuid.UUID) (*domain.CalibrationResult, error) {
	query := `
		SELECT ` + calibrationColumns + `
		FROM calibration_results
		WHERE child_id = ? AND client_calibration_id = ?
	`
	cr, err := scanCalibration(s.db.QueryRowContext(ctx, query, childID.String(), clientCalibrationID.String()).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCalibrationNotFound
		}
		return nil, err
	}
	return cr, nil
}

// ListByChild implements store.CalibrationStore.ListByChild.
func (s *CalibrationStore) ListByChild(ctx context.Context, childID uuid.UUID) ([]*domain.CalibrationResult, error) {
	query := `
		SELECT ` + calibrationColumns + `
		FROM calibration_results
		WHERE child_id = ?
		ORDER BY assessed_at DESC
	`
	return s.list(ctx, query, childID.String())
}

// ListPending implements store.CalibrationStore.ListPending.
func (s *CalibrationStore) ListPending(ctx context.Context) ([]*domain.CalibrationResult, error) {
	query := `
		SELECT ` + calibrationColumns + `
		FROM calibration_results
		WHERE sync_status <> 'synced'
		ORDER BY assessed_at
	`
	return s.list(ctx, query)
}

// MarkSynced implements store.CalibrationStore.MarkSynced.
func (s *CalibrationStore) MarkSynced(ctx context.Context, id uuid.UUID, serverID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE calibration_results SET server_id = ?, sync_status = 'synced' WHERE id = ?`,
		nullString(serverID), id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrCalibrationNotFound
	}
	return nil
}

// DeleteByChild implements store.CalibrationStore.DeleteByChild.
func (s *CalibrationStore) DeleteByChild(ctx context.Context, childID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM calibration_results WHERE child_id = ?`, childID.String())
	return err
}

func (s *CalibrationStore) list(ctx context.Context, query string, args ...any) ([]*domain.CalibrationResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.CalibrationResult
	for rows.Next() {
		cr, err := scanCalibration(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func scanCalibration(scan func(dest ...any) error) (*domain.CalibrationResult, error) {
	var (
		cr                    domain.CalibrationResult
		id, childID, clientID string
		status                string
		serverID              sql.NullString
		assessedAt            int64
		details               sql.NullString
	)
	err := scan(&id, &serverID, &childID, &clientID, &assessedAt,
		&cr.SuggestedGrade, &cr.Score, &details, &status)
	if err != nil {
		return nil, err
	}

	if cr.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: bad row id %q", store.ErrInvalidEntity, id)
	}
	if cr.ChildID, err = uuid.Parse(childID); err != nil {
		return nil, fmt.Errorf("%w: bad child id %q", store.ErrInvalidEntity, childID)
	}
	if cr.ClientCalibrationID, err = uuid.Parse(clientID); err != nil {
		return nil, fmt.Errorf("%w: bad client calibration id %q", store.ErrInvalidEntity, clientID)
	}
	cr.ServerID = serverID.String
	cr.AssessedAt = fromMillis(assessedAt)
	cr.SyncStatus = domain.SyncStatus(status)
	if err := unmarshalJSON(details, &cr.LevelDetails); err != nil {
		return nil, err
	}
	return &cr, nil
}
