package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/store"
)

const catalogColumns = `server_id, parent_id, grade, word_text, definition, example, custom, server_updated_at`

// CatalogStore implements store.CatalogStore on sqlite.
type CatalogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewCatalogStore creates the sqlite word-catalog store.
func NewCatalogStore(db store.DBTX, log *slog.Logger) *CatalogStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &CatalogStore{
		db:     db,
		logger: log.With(slog.String("component", "catalog_store")),
	}
}

var _ store.CatalogStore = (*CatalogStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *CatalogStore) WithTx(tx *sql.Tx) store.CatalogStore {
	return &CatalogStore{db: tx, logger: s.logger}
}

// UpsertBatch implements store.CatalogStore.UpsertBatch.
func (s *CatalogStore) UpsertBatch(ctx context.Context, words []*domain.CatalogWord) error {
	if len(words) == 0 {
		return nil
	}
	query := `
		INSERT INTO word_catalog (` + catalogColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (server_id) DO UPDATE SET
			parent_id = excluded.parent_id,
			grade = excluded.grade,
			word_text = excluded.word_text,
			definition = excluded.definition,
			example = excluded.example,
			custom = excluded.custom,
			server_updated_at = excluded.server_updated_at
	`
	for _, w := range words {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
		_, err := s.db.ExecContext(ctx, query,
			w.ServerID,
			w.ParentID,
			w.Grade,
			domain.NormalizeWord(w.WordText),
			nullString(w.Definition),
			nullString(w.Example),
			boolToInt(w.Custom),
			toMillis(w.ServerUpdatedAt),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteByServerIDs implements store.CatalogStore.DeleteByServerIDs.
func (s *CatalogStore) DeleteByServerIDs(ctx context.Context, serverIDs []string) error {
	for _, id := range serverIDs {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM word_catalog WHERE server_id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

// GetByServerID implements store.CatalogStore.GetByServerID.
func (s *CatalogStore) GetByServerID(ctx context.Context, serverID string) (*domain.CatalogWord, error) {
	query := `SELECT ` + catalogColumns + ` FROM word_catalog WHERE server_id = ?`
	cw, err := scanCatalogWord(s.db.QueryRowContext(ctx, query, serverID).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCatalogWordNotFound
		}
		return nil, err
	}
	return cw, nil
}

// ListByGrade implements store.CatalogStore.ListByGrade.
func (s *CatalogStore) ListByGrade(ctx context.Context, grade int) ([]*domain.CatalogWord, error) {
	query := `SELECT ` + catalogColumns + ` FROM word_catalog WHERE grade = ? ORDER BY word_text`
	rows, err := s.db.QueryContext(ctx, query, grade)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.CatalogWord
	for rows.Next() {
		cw, err := scanCatalogWord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, cw)
	}
	return out, rows.Err()
}

func scanCatalogWord(scan func(dest ...any) error) (*domain.CatalogWord, error) {
	var (
		cw                  domain.CatalogWord
		definition, example sql.NullString
		custom              int
		updatedAt           int64
	)
	err := scan(&cw.ServerID, &cw.ParentID, &cw.Grade, &cw.WordText,
		&definition, &example, &custom, &updatedAt)
	if err != nil {
		return nil, err
	}
	cw.Definition = definition.String
	cw.Example = example.String
	cw.Custom = custom != 0
	cw.ServerUpdatedAt = fromMillis(updatedAt)
	return &cw, nil
}
