package sqlite

import (
	"database/sql"
	"log/slog"

	"github.com/wordnest/wordnest/internal/store"
)

// NewStores wires every sqlite-backed store over the given database handle.
func NewStores(db *sql.DB, log *slog.Logger) *store.Stores {
	return &store.Stores{
		DB:               db,
		WordProgress:     NewWordProgressStore(db, log),
		GameSessions:     NewGameSessionStore(db, log),
		Statistics:       NewStatisticsStore(db, log),
		Calibration:      NewCalibrationStore(db, log),
		WordAttempts:     NewWordAttemptStore(db, log),
		LearningProgress: NewLearningProgressStore(db, log),
		GradeProgress:    NewGradeProgressStore(db, log),
		Catalog:          NewCatalogStore(db, log),
		Cursors:          NewCursorStore(db),
		CatalogSync:      NewCatalogSyncStore(db),
		Rotation:         NewRotationStore(db),
	}
}
