package store

import "database/sql"

// Stores bundles every store over one database handle, in the shape the sync
// engine and services consume. DB is the handle RunInTransaction opens
// transactions on.
type Stores struct {
	DB *sql.DB

	WordProgress     WordProgressStore
	GameSessions     GameSessionStore
	Statistics       StatisticsStore
	Calibration      CalibrationStore
	WordAttempts     WordAttemptStore
	LearningProgress LearningProgressStore
	GradeProgress    GradeProgressStore
	Catalog          CatalogStore
	Cursors          CursorStore
	CatalogSync      CatalogSyncStore
	Rotation         RotationStore
}

// WithTx returns a bundle with every store bound to the given transaction.
func (s *Stores) WithTx(tx *sql.Tx) *Stores {
	return &Stores{
		DB:               s.DB,
		WordProgress:     s.WordProgress.WithTx(tx),
		GameSessions:     s.GameSessions.WithTx(tx),
		Statistics:       s.Statistics.WithTx(tx),
		Calibration:      s.Calibration.WithTx(tx),
		WordAttempts:     s.WordAttempts.WithTx(tx),
		LearningProgress: s.LearningProgress.WithTx(tx),
		GradeProgress:    s.GradeProgress.WithTx(tx),
		Catalog:          s.Catalog.WithTx(tx),
		Cursors:          s.Cursors.WithTx(tx),
		CatalogSync:      s.CatalogSync.WithTx(tx),
		Rotation:         s.Rotation.WithTx(tx),
	}
}
