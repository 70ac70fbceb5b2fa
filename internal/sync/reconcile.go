package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/store"
)

// Typed business keys, one comparable struct per table. Matching pulled rows
// to local rows goes through these and never through row ids or string
// concatenation.
type (
	wordKey struct {
		child uuid.UUID
		word  string
	}
	clientKey struct{ child, client uuid.UUID }
	modeKey   struct {
		child uuid.UUID
		mode  domain.GameMode
	}
	gradeKey struct {
		child uuid.UUID
		grade int
	}
)

// attachment records that a pulled append-only row matched an existing local
// row: the only thing to apply is the server id.
type attachment struct {
	LocalID  uuid.UUID
	ServerID string
}

// Changeset is the classified outcome of reconciling one pull response.
// Creates carry the server row's id as their local id; updates carry the
// matched LOCAL row's id with merged data, which is what prevents the same
// logical record from existing twice.
type Changeset struct {
	WordProgressCreates []*domain.WordProgress
	WordProgressUpdates []*domain.WordProgress

	GameSessionCreates []*domain.GameSession
	GameSessionAttach  []attachment

	StatisticsCreates []*domain.Statistics
	StatisticsUpdates []*domain.Statistics

	CalibrationCreates []*domain.CalibrationResult
	CalibrationAttach  []attachment

	WordAttemptCreates []*domain.WordAttempt
	WordAttemptAttach  []attachment

	LearningProgressCreates []*domain.LearningProgress
	LearningProgressUpdates []*domain.LearningProgress

	GradeProgressCreates []*domain.GradeProgress
	GradeProgressUpdates []*domain.GradeProgress

	// Skipped counts pulled rows rejected for a missing business key.
	Skipped int
}

// Empty reports whether the changeset would apply nothing.
func (cs *Changeset) Empty() bool {
	return len(cs.WordProgressCreates) == 0 && len(cs.WordProgressUpdates) == 0 &&
		len(cs.GameSessionCreates) == 0 && len(cs.GameSessionAttach) == 0 &&
		len(cs.StatisticsCreates) == 0 && len(cs.StatisticsUpdates) == 0 &&
		len(cs.CalibrationCreates) == 0 && len(cs.CalibrationAttach) == 0 &&
		len(cs.WordAttemptCreates) == 0 && len(cs.WordAttemptAttach) == 0 &&
		len(cs.LearningProgressCreates) == 0 && len(cs.LearningProgressUpdates) == 0 &&
		len(cs.GradeProgressCreates) == 0 && len(cs.GradeProgressUpdates) == 0
}

// AffectedTables lists the local tables the changeset touches, for the change
// feed.
func (cs *Changeset) AffectedTables() []string {
	var tables []string
	add := func(table string, touched bool) {
		if touched {
			tables = append(tables, table)
		}
	}
	add(TableWordProgress, len(cs.WordProgressCreates)+len(cs.WordProgressUpdates) > 0)
	add(TableGameSessions, len(cs.GameSessionCreates)+len(cs.GameSessionAttach) > 0)
	add(TableStatistics, len(cs.StatisticsCreates)+len(cs.StatisticsUpdates) > 0)
	add(TableCalibration, len(cs.CalibrationCreates)+len(cs.CalibrationAttach) > 0)
	add(TableWordAttempts, len(cs.WordAttemptCreates)+len(cs.WordAttemptAttach) > 0)
	add(TableLearningProgress, len(cs.LearningProgressCreates)+len(cs.LearningProgressUpdates) > 0)
	add(TableGradeProgress, len(cs.GradeProgressCreates)+len(cs.GradeProgressUpdates) > 0)
	return tables
}

// Apply writes the changeset through the given stores. The caller is
// responsible for binding the stores to one transaction; Apply itself is
// all-or-nothing only within that transaction.
func (cs *Changeset) Apply(ctx context.Context, stores *store.Stores) error {
	for _, wp := range cs.WordProgressCreates {
		if err := stores.WordProgress.Create(ctx, wp); err != nil {
			return fmt.Errorf("apply word_progress create: %w", err)
		}
	}
	for _, wp := range cs.WordProgressUpdates {
		if err := stores.WordProgress.Update(ctx, wp); err != nil {
			return fmt.Errorf("apply word_progress update: %w", err)
		}
	}
	for _, gs := range cs.GameSessionCreates {
		if err := stores.GameSessions.Create(ctx, gs); err != nil {
			return fmt.Errorf("apply game_sessions create: %w", err)
		}
	}
	for _, att := range cs.GameSessionAttach {
		if err := stores.GameSessions.MarkSynced(ctx, att.LocalID, att.ServerID); err != nil {
			return fmt.Errorf("attach game_sessions server id: %w", err)
		}
	}
	for _, st := range cs.StatisticsCreates {
		if err := stores.Statistics.Create(ctx, st); err != nil {
			return fmt.Errorf("apply statistics create: %w", err)
		}
	}
	for _, st := range cs.StatisticsUpdates {
		if err := stores.Statistics.Update(ctx, st); err != nil {
			return fmt.Errorf("apply statistics update: %w", err)
		}
	}
	for _, cr := range cs.CalibrationCreates {
		if err := stores.Calibration.Create(ctx, cr); err != nil {
			return fmt.Errorf("apply calibration create: %w", err)
		}
	}
	for _, att := range cs.CalibrationAttach {
		if err := stores.Calibration.MarkSynced(ctx, att.LocalID, att.ServerID); err != nil {
			return fmt.Errorf("attach calibration server id: %w", err)
		}
	}
	for _, wa := range cs.WordAttemptCreates {
		if err := stores.WordAttempts.Create(ctx, wa); err != nil {
			return fmt.Errorf("apply word_attempts create: %w", err)
		}
	}
	for _, att := range cs.WordAttemptAttach {
		if err := stores.WordAttempts.MarkSynced(ctx, att.LocalID, att.ServerID); err != nil {
			return fmt.Errorf("attach word_attempts server id: %w", err)
		}
	}
	for _, lp := range cs.LearningProgressCreates {
		if err := stores.LearningProgress.Create(ctx, lp); err != nil {
			return fmt.Errorf("apply learning_progress create: %w", err)
		}
	}
	for _, lp := range cs.LearningProgressUpdates {
		if err := stores.LearningProgress.Update(ctx, lp); err != nil {
			return fmt.Errorf("apply learning_progress update: %w", err)
		}
	}
	for _, gp := range cs.GradeProgressCreates {
		if err := stores.GradeProgress.Create(ctx, gp); err != nil {
			return fmt.Errorf("apply grade_progress create: %w", err)
		}
	}
	for _, gp := range cs.GradeProgressUpdates {
		if err := stores.GradeProgress.Update(ctx, gp); err != nil {
			return fmt.Errorf("apply grade_progress update: %w", err)
		}
	}
	return nil
}

// Reconciler classifies pulled server rows against local state by business
// key and folds matches through the conflict policy.
type Reconciler struct {
	transformer *Transformer
	logger      *slog.Logger
}

// NewReconciler creates a reconciler. If log is nil, a default logger is
// used.
func NewReconciler(transformer *Transformer, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		transformer: transformer,
		logger:      log.With(slog.String("component", "sync_reconciler")),
	}
}

// indexByKey indexes local rows by business key. Two local rows sharing a key
// violate the schema's uniqueness invariants; that is a programming fault,
// logged loudly, and the first row wins.
func indexByKey[K comparable, V any](rows []V, table string, key func(V) K, log *slog.Logger) map[K]V {
	idx := make(map[K]V, len(rows))
	for _, row := range rows {
		k := key(row)
		if _, dup := idx[k]; dup {
			log.Error("duplicate business key in local table, keeping first row",
				slog.String("table", table),
				slog.Any("key", k))
			continue
		}
		idx[k] = row
	}
	return idx
}

// Reconcile builds the changeset for one pull response. Stores must be bound
// to the transaction the changeset will be applied in, so the local rows read
// here are the rows the apply will run against (a reset wipe in the same
// transaction is observed as an empty table).
func (r *Reconciler) Reconcile(ctx context.Context, stores *store.Stores, childID uuid.UUID, resp *PullResponse) (*Changeset, error) {
	cs := &Changeset{}
	if err := r.reconcileWordProgress(ctx, stores, childID, resp.WordProgress, cs); err != nil {
		return nil, err
	}
	if err := r.reconcileGameSessions(ctx, stores, childID, resp.GameSessions, cs); err != nil {
		return nil, err
	}
	if err := r.reconcileStatistics(ctx, stores, childID, resp.Statistics, cs); err != nil {
		return nil, err
	}
	if err := r.reconcileCalibration(ctx, stores, childID, resp.Calibration, cs); err != nil {
		return nil, err
	}
	if err := r.reconcileWordAttempts(ctx, stores, childID, resp.WordAttempts, cs); err != nil {
		return nil, err
	}
	if err := r.reconcileLearningProgress(ctx, stores, childID, resp.LearningProgress, cs); err != nil {
		return nil, err
	}
	if err := r.reconcileGradeProgress(ctx, stores, childID, resp.GradeProgress, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

// skip logs and counts a pulled row rejected by the transformer.
func (r *Reconciler) skip(cs *Changeset, table string, err error) {
	cs.Skipped++
	r.logger.Warn("skipping server record",
		slog.String("table", table),
		slog.String("error", err.Error()))
}

// mergedStatus keeps a locally pending row pending after merge, so the local
// half of the merged data still reaches the server on the next push.
func mergedStatus(local domain.SyncStatus) domain.SyncStatus {
	if local == domain.SyncStatusSynced {
		return domain.SyncStatusSynced
	}
	return domain.SyncStatusUpdated
}

func (r *Reconciler) reconcileWordProgress(ctx context.Context, stores *store.Stores, childID uuid.UUID, recs []WordProgressRecord, cs *Changeset) error {
	if len(recs) == 0 {
		return nil
	}
	local, err := stores.WordProgress.ListByChild(ctx, childID)
	if err != nil {
		return fmt.Errorf("load local word_progress: %w", err)
	}
	idx := indexByKey(local, TableWordProgress, func(wp *domain.WordProgress) wordKey {
		return wordKey{child: wp.ChildID, word: wp.WordText}
	}, r.logger)

	seen := make(map[wordKey]bool, len(recs))
	for i := range recs {
		incoming, err := r.transformer.WordProgressFromWire(&recs[i])
		if err != nil {
			r.skip(cs, TableWordProgress, err)
			continue
		}
		key := wordKey{child: incoming.ChildID, word: incoming.WordText}
		if seen[key] {
			r.logger.Warn("duplicate key in pull payload, keeping first",
				slog.String("table", TableWordProgress),
				slog.String("word", incoming.WordText))
			continue
		}
		seen[key] = true

		if match, ok := idx[key]; ok {
			merged := mergeWordProgress(match, incoming)
			merged.SyncStatus = mergedStatus(match.SyncStatus)
			cs.WordProgressUpdates = append(cs.WordProgressUpdates, merged)
		} else {
			cs.WordProgressCreates = append(cs.WordProgressCreates, incoming)
		}
	}
	return nil
}

func (r *Reconciler) reconcileGameSessions(ctx context.Context, stores *store.Stores, childID uuid.UUID, recs []GameSessionRecord, cs *Changeset) error {
	if len(recs) == 0 {
		return nil
	}
	local, err := stores.GameSessions.ListByChild(ctx, childID, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("load local game_sessions: %w", err)
	}
	idx := indexByKey(local, TableGameSessions, func(gs *domain.GameSession) clientKey {
		return clientKey{child: gs.ChildID, client: gs.ClientSessionID}
	}, r.logger)

	seen := make(map[clientKey]bool, len(recs))
	for i := range recs {
		incoming, err := r.transformer.GameSessionFromWire(&recs[i])
		if err != nil {
			r.skip(cs, TableGameSessions, err)
			continue
		}
		key := clientKey{child: incoming.ChildID, client: incoming.ClientSessionID}
		if seen[key] {
			continue
		}
		seen[key] = true

		if match, ok := idx[key]; ok {
			// Append-only rows are facts; matching means we already hold
			// this session and only the server id is news.
			cs.GameSessionAttach = append(cs.GameSessionAttach, attachment{LocalID: match.ID, ServerID: incoming.ServerID})
		} else {
			cs.GameSessionCreates = append(cs.GameSessionCreates, incoming)
		}
	}
	return nil
}

func (r *Reconciler) reconcileStatistics(ctx context.Context, stores *store.Stores, childID uuid.UUID, recs []StatisticsRecord, cs *Changeset) error {
	if len(recs) == 0 {
		return nil
	}
	local, err := stores.Statistics.ListByChild(ctx, childID)
	if err != nil {
		return fmt.Errorf("load local statistics: %w", err)
	}
	idx := indexByKey(local, TableStatistics, func(st *domain.Statistics) modeKey {
		return modeKey{child: st.ChildID, mode: st.Mode}
	}, r.logger)

	seen := make(map[modeKey]bool, len(recs))
	for i := range recs {
		incoming, err := r.transformer.StatisticsFromWire(&recs[i])
		if err != nil {
			r.skip(cs, TableStatistics, err)
			continue
		}
		key := modeKey{child: incoming.ChildID, mode: incoming.Mode}
		if seen[key] {
			continue
		}
		seen[key] = true

		if match, ok := idx[key]; ok {
			merged := mergeStatistics(match, incoming)
			merged.SyncStatus = mergedStatus(match.SyncStatus)
			cs.StatisticsUpdates = append(cs.StatisticsUpdates, merged)
		} else {
			cs.StatisticsCreates = append(cs.StatisticsCreates, incoming)
		}
	}
	return nil
}

func (r *Reconciler) reconcileCalibration(ctx context.Context, stores *store.Stores, childID uuid.UUID, recs []CalibrationRecord, cs *Changeset) error {
	if len(recs) == 0 {
		return nil
	}
	local, err := stores.Calibration.ListByChild(ctx, childID)
	if err != nil {
		return fmt.Errorf("load local calibration_results: %w", err)
	}
	idx := indexByKey(local, TableCalibration, func(cr *domain.CalibrationResult) clientKey {
		return clientKey{child: cr.ChildID, client: cr.ClientCalibrationID}
	}, r.logger)

	seen := make(map[clientKey]bool, len(recs))
	for i := range recs {
		incoming, err := r.transformer.CalibrationFromWire(&recs[i])
		if err != nil {
			r.skip(cs, TableCalibration, err)
			continue
		}
		key := clientKey{child: incoming.ChildID, client: incoming.ClientCalibrationID}
		if seen[key] {
			continue
		}
		seen[key] = true

		if match, ok := idx[key]; ok {
			cs.CalibrationAttach = append(cs.CalibrationAttach, attachment{LocalID: match.ID, ServerID: incoming.ServerID})
		} else {
			cs.CalibrationCreates = append(cs.CalibrationCreates, incoming)
		}
	}
	return nil
}

func (r *Reconciler) reconcileWordAttempts(ctx context.Context, stores *store.Stores, childID uuid.UUID, recs []WordAttemptRecord, cs *Changeset) error {
	if len(recs) == 0 {
		return nil
	}
	local, err := stores.WordAttempts.ListByChild(ctx, childID)
	if err != nil {
		return fmt.Errorf("load local word_attempts: %w", err)
	}
	idx := indexByKey(local, TableWordAttempts, func(wa *domain.WordAttempt) clientKey {
		return clientKey{child: wa.ChildID, client: wa.ClientAttemptID}
	}, r.logger)

	seen := make(map[clientKey]bool, len(recs))
	for i := range recs {
		incoming, err := r.transformer.WordAttemptFromWire(&recs[i])
		if err != nil {
			r.skip(cs, TableWordAttempts, err)
			continue
		}
		key := clientKey{child: incoming.ChildID, client: incoming.ClientAttemptID}
		if seen[key] {
			continue
		}
		seen[key] = true

		if match, ok := idx[key]; ok {
			cs.WordAttemptAttach = append(cs.WordAttemptAttach, attachment{LocalID: match.ID, ServerID: incoming.ServerID})
		} else {
			cs.WordAttemptCreates = append(cs.WordAttemptCreates, incoming)
		}
	}
	return nil
}

func (r *Reconciler) reconcileLearningProgress(ctx context.Context, stores *store.Stores, childID uuid.UUID, recs []LearningProgressRecord, cs *Changeset) error {
	if len(recs) == 0 {
		return nil
	}
	local, err := stores.LearningProgress.GetByChild(ctx, childID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load local learning_progress: %w", err)
	}

	seen := false
	for i := range recs {
		incoming, err := r.transformer.LearningProgressFromWire(&recs[i])
		if err != nil {
			r.skip(cs, TableLearningProgress, err)
			continue
		}
		if seen {
			r.logger.Warn("duplicate key in pull payload, keeping first",
				slog.String("table", TableLearningProgress),
				slog.String("child_id", incoming.ChildID.String()))
			continue
		}
		seen = true

		if local != nil {
			merged := mergeLearningProgress(local, incoming)
			merged.SyncStatus = mergedStatus(local.SyncStatus)
			cs.LearningProgressUpdates = append(cs.LearningProgressUpdates, merged)
		} else {
			cs.LearningProgressCreates = append(cs.LearningProgressCreates, incoming)
		}
	}
	return nil
}

func (r *Reconciler) reconcileGradeProgress(ctx context.Context, stores *store.Stores, childID uuid.UUID, recs []GradeProgressRecord, cs *Changeset) error {
	if len(recs) == 0 {
		return nil
	}
	local, err := stores.GradeProgress.ListByChild(ctx, childID)
	if err != nil {
		return fmt.Errorf("load local grade_progress: %w", err)
	}
	idx := indexByKey(local, TableGradeProgress, func(gp *domain.GradeProgress) gradeKey {
		return gradeKey{child: gp.ChildID, grade: gp.Grade}
	}, r.logger)

	seen := make(map[gradeKey]bool, len(recs))
	for i := range recs {
		incoming, err := r.transformer.GradeProgressFromWire(&recs[i])
		if err != nil {
			r.skip(cs, TableGradeProgress, err)
			continue
		}
		key := gradeKey{child: incoming.ChildID, grade: incoming.Grade}
		if seen[key] {
			continue
		}
		seen[key] = true

		if match, ok := idx[key]; ok {
			merged := mergeGradeProgress(match, incoming)
			merged.SyncStatus = mergedStatus(match.SyncStatus)
			cs.GradeProgressUpdates = append(cs.GradeProgressUpdates, merged)
		} else {
			cs.GradeProgressCreates = append(cs.GradeProgressCreates, incoming)
		}
	}
	return nil
}
