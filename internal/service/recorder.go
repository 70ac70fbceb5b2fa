// Package service glues the mastery engine and the local store together into
// the app-facing operations: recording finished game rounds and managing the
// word bank. Every operation that touches more than one table runs inside a
// single transaction.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/domain/mastery"
	"github.com/wordnest/wordnest/internal/store"
)

// Points awarded per first-try correct word, and the point span of one
// milestone step.
const (
	pointsPerFirstTry  = 10
	pointsPerMilestone = 100
)

var (
	// ErrNoAttempts indicates a game result without a single word attempt.
	ErrNoAttempts = errors.New("game result has no attempts")
)

// AttemptResult is one word's outcome within a finished round.
type AttemptResult struct {
	Word       string
	FirstTry   bool
	ResponseMs int
}

// GameResult is the input to RecordGameResult: everything the game screen
// knows about a finished round.
type GameResult struct {
	ChildID    uuid.UUID
	Mode       domain.GameMode
	PlayedAt   time.Time
	DurationMs int
	Outcome    domain.SessionOutcome
	Attempts   []AttemptResult

	// Grade, when positive, attributes newly mastered words to the child's
	// per-grade progress.
	Grade int
}

// Recorder records finished game rounds: one call updates word mastery, the
// attempt log, the session log, statistics and lifetime points atomically.
type Recorder struct {
	stores   *store.Stores
	mastery  mastery.Service
	notifier *store.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder creates a recorder. Mastery defaults to the production engine
// and now to time.Now; notifier may be nil.
func NewRecorder(stores *store.Stores, masteryService mastery.Service, notifier *store.Notifier, log *slog.Logger) (*Recorder, error) {
	if stores == nil {
		return nil, errors.New("service: stores cannot be nil")
	}
	if masteryService == nil {
		masteryService = mastery.NewDefaultService()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		stores:   stores,
		mastery:  masteryService,
		notifier: notifier,
		logger:   log.With(slog.String("component", "recorder")),
		now:      time.Now,
	}, nil
}

// RecordGameResult applies one finished round to the child's state. The word
// rows, the attempt log, the session row, the statistics bucket and the
// progress rows all change in the same transaction; a failure anywhere leaves
// no trace of the round.
func (r *Recorder) RecordGameResult(ctx context.Context, result GameResult) (*domain.GameSession, error) {
	if len(result.Attempts) == 0 {
		return nil, ErrNoAttempts
	}
	if result.PlayedAt.IsZero() {
		result.PlayedAt = r.now().UTC()
	}
	if result.Outcome == "" {
		result.Outcome = domain.OutcomeCompleted
	}
	now := r.now().UTC()

	session, err := domain.NewGameSession(result.ChildID, result.Mode, result.PlayedAt)
	if err != nil {
		return nil, fmt.Errorf("building session: %w", err)
	}
	session.DurationMs = result.DurationMs
	session.Outcome = result.Outcome
	session.WordsTotal = len(result.Attempts)
	for _, a := range result.Attempts {
		if a.FirstTry {
			session.WordsCorrect++
			session.CompletedWords = append(session.CompletedWords, domain.NormalizeWord(a.Word))
		} else {
			session.WrongAttempts = append(session.WrongAttempts, domain.NormalizeWord(a.Word))
		}
	}
	session.Trophy = trophyFor(session.WordsCorrect, session.WordsTotal)

	var mastered int
	err = store.RunInTransaction(ctx, r.stores.DB, func(ctx context.Context, tx *sql.Tx) error {
		txStores := r.stores.WithTx(tx)

		if err := txStores.GameSessions.Create(ctx, session); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}

		stats, err := r.statsFor(ctx, txStores, result.ChildID, result.Mode, now)
		if err != nil {
			return err
		}

		for _, a := range result.Attempts {
			m, err := r.applyAttempt(ctx, txStores, result.ChildID, a, result.PlayedAt)
			if err != nil {
				return err
			}
			if m {
				mastered++
			}
			stats.RecordWordResult(a.Word, a.FirstTry, now)
		}
		stats.RecordSession(session, now)
		if err := upsertStats(ctx, txStores, stats); err != nil {
			return err
		}

		if err := r.awardPoints(ctx, txStores, result.ChildID, session.WordsCorrect, now); err != nil {
			return err
		}
		if result.Grade > 0 && mastered > 0 {
			if err := r.creditGrade(ctx, txStores, result.ChildID, result.Grade, mastered, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.notifier != nil {
		r.notifier.Publish(
			store.Change{Table: store.TableGameSessions, ChildID: result.ChildID},
			store.Change{Table: store.TableWordProgress, ChildID: result.ChildID},
			store.Change{Table: store.TableWordAttempts, ChildID: result.ChildID},
			store.Change{Table: store.TableStatistics, ChildID: result.ChildID},
			store.Change{Table: store.TableLearningProgress, ChildID: result.ChildID},
		)
	}
	r.logger.Info("game result recorded",
		slog.String("child_id", result.ChildID.String()),
		slog.String("mode", string(result.Mode)),
		slog.Int("words_total", session.WordsTotal),
		slog.Int("words_correct", session.WordsCorrect),
		slog.Int("newly_mastered", mastered))
	return session, nil
}

// applyAttempt advances one word through the mastery engine and appends the
// attempt-log entry. Reports whether the word just reached the top level.
func (r *Recorder) applyAttempt(ctx context.Context, txStores *store.Stores, childID uuid.UUID, a AttemptResult, at time.Time) (bool, error) {
	wp, err := txStores.WordProgress.GetByWordIncludingArchived(ctx, childID, a.Word)
	if errors.Is(err, store.ErrNotFound) {
		// Played a word the bank has never seen, e.g. a bonus round entry.
		// Start tracking it from this attempt.
		wp, err = domain.NewWordProgress(childID, a.Word, at)
		if err != nil {
			return false, fmt.Errorf("word %q: %w", a.Word, err)
		}
		introducedAt := at
		wp.IntroducedAt = &introducedAt
		if err := txStores.WordProgress.Create(ctx, wp); err != nil {
			return false, fmt.Errorf("word %q: %w", a.Word, err)
		}
	} else if err != nil {
		return false, fmt.Errorf("word %q: %w", a.Word, err)
	} else if !wp.Active {
		// An archived word showing up in a round is evidence the child is
		// playing it again; resurrect the row instead of duplicating its key.
		wp, err = r.mastery.Unarchive(wp, at)
		if err != nil {
			return false, fmt.Errorf("word %q: %w", a.Word, err)
		}
	}

	before := wp.Level
	next, err := r.mastery.ApplyAttempt(wp, mastery.Outcome{FirstTry: a.FirstTry, ResponseMs: a.ResponseMs}, at)
	if err != nil {
		return false, fmt.Errorf("word %q: %w", a.Word, err)
	}
	markPending(&next.SyncStatus)
	if err := txStores.WordProgress.Update(ctx, next); err != nil {
		return false, fmt.Errorf("word %q: %w", a.Word, err)
	}

	attempt, err := domain.NewWordAttempt(childID, a.Word, a.FirstTry, at)
	if err != nil {
		return false, fmt.Errorf("word %q: %w", a.Word, err)
	}
	attempt.ResponseMs = a.ResponseMs
	if err := txStores.WordAttempts.Create(ctx, attempt); err != nil {
		return false, fmt.Errorf("word %q: %w", a.Word, err)
	}

	return next.Level == domain.MaxMasteryLevel && before < domain.MaxMasteryLevel, nil
}

func (r *Recorder) statsFor(ctx context.Context, txStores *store.Stores, childID uuid.UUID, mode domain.GameMode, now time.Time) (*domain.Statistics, error) {
	stats, err := txStores.Statistics.GetByMode(ctx, childID, mode)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NewStatistics(childID, mode, now)
	}
	if err != nil {
		return nil, fmt.Errorf("loading statistics: %w", err)
	}
	markPending(&stats.SyncStatus)
	return stats, nil
}

func upsertStats(ctx context.Context, txStores *store.Stores, stats *domain.Statistics) error {
	if stats.SyncStatus == domain.SyncStatusCreated {
		if err := txStores.Statistics.Create(ctx, stats); err != nil {
			return fmt.Errorf("saving statistics: %w", err)
		}
		return nil
	}
	if err := txStores.Statistics.Update(ctx, stats); err != nil {
		return fmt.Errorf("saving statistics: %w", err)
	}
	return nil
}

func (r *Recorder) awardPoints(ctx context.Context, txStores *store.Stores, childID uuid.UUID, firstTryWords int, now time.Time) error {
	lp, err := txStores.LearningProgress.GetByChild(ctx, childID)
	created := false
	if errors.Is(err, store.ErrNotFound) {
		lp, err = domain.NewLearningProgress(childID, now)
		created = true
	}
	if err != nil {
		return fmt.Errorf("loading learning progress: %w", err)
	}

	lp.LifetimePoints += firstTryWords * pointsPerFirstTry
	lp.Milestone = lp.LifetimePoints / pointsPerMilestone
	lp.UpdatedAt = now
	if created {
		if err := txStores.LearningProgress.Create(ctx, lp); err != nil {
			return fmt.Errorf("saving learning progress: %w", err)
		}
		return nil
	}
	markPending(&lp.SyncStatus)
	if err := txStores.LearningProgress.Update(ctx, lp); err != nil {
		return fmt.Errorf("saving learning progress: %w", err)
	}
	return nil
}

func (r *Recorder) creditGrade(ctx context.Context, txStores *store.Stores, childID uuid.UUID, grade, mastered int, now time.Time) error {
	gp, err := txStores.GradeProgress.GetByGrade(ctx, childID, grade)
	created := false
	if errors.Is(err, store.ErrNotFound) {
		gp, err = domain.NewGradeProgress(childID, grade, now)
		created = true
	}
	if err != nil {
		return fmt.Errorf("loading grade progress: %w", err)
	}

	gp.WordsCompleted += mastered
	gp.UpdatedAt = now
	if created {
		if err := txStores.GradeProgress.Create(ctx, gp); err != nil {
			return fmt.Errorf("saving grade progress: %w", err)
		}
		return nil
	}
	markPending(&gp.SyncStatus)
	if err := txStores.GradeProgress.Update(ctx, gp); err != nil {
		return fmt.Errorf("saving grade progress: %w", err)
	}
	return nil
}

// markPending flags a synced row as locally changed so the next push carries
// it. Rows still awaiting their first push keep their created status.
func markPending(status *domain.SyncStatus) {
	if *status == domain.SyncStatusSynced {
		*status = domain.SyncStatusUpdated
	}
}

// trophyFor maps a round's accuracy to its award tier.
func trophyFor(correct, total int) domain.Trophy {
	if total == 0 {
		return domain.TrophyNone
	}
	switch {
	case correct == total:
		return domain.TrophyGold
	case correct*100 >= total*80:
		return domain.TrophySilver
	case correct*100 >= total*60:
		return domain.TrophyBronze
	}
	return domain.TrophyNone
}
