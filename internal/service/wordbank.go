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
	"github.com/wordnest/wordnest/internal/generation"
	"github.com/wordnest/wordnest/internal/store"
)

var (
	// ErrWordExists indicates the child already has an active row for the word.
	ErrWordExists = errors.New("word already in the bank")

	// ErrWordNotFound indicates no row exists for the (child, word) pair.
	ErrWordNotFound = errors.New("word not in the bank")
)

// WordBank manages a child's word collection: adding words, the gradual daily
// introduction of new words into the review rotation, and archival.
type WordBank struct {
	stores   *store.Stores
	mastery  mastery.Service
	notifier *store.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewWordBank creates a word-bank service. Mastery defaults to the production
// engine; notifier may be nil.
func NewWordBank(stores *store.Stores, masteryService mastery.Service, notifier *store.Notifier, log *slog.Logger) (*WordBank, error) {
	if stores == nil {
		return nil, errors.New("service: stores cannot be nil")
	}
	if masteryService == nil {
		masteryService = mastery.NewDefaultService()
	}
	if log == nil {
		log = slog.Default()
	}
	return &WordBank{
		stores:   stores,
		mastery:  masteryService,
		notifier: notifier,
		logger:   log.With(slog.String("component", "wordbank")),
		now:      time.Now,
	}, nil
}

// AddWord puts a new word into the child's bank outside the rotation. It waits
// there until IntroduceBatch picks it up or a caller forces it in. Re-adding
// an archived word resurrects the existing row, mastery intact, rather than
// growing a second row under the same (child, word) key.
func (wb *WordBank) AddWord(ctx context.Context, childID uuid.UUID, word, definition, example string) (*domain.WordProgress, error) {
	now := wb.now().UTC()

	existing, err := wb.stores.WordProgress.GetByWordIncludingArchived(ctx, childID, word)
	switch {
	case err == nil:
		if existing.Active {
			return nil, fmt.Errorf("%w: %q", ErrWordExists, domain.NormalizeWord(word))
		}
		next, err := wb.mastery.Unarchive(existing, now)
		if err != nil {
			return nil, fmt.Errorf("restoring word: %w", err)
		}
		if definition != "" {
			next.Definition = definition
		}
		if example != "" {
			next.Example = example
		}
		markPending(&next.SyncStatus)
		if err := wb.stores.WordProgress.Update(ctx, next); err != nil {
			return nil, fmt.Errorf("restoring word: %w", err)
		}
		wb.publish(childID)
		return next, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("adding word: %w", err)
	}

	wp, err := domain.NewWordProgress(childID, word, now)
	if err != nil {
		return nil, err
	}
	wp.Definition = definition
	wp.Example = example

	if err := wb.stores.WordProgress.Create(ctx, wp); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %q", ErrWordExists, domain.NormalizeWord(word))
		}
		return nil, fmt.Errorf("adding word: %w", err)
	}
	wb.publish(childID)
	return wp, nil
}

// ImportGrade copies a grade's cached catalog words into the child's bank.
// Words the child already has are skipped, so re-importing is harmless. The
// whole import is one transaction and does not introduce anything; the daily
// rotation picks the new words up at its own pace.
func (wb *WordBank) ImportGrade(ctx context.Context, childID uuid.UUID, grade int) (int, error) {
	words, err := wb.stores.Catalog.ListByGrade(ctx, grade)
	if err != nil {
		return 0, fmt.Errorf("listing catalog grade %d: %w", grade, err)
	}
	if len(words) == 0 {
		return 0, nil
	}

	now := wb.now().UTC()
	added := 0
	err = store.RunInTransaction(ctx, wb.stores.DB, func(ctx context.Context, tx *sql.Tx) error {
		txStores := wb.stores.WithTx(tx)
		for _, cw := range words {
			// Archived rows stay skipped too: the parent took the word out
			// deliberately, and a second row under the same key is never ok.
			_, err := txStores.WordProgress.GetByWordIncludingArchived(ctx, childID, cw.WordText)
			if err == nil {
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("word %q: %w", cw.WordText, err)
			}

			wp, err := domain.NewWordProgress(childID, cw.WordText, now)
			if err != nil {
				return fmt.Errorf("word %q: %w", cw.WordText, err)
			}
			wp.Definition = cw.Definition
			wp.Example = cw.Example
			if err := txStores.WordProgress.Create(ctx, wp); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					continue
				}
				return fmt.Errorf("word %q: %w", cw.WordText, err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if added > 0 {
		wb.publish(childID)
	}
	wb.logger.Info("grade imported",
		slog.String("child_id", childID.String()),
		slog.Int("grade", grade),
		slog.Int("added", added),
		slog.Int("skipped", len(words)-added))
	return added, nil
}

// IntroduceBatch moves waiting words into the review rotation, bounded by the
// daily limit unless forced. The batch is atomic: the chosen words and the
// day's counter move together or not at all. Returns the introduced words.
func (wb *WordBank) IntroduceBatch(ctx context.Context, childID uuid.UUID, want int, force bool) ([]*domain.WordProgress, error) {
	now := wb.now().UTC()
	day := now.Format("2006-01-02")

	var introduced []*domain.WordProgress
	err := store.RunInTransaction(ctx, wb.stores.DB, func(ctx context.Context, tx *sql.Tx) error {
		txStores := wb.stores.WithTx(tx)

		budget := want
		if force {
			if budget <= 0 {
				budget = -1 // no cap
			}
		} else {
			soFar, err := txStores.Rotation.IntroducedOn(ctx, childID, day)
			if err != nil {
				return fmt.Errorf("reading rotation counter: %w", err)
			}
			remaining := wb.mastery.IntroductionBudget(soFar)
			if remaining <= 0 {
				return mastery.ErrDailyLimit
			}
			if budget <= 0 || budget > remaining {
				budget = remaining
			}
		}

		waiting, err := txStores.WordProgress.ListAvailable(ctx, childID, budget)
		if err != nil {
			return fmt.Errorf("listing waiting words: %w", err)
		}
		for _, wp := range waiting {
			next, err := wb.mastery.Introduce(wp, now)
			if err != nil {
				return fmt.Errorf("word %q: %w", wp.WordText, err)
			}
			markPending(&next.SyncStatus)
			if err := txStores.WordProgress.Update(ctx, next); err != nil {
				return fmt.Errorf("word %q: %w", wp.WordText, err)
			}
			introduced = append(introduced, next)
		}
		if len(introduced) > 0 && !force {
			if err := txStores.Rotation.AddIntroduced(ctx, childID, day, len(introduced)); err != nil {
				return fmt.Errorf("bumping rotation counter: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(introduced) > 0 {
		wb.publish(childID)
	}
	return introduced, nil
}

// Archive takes a word out of play while keeping its mastery history.
func (wb *WordBank) Archive(ctx context.Context, childID uuid.UUID, word string) error {
	return wb.transition(ctx, childID, word, wb.mastery.Archive)
}

// Unarchive puts an archived word back without resetting its mastery.
func (wb *WordBank) Unarchive(ctx context.Context, childID uuid.UUID, word string) error {
	return wb.transition(ctx, childID, word, wb.mastery.Unarchive)
}

func (wb *WordBank) transition(ctx context.Context, childID uuid.UUID, word string, fn func(*domain.WordProgress, time.Time) (*domain.WordProgress, error)) error {
	// Archived rows are invisible to GetByWord, so the unarchive path needs
	// the any-status lookup.
	wp, err := wb.stores.WordProgress.GetByWordIncludingArchived(ctx, childID, word)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %q", ErrWordNotFound, domain.NormalizeWord(word))
	}
	if err != nil {
		return fmt.Errorf("loading word: %w", err)
	}

	next, err := fn(wp, wb.now().UTC())
	if err != nil {
		return err
	}
	markPending(&next.SyncStatus)
	if err := wb.stores.WordProgress.Update(ctx, next); err != nil {
		return fmt.Errorf("saving word: %w", err)
	}
	wb.publish(childID)
	return nil
}

// DueWords returns the child's review queue for a play session, oldest review
// date first.
func (wb *WordBank) DueWords(ctx context.Context, childID uuid.UUID, limit int) ([]*domain.WordProgress, error) {
	return wb.stores.WordProgress.ListDue(ctx, childID, wb.now().UTC(), limit)
}

// EnrichDefinitions fills in missing definitions for the child's active words
// using the given generator, typically off a background task. Per-word
// generation failures are logged and skipped so one refused word does not
// starve the rest. Returns how many words were enriched.
func (wb *WordBank) EnrichDefinitions(ctx context.Context, childID uuid.UUID, gen generation.Generator, grade int) (int, error) {
	words, err := wb.stores.WordProgress.ListByChild(ctx, childID)
	if err != nil {
		return 0, fmt.Errorf("listing words: %w", err)
	}

	enriched := 0
	for _, wp := range words {
		if !wp.Active || wp.Definition != "" {
			continue
		}
		def, err := gen.Define(ctx, wp.WordText, grade)
		if err != nil {
			if ctx.Err() != nil {
				return enriched, ctx.Err()
			}
			wb.logger.Warn("definition generation failed",
				slog.String("word", wp.WordText),
				slog.String("error", err.Error()))
			continue
		}
		wp.Definition = def.Definition
		wp.Example = def.Example
		wp.UpdatedAt = wb.now().UTC()
		markPending(&wp.SyncStatus)
		if err := wb.stores.WordProgress.Update(ctx, wp); err != nil {
			return enriched, fmt.Errorf("saving word %q: %w", wp.WordText, err)
		}
		enriched++
	}
	if enriched > 0 {
		wb.publish(childID)
	}
	return enriched, nil
}

func (wb *WordBank) publish(childID uuid.UUID) {
	if wb.notifier != nil {
		wb.notifier.Publish(store.Change{Table: store.TableWordProgress, ChildID: childID})
	}
}
