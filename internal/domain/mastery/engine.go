package mastery

import (
	"time"

	"github.com/wordnest/wordnest/internal/domain"
)

// Outcome describes one recorded attempt at a word. FirstTry is the input the
// state machine cares about: a word only counts as recalled when the child got
// it right without help on the first try.
type Outcome struct {
	FirstTry   bool
	ResponseMs int
}

// nextLevel computes the level after one attempt.
//
// Success grows the streak and advances to min(5, level+1) once the streak
// meets that level's entry gate; the streak itself resets only on failure, so
// after a slip levels 4 and 5 each demand two consecutive correct recalls.
// Failure drops two levels (floor 0) and zeroes the streak, which is what
// makes a single slip meaningfully delay "mastered".
func nextLevel(level, streak int, firstTry bool, params *Params) (newLevel, newStreak int) {
	if !firstTry {
		newLevel = level - params.FailurePenalty
		if newLevel < domain.MinMasteryLevel {
			newLevel = domain.MinMasteryLevel
		}
		return newLevel, 0
	}

	newStreak = streak + 1
	target := level + 1
	if target > domain.MaxMasteryLevel {
		target = domain.MaxMasteryLevel
	}
	if target > level && newStreak >= params.StreakRequired[target] {
		return target, newStreak
	}
	return level, newStreak
}

// applyAttempt produces the record's next state after one attempt. It follows
// the immutable update pattern: the input record is never modified, a new one
// is returned. Given the same record and outcome the result is deterministic,
// so a word's WordProgress can be re-derived by replaying its attempt log from
// an empty record.
func applyAttempt(wp *domain.WordProgress, outcome Outcome, now time.Time, params *Params) *domain.WordProgress {
	next := *wp
	next.AttemptHistory = append([]domain.AttemptRecord(nil), wp.AttemptHistory...)

	next.Level, next.Streak = nextLevel(wp.Level, wp.Streak, outcome.FirstTry, params)

	next.TimesUsed++
	if outcome.FirstTry {
		next.TimesCorrect++
	}

	at := now
	next.LastAttemptAt = &at
	next.NextReviewAt = now.Add(params.ReviewInterval[next.Level])
	next.UpdatedAt = now

	// Bounded newest-first history; the full log lives in WordAttempt rows.
	next.AttemptHistory = append([]domain.AttemptRecord{{
		At:         now,
		FirstTry:   outcome.FirstTry,
		ResponseMs: outcome.ResponseMs,
	}}, next.AttemptHistory...)
	if len(next.AttemptHistory) > params.HistoryCap {
		next.AttemptHistory = next.AttemptHistory[:params.HistoryCap]
	}

	if next.SyncStatus == domain.SyncStatusSynced {
		next.SyncStatus = domain.SyncStatusUpdated
	}
	return &next
}

// introduce stamps a word into the daily rotation: IntroducedAt is set and the
// word comes due immediately. Mastery state is untouched.
func introduce(wp *domain.WordProgress, now time.Time) *domain.WordProgress {
	next := *wp
	at := now
	next.IntroducedAt = &at
	next.NextReviewAt = now
	next.UpdatedAt = now
	if next.SyncStatus == domain.SyncStatusSynced {
		next.SyncStatus = domain.SyncStatusUpdated
	}
	return &next
}

// archive soft-deletes a word: it leaves rotation but its history is kept.
func archive(wp *domain.WordProgress, now time.Time) *domain.WordProgress {
	next := *wp
	at := now
	next.Active = false
	next.ArchivedAt = &at
	next.UpdatedAt = now
	if next.SyncStatus == domain.SyncStatusSynced {
		next.SyncStatus = domain.SyncStatusUpdated
	}
	return &next
}

// unarchive restores an archived word without resetting its mastery.
func unarchive(wp *domain.WordProgress, now time.Time) *domain.WordProgress {
	next := *wp
	next.Active = true
	next.ArchivedAt = nil
	next.UpdatedAt = now
	if next.SyncStatus == domain.SyncStatusSynced {
		next.SyncStatus = domain.SyncStatusUpdated
	}
	return &next
}
