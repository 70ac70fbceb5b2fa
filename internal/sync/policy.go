package sync

import (
	"time"

	"github.com/wordnest/wordnest/internal/domain"
)

// Conflict policy applied when a pulled server row matches a local row by
// business key:
//
//   - monotonic counters take max(local, server), so attempts recorded on
//     another device are never lost;
//   - mastery state (level, streak, review schedule) is last-write-wins by the
//     client-stamped update time;
//   - append-only rows are never merged, only attached to their server id;
//   - lifetime points take max, so a stale sync can never regress them.
//
// Merges never mutate their inputs.

// mergeWordProgress folds a pulled server row into the matched local row.
func mergeWordProgress(local, server *domain.WordProgress) *domain.WordProgress {
	merged := *local
	merged.ServerID = server.ServerID
	merged.TimesUsed = max(local.TimesUsed, server.TimesUsed)
	merged.TimesCorrect = max(local.TimesCorrect, server.TimesCorrect)

	if server.UpdatedAt.After(local.UpdatedAt) {
		merged.Level = server.Level
		merged.Streak = server.Streak
		merged.LastAttemptAt = server.LastAttemptAt
		merged.NextReviewAt = server.NextReviewAt
		merged.IntroducedAt = server.IntroducedAt
		merged.Active = server.Active
		merged.ArchivedAt = server.ArchivedAt
		merged.AttemptHistory = server.AttemptHistory
		merged.UpdatedAt = server.UpdatedAt
	}
	if merged.Definition == "" {
		merged.Definition = server.Definition
	}
	if merged.Example == "" {
		merged.Example = server.Example
	}
	if merged.TimesCorrect > merged.TimesUsed {
		merged.TimesCorrect = merged.TimesUsed
	}
	return &merged
}

// mergeStatistics folds a pulled statistics bucket into the matched local
// bucket. Totals and trophy counts are monotonic; the side-tables are unioned
// per word; the current streak alone is last-write-wins, since it is a single
// authoritative "now" value rather than a tally.
func mergeStatistics(local, server *domain.Statistics) *domain.Statistics {
	merged := *local
	merged.ServerID = server.ServerID
	merged.TotalGamesPlayed = max(local.TotalGamesPlayed, server.TotalGamesPlayed)
	merged.TotalWordsPlayed = max(local.TotalWordsPlayed, server.TotalWordsPlayed)
	merged.TotalCorrect = max(local.TotalCorrect, server.TotalCorrect)
	merged.BestStreak = max(local.BestStreak, server.BestStreak)
	merged.GoldTrophies = max(local.GoldTrophies, server.GoldTrophies)
	merged.SilverTrophies = max(local.SilverTrophies, server.SilverTrophies)
	merged.BronzeTrophies = max(local.BronzeTrophies, server.BronzeTrophies)
	if server.UpdatedAt.After(local.UpdatedAt) {
		merged.CurrentStreak = server.CurrentStreak
		merged.UpdatedAt = server.UpdatedAt
	}

	merged.WordAccuracy = mergeAccuracy(local.WordAccuracy, server.WordAccuracy)
	merged.FirstCorrectAt = mergeEarliest(local.FirstCorrectAt, server.FirstCorrectAt)
	merged.PersonalBests = mergeMaxCounts(local.PersonalBests, server.PersonalBests)
	merged.ErrorPatterns = mergeMaxCounts(local.ErrorPatterns, server.ErrorPatterns)
	return &merged
}

func mergeAccuracy(local, server map[string]domain.WordAccuracy) map[string]domain.WordAccuracy {
	if local == nil && server == nil {
		return nil
	}
	out := make(map[string]domain.WordAccuracy, len(local)+len(server))
	for word, acc := range local {
		out[word] = acc
	}
	for word, acc := range server {
		have := out[word]
		have.Attempts = max(have.Attempts, acc.Attempts)
		have.Correct = max(have.Correct, acc.Correct)
		out[word] = have
	}
	return out
}

func mergeEarliest(local, server map[string]time.Time) map[string]time.Time {
	if local == nil && server == nil {
		return nil
	}
	out := make(map[string]time.Time, len(local)+len(server))
	for word, at := range local {
		out[word] = at
	}
	for word, at := range server {
		if have, ok := out[word]; !ok || at.Before(have) {
			out[word] = at
		}
	}
	return out
}

func mergeMaxCounts(local, server map[string]int) map[string]int {
	if local == nil && server == nil {
		return nil
	}
	out := make(map[string]int, len(local)+len(server))
	for word, n := range local {
		out[word] = n
	}
	for word, n := range server {
		out[word] = max(out[word], n)
	}
	return out
}

// mergeLearningProgress folds a pulled lifetime-progress row into the matched
// local row. Points and milestone only ever go up.
func mergeLearningProgress(local, server *domain.LearningProgress) *domain.LearningProgress {
	merged := *local
	merged.ServerID = server.ServerID
	merged.LifetimePoints = max(local.LifetimePoints, server.LifetimePoints)
	merged.Milestone = max(local.Milestone, server.Milestone)
	if server.UpdatedAt.After(local.UpdatedAt) {
		merged.UpdatedAt = server.UpdatedAt
	}
	return &merged
}

// mergeGradeProgress folds a pulled per-grade row into the matched local row.
// Completion counts are monotonic; the earliest completion date wins.
func mergeGradeProgress(local, server *domain.GradeProgress) *domain.GradeProgress {
	merged := *local
	merged.ServerID = server.ServerID
	merged.WordsCompleted = max(local.WordsCompleted, server.WordsCompleted)
	switch {
	case merged.CompletedAt == nil:
		merged.CompletedAt = server.CompletedAt
	case server.CompletedAt != nil && server.CompletedAt.Before(*merged.CompletedAt):
		merged.CompletedAt = server.CompletedAt
	}
	if server.UpdatedAt.After(local.UpdatedAt) {
		merged.UpdatedAt = server.UpdatedAt
	}
	return &merged
}
