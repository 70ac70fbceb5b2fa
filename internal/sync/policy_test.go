package sync

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordnest/wordnest/internal/domain"
)

func TestMergeWordProgressCountersTakeMax(t *testing.T) {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	local := &domain.WordProgress{
		ID: uuid.New(), ChildID: uuid.New(), WordText: "cat",
		TimesUsed: 5, TimesCorrect: 4, UpdatedAt: base,
	}
	server := &domain.WordProgress{
		ServerID: "srv-1", ChildID: local.ChildID, WordText: "cat",
		TimesUsed: 8, TimesCorrect: 6, UpdatedAt: base.Add(-time.Hour),
	}

	merged := mergeWordProgress(local, server)
	assert.Equal(t, 8, merged.TimesUsed, "counters never regress below another device's tally")
	assert.Equal(t, 6, merged.TimesCorrect)
	assert.Equal(t, "srv-1", merged.ServerID)
	assert.Equal(t, local.ID, merged.ID, "merge keeps the local row id")
}

func TestMergeWordProgressMasteryIsLastWriteWins(t *testing.T) {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	local := &domain.WordProgress{
		ID: uuid.New(), ChildID: uuid.New(), WordText: "cat",
		Level: 2, Streak: 1, NextReviewAt: base.Add(24 * time.Hour), UpdatedAt: base,
	}
	server := &domain.WordProgress{
		ChildID: local.ChildID, WordText: "cat",
		Level: 4, Streak: 0, NextReviewAt: base.Add(14 * 24 * time.Hour),
	}

	t.Run("older server write loses", func(t *testing.T) {
		server.UpdatedAt = base.Add(-time.Minute)
		merged := mergeWordProgress(local, server)
		assert.Equal(t, 2, merged.Level)
		assert.Equal(t, 1, merged.Streak)
		assert.Equal(t, base, merged.UpdatedAt)
	})

	t.Run("newer server write wins", func(t *testing.T) {
		server.UpdatedAt = base.Add(time.Minute)
		merged := mergeWordProgress(local, server)
		assert.Equal(t, 4, merged.Level)
		assert.Equal(t, 0, merged.Streak)
		assert.Equal(t, server.NextReviewAt, merged.NextReviewAt)
		assert.Equal(t, server.UpdatedAt, merged.UpdatedAt)
	})
}

func TestMergeWordProgressDoesNotMutateInputs(t *testing.T) {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	local := &domain.WordProgress{ID: uuid.New(), WordText: "cat", TimesUsed: 5, UpdatedAt: base}
	server := &domain.WordProgress{ServerID: "s", WordText: "cat", TimesUsed: 8, UpdatedAt: base}

	_ = mergeWordProgress(local, server)
	assert.Equal(t, 5, local.TimesUsed)
	assert.Empty(t, local.ServerID)
}

func TestMergeStatistics(t *testing.T) {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	local := &domain.Statistics{
		ID: uuid.New(), ChildID: uuid.New(), Mode: domain.GameModeSpelling,
		TotalGamesPlayed: 10, BestStreak: 4, CurrentStreak: 2, GoldTrophies: 1,
		WordAccuracy: map[string]domain.WordAccuracy{
			"cat": {Attempts: 3, Correct: 2},
		},
		FirstCorrectAt: map[string]time.Time{"cat": base},
		UpdatedAt:      base,
	}
	server := &domain.Statistics{
		ServerID: "srv-1", ChildID: local.ChildID, Mode: domain.GameModeSpelling,
		TotalGamesPlayed: 12, BestStreak: 3, CurrentStreak: 0, GoldTrophies: 2,
		WordAccuracy: map[string]domain.WordAccuracy{
			"cat": {Attempts: 5, Correct: 2},
			"dog": {Attempts: 1, Correct: 1},
		},
		FirstCorrectAt: map[string]time.Time{"cat": base.Add(-48 * time.Hour)},
		UpdatedAt:      base.Add(time.Hour),
	}

	merged := mergeStatistics(local, server)
	assert.Equal(t, 12, merged.TotalGamesPlayed)
	assert.Equal(t, 4, merged.BestStreak)
	assert.Equal(t, 2, merged.GoldTrophies)
	assert.Equal(t, 0, merged.CurrentStreak, "current streak is last-write-wins")

	require.Contains(t, merged.WordAccuracy, "dog", "side-table entries from either side survive")
	assert.Equal(t, domain.WordAccuracy{Attempts: 5, Correct: 2}, merged.WordAccuracy["cat"])
	assert.Equal(t, base.Add(-48*time.Hour), merged.FirstCorrectAt["cat"], "earliest first-correct date wins")
}

func TestMergeLearningProgressPointsNeverRegress(t *testing.T) {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	local := &domain.LearningProgress{ID: uuid.New(), ChildID: uuid.New(), LifetimePoints: 900, Milestone: 3, UpdatedAt: base}
	server := &domain.LearningProgress{ServerID: "srv-1", ChildID: local.ChildID, LifetimePoints: 750, Milestone: 2, UpdatedAt: base.Add(time.Hour)}

	merged := mergeLearningProgress(local, server)
	assert.Equal(t, 900, merged.LifetimePoints, "a stale sync must never lower lifetime points")
	assert.Equal(t, 3, merged.Milestone)
}

func TestMergeGradeProgress(t *testing.T) {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	done := base.Add(-24 * time.Hour)
	local := &domain.GradeProgress{ID: uuid.New(), ChildID: uuid.New(), Grade: 2, WordsCompleted: 40, UpdatedAt: base}
	server := &domain.GradeProgress{ServerID: "srv-1", ChildID: local.ChildID, Grade: 2, WordsCompleted: 35, CompletedAt: &done, UpdatedAt: base.Add(-time.Hour)}

	merged := mergeGradeProgress(local, server)
	assert.Equal(t, 40, merged.WordsCompleted)
	require.NotNil(t, merged.CompletedAt)
	assert.Equal(t, done, *merged.CompletedAt)
}
