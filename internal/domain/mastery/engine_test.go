package mastery

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordnest/wordnest/internal/domain"
)

func newTestProgress(t *testing.T, level, streak int) *domain.WordProgress {
	t.Helper()
	wp, err := domain.NewWordProgress(uuid.New(), "receive", time.Now().UTC())
	require.NoError(t, err)
	wp.Level = level
	wp.Streak = streak
	wp.TimesUsed = streak
	wp.TimesCorrect = streak
	return wp
}

func TestNextLevel(t *testing.T) {
	t.Parallel()
	params := NewDefaultParams()

	testCases := []struct {
		name       string
		level      int
		streak     int
		firstTry   bool
		wantLevel  int
		wantStreak int
	}{
		{
			name:       "first success at level 0 advances to 1",
			level:      0,
			streak:     0,
			firstTry:   true,
			wantLevel:  1,
			wantStreak: 1,
		},
		{
			name:       "success at level 3 with no streak stays put",
			level:      3,
			streak:     0,
			firstTry:   true,
			wantLevel:  3,
			wantStreak: 1,
		},
		{
			name:       "second consecutive success at level 3 enters level 4",
			level:      3,
			streak:     1,
			firstTry:   true,
			wantLevel:  4,
			wantStreak: 2,
		},
		{
			name:       "long streak carries through the level 5 gate",
			level:      4,
			streak:     2,
			firstTry:   true,
			wantLevel:  5,
			wantStreak: 3,
		},
		{
			name:       "success at level 5 stays mastered",
			level:      5,
			streak:     7,
			firstTry:   true,
			wantLevel:  5,
			wantStreak: 8,
		},
		{
			name:       "failure drops two levels and resets streak",
			level:      4,
			streak:     3,
			firstTry:   false,
			wantLevel:  2,
			wantStreak: 0,
		},
		{
			name:       "failure at level 1 floors at zero",
			level:      1,
			streak:     2,
			firstTry:   false,
			wantLevel:  0,
			wantStreak: 0,
		},
		{
			name:       "failure at level 0 stays at zero",
			level:      0,
			streak:     0,
			firstTry:   false,
			wantLevel:  0,
			wantStreak: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotLevel, gotStreak := nextLevel(tc.level, tc.streak, tc.firstTry, params)
			assert.Equal(t, tc.wantLevel, gotLevel, "level")
			assert.Equal(t, tc.wantStreak, gotStreak, "streak")
		})
	}
}

// One more success at any level below 5 whose gate is already met must yield
// the next level and a strictly later next review.
func TestAdvanceMonotonicity(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	params := svc.Params()
	now := time.Now().UTC()

	for level := 0; level < domain.MaxMasteryLevel; level++ {
		wp := newTestProgress(t, level, params.StreakRequired[level+1]-1)
		wp.NextReviewAt = now.Add(-time.Hour)

		next, err := svc.ApplyAttempt(wp, Outcome{FirstTry: true}, now)
		require.NoError(t, err)
		assert.Equal(t, level+1, next.Level, "level %d should advance", level)
		assert.True(t, next.NextReviewAt.After(wp.NextReviewAt),
			"next review must move strictly later")
	}
}

func TestFailurePenaltyBound(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	now := time.Now().UTC()

	for level := 0; level <= domain.MaxMasteryLevel; level++ {
		for _, streak := range []int{0, 1, 5} {
			wp := newTestProgress(t, level, streak)
			next, err := svc.ApplyAttempt(wp, Outcome{FirstTry: false}, now)
			require.NoError(t, err)

			want := level - 2
			if want < 0 {
				want = 0
			}
			assert.Equal(t, want, next.Level, "level %d streak %d", level, streak)
			assert.Equal(t, 0, next.Streak, "streak must reset on failure")
		}
	}
}

// Word "receive" at level 2, streak 1: a success advances to level 3 with
// streak 2 (streak resets only on failure) and reschedules the review a full
// level-3 interval out.
func TestReceiveScenario(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	now := time.Now().UTC()

	wp := newTestProgress(t, 2, 1)
	next, err := svc.ApplyAttempt(wp, Outcome{FirstTry: true, ResponseMs: 2400}, now)
	require.NoError(t, err)

	assert.Equal(t, 3, next.Level)
	assert.Equal(t, 2, next.Streak)
	assert.Equal(t, now.Add(7*day), next.NextReviewAt)
	assert.Equal(t, wp.TimesUsed+1, next.TimesUsed)
	assert.Equal(t, wp.TimesCorrect+1, next.TimesCorrect)
	require.NotNil(t, next.LastAttemptAt)
	assert.Equal(t, now, *next.LastAttemptAt)
}

func TestApplyAttemptDoesNotMutateInput(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	now := time.Now().UTC()

	wp := newTestProgress(t, 2, 1)
	before := *wp
	_, err := svc.ApplyAttempt(wp, Outcome{FirstTry: true}, now)
	require.NoError(t, err)
	assert.Equal(t, before.Level, wp.Level)
	assert.Equal(t, before.Streak, wp.Streak)
	assert.Equal(t, before.TimesUsed, wp.TimesUsed)
}

// Replaying the same attempt sequence from an empty record must reproduce the
// same final state, which is what keeps the WordAttempt log authoritative.
func TestReplayDeterminism(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	childID := uuid.New()

	outcomes := []bool{true, true, false, true, true, true, false, true, true, true, true}

	replay := func() *domain.WordProgress {
		wp, err := domain.NewWordProgress(childID, "knight", base)
		require.NoError(t, err)
		for i, ok := range outcomes {
			at := base.Add(time.Duration(i) * 24 * time.Hour)
			wp, err = svc.ApplyAttempt(wp, Outcome{FirstTry: ok}, at)
			require.NoError(t, err)
		}
		return wp
	}

	first := replay()
	second := replay()

	assert.Equal(t, first.Level, second.Level)
	assert.Equal(t, first.Streak, second.Streak)
	assert.Equal(t, first.TimesUsed, second.TimesUsed)
	assert.Equal(t, first.TimesCorrect, second.TimesCorrect)
	assert.Equal(t, first.NextReviewAt, second.NextReviewAt)
	assert.Equal(t, first.AttemptHistory, second.AttemptHistory)
}

func TestHistoryBounded(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	now := time.Now().UTC()

	wp := newTestProgress(t, 0, 0)
	var err error
	for i := 0; i < 30; i++ {
		wp, err = svc.ApplyAttempt(wp, Outcome{FirstTry: i%2 == 0}, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	assert.Len(t, wp.AttemptHistory, svc.Params().HistoryCap)
	// Newest first.
	assert.True(t, wp.AttemptHistory[0].At.After(wp.AttemptHistory[1].At))
}

func TestIntroduceArchiveLifecycle(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	now := time.Now().UTC()

	wp := newTestProgress(t, 3, 1)
	require.Nil(t, wp.IntroducedAt)
	require.False(t, wp.InRotation())

	introduced, err := svc.Introduce(wp, now)
	require.NoError(t, err)
	require.NotNil(t, introduced.IntroducedAt)
	assert.Equal(t, now, introduced.NextReviewAt)
	assert.True(t, introduced.InRotation())
	assert.Equal(t, 3, introduced.Level, "introduction must not touch mastery")

	_, err = svc.Introduce(introduced, now)
	assert.ErrorIs(t, err, ErrAlreadyInRotation)

	archived, err := svc.Archive(introduced, now)
	require.NoError(t, err)
	assert.False(t, archived.Active)
	require.NotNil(t, archived.ArchivedAt)
	assert.Equal(t, 3, archived.Level, "archive keeps history")

	_, err = svc.ApplyAttempt(archived, Outcome{FirstTry: true}, now)
	assert.ErrorIs(t, err, ErrNotActive)

	restored, err := svc.Unarchive(archived, now)
	require.NoError(t, err)
	assert.True(t, restored.Active)
	assert.Nil(t, restored.ArchivedAt)
	assert.Equal(t, 3, restored.Level, "unarchive must not reset mastery")
}

func TestIntroductionBudget(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	limit := svc.Params().DailyNewWordLimit

	assert.Equal(t, limit, svc.IntroductionBudget(0))
	assert.Equal(t, 1, svc.IntroductionBudget(limit-1))
	assert.Equal(t, 0, svc.IntroductionBudget(limit))
	assert.Equal(t, 0, svc.IntroductionBudget(limit+3))
}
