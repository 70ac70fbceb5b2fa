package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/store"
)

func newTestStores(t *testing.T) *store.Stores {
	t.Helper()
	db, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStores(db, nil)
}

func TestWordProgressCreateRejectsDuplicateActiveWord(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	childID := uuid.New()
	now := time.Now().UTC()

	wp, err := domain.NewWordProgress(childID, "knight", now)
	require.NoError(t, err)
	require.NoError(t, stores.WordProgress.Create(ctx, wp))

	dupe, err := domain.NewWordProgress(childID, "KNIGHT", now)
	require.NoError(t, err)
	err = stores.WordProgress.Create(ctx, dupe)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// Another child may track the same word.
	other, err := domain.NewWordProgress(uuid.New(), "knight", now)
	require.NoError(t, err)
	assert.NoError(t, stores.WordProgress.Create(ctx, other))
}

func TestWordProgressRoundTripPreservesEverything(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	childID := uuid.New()
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	wp, err := domain.NewWordProgress(childID, "castle", now)
	require.NoError(t, err)
	lastAttempt := now.Add(-time.Hour)
	wp.Level = 3
	wp.Streak = 2
	wp.TimesUsed = 7
	wp.TimesCorrect = 5
	wp.LastAttemptAt = &lastAttempt
	wp.Definition = "a large fort"
	wp.AttemptHistory = []domain.AttemptRecord{{At: lastAttempt, FirstTry: true, ResponseMs: 900}}
	require.NoError(t, stores.WordProgress.Create(ctx, wp))

	got, err := stores.WordProgress.GetByID(ctx, wp.ID)
	require.NoError(t, err)
	assert.Equal(t, wp.Level, got.Level)
	assert.Equal(t, wp.TimesUsed, got.TimesUsed)
	assert.Equal(t, "a large fort", got.Definition)
	require.NotNil(t, got.LastAttemptAt)
	assert.True(t, got.LastAttemptAt.Equal(lastAttempt))
	require.Len(t, got.AttemptHistory, 1)
	assert.Equal(t, 900, got.AttemptHistory[0].ResponseMs)
	assert.Equal(t, domain.SyncStatusCreated, got.SyncStatus)
}

func TestWordProgressListDueOrdersByReviewDate(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	childID := uuid.New()
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	for i, word := range []string{"late", "early", "future"} {
		wp, err := domain.NewWordProgress(childID, word, now)
		require.NoError(t, err)
		introducedAt := now
		wp.IntroducedAt = &introducedAt
		switch i {
		case 0:
			wp.NextReviewAt = now.Add(-time.Hour)
		case 1:
			wp.NextReviewAt = now.Add(-24 * time.Hour)
		case 2:
			wp.NextReviewAt = now.Add(24 * time.Hour)
		}
		require.NoError(t, stores.WordProgress.Create(ctx, wp))
	}

	due, err := stores.WordProgress.ListDue(ctx, childID, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2, "words due in the future stay out")
	assert.Equal(t, "early", due[0].WordText, "oldest review date first")
	assert.Equal(t, "late", due[1].WordText)
}

func TestWordProgressMarkSyncedClearsPending(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	childID := uuid.New()

	wp, err := domain.NewWordProgress(childID, "tiger", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, stores.WordProgress.Create(ctx, wp))

	pending, err := stores.WordProgress.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, stores.WordProgress.MarkSynced(ctx, wp.ID, "srv-9", wp.UpdatedAt))
	pending, err = stores.WordProgress.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := stores.WordProgress.GetByID(ctx, wp.ID)
	require.NoError(t, err)
	assert.Equal(t, "srv-9", got.ServerID)
	assert.Equal(t, domain.SyncStatusSynced, got.SyncStatus)
}

func TestWordProgressMarkSyncedSkipsRowChangedSinceSnapshot(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	childID := uuid.New()
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	wp, err := domain.NewWordProgress(childID, "wizard", now)
	require.NoError(t, err)
	require.NoError(t, stores.WordProgress.Create(ctx, wp))
	snapshot := wp.UpdatedAt

	// A write lands after the row was collected for a push.
	wp.Definition = "a spell caster"
	wp.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, stores.WordProgress.Update(ctx, wp))

	require.NoError(t, stores.WordProgress.MarkSynced(ctx, wp.ID, "srv-3", snapshot))

	got, err := stores.WordProgress.GetByID(ctx, wp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusCreated, got.SyncStatus, "the newer change must stay pending")
	assert.Empty(t, got.ServerID)

	pending, err := stores.WordProgress.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestWordProgressGetByWordIncludingArchived(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	childID := uuid.New()
	now := time.Now().UTC()

	wp, err := domain.NewWordProgress(childID, "dragon", now)
	require.NoError(t, err)
	wp.Active = false
	archivedAt := now
	wp.ArchivedAt = &archivedAt
	require.NoError(t, stores.WordProgress.Create(ctx, wp))

	_, err = stores.WordProgress.GetByWord(ctx, childID, "dragon")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := stores.WordProgress.GetByWordIncludingArchived(ctx, childID, "DRAGON ")
	require.NoError(t, err)
	assert.Equal(t, wp.ID, got.ID)
	assert.False(t, got.Active)
}

func TestGameSessionLookupByClientSessionID(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	childID := uuid.New()
	playedAt := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	gs, err := domain.NewGameSession(childID, domain.GameModeSpelling, playedAt)
	require.NoError(t, err)
	gs.WordsTotal = 5
	gs.WordsCorrect = 5
	gs.Trophy = domain.TrophyGold
	gs.CompletedWords = []string{"a", "b"}
	require.NoError(t, stores.GameSessions.Create(ctx, gs))

	got, err := stores.GameSessions.GetByClientSessionID(ctx, childID, gs.ClientSessionID)
	require.NoError(t, err)
	assert.Equal(t, gs.ID, got.ID)
	assert.Equal(t, domain.TrophyGold, got.Trophy)
	assert.Equal(t, []string{"a", "b"}, got.CompletedWords)

	_, err = stores.GameSessions.GetByClientSessionID(ctx, childID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGameSessionListByChildRespectsTimeWindow(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	childID := uuid.New()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for d := 0; d < 3; d++ {
		gs, err := domain.NewGameSession(childID, domain.GameModeSpelling, base.AddDate(0, 0, d))
		require.NoError(t, err)
		require.NoError(t, stores.GameSessions.Create(ctx, gs))
	}

	window, err := stores.GameSessions.ListByChild(ctx, childID, base.AddDate(0, 0, 1), base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Len(t, window, 1)

	all, err := stores.GameSessions.ListByChild(ctx, childID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCursorStoreIsPerChild(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	childA := uuid.New()
	childB := uuid.New()
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	got, err := stores.Cursors.Get(ctx, childA)
	require.NoError(t, err)
	assert.Nil(t, got, "a child that never synced has no cursor")

	require.NoError(t, stores.Cursors.Set(ctx, childA, at))
	got, err = stores.Cursors.Get(ctx, childA)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(at))

	got, err = stores.Cursors.Get(ctx, childB)
	require.NoError(t, err)
	assert.Nil(t, got, "cursors never leak across children")

	require.NoError(t, stores.Cursors.Delete(ctx, childA))
	got, err = stores.Cursors.Get(ctx, childA)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCatalogUpsertRefreshesAndDeletes(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	now := time.Now().UTC()

	words := []*domain.CatalogWord{
		{ServerID: "cat-1", Grade: 1, WordText: "apple", ServerUpdatedAt: now},
		{ServerID: "cat-2", Grade: 1, WordText: "tiger", ServerUpdatedAt: now},
	}
	require.NoError(t, stores.Catalog.UpsertBatch(ctx, words))

	// Re-upserting the same server id updates in place.
	words[0].Definition = "a fruit"
	require.NoError(t, stores.Catalog.UpsertBatch(ctx, words[:1]))

	grade1, err := stores.Catalog.ListByGrade(ctx, 1)
	require.NoError(t, err)
	require.Len(t, grade1, 2)

	got, err := stores.Catalog.GetByServerID(ctx, "cat-1")
	require.NoError(t, err)
	assert.Equal(t, "a fruit", got.Definition)

	require.NoError(t, stores.Catalog.DeleteByServerIDs(ctx, []string{"cat-1"}))
	grade1, err = stores.Catalog.ListByGrade(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, grade1, 1)
}

func TestRotationCounterAccumulatesPerDay(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	childID := uuid.New()

	n, err := stores.Rotation.IntroducedOn(ctx, childID, "2026-08-20")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, stores.Rotation.AddIntroduced(ctx, childID, "2026-08-20", 3))
	require.NoError(t, stores.Rotation.AddIntroduced(ctx, childID, "2026-08-20", 2))
	n, err = stores.Rotation.IntroducedOn(ctx, childID, "2026-08-20")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// A new day starts from zero.
	n, err = stores.Rotation.IntroducedOn(ctx, childID, "2026-08-21")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStatisticsSideTablesSurviveRoundTrip(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	childID := uuid.New()
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	st, err := domain.NewStatistics(childID, domain.GameModeSpelling, now)
	require.NoError(t, err)
	st.RecordWordResult("knight", true, now)
	st.RecordWordResult("castle", false, now)
	require.NoError(t, stores.Statistics.Create(ctx, st))

	got, err := stores.Statistics.GetByMode(ctx, childID, domain.GameModeSpelling)
	require.NoError(t, err)
	assert.Equal(t, 1, got.WordAccuracy["knight"].Correct)
	assert.Equal(t, 1, got.ErrorPatterns["castle"])
	assert.Contains(t, got.FirstCorrectAt, "knight")
}

func TestDeleteByChildLeavesOtherChildrenAlone(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	childA := uuid.New()
	childB := uuid.New()
	now := time.Now().UTC()

	for i, childID := range []uuid.UUID{childA, childB} {
		wp, err := domain.NewWordProgress(childID, fmt.Sprintf("word%d", i), now)
		require.NoError(t, err)
		require.NoError(t, stores.WordProgress.Create(ctx, wp))
	}

	require.NoError(t, stores.WordProgress.DeleteByChild(ctx, childA))

	rowsA, err := stores.WordProgress.ListByChild(ctx, childA)
	require.NoError(t, err)
	assert.Empty(t, rowsA)
	rowsB, err := stores.WordProgress.ListByChild(ctx, childB)
	require.NoError(t, err)
	assert.Len(t, rowsB, 1)
}
