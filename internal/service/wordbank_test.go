package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/domain/mastery"
	"github.com/wordnest/wordnest/internal/generation"
	"github.com/wordnest/wordnest/internal/store"
)

func newTestWordBank(t *testing.T, stores *store.Stores) *WordBank {
	t.Helper()
	wb, err := NewWordBank(stores, nil, nil, nil)
	require.NoError(t, err)
	return wb
}

func TestAddWordRejectsDuplicate(t *testing.T) {
	stores := newTestStores(t)
	wb := newTestWordBank(t, stores)
	ctx := context.Background()
	childID := uuid.New()

	_, err := wb.AddWord(ctx, childID, "Knight", "a mounted soldier", "")
	require.NoError(t, err)

	// Case and whitespace variants are the same word.
	_, err = wb.AddWord(ctx, childID, "  knight ", "", "")
	assert.ErrorIs(t, err, ErrWordExists)
}

func TestAddedWordWaitsOutsideRotation(t *testing.T) {
	stores := newTestStores(t)
	wb := newTestWordBank(t, stores)
	ctx := context.Background()
	childID := uuid.New()

	wp, err := wb.AddWord(ctx, childID, "castle", "", "")
	require.NoError(t, err)
	assert.Nil(t, wp.IntroducedAt)

	due, err := wb.DueWords(ctx, childID, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "words enter the review queue only through introduction")
}

func TestIntroduceBatchHonorsDailyLimit(t *testing.T) {
	stores := newTestStores(t)
	wb := newTestWordBank(t, stores)
	ctx := context.Background()
	childID := uuid.New()

	for i := 0; i < 7; i++ {
		_, err := wb.AddWord(ctx, childID, fmt.Sprintf("word%02d", i), "", "")
		require.NoError(t, err)
	}

	limit := mastery.NewDefaultParams().DailyNewWordLimit
	introduced, err := wb.IntroduceBatch(ctx, childID, 0, false)
	require.NoError(t, err)
	assert.Len(t, introduced, limit)

	// The day's budget is spent.
	_, err = wb.IntroduceBatch(ctx, childID, 0, false)
	assert.ErrorIs(t, err, mastery.ErrDailyLimit)

	// A forced introduction ignores the counter.
	forced, err := wb.IntroduceBatch(ctx, childID, 0, true)
	require.NoError(t, err)
	assert.Len(t, forced, 7-limit)
}

func TestIntroduceBatchCountsAcrossCalls(t *testing.T) {
	stores := newTestStores(t)
	wb := newTestWordBank(t, stores)
	ctx := context.Background()
	childID := uuid.New()

	for i := 0; i < 6; i++ {
		_, err := wb.AddWord(ctx, childID, fmt.Sprintf("word%02d", i), "", "")
		require.NoError(t, err)
	}

	first, err := wb.IntroduceBatch(ctx, childID, 3, false)
	require.NoError(t, err)
	require.Len(t, first, 3)

	second, err := wb.IntroduceBatch(ctx, childID, 0, false)
	require.NoError(t, err)
	assert.Len(t, second, 2, "the second batch gets only the remaining budget")
}

func TestIntroducedWordIsDue(t *testing.T) {
	stores := newTestStores(t)
	wb := newTestWordBank(t, stores)
	ctx := context.Background()
	childID := uuid.New()

	_, err := wb.AddWord(ctx, childID, "tiger", "", "")
	require.NoError(t, err)
	_, err = wb.IntroduceBatch(ctx, childID, 1, false)
	require.NoError(t, err)

	due, err := wb.DueWords(ctx, childID, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "tiger", due[0].WordText)
}

func TestArchiveAndUnarchiveKeepMastery(t *testing.T) {
	stores := newTestStores(t)
	wb := newTestWordBank(t, stores)
	ctx := context.Background()
	childID := uuid.New()

	wp, err := wb.AddWord(ctx, childID, "dragon", "", "")
	require.NoError(t, err)
	wp.Level = 3
	wp.Streak = 1
	wp.TimesUsed = 5
	wp.TimesCorrect = 4
	require.NoError(t, stores.WordProgress.Update(ctx, wp))

	require.NoError(t, wb.Archive(ctx, childID, "dragon"))
	_, err = stores.WordProgress.GetByWord(ctx, childID, "dragon")
	assert.ErrorIs(t, err, store.ErrNotFound, "archived words leave the gameplay view")
	archived, err := stores.WordProgress.GetByWordIncludingArchived(ctx, childID, "dragon")
	require.NoError(t, err)
	assert.False(t, archived.Active)
	assert.NotNil(t, archived.ArchivedAt)

	require.NoError(t, wb.Unarchive(ctx, childID, "dragon"))
	restored, err := stores.WordProgress.GetByWord(ctx, childID, "dragon")
	require.NoError(t, err)
	assert.True(t, restored.Active)
	assert.Nil(t, restored.ArchivedAt)
	assert.Equal(t, 3, restored.Level, "archival must not touch mastery")
}

func TestReAddingArchivedWordResurrectsRow(t *testing.T) {
	stores := newTestStores(t)
	wb := newTestWordBank(t, stores)
	ctx := context.Background()
	childID := uuid.New()

	wp, err := wb.AddWord(ctx, childID, "cat", "a small pet", "")
	require.NoError(t, err)
	wp.Level = 2
	wp.TimesUsed = 4
	wp.TimesCorrect = 3
	require.NoError(t, stores.WordProgress.Update(ctx, wp))
	require.NoError(t, wb.Archive(ctx, childID, "cat"))

	restored, err := wb.AddWord(ctx, childID, "cat", "a feline companion", "")
	require.NoError(t, err)
	assert.True(t, restored.Active)
	assert.Nil(t, restored.ArchivedAt)
	assert.Equal(t, 2, restored.Level, "resurrection keeps mastery")
	assert.Equal(t, "a feline companion", restored.Definition)

	rows, err := stores.WordProgress.ListByChild(ctx, childID)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "one row per (child, word), archived history included")
}

func TestImportGradeSkipsArchivedWords(t *testing.T) {
	stores := newTestStores(t)
	wb := newTestWordBank(t, stores)
	ctx := context.Background()
	childID := uuid.New()
	now := time.Now().UTC()

	require.NoError(t, stores.Catalog.UpsertBatch(ctx, []*domain.CatalogWord{
		{ServerID: "cat-1", Grade: 1, WordText: "apple", ServerUpdatedAt: now},
	}))
	_, err := wb.AddWord(ctx, childID, "apple", "", "")
	require.NoError(t, err)
	require.NoError(t, wb.Archive(ctx, childID, "apple"))

	added, err := wb.ImportGrade(ctx, childID, 1)
	require.NoError(t, err)
	assert.Zero(t, added, "the parent removed the word on purpose")

	rows, err := stores.WordProgress.ListByChild(ctx, childID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Active)
}

func TestArchiveUnknownWord(t *testing.T) {
	wb := newTestWordBank(t, newTestStores(t))
	err := wb.Archive(context.Background(), uuid.New(), "ghost")
	assert.ErrorIs(t, err, ErrWordNotFound)
}

type fakeGenerator struct {
	defineFn func(word string, grade int) (*generation.Definition, error)
	calls    int
}

func (f *fakeGenerator) Define(ctx context.Context, word string, grade int) (*generation.Definition, error) {
	f.calls++
	return f.defineFn(word, grade)
}

func TestEnrichDefinitionsFillsMissingOnly(t *testing.T) {
	stores := newTestStores(t)
	wb := newTestWordBank(t, stores)
	ctx := context.Background()
	childID := uuid.New()

	_, err := wb.AddWord(ctx, childID, "knight", "a mounted soldier", "")
	require.NoError(t, err)
	_, err = wb.AddWord(ctx, childID, "castle", "", "")
	require.NoError(t, err)

	gen := &fakeGenerator{defineFn: func(word string, grade int) (*generation.Definition, error) {
		return &generation.Definition{Word: word, Definition: "a large fort", Example: "The castle stood tall."}, nil
	}}
	enriched, err := wb.EnrichDefinitions(ctx, childID, gen, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, enriched)
	assert.Equal(t, 1, gen.calls, "words with definitions are left alone")

	castle, err := stores.WordProgress.GetByWord(ctx, childID, "castle")
	require.NoError(t, err)
	assert.Equal(t, "a large fort", castle.Definition)
	assert.Equal(t, domain.SyncStatusCreated, castle.SyncStatus)
}

func TestEnrichDefinitionsSkipsFailedWords(t *testing.T) {
	stores := newTestStores(t)
	wb := newTestWordBank(t, stores)
	ctx := context.Background()
	childID := uuid.New()

	_, err := wb.AddWord(ctx, childID, "alpha", "", "")
	require.NoError(t, err)
	_, err = wb.AddWord(ctx, childID, "beta", "", "")
	require.NoError(t, err)

	gen := &fakeGenerator{defineFn: func(word string, grade int) (*generation.Definition, error) {
		if word == "alpha" {
			return nil, generation.ErrContentBlocked
		}
		return &generation.Definition{Word: word, Definition: "second letter"}, nil
	}}
	enriched, err := wb.EnrichDefinitions(ctx, childID, gen, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, enriched)
}

func TestImportGradeSkipsExistingWords(t *testing.T) {
	stores := newTestStores(t)
	wb := newTestWordBank(t, stores)
	ctx := context.Background()
	childID := uuid.New()
	now := time.Now().UTC()

	require.NoError(t, stores.Catalog.UpsertBatch(ctx, []*domain.CatalogWord{
		{ServerID: "cat-1", Grade: 1, WordText: "apple", Definition: "a fruit", ServerUpdatedAt: now},
		{ServerID: "cat-2", Grade: 1, WordText: "tiger", ServerUpdatedAt: now},
		{ServerID: "cat-3", Grade: 2, WordText: "bicycle", ServerUpdatedAt: now},
	}))

	// The child already knows one grade-1 word.
	_, err := wb.AddWord(ctx, childID, "apple", "", "")
	require.NoError(t, err)

	added, err := wb.ImportGrade(ctx, childID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, added, "only the unseen grade-1 word is new")

	tiger, err := stores.WordProgress.GetByWord(ctx, childID, "tiger")
	require.NoError(t, err)
	assert.Nil(t, tiger.IntroducedAt)

	// Re-importing is a no-op.
	added, err = wb.ImportGrade(ctx, childID, 1)
	require.NoError(t, err)
	assert.Zero(t, added)
}
