package domain

import (
	"time"

	"github.com/google/uuid"
)

// Statistics aggregates a child's lifetime results for one game mode bucket.
// One row per (child, mode). The JSON side-tables are mergeable maps keyed by
// normalized word text, so two devices can both contribute without losing
// entries.
type Statistics struct {
	ID               uuid.UUID               `json:"id"`
	ServerID         string                  `json:"server_id,omitempty"`
	ChildID          uuid.UUID               `json:"child_id"`
	Mode             GameMode                `json:"mode"`
	TotalGamesPlayed int                     `json:"total_games_played"`
	TotalWordsPlayed int                     `json:"total_words_played"`
	TotalCorrect     int                     `json:"total_correct"`
	CurrentStreak    int                     `json:"current_streak"`
	BestStreak       int                     `json:"best_streak"`
	GoldTrophies     int                     `json:"gold_trophies"`
	SilverTrophies   int                     `json:"silver_trophies"`
	BronzeTrophies   int                     `json:"bronze_trophies"`
	WordAccuracy     map[string]WordAccuracy `json:"word_accuracy,omitempty"`
	FirstCorrectAt   map[string]time.Time    `json:"first_correct_at,omitempty"`
	PersonalBests    map[string]int          `json:"personal_bests,omitempty"`
	ErrorPatterns    map[string]int          `json:"error_patterns,omitempty"`
	UpdatedAt        time.Time               `json:"updated_at"`
	SyncStatus       SyncStatus              `json:"-"`
}

// WordAccuracy is a per-word attempt/correct tally inside the statistics
// side-table.
type WordAccuracy struct {
	Attempts int `json:"attempts"`
	Correct  int `json:"correct"`
}

// NewStatistics creates an empty statistics bucket for a child and mode.
func NewStatistics(childID uuid.UUID, mode GameMode, now time.Time) (*Statistics, error) {
	st := &Statistics{
		ID:         uuid.New(),
		ChildID:    childID,
		Mode:       mode,
		UpdatedAt:  now,
		SyncStatus: SyncStatusCreated,
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return st, nil
}

// Validate checks the record's invariants.
func (st *Statistics) Validate() error {
	if st.ChildID == uuid.Nil {
		return ErrEmptyChildID
	}
	if !ValidGameMode(st.Mode) {
		return ErrInvalidGameMode
	}
	if st.TotalGamesPlayed < 0 || st.TotalWordsPlayed < 0 || st.TotalCorrect < 0 {
		return ErrInvalidCounts
	}
	return nil
}

// RecordSession folds one finished session into the bucket's totals.
func (st *Statistics) RecordSession(gs *GameSession, now time.Time) {
	st.TotalGamesPlayed++
	st.TotalWordsPlayed += gs.WordsTotal
	st.TotalCorrect += gs.WordsCorrect
	if gs.WordsCorrect == gs.WordsTotal && gs.WordsTotal > 0 {
		st.CurrentStreak++
		if st.CurrentStreak > st.BestStreak {
			st.BestStreak = st.CurrentStreak
		}
	} else {
		st.CurrentStreak = 0
	}
	switch gs.Trophy {
	case TrophyGold:
		st.GoldTrophies++
	case TrophySilver:
		st.SilverTrophies++
	case TrophyBronze:
		st.BronzeTrophies++
	}
	st.UpdatedAt = now
}

// RecordWordResult folds one word attempt into the per-word side-tables.
func (st *Statistics) RecordWordResult(word string, correct bool, now time.Time) {
	word = NormalizeWord(word)
	if st.WordAccuracy == nil {
		st.WordAccuracy = make(map[string]WordAccuracy)
	}
	acc := st.WordAccuracy[word]
	acc.Attempts++
	if correct {
		acc.Correct++
		if st.FirstCorrectAt == nil {
			st.FirstCorrectAt = make(map[string]time.Time)
		}
		if _, seen := st.FirstCorrectAt[word]; !seen {
			st.FirstCorrectAt[word] = now
		}
	} else {
		if st.ErrorPatterns == nil {
			st.ErrorPatterns = make(map[string]int)
		}
		st.ErrorPatterns[word]++
	}
	st.WordAccuracy[word] = acc
	st.UpdatedAt = now
}
