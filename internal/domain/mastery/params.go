// Package mastery implements the word-mastery state machine: the pure
// transition function mapping (word progress, attempt outcome) to the next
// record, and the daily new-word introduction throttle parameters.
package mastery

import "time"

// Params defines all configurable parameters for the mastery algorithm.
type Params struct {
	// StreakRequired[L] is the correct streak needed to enter level L.
	// Index 0 is unused; levels 4 and 5 require two consecutive correct
	// recalls.
	StreakRequired [6]int

	// ReviewInterval[L] is how long after a transition into level L the word
	// comes due again.
	ReviewInterval [6]time.Duration

	// FailurePenalty is how many levels a wrong first try drops, floored at 0.
	FailurePenalty int

	// DailyNewWordLimit caps automatic introductions per child per day.
	// Manual adds and forced introductions bypass the cap.
	DailyNewWordLimit int

	// HistoryCap bounds the newest-first attempt history embedded in a
	// WordProgress record.
	HistoryCap int
}

const day = 24 * time.Hour

// NewDefaultParams returns the production parameter set: review spacing of
// 0, 1, 3, 7, 14 and 30 days by level, single-streak gates for levels 1-3 and
// double-streak gates for levels 4-5, a two-level failure penalty, and five
// automatic introductions per day.
func NewDefaultParams() *Params {
	return &Params{
		StreakRequired: [6]int{0, 1, 1, 1, 2, 2},
		ReviewInterval: [6]time.Duration{
			0,
			1 * day,
			3 * day,
			7 * day,
			14 * day,
			30 * day,
		},
		FailurePenalty:    2,
		DailyNewWordLimit: 5,
		HistoryCap:        20,
	}
}
