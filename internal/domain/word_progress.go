package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mastery level bounds. Level 0 is an unpracticed word, level 5 is mastered.
const (
	MinMasteryLevel = 0
	MaxMasteryLevel = 5
)

// AttemptHistoryCap bounds the embedded attempt history on a WordProgress
// record. Older entries fall off; the full log lives in WordAttempt rows.
const AttemptHistoryCap = 20

// SyncStatus marks a row's position in the push pipeline. Rows written by the
// sync applier are "synced"; any local mutation outside sync marks the row
// pending until the next successful push.
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusCreated SyncStatus = "created"
	SyncStatusUpdated SyncStatus = "updated"
	SyncStatusDeleted SyncStatus = "deleted"
)

// AttemptRecord is one entry in the bounded newest-first history embedded in a
// WordProgress row. Persisted as a JSON column.
type AttemptRecord struct {
	At         time.Time `json:"at"`
	FirstTry   bool      `json:"first_try"`
	ResponseMs int       `json:"response_ms,omitempty"`
}

// WordProgress tracks one child's learning state for one word. There is
// exactly one active row per (child, normalized word text); that pair is the
// record's business key during sync, never the row ID.
//
// Level and streak change only through the mastery engine, which also derives
// NextReviewAt from the level reached at the last transition.
type WordProgress struct {
	ID             uuid.UUID       `json:"id"`
	ServerID       string          `json:"server_id,omitempty"`
	ChildID        uuid.UUID       `json:"child_id"`
	WordText       string          `json:"word_text"`
	Level          int             `json:"level"`
	Streak         int             `json:"streak"`
	TimesUsed      int             `json:"times_used"`
	TimesCorrect   int             `json:"times_correct"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
	NextReviewAt   time.Time       `json:"next_review_at"`
	IntroducedAt   *time.Time      `json:"introduced_at,omitempty"` // nil = known but not yet in rotation
	Active         bool            `json:"active"`
	ArchivedAt     *time.Time      `json:"archived_at,omitempty"`
	Definition     string          `json:"definition,omitempty"`
	Example        string          `json:"example,omitempty"`
	AttemptHistory []AttemptRecord `json:"attempt_history,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
	SyncStatus     SyncStatus      `json:"-"`
}

// NormalizeWord canonicalizes word text for business-key matching so that
// case and whitespace variants of the same word never produce separate rows.
func NormalizeWord(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// NewWordProgress creates a fresh record for a word a child has just been
// given. The word starts at level 0 outside the daily rotation; introducing
// it stamps IntroducedAt and schedules the first review.
func NewWordProgress(childID uuid.UUID, wordText string, now time.Time) (*WordProgress, error) {
	wp := &WordProgress{
		ID:           uuid.New(),
		ChildID:      childID,
		WordText:     NormalizeWord(wordText),
		Level:        MinMasteryLevel,
		NextReviewAt: now,
		Active:       true,
		UpdatedAt:    now,
		SyncStatus:   SyncStatusCreated,
	}
	if err := wp.Validate(); err != nil {
		return nil, err
	}
	return wp, nil
}

// Validate checks the record's invariants.
func (wp *WordProgress) Validate() error {
	if wp.ChildID == uuid.Nil {
		return ErrEmptyChildID
	}
	if wp.WordText == "" {
		return ErrEmptyWordText
	}
	if wp.Level < MinMasteryLevel || wp.Level > MaxMasteryLevel {
		return ErrInvalidLevel
	}
	if wp.Streak < 0 {
		return ErrInvalidStreak
	}
	if wp.TimesUsed < 0 || wp.TimesCorrect < 0 || wp.TimesCorrect > wp.TimesUsed {
		return ErrInvalidCounts
	}
	return nil
}

// InRotation reports whether the word has been introduced and is actively
// scheduled for review.
func (wp *WordProgress) InRotation() bool {
	return wp.Active && wp.IntroducedAt != nil
}

// DueAt reports whether the word is due for review at the given time.
func (wp *WordProgress) DueAt(now time.Time) bool {
	return wp.InRotation() && !wp.NextReviewAt.After(now)
}
