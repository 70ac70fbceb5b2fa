package domain

import (
	"time"

	"github.com/google/uuid"
)

// WordAttempt is one entry in the normalized insert-only attempt log, keyed by
// (child, client attempt ID). It is independent of the bounded history
// embedded in WordProgress; replaying a word's attempts from this log must
// deterministically reproduce its WordProgress record.
type WordAttempt struct {
	ID              uuid.UUID  `json:"id"`
	ServerID        string     `json:"server_id,omitempty"`
	ChildID         uuid.UUID  `json:"child_id"`
	ClientAttemptID uuid.UUID  `json:"client_attempt_id"`
	WordText        string     `json:"word_text"`
	AttemptedAt     time.Time  `json:"attempted_at"`
	FirstTry        bool       `json:"first_try"`
	Correct         bool       `json:"correct"`
	ResponseMs      int        `json:"response_ms,omitempty"`
	SyncStatus      SyncStatus `json:"-"`
}

// NewWordAttempt creates an immutable attempt-log entry.
func NewWordAttempt(childID uuid.UUID, wordText string, firstTry bool, at time.Time) (*WordAttempt, error) {
	wa := &WordAttempt{
		ID:              uuid.New(),
		ChildID:         childID,
		ClientAttemptID: uuid.New(),
		WordText:        NormalizeWord(wordText),
		AttemptedAt:     at,
		FirstTry:        firstTry,
		Correct:         firstTry,
		SyncStatus:      SyncStatusCreated,
	}
	if err := wa.Validate(); err != nil {
		return nil, err
	}
	return wa, nil
}

// Validate checks the record's invariants.
func (wa *WordAttempt) Validate() error {
	if wa.ChildID == uuid.Nil {
		return ErrEmptyChildID
	}
	if wa.ClientAttemptID == uuid.Nil {
		return ErrEmptyClientID
	}
	if wa.WordText == "" {
		return ErrEmptyWordText
	}
	return nil
}
