package domain

import (
	"time"

	"github.com/google/uuid"
)

// LearningProgress holds a child's lifetime points and milestone position.
// At most one row per child; its business key is the child ID itself.
// Points only ever go up, enforced by the max-merge policy during sync.
type LearningProgress struct {
	ID             uuid.UUID  `json:"id"`
	ServerID       string     `json:"server_id,omitempty"`
	ChildID        uuid.UUID  `json:"child_id"`
	LifetimePoints int        `json:"lifetime_points"`
	Milestone      int        `json:"milestone"`
	UpdatedAt      time.Time  `json:"updated_at"`
	SyncStatus     SyncStatus `json:"-"`
}

// NewLearningProgress creates the single lifetime-progress row for a child.
func NewLearningProgress(childID uuid.UUID, now time.Time) (*LearningProgress, error) {
	lp := &LearningProgress{
		ID:         uuid.New(),
		ChildID:    childID,
		UpdatedAt:  now,
		SyncStatus: SyncStatusCreated,
	}
	if err := lp.Validate(); err != nil {
		return nil, err
	}
	return lp, nil
}

// Validate checks the record's invariants.
func (lp *LearningProgress) Validate() error {
	if lp.ChildID == uuid.Nil {
		return ErrEmptyChildID
	}
	if lp.LifetimePoints < 0 {
		return ErrInvalidCounts
	}
	return nil
}

// GradeProgress tracks how far a child has worked through one grade's word
// bank. One row per (child, grade); the pair is the sync business key.
type GradeProgress struct {
	ID             uuid.UUID  `json:"id"`
	ServerID       string     `json:"server_id,omitempty"`
	ChildID        uuid.UUID  `json:"child_id"`
	Grade          int        `json:"grade"`
	WordsCompleted int        `json:"words_completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
	SyncStatus     SyncStatus `json:"-"`
}

// NewGradeProgress creates the progress row for a child and grade.
func NewGradeProgress(childID uuid.UUID, grade int, now time.Time) (*GradeProgress, error) {
	gp := &GradeProgress{
		ID:         uuid.New(),
		ChildID:    childID,
		Grade:      grade,
		UpdatedAt:  now,
		SyncStatus: SyncStatusCreated,
	}
	if err := gp.Validate(); err != nil {
		return nil, err
	}
	return gp, nil
}

// Validate checks the record's invariants.
func (gp *GradeProgress) Validate() error {
	if gp.ChildID == uuid.Nil {
		return ErrEmptyChildID
	}
	if gp.Grade < 0 || gp.Grade > 12 {
		return ErrInvalidGrade
	}
	if gp.WordsCompleted < 0 {
		return ErrInvalidCounts
	}
	return nil
}
