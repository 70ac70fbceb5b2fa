package domain

import (
	"time"

	"github.com/google/uuid"
)

// CalibrationResult is an append-only record of one grade-calibration
// assessment. Same insert/dedup discipline as GameSession: immutable once
// created, business key (child, client calibration ID).
type CalibrationResult struct {
	ID                  uuid.UUID      `json:"id"`
	ServerID            string         `json:"server_id,omitempty"`
	ChildID             uuid.UUID      `json:"child_id"`
	ClientCalibrationID uuid.UUID      `json:"client_calibration_id"`
	AssessedAt          time.Time      `json:"assessed_at"`
	SuggestedGrade      int            `json:"suggested_grade"`
	Score               int            `json:"score"`
	LevelDetails        map[string]int `json:"level_details,omitempty"`
	SyncStatus          SyncStatus     `json:"-"`
}

// NewCalibrationResult creates an immutable calibration record.
func NewCalibrationResult(childID uuid.UUID, assessedAt time.Time, grade, score int) (*CalibrationResult, error) {
	cr := &CalibrationResult{
		ID:                  uuid.New(),
		ChildID:             childID,
		ClientCalibrationID: uuid.New(),
		AssessedAt:          assessedAt,
		SuggestedGrade:      grade,
		Score:               score,
		SyncStatus:          SyncStatusCreated,
	}
	if err := cr.Validate(); err != nil {
		return nil, err
	}
	return cr, nil
}

// Validate checks the record's invariants.
func (cr *CalibrationResult) Validate() error {
	if cr.ChildID == uuid.Nil {
		return ErrEmptyChildID
	}
	if cr.ClientCalibrationID == uuid.Nil {
		return ErrEmptyClientID
	}
	if cr.SuggestedGrade < 0 || cr.SuggestedGrade > 12 {
		return ErrInvalidGrade
	}
	return nil
}
