// Package sync implements the offline-first synchronization engine: the
// change transformer between local rows and backend records, the business-key
// reconciler, the conflict policy, and the per-child orchestrator.
package sync

import (
	"context"
	"encoding/json"

	"github.com/wordnest/wordnest/internal/store"
)

// Wire table names. The push payload and the id-mapping response are keyed by
// the same names as the local tables.
const (
	TableWordProgress     = store.TableWordProgress
	TableGameSessions     = store.TableGameSessions
	TableStatistics       = store.TableStatistics
	TableCalibration      = store.TableCalibration
	TableWordAttempts     = store.TableWordAttempts
	TableLearningProgress = store.TableLearningProgress
	TableGradeProgress    = store.TableGradeProgress
)

// Backend is the consumed synchronization surface. Implementations translate
// these calls into HTTP requests against the real backend; the devserver
// implements the same surface in-process for tests.
type Backend interface {
	PullChanges(ctx context.Context, req *PullRequest) (*PullResponse, error)
	PushChanges(ctx context.Context, req *PushRequest) (*PushResponse, error)
	PullCatalog(ctx context.Context, req *CatalogPullRequest) (*CatalogPullResponse, error)
	Status(ctx context.Context, childID string) (*StatusResponse, error)
}

// PullRequest asks for a child's changes since the cursor. A nil LastPulledAt
// requests a full snapshot.
type PullRequest struct {
	ChildID      string  `json:"child_id"`
	LastPulledAt *string `json:"last_pulled_at"`
}

// PullResponse carries the server's per-table changed rows plus the server
// clock reading the next cursor is taken from.
type PullResponse struct {
	WordProgress     []WordProgressRecord     `json:"word_progress"`
	GameSessions     []GameSessionRecord      `json:"game_sessions"`
	Statistics       []StatisticsRecord       `json:"statistics"`
	Calibration      []CalibrationRecord      `json:"calibration"`
	WordAttempts     []WordAttemptRecord      `json:"word_attempts"`
	LearningProgress []LearningProgressRecord `json:"learning_progress"`
	GradeProgress    []GradeProgressRecord    `json:"grade_progress"`
	LastResetAt      string                   `json:"last_reset_at,omitempty"`
	Timestamp        string                   `json:"timestamp"`
}

// TableChanges groups one table's pushed rows by operation. Created and
// Updated hold full wire records; Deleted holds row ids only.
type TableChanges struct {
	Created []json.RawMessage `json:"created,omitempty"`
	Updated []json.RawMessage `json:"updated,omitempty"`
	Deleted []string          `json:"deleted,omitempty"`
}

// PushRequest carries one batch of pending local changes. The batch may span
// children; the backend validates per-row ownership.
type PushRequest struct {
	ChildID string                  `json:"child_id"`
	Changes map[string]TableChanges `json:"changes"`
}

// PushResponse maps pushed local ids to the server-assigned ids, per table.
type PushResponse struct {
	IDMap     map[string]map[string]string `json:"id_map,omitempty"`
	Timestamp string                       `json:"timestamp"`
}

// CatalogPullRequest asks for catalog changes for a parent account since the
// last successful refresh. A nil LastSyncedAt requests the full catalog.
type CatalogPullRequest struct {
	ParentID     string  `json:"parent_id"`
	LastSyncedAt *string `json:"last_synced_at"`
}

// CatalogPullResponse carries changed catalog words and explicit deletions.
type CatalogPullResponse struct {
	Words      []CatalogWordRecord `json:"words"`
	DeletedIDs []string            `json:"deleted_ids,omitempty"`
	Timestamp  string              `json:"timestamp"`
}

// StatusResponse is the cheap probe used to decide whether a round is worth
// running.
type StatusResponse struct {
	LastDataChangedAt string `json:"last_data_changed_at,omitempty"`
}

// WordProgressRecord is the wire shape of a word-progress row. Timestamps are
// RFC3339 strings; AttemptHistory travels as an opaque JSON payload.
type WordProgressRecord struct {
	ID             string          `json:"id"`
	ChildID        string          `json:"child_id"`
	WordText       string          `json:"word_text"`
	Level          int             `json:"level"`
	Streak         int             `json:"streak"`
	TimesUsed      int             `json:"times_used"`
	TimesCorrect   int             `json:"times_correct"`
	LastAttemptAt  string          `json:"last_attempt_at,omitempty"`
	NextReviewAt   string          `json:"next_review_at"`
	IntroducedAt   string          `json:"introduced_at,omitempty"`
	Active         bool            `json:"active"`
	ArchivedAt     string          `json:"archived_at,omitempty"`
	Definition     string          `json:"definition,omitempty"`
	Example        string          `json:"example,omitempty"`
	AttemptHistory json.RawMessage `json:"attempt_history,omitempty"`
	UpdatedAt      string          `json:"updated_at"`
}

// GameSessionRecord is the wire shape of a played-round row.
type GameSessionRecord struct {
	ID              string          `json:"id"`
	ChildID         string          `json:"child_id"`
	ClientSessionID string          `json:"client_session_id"`
	Mode            string          `json:"mode"`
	PlayedAt        string          `json:"played_at"`
	DurationMs      int             `json:"duration_ms"`
	WordsTotal      int             `json:"words_total"`
	WordsCorrect    int             `json:"words_correct"`
	Outcome         string          `json:"outcome"`
	Trophy          string          `json:"trophy,omitempty"`
	CompletedWords  json.RawMessage `json:"completed_words,omitempty"`
	WrongAttempts   json.RawMessage `json:"wrong_attempts,omitempty"`
}

// StatisticsRecord is the wire shape of a per-mode statistics bucket.
type StatisticsRecord struct {
	ID               string          `json:"id"`
	ChildID          string          `json:"child_id"`
	Mode             string          `json:"mode"`
	TotalGamesPlayed int             `json:"total_games_played"`
	TotalWordsPlayed int             `json:"total_words_played"`
	TotalCorrect     int             `json:"total_correct"`
	CurrentStreak    int             `json:"current_streak"`
	BestStreak       int             `json:"best_streak"`
	GoldTrophies     int             `json:"gold_trophies"`
	SilverTrophies   int             `json:"silver_trophies"`
	BronzeTrophies   int             `json:"bronze_trophies"`
	WordAccuracy     json.RawMessage `json:"word_accuracy,omitempty"`
	FirstCorrectAt   json.RawMessage `json:"first_correct_at,omitempty"`
	PersonalBests    json.RawMessage `json:"personal_bests,omitempty"`
	ErrorPatterns    json.RawMessage `json:"error_patterns,omitempty"`
	UpdatedAt        string          `json:"updated_at"`
}

// CalibrationRecord is the wire shape of a calibration result.
type CalibrationRecord struct {
	ID                  string          `json:"id"`
	ChildID             string          `json:"child_id"`
	ClientCalibrationID string          `json:"client_calibration_id"`
	AssessedAt          string          `json:"assessed_at"`
	SuggestedGrade      int             `json:"suggested_grade"`
	Score               int             `json:"score"`
	LevelDetails        json.RawMessage `json:"level_details,omitempty"`
}

// WordAttemptRecord is the wire shape of one attempt-log entry.
type WordAttemptRecord struct {
	ID              string `json:"id"`
	ChildID         string `json:"child_id"`
	ClientAttemptID string `json:"client_attempt_id"`
	WordText        string `json:"word_text"`
	AttemptedAt     string `json:"attempted_at"`
	FirstTry        bool   `json:"first_try"`
	Correct         bool   `json:"correct"`
	ResponseMs      int    `json:"response_ms,omitempty"`
}

// LearningProgressRecord is the wire shape of the lifetime-progress row.
type LearningProgressRecord struct {
	ID             string `json:"id"`
	ChildID        string `json:"child_id"`
	LifetimePoints int    `json:"lifetime_points"`
	Milestone      int    `json:"milestone"`
	UpdatedAt      string `json:"updated_at"`
}

// GradeProgressRecord is the wire shape of a per-grade progress row.
type GradeProgressRecord struct {
	ID             string `json:"id"`
	ChildID        string `json:"child_id"`
	Grade          int    `json:"grade"`
	WordsCompleted int    `json:"words_completed"`
	CompletedAt    string `json:"completed_at,omitempty"`
	UpdatedAt      string `json:"updated_at"`
}

// CatalogWordRecord is the wire shape of a catalog entry.
type CatalogWordRecord struct {
	ID         string `json:"id"`
	ParentID   string `json:"parent_id,omitempty"`
	Grade      int    `json:"grade"`
	WordText   string `json:"word_text"`
	Definition string `json:"definition,omitempty"`
	Example    string `json:"example,omitempty"`
	Custom     bool   `json:"custom"`
	UpdatedAt  string `json:"updated_at"`
}
