package domain

import (
	"time"

	"github.com/google/uuid"
)

// GameMode identifies which game produced a session or statistics bucket.
type GameMode string

const (
	GameModeSpelling   GameMode = "spelling"
	GameModeFlashcards GameMode = "flashcards"
	GameModeMatching   GameMode = "matching"
	GameModeListening  GameMode = "listening"
)

// ValidGameMode reports whether m is a recognized game mode.
func ValidGameMode(m GameMode) bool {
	switch m {
	case GameModeSpelling, GameModeFlashcards, GameModeMatching, GameModeListening:
		return true
	}
	return false
}

// SessionOutcome summarizes how a played round ended.
type SessionOutcome string

const (
	OutcomeCompleted SessionOutcome = "completed"
	OutcomeAbandoned SessionOutcome = "abandoned"
)

// Trophy is the award tier earned in a session, empty for none.
type Trophy string

const (
	TrophyNone   Trophy = ""
	TrophyBronze Trophy = "bronze"
	TrophySilver Trophy = "silver"
	TrophyGold   Trophy = "gold"
)

// GameSession is an append-only record of one played round. It is immutable
// once created; its business key is (child, client session ID), because the
// client and server mint independent row IDs for the same session.
type GameSession struct {
	ID              uuid.UUID      `json:"id"`
	ServerID        string         `json:"server_id,omitempty"`
	ChildID         uuid.UUID      `json:"child_id"`
	ClientSessionID uuid.UUID      `json:"client_session_id"`
	Mode            GameMode       `json:"mode"`
	PlayedAt        time.Time      `json:"played_at"`
	DurationMs      int            `json:"duration_ms"`
	WordsTotal      int            `json:"words_total"`
	WordsCorrect    int            `json:"words_correct"`
	Outcome         SessionOutcome `json:"outcome"`
	Trophy          Trophy         `json:"trophy,omitempty"`
	CompletedWords  []string       `json:"completed_words,omitempty"`
	WrongAttempts   []string       `json:"wrong_attempts,omitempty"`
	SyncStatus      SyncStatus     `json:"-"`
}

// NewGameSession creates an immutable session record with a fresh local row ID
// and client session ID.
func NewGameSession(childID uuid.UUID, mode GameMode, playedAt time.Time) (*GameSession, error) {
	gs := &GameSession{
		ID:              uuid.New(),
		ChildID:         childID,
		ClientSessionID: uuid.New(),
		Mode:            mode,
		PlayedAt:        playedAt,
		Outcome:         OutcomeCompleted,
		SyncStatus:      SyncStatusCreated,
	}
	if err := gs.Validate(); err != nil {
		return nil, err
	}
	return gs, nil
}

// Validate checks the record's invariants.
func (gs *GameSession) Validate() error {
	if gs.ChildID == uuid.Nil {
		return ErrEmptyChildID
	}
	if gs.ClientSessionID == uuid.Nil {
		return ErrEmptyClientID
	}
	if !ValidGameMode(gs.Mode) {
		return ErrInvalidGameMode
	}
	return nil
}
