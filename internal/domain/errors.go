// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyChildID is returned when an entity is missing its owning child profile.
	ErrEmptyChildID = errors.New("child ID cannot be empty")

	// ErrEmptyWordText is returned when a word entity has no word text.
	ErrEmptyWordText = errors.New("word text cannot be empty")

	// ErrInvalidLevel is returned when a mastery level is outside 0-5.
	ErrInvalidLevel = errors.New("mastery level must be between 0 and 5")

	// ErrInvalidStreak is returned when a correct streak is negative.
	ErrInvalidStreak = errors.New("streak cannot be negative")

	// ErrInvalidCounts is returned when usage counters are negative or inconsistent.
	ErrInvalidCounts = errors.New("usage counters must be non-negative")

	// ErrEmptyClientID is returned when an append-only record is missing its
	// client-generated identifier, which serves as its business key.
	ErrEmptyClientID = errors.New("client-generated ID cannot be empty")

	// ErrInvalidGameMode is returned when a game mode is not recognized.
	ErrInvalidGameMode = errors.New("invalid game mode")

	// ErrInvalidGrade is returned when a grade level is out of range.
	ErrInvalidGrade = errors.New("grade level out of range")
)
