package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate of a
	// unique entity (e.g. a second active row for the same child and word).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when an update matched no row.
	ErrUpdateFailed = errors.New("update failed")

	// ErrTransactionFailed is returned when a database transaction fails to
	// commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrWordProgressNotFound indicates the requested word progress row does not exist.
	ErrWordProgressNotFound = fmt.Errorf("%w: word progress", ErrNotFound)

	// ErrGameSessionNotFound indicates the requested game session does not exist.
	ErrGameSessionNotFound = fmt.Errorf("%w: game session", ErrNotFound)

	// ErrStatisticsNotFound indicates the requested statistics bucket does not exist.
	ErrStatisticsNotFound = fmt.Errorf("%w: statistics", ErrNotFound)

	// ErrCalibrationNotFound indicates the requested calibration result does not exist.
	ErrCalibrationNotFound = fmt.Errorf("%w: calibration result", ErrNotFound)

	// ErrWordAttemptNotFound indicates the requested word attempt does not exist.
	ErrWordAttemptNotFound = fmt.Errorf("%w: word attempt", ErrNotFound)

	// ErrProgressNotFound indicates the requested progress row does not exist.
	ErrProgressNotFound = fmt.Errorf("%w: progress", ErrNotFound)

	// ErrCatalogWordNotFound indicates the requested catalog word does not exist.
	ErrCatalogWordNotFound = fmt.Errorf("%w: catalog word", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
