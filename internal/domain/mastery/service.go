package mastery

import (
	"errors"
	"time"

	"github.com/wordnest/wordnest/internal/domain"
)

// Common errors.
var (
	ErrNilProgress       = errors.New("word progress cannot be nil")
	ErrNotActive         = errors.New("word is archived")
	ErrDailyLimit        = errors.New("daily new-word limit reached")
	ErrAlreadyInRotation = errors.New("word already introduced")
)

// Service defines the mastery engine operations consumed by the game-result
// recording flow and the word-bank service.
type Service interface {
	// ApplyAttempt computes the record's next state after one attempt.
	ApplyAttempt(wp *domain.WordProgress, outcome Outcome, now time.Time) (*domain.WordProgress, error)

	// Introduce moves an available word into the daily rotation.
	Introduce(wp *domain.WordProgress, now time.Time) (*domain.WordProgress, error)

	// Archive soft-deletes a word, preserving its history.
	Archive(wp *domain.WordProgress, now time.Time) (*domain.WordProgress, error)

	// Unarchive restores an archived word without resetting mastery.
	Unarchive(wp *domain.WordProgress, now time.Time) (*domain.WordProgress, error)

	// IntroductionBudget reports how many more words may be auto-introduced
	// today given the count already introduced.
	IntroductionBudget(introducedToday int) int

	// Params exposes the engine's parameter set.
	Params() *Params
}

type defaultService struct {
	params *Params
}

// NewDefaultService creates a mastery service with the production parameters.
func NewDefaultService() Service {
	return &defaultService{params: NewDefaultParams()}
}

// NewServiceWithParams creates a mastery service with custom parameters.
func NewServiceWithParams(params *Params) Service {
	return &defaultService{params: params}
}

func (s *defaultService) ApplyAttempt(wp *domain.WordProgress, outcome Outcome, now time.Time) (*domain.WordProgress, error) {
	if wp == nil {
		return nil, ErrNilProgress
	}
	if !wp.Active {
		return nil, ErrNotActive
	}
	next := applyAttempt(wp, outcome, now, s.params)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *defaultService) Introduce(wp *domain.WordProgress, now time.Time) (*domain.WordProgress, error) {
	if wp == nil {
		return nil, ErrNilProgress
	}
	if !wp.Active {
		return nil, ErrNotActive
	}
	if wp.IntroducedAt != nil {
		return nil, ErrAlreadyInRotation
	}
	return introduce(wp, now), nil
}

func (s *defaultService) Archive(wp *domain.WordProgress, now time.Time) (*domain.WordProgress, error) {
	if wp == nil {
		return nil, ErrNilProgress
	}
	return archive(wp, now), nil
}

func (s *defaultService) Unarchive(wp *domain.WordProgress, now time.Time) (*domain.WordProgress, error) {
	if wp == nil {
		return nil, ErrNilProgress
	}
	return unarchive(wp, now), nil
}

func (s *defaultService) IntroductionBudget(introducedToday int) int {
	remaining := s.params.DailyNewWordLimit - introducedToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *defaultService) Params() *Params {
	return s.params
}
