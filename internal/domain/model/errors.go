package model

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer. Adapters wrap their failures in one of
// these so the API can map them without knowing the backend.
var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrInvalidInput         = errors.New("invalid input")
	ErrPayloadTooLarge      = fmt.Errorf("%w: payload too large", ErrInvalidInput)
	ErrLockedLevel          = errors.New("level locked")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrExecutionUnavailable = errors.New("execution unavailable")
	ErrExecutionBusy        = errors.New("execution busy")
	ErrChallengeNotFound    = errors.New("challenge not found")
)

// LockedError is returned when a level beyond the unlocked one is requested
// or completed. It matches ErrLockedLevel with errors.Is.
type LockedError struct {
	Requested    int
	MustComplete int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("level %d locked: complete level %d first", e.Requested, e.MustComplete)
}

// Is makes errors.Is(err, ErrLockedLevel) hold.
func (e *LockedError) Is(target error) bool {
	return target == ErrLockedLevel
}

// ValidateScore rejects scores outside [0, MaxScore].
func ValidateScore(score int) error {
	if score < 0 || score > MaxScore {
		return fmt.Errorf("%w: score must be between 0 and %d, got %d", ErrInvalidInput, MaxScore, score)
	}
	return nil
}

// ValidateLevel rejects levels below the first one.
func ValidateLevel(level int) error {
	if level < FirstLevel {
		return fmt.Errorf("%w: level must be >= %d, got %d", ErrInvalidInput, FirstLevel, level)
	}
	return nil
}
