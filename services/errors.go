package services

import (
	"errors"
	"fmt"

	"contest-scoring-engine/repository"
)

// Error classes. Handlers and workers branch on these with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrDeadlinePassed      = errors.New("deadline passed")
	ErrState               = errors.New("invalid state for operation")
	ErrExternalService     = errors.New("external service unavailable")
	ErrUnresolvedData      = errors.New("unresolved result data")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrNotFound            = repository.ErrNotFound
)

// Specific failures, each wrapping its class.
var (
	ErrContestClosed     = fmt.Errorf("%w: contest closed", ErrState)
	ErrContestNotActive  = fmt.Errorf("%w: contest not active", ErrState)
	ErrContestFull       = fmt.Errorf("%w: contest full", ErrState)
	ErrAlreadyRegistered = fmt.Errorf("%w: already registered", ErrState)
	ErrNotRegistered     = fmt.Errorf("%w: not registered", ErrValidation)
	ErrInvalidChoice     = fmt.Errorf("%w: invalid choice", ErrValidation)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// conflict maps the repository's optimistic-lock failure to ErrConcurrencyConflict.
func conflict(err error) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}
	return err
}
