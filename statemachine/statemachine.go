// Package statemachine is the single source of truth for which payment
// intent status changes are legal. It holds no state and has no side
// effects; every mutation path calls Validate before persisting a status.
//
// Transitions:
//
//	CREATED               -> PROCESSING, CANCELED
//	REQUIRES_CONFIRMATION -> PROCESSING, CANCELED
//	PROCESSING            -> SUCCEEDED, FAILED
//	SUCCEEDED, FAILED, CANCELED are terminal.
//
// Identity pairs (from == to) are always permitted.
package statemachine

import (
	"errors"
	"fmt"

	"github.com/arkantrust/payment-intents/models"
)

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid payment transition")

// TransitionError reports an attempted edge that is not in the table.
type TransitionError struct {
	From models.Status
	To   models.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid payment transition: %s -> %s (allowed from %s: %v)",
		e.From, e.To, e.From, Allowed(e.From))
}

// Is makes errors.Is(err, ErrInvalidTransition) hold.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Allowed returns the statuses reachable in one step from s, excluding s
// itself.
func Allowed(s models.Status) []models.Status {
	switch s {
	case models.StatusCreated, models.StatusRequiresConfirmation:
		return []models.Status{models.StatusProcessing, models.StatusCanceled}
	case models.StatusProcessing:
		return []models.Status{models.StatusSucceeded, models.StatusFailed}
	case models.StatusSucceeded, models.StatusFailed, models.StatusCanceled:
		return nil
	}
	return nil
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to models.Status) bool {
	if from == to {
		return from.Valid()
	}
	for _, s := range Allowed(from) {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing edges.
func IsTerminal(s models.Status) bool {
	switch s {
	case models.StatusSucceeded, models.StatusFailed, models.StatusCanceled:
		return true
	case models.StatusCreated, models.StatusRequiresConfirmation, models.StatusProcessing:
		return false
	}
	return false
}

// CanCancel reports whether an intent in status s may be canceled.
func CanCancel(s models.Status) bool {
	return s == models.StatusCreated || s == models.StatusRequiresConfirmation
}

// CanConfirm reports whether an intent in status s may be confirmed.
func CanConfirm(s models.Status) bool {
	return s == models.StatusCreated || s == models.StatusRequiresConfirmation
}

// Validate returns a *TransitionError when from -> to is not legal.
func Validate(from, to models.Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
