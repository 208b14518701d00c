package payments

import (
	"errors"

	"github.com/arkantrust/payment-intents/idempotency"
	"github.com/arkantrust/payment-intents/statemachine"
)

// Every error returned by the Orchestrator and Reconciler matches exactly
// one of these with errors.Is, or is an unclassified internal fault.
var (
	// ErrNotFound covers both "does not exist" and "belongs to another
	// merchant"; the two are never distinguished.
	ErrNotFound = errors.New("payment intent not found")

	// ErrInvalidState means the operation is not legal for the intent's
	// current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrIdempotencyConflict means an idempotency key was reused with a
	// different request payload.
	ErrIdempotencyConflict = idempotency.ErrConflict

	// ErrInvalidRequest covers malformed input, including a confirm without
	// an idempotency key.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrConcurrentModification is only surfaced when a lost optimistic
	// race could not be resolved by adopting the winner's result.
	ErrConcurrentModification = errors.New("concurrent modification, retry the request")

	// ErrInvalidTransition signals a state machine violation that the
	// InvalidState checks should have prevented.
	ErrInvalidTransition = statemachine.ErrInvalidTransition
)

// errLostRace aborts a unit of work whose write was pre-empted by a
// concurrent writer. It never leaves this package.
var errLostRace = errors.New("lost optimistic race")
