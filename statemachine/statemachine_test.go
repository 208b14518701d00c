package statemachine_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkantrust/payment-intents/models"
	"github.com/arkantrust/payment-intents/statemachine"
)

var table = map[models.Status][]models.Status{
	models.StatusCreated:              {models.StatusProcessing, models.StatusCanceled},
	models.StatusRequiresConfirmation: {models.StatusProcessing, models.StatusCanceled},
	models.StatusProcessing:           {models.StatusSucceeded, models.StatusFailed},
}

func inTable(from, to models.Status) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

func TestCanTransitionMatchesTable(t *testing.T) {
	for _, from := range models.Statuses {
		for _, to := range models.Statuses {
			got := statemachine.CanTransition(from, to)
			switch {
			case from == to:
				assert.True(t, got, "identity %s -> %s", from, to)
			case inTable(from, to):
				assert.True(t, got, "%s -> %s should be allowed", from, to)
			default:
				assert.False(t, got, "%s -> %s should be rejected", from, to)
			}
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	terminal := []models.Status{models.StatusSucceeded, models.StatusFailed, models.StatusCanceled}
	for _, s := range terminal {
		assert.True(t, statemachine.IsTerminal(s))
		for _, to := range models.Statuses {
			if to == s {
				continue
			}
			assert.False(t, statemachine.CanTransition(s, to), "%s -> %s", s, to)
		}
	}
	assert.False(t, statemachine.IsTerminal(models.StatusProcessing))
	assert.False(t, statemachine.IsTerminal(models.StatusCreated))
}

func TestCanCancelAndConfirm(t *testing.T) {
	for _, s := range models.Statuses {
		want := s == models.StatusCreated || s == models.StatusRequiresConfirmation
		assert.Equal(t, want, statemachine.CanCancel(s), "cancel from %s", s)
		assert.Equal(t, want, statemachine.CanConfirm(s), "confirm from %s", s)
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, statemachine.Validate(models.StatusCreated, models.StatusProcessing))

	err := statemachine.Validate(models.StatusSucceeded, models.StatusCanceled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, statemachine.ErrInvalidTransition))

	var te *statemachine.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.StatusSucceeded, te.From)
	assert.Equal(t, models.StatusCanceled, te.To)
}

func TestUnknownStatusIsRejected(t *testing.T) {
	assert.False(t, statemachine.CanTransition("BOGUS", "BOGUS"))
	assert.False(t, statemachine.CanTransition("BOGUS", models.StatusProcessing))
}
