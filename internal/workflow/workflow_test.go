package workflow

import (
	"errors"
	"testing"

	"medops-bknd/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchHappyPath(t *testing.T) {
	path := []models.DispatchStatus{
		models.DispatchPending,
		models.DispatchDispatched,
		models.DispatchEnRoute,
		models.DispatchArrived,
		models.DispatchCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.NoError(t, Dispatch.Transition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
	assert.True(t, Dispatch.IsTerminal(models.DispatchCompleted))
}

func TestDispatchRejectsSkipsAndTerminalMoves(t *testing.T) {
	cases := []struct {
		from, to models.DispatchStatus
	}{
		{models.DispatchPending, models.DispatchEnRoute},
		{models.DispatchPending, models.DispatchArrived},
		{models.DispatchArrived, models.DispatchEnRoute},
		{models.DispatchCompleted, models.DispatchCancelled},
		{models.DispatchCancelled, models.DispatchPending},
	}
	for _, tc := range cases {
		err := Dispatch.Transition(tc.from, tc.to)
		require.Error(t, err, "%s -> %s", tc.from, tc.to)
		assert.True(t, errors.Is(err, ErrInvalidTransition))

		var te *TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "dispatch", te.Entity)
		assert.Equal(t, string(tc.from), te.From)
	}
}

func TestDispatchCancelFromAnyActiveState(t *testing.T) {
	for _, s := range []models.DispatchStatus{
		models.DispatchPending, models.DispatchDispatched, models.DispatchEnRoute, models.DispatchArrived,
	} {
		assert.True(t, Dispatch.CanTransition(s, models.DispatchCancelled), string(s))
	}
}

func TestTransferTransitions(t *testing.T) {
	assert.Equal(t,
		[]models.TransferStatus{models.TransferAccepted, models.TransferCancelled, models.TransferRejected},
		Transfer.Allowed(models.TransferPending))
	assert.NoError(t, Transfer.Transition(models.TransferAccepted, models.TransferInTransit))
	assert.NoError(t, Transfer.Transition(models.TransferInTransit, models.TransferCompleted))

	assert.ErrorIs(t, Transfer.Transition(models.TransferInTransit, models.TransferCancelled), ErrInvalidTransition)
	assert.ErrorIs(t, Transfer.Transition(models.TransferRejected, models.TransferAccepted), ErrInvalidTransition)
	assert.ErrorIs(t, Transfer.Transition(models.TransferPending, models.TransferCompleted), ErrInvalidTransition)
}

func TestIsKnown(t *testing.T) {
	assert.True(t, Transfer.IsKnown(models.TransferInTransit))
	assert.False(t, Transfer.IsKnown("lost"))
	assert.False(t, Dispatch.IsKnown("teleported"))
}
