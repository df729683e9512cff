package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHappyPathTransitions(t *testing.T) {
	path := []Status{StatusCreated, StatusPaymentPending, StatusConfirmed, StatusShipped, StatusDelivered}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestCancellationBranches(t *testing.T) {
	assert.True(t, CanTransition(StatusCreated, StatusCancelled))
	assert.True(t, CanTransition(StatusPaymentPending, StatusCancelled))
	assert.True(t, CanTransition(StatusPaymentPending, StatusPaymentFailed))
	assert.True(t, CanTransition(StatusPaymentFailed, StatusCancelled))
}

func TestNoBackwardOrSkippedTransitions(t *testing.T) {
	assert.False(t, CanTransition(StatusDelivered, StatusConfirmed))
	assert.False(t, CanTransition(StatusShipped, StatusConfirmed))
	assert.False(t, CanTransition(StatusCreated, StatusConfirmed))
	assert.False(t, CanTransition(StatusCreated, StatusShipped))
	assert.False(t, CanTransition(StatusCancelled, StatusCreated))
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPaymentPending.Terminal())
}

func TestIsFulfillmentSubset(t *testing.T) {
	assert.True(t, IsFulfillment(StatusConfirmed, StatusShipped))
	assert.True(t, IsFulfillment(StatusShipped, StatusDelivered))

	// payment-owned transitions are not fulfillment steps
	assert.False(t, IsFulfillment(StatusPaymentPending, StatusConfirmed))
	assert.False(t, IsFulfillment(StatusCreated, StatusPaymentPending))
	assert.False(t, IsFulfillment(StatusConfirmed, StatusDelivered))
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusShipped))
	assert.False(t, ValidStatus(Status("TELEPORTED")))
}
