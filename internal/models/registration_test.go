package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationTransitions(t *testing.T) {
	tests := []struct {
		from, to RegistrationState
		legal    bool
	}{
		{StateNone, StatePendingPayment, true},
		{StateNone, StateApproved, true},
		{StateNone, StateScanned, false},
		{StatePendingPayment, StatePaidUnapproved, true},
		{StatePendingPayment, StateApproved, true},
		{StatePendingPayment, StateScanned, false},
		{StatePaidUnapproved, StateApproved, true},
		{StatePaidUnapproved, StatePendingPayment, false},
		{StateApproved, StateScanned, true},
		{StateApproved, StateApproved, false},
		{StateApproved, StatePendingPayment, false},
		{StateScanned, StatePendingPayment, false},
		{StateScanned, StateApproved, false},
		{StateScanned, StateScanned, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.legal, tt.from.CanTransitionTo(tt.to), "%q -> %q", tt.from, tt.to)
	}
}

func TestTransitionToScannedStampsOnce(t *testing.T) {
	at := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	r := &Registration{State: StateApproved}

	require.NoError(t, r.Transition(StateScanned, at))
	require.NotNil(t, r.ScannedAt)
	assert.Equal(t, at, *r.ScannedAt)
	assert.True(t, r.IsScanned())

	err := r.Transition(StateScanned, at.Add(time.Hour))
	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, at, *r.ScannedAt)
}

func TestStateProjections(t *testing.T) {
	r := &Registration{State: StatePendingPayment, QRToken: "tok"}
	assert.False(t, r.IsPaid())
	assert.False(t, r.IsApproved())
	assert.False(t, r.Active())
	assert.Empty(t, r.View().QRToken)

	r.State = StatePaidUnapproved
	assert.True(t, r.IsPaid())
	assert.False(t, r.IsApproved())
	assert.False(t, r.Active())

	r.State = StateApproved
	assert.True(t, r.Active())
	assert.Equal(t, "tok", r.View().QRToken)
}

func TestInitialState(t *testing.T) {
	assert.Equal(t, StateApproved, InitialState(CategoryFree))
	assert.Equal(t, StatePendingPayment, InitialState(CategoryPaid))
}

func TestPaymentStatusTransitions(t *testing.T) {
	assert.True(t, PaymentStatusCreated.CanTransitionTo(PaymentStatusPaid))
	assert.True(t, PaymentStatusCreated.CanTransitionTo(PaymentStatusFailed))
	assert.False(t, PaymentStatusPaid.CanTransitionTo(PaymentStatusCreated))
	assert.True(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusPaid))
	assert.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusCreated))
	assert.False(t, PaymentStatusPaid.CanTransitionTo(PaymentStatusFailed))
	assert.False(t, PaymentStatusFailed.Terminal())
	assert.True(t, PaymentStatusPaid.Terminal())
}
