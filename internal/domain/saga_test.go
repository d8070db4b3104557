package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSagaStateReached(t *testing.T) {
	state := NewSagaState("B1")
	assert.True(t, state.Reached(SagaStepInitiated))
	assert.False(t, state.Reached(SagaStepSeatsLocked))

	state.Advance(SagaStepPending)
	assert.True(t, state.Reached(SagaStepSeatsLocked))
	assert.True(t, state.Reached(SagaStepFlightReserved))
	assert.False(t, state.Reached(SagaStepPaymentProcessing))
}

func TestNewOutboxEvent(t *testing.T) {
	event, err := NewOutboxEvent("flight", "B1", EventFlightReserveSeats,
		SeatEvent{FlightID: 100, BookingID: "B1", SeatClass: SeatClassEconomy, SeatCount: 2}, "trace-1")
	assert.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, OutboxStatusPending, event.Status)
	assert.Equal(t, 3, event.MaxRetries)
	assert.JSONEq(t, `{"flight_id":100,"booking_id":"B1","seat_class":"ECONOMY","seat_count":2}`, string(event.Payload))
}
