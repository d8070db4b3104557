package domain

type SagaStep string

const (
	SagaStepInitiated         SagaStep = "INITIATED"
	SagaStepSeatsLocked       SagaStep = "SEATS_LOCKED"
	SagaStepFlightReserved    SagaStep = "FLIGHT_RESERVED"
	SagaStepPending           SagaStep = "PENDING"
	SagaStepPaymentProcessing SagaStep = "PAYMENT_PROCESSING"
	SagaStepPaymentCompleted  SagaStep = "PAYMENT_COMPLETED"
	SagaStepBookingConfirmed  SagaStep = "BOOKING_CONFIRMED"
	SagaStepFailed            SagaStep = "FAILED"
	SagaStepCompensating      SagaStep = "COMPENSATING"
	SagaStepCompensated       SagaStep = "COMPENSATED"
)

var sagaStepOrder = map[SagaStep]int{
	SagaStepInitiated:         1,
	SagaStepSeatsLocked:       2,
	SagaStepFlightReserved:    3,
	SagaStepPending:           4,
	SagaStepPaymentProcessing: 5,
	SagaStepPaymentCompleted:  6,
	SagaStepBookingConfirmed:  7,
}

// SagaState tracks one booking attempt through the workflow. It is a plain
// value owned by the orchestration call; the Booking row is the only durable
// projection of it.
type SagaState struct {
	SagaID               string
	CurrentStep          SagaStep
	LockKey              string
	FlightReservationRef string
	PaymentTransactionID string
	ErrorMessage         string
}

func NewSagaState(sagaID string) *SagaState {
	return &SagaState{SagaID: sagaID, CurrentStep: SagaStepInitiated}
}

func (s *SagaState) Advance(step SagaStep) {
	s.CurrentStep = step
}

// Reached reports whether the saga progressed at least as far as step.
// Compensating actions use it to decide which forward effects exist.
func (s *SagaState) Reached(step SagaStep) bool {
	return sagaStepOrder[s.CurrentStep] >= sagaStepOrder[step]
}
