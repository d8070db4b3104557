package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Routing keys for everything the engine emits. Keys with the "flight."
// prefix are consumed by the inventory side; "booking." keys are
// informational for downstream collaborators.
const (
	EventFlightReserveSeats = "flight.reserve-seats"
	EventFlightConfirmSeats = "flight.confirm-seats"
	EventFlightReleaseSeats = "flight.release-seats"

	EventBookingConfirmed          = "booking.confirmed"
	EventBookingCancelled          = "booking.cancelled"
	EventBookingCompensationFailed = "booking.compensation-failed"
)

// Message header names carried on every published message.
const (
	HeaderEventID    = "x-event-id"
	HeaderEventType  = "x-event-type"
	HeaderTraceID    = "x-trace-id"
	HeaderRetryCount = "x-retry-count"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusPublished  OutboxStatus = "PUBLISHED"
	OutboxStatusFailed     OutboxStatus = "FAILED"
)

// OutboxEvent is the durable record of intent to publish. It is written in
// the same transaction as the business change it describes and drained by
// the background publisher.
type OutboxEvent struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	TraceID       string
	PublishedAt   *time.Time
	CreatedAt     time.Time
}

// NewOutboxEvent builds a pending event with a fresh event id. The payload
// must be JSON-marshalable.
func NewOutboxEvent(aggregateType, aggregateID, eventType string, payload any, traceID string) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
		Status:        OutboxStatusPending,
		MaxRetries:    3,
		TraceID:       traceID,
	}, nil
}

// ProcessedEvent is one row of the consumer-side dedup ledger. A row for an
// event id means the corresponding mutation was already applied.
type ProcessedEvent struct {
	EventID     string
	EventType   string
	AggregateID string
	ProcessedAt time.Time
}

// SeatEvent is the payload of the flight.* routing keys.
type SeatEvent struct {
	FlightID  int64     `json:"flight_id"`
	BookingID string    `json:"booking_id"`
	SeatClass SeatClass `json:"seat_class"`
	SeatCount int       `json:"seat_count"`
}

// BookingEvent is the payload of booking.confirmed / booking.cancelled.
type BookingEvent struct {
	BookingID      string `json:"booking_id"`
	UserID         string `json:"user_id"`
	FlightID       int64  `json:"flight_id"`
	PassengerEmail string `json:"passenger_email,omitempty"`
}

// CompensationFailedEvent is the operator alert raised when a rollback
// cannot be completed mechanically.
type CompensationFailedEvent struct {
	BookingID         string `json:"booking_id"`
	OriginalError     string `json:"original_error"`
	CompensationError string `json:"compensation_error"`
}
