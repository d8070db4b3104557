package domain

import "time"

type BookingStatus string

const (
	BookingStatusInitiated BookingStatus = "INITIATED"
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusBooked    BookingStatus = "BOOKED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
)

type Booking struct {
	ID                   int64
	BookingReference     string
	UserID               string
	FlightID             int64
	SeatNumbers          []string
	SeatClass            SeatClass
	TotalCostCents       int64
	Status               BookingStatus
	PaymentStatus        PaymentStatus
	PaymentTransactionID string
	PassengerEmail       string
	ExpiresAt            *time.Time
	CancelledAt          *time.Time
	CancellationReason   string
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
