package domain

import "time"

type SeatClass string

const (
	SeatClassEconomy  SeatClass = "ECONOMY"
	SeatClassBusiness SeatClass = "BUSINESS"
)

type Flight struct {
	ID            int64
	FlightNumber  string
	FromAirport   string
	ToAirport     string
	DepartureTime time.Time
	ArrivalTime   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FlightInventory is the per-class seat counter for one flight. The available
// count is only mutated by the inventory consumer under a row lock.
type FlightInventory struct {
	FlightID       int64
	SeatClass      SeatClass
	TotalSeats     int
	AvailableSeats int
	PriceCents     int64
	UpdatedAt      time.Time
}
