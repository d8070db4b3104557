package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/internal/kafka"
	"github.com/Domenick1991/bookingsaga/internal/repository"
	"github.com/Domenick1991/bookingsaga/pkg/logger"
)

// Consumer applies flight.* seat events to the inventory exactly once per
// event id. The repository performs the row lock, the availability check,
// the delta and the ledger insert in a single transaction; this handler only
// decodes and classifies.
type Consumer struct {
	flights repository.FlightRepository
	log     logger.Logger
}

func NewConsumer(flights repository.FlightRepository, log logger.Logger) *Consumer {
	return &Consumer{flights: flights, log: log}
}

// Handle processes one inbound message. Errors propagate so the ack layer
// can distinguish business failures (insufficient seats) from transient
// ones; they are never swallowed here.
func (c *Consumer) Handle(ctx context.Context, msg kafkago.Message) error {
	eventID := kafka.HeaderValue(msg, domain.HeaderEventID)
	eventType := kafka.HeaderValue(msg, domain.HeaderEventType)
	if eventID == "" || eventType == "" {
		return domain.BusinessError(errors.New("message missing event id or type headers"))
	}

	switch eventType {
	case domain.EventFlightReserveSeats, domain.EventFlightConfirmSeats, domain.EventFlightReleaseSeats:
	default:
		c.log.Debug("ignoring non-inventory event", "event_type", eventType)
		return nil
	}

	var event domain.SeatEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return domain.BusinessError(fmt.Errorf("malformed seat event payload: %w", err))
	}

	err := c.flights.ApplySeatChange(ctx, repository.SeatChange{
		EventID:    eventID,
		EventType:  eventType,
		FlightID:   event.FlightID,
		BookingRef: event.BookingID,
		SeatClass:  event.SeatClass,
		SeatCount:  event.SeatCount,
	})
	if errors.Is(err, domain.ErrEventAlreadyProcessed) {
		c.log.Info("duplicate delivery, skipping", "event_id", eventID, "event_type", eventType)
		return nil
	}
	if err != nil {
		return err
	}

	c.log.Info("applied inventory change",
		"event_id", eventID, "event_type", eventType,
		"flight_id", event.FlightID, "booking_id", event.BookingID, "seat_count", event.SeatCount)
	return nil
}
