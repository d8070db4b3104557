package email

import (
	"context"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/pkg/logger"
)

// Sender is a stand-in for the external notification collaborator: it only
// logs what a real delivery integration would send.
type Sender struct {
	log logger.Logger
}

func NewSender(log logger.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, eventType string, event domain.BookingEvent) error {
	s.log.Info("sending booking notification",
		"event_type", eventType,
		"booking_id", event.BookingID,
		"flight_id", event.FlightID,
		"email", event.PassengerEmail)
	return nil
}
