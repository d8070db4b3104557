package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/internal/repository"
	"github.com/Domenick1991/bookingsaga/internal/seatlock"
	"github.com/Domenick1991/bookingsaga/pkg/logger"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, reference, userID, paymentTransactionID string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, reference, userID, reason string) (*domain.Booking, error)
	ExtendBooking(ctx context.Context, reference, userID string) (*domain.Booking, error)
	GetBooking(ctx context.Context, reference, userID string) (*domain.Booking, error)
	CheckSeatAvailability(ctx context.Context, flightID int64, seats []string) (map[string]bool, error)
	ExpirePendingBookings(ctx context.Context) (int, error)
}

// SeatLocker is the distributed lock surface the saga depends on.
type SeatLocker interface {
	LockSeats(ctx context.Context, flightID int64, seats []string, bookingID, userID string) (*seatlock.LockResult, error)
	ReleaseSeats(ctx context.Context, flightID int64, bookingID string) error
	ExtendLock(ctx context.Context, flightID int64, bookingID string, extra time.Duration) (bool, error)
	AreSeatsLocked(ctx context.Context, flightID int64, seats []string) (map[string]bool, error)
}

type CreateBookingInput struct {
	UserID         string           `json:"user_id"`
	FlightID       int64            `json:"flight_id"`
	SeatNumbers    []string         `json:"seat_numbers"`
	SeatClass      domain.SeatClass `json:"seat_class"`
	PassengerEmail string           `json:"passenger_email"`
}

// BookingService orchestrates the booking saga: every forward step is a
// local transaction, every failure runs the ordered compensation list. Each
// saga executes its steps sequentially inside one call; concurrency exists
// only across different bookings.
type BookingService struct {
	bookings      repository.BookingRepository
	flights       repository.FlightRepository
	locks         SeatLocker
	outbox        repository.OutboxRepository
	log           logger.Logger
	paymentWindow time.Duration
	extension     time.Duration
}

func NewBookingService(
	bookings repository.BookingRepository,
	flights repository.FlightRepository,
	locks SeatLocker,
	outbox repository.OutboxRepository,
	log logger.Logger,
	paymentWindow, extension time.Duration,
) *BookingService {
	return &BookingService{
		bookings:      bookings,
		flights:       flights,
		locks:         locks,
		outbox:        outbox,
		log:           log,
		paymentWindow: paymentWindow,
		extension:     extension,
	}
}

// CreateBooking runs the forward half of the saga: booking row, seat locks,
// reserve-seats event. Any failure after the row exists rolls everything
// back and surfaces the original error.
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if len(input.SeatNumbers) == 0 {
		return nil, domain.BusinessError(fmt.Errorf("at least one seat is required"))
	}
	if input.PassengerEmail == "" {
		return nil, domain.BusinessError(fmt.Errorf("passenger email is required"))
	}

	inv, err := s.flights.GetInventory(ctx, input.FlightID, input.SeatClass)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(s.paymentWindow)
	booking := &domain.Booking{
		BookingReference: uuid.NewString(),
		UserID:           input.UserID,
		FlightID:         input.FlightID,
		SeatNumbers:      input.SeatNumbers,
		SeatClass:        input.SeatClass,
		TotalCostCents:   inv.PriceCents * int64(len(input.SeatNumbers)),
		Status:           domain.BookingStatusInitiated,
		PaymentStatus:    domain.PaymentStatusPending,
		PassengerEmail:   input.PassengerEmail,
		ExpiresAt:        &expiresAt,
	}

	state := domain.NewSagaState(booking.BookingReference)

	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, err
	}

	result, err := s.locks.LockSeats(ctx, input.FlightID, input.SeatNumbers, booking.BookingReference, input.UserID)
	if err != nil {
		return nil, s.compensate(ctx, state, booking, err)
	}
	if !result.Success {
		cause := fmt.Errorf("%w: %v", domain.ErrSeatsUnavailable, result.FailedSeats)
		return nil, s.compensate(ctx, state, booking, cause)
	}
	state.LockKey = result.LockKey
	state.Advance(domain.SagaStepSeatsLocked)

	reserveEvent, err := domain.NewOutboxEvent("flight", booking.BookingReference, domain.EventFlightReserveSeats,
		domain.SeatEvent{
			FlightID:  booking.FlightID,
			BookingID: booking.BookingReference,
			SeatClass: booking.SeatClass,
			SeatCount: len(booking.SeatNumbers),
		}, state.SagaID)
	if err != nil {
		return nil, s.compensate(ctx, state, booking, err)
	}

	booking.Status = domain.BookingStatusPending
	if err := s.bookings.Update(ctx, booking, reserveEvent); err != nil {
		return nil, s.compensate(ctx, state, booking, err)
	}
	state.FlightReservationRef = reserveEvent.EventID
	state.Advance(domain.SagaStepPending)

	s.log.Info("booking saga started",
		"booking_reference", booking.BookingReference,
		"flight_id", booking.FlightID,
		"seats", booking.SeatNumbers)
	return booking, nil
}

// CompleteBooking finalizes a pending booking after external payment
// confirmation: confirm-seats event, BOOKED status and lock release, at
// which point the inventory is authoritative for the seats.
func (s *BookingService) CompleteBooking(ctx context.Context, reference, userID, paymentTransactionID string) (*domain.Booking, error) {
	booking, err := s.load(ctx, reference, userID)
	if err != nil {
		return nil, err
	}
	if booking.Status != domain.BookingStatusPending {
		return nil, domain.ErrBookingNotPending
	}

	state := domain.NewSagaState(reference)
	state.Advance(domain.SagaStepPaymentProcessing)
	state.PaymentTransactionID = paymentTransactionID

	confirmEvent, err := domain.NewOutboxEvent("flight", reference, domain.EventFlightConfirmSeats,
		domain.SeatEvent{
			FlightID:  booking.FlightID,
			BookingID: reference,
			SeatClass: booking.SeatClass,
			SeatCount: len(booking.SeatNumbers),
		}, state.SagaID)
	if err != nil {
		return nil, s.compensate(ctx, state, booking, err)
	}
	confirmedEvent, err := domain.NewOutboxEvent("booking", reference, domain.EventBookingConfirmed,
		domain.BookingEvent{
			BookingID:      reference,
			UserID:         booking.UserID,
			FlightID:       booking.FlightID,
			PassengerEmail: booking.PassengerEmail,
		}, state.SagaID)
	if err != nil {
		return nil, s.compensate(ctx, state, booking, err)
	}

	booking.Status = domain.BookingStatusBooked
	booking.PaymentStatus = domain.PaymentStatusCompleted
	booking.PaymentTransactionID = paymentTransactionID
	booking.ExpiresAt = nil
	if err := s.bookings.Update(ctx, booking, confirmEvent, confirmedEvent); err != nil {
		return nil, s.compensate(ctx, state, booking, err)
	}
	state.Advance(domain.SagaStepPaymentCompleted)

	// The seats now live in the inventory; the distributed lock is spent.
	// Release failure is not compensated: the lock self-expires via TTL and
	// compensating here would undo a payment that already succeeded.
	if err := s.locks.ReleaseSeats(ctx, booking.FlightID, reference); err != nil {
		s.log.Warn("failed to release seat lock after confirmation, relying on TTL",
			"booking_reference", reference, "error", err)
	}
	state.Advance(domain.SagaStepBookingConfirmed)

	s.log.Info("booking confirmed",
		"booking_reference", reference, "payment_transaction_id", paymentTransactionID)
	return booking, nil
}

// CancelBooking is the explicit cancellation entry point, also used by the
// expiry sweep. Cancelling an already-cancelled booking is a no-op.
func (s *BookingService) CancelBooking(ctx context.Context, reference, userID, reason string) (*domain.Booking, error) {
	booking, err := s.load(ctx, reference, userID)
	if err != nil {
		return nil, err
	}
	if booking.Status == domain.BookingStatusCancelled {
		return booking, nil
	}

	releaseEvent, err := domain.NewOutboxEvent("flight", reference, domain.EventFlightReleaseSeats,
		domain.SeatEvent{
			FlightID:  booking.FlightID,
			BookingID: reference,
			SeatClass: booking.SeatClass,
			SeatCount: len(booking.SeatNumbers),
		}, reference)
	if err != nil {
		return nil, err
	}
	cancelledEvent, err := domain.NewOutboxEvent("booking", reference, domain.EventBookingCancelled,
		domain.BookingEvent{
			BookingID: reference,
			UserID:    booking.UserID,
			FlightID:  booking.FlightID,
		}, reference)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	booking.Status = domain.BookingStatusCancelled
	booking.CancelledAt = &now
	booking.CancellationReason = reason
	booking.ExpiresAt = nil
	if err := s.bookings.Update(ctx, booking, releaseEvent, cancelledEvent); err != nil {
		return nil, err
	}

	if err := s.locks.ReleaseSeats(ctx, booking.FlightID, reference); err != nil {
		s.log.Warn("failed to release seat lock on cancel, relying on TTL",
			"booking_reference", reference, "error", err)
	}

	s.log.Info("booking cancelled", "booking_reference", reference, "reason", reason)
	return booking, nil
}

// ExtendBooking pushes the payment window and the seat lock TTL out by the
// configured extension. Not possible once the lock has expired.
func (s *BookingService) ExtendBooking(ctx context.Context, reference, userID string) (*domain.Booking, error) {
	booking, err := s.load(ctx, reference, userID)
	if err != nil {
		return nil, err
	}
	if booking.Status != domain.BookingStatusPending {
		return nil, domain.ErrBookingNotPending
	}

	extended, err := s.locks.ExtendLock(ctx, booking.FlightID, reference, s.extension)
	if err != nil {
		return nil, err
	}
	if !extended {
		return nil, domain.ErrLockExpired
	}

	expiresAt := booking.ExpiresAt.Add(s.extension)
	booking.ExpiresAt = &expiresAt
	if err := s.bookings.Update(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, reference, userID string) (*domain.Booking, error) {
	return s.load(ctx, reference, userID)
}

func (s *BookingService) CheckSeatAvailability(ctx context.Context, flightID int64, seats []string) (map[string]bool, error) {
	return s.locks.AreSeatsLocked(ctx, flightID, seats)
}

// ExpirePendingBookings cancels every booking whose payment window lapsed.
// Called by the worker sweep; each booking goes through the normal
// cancellation path so compensation semantics stay in one place.
func (s *BookingService) ExpirePendingBookings(ctx context.Context) (int, error) {
	expired, err := s.bookings.ListExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, b := range expired {
		if _, err := s.CancelBooking(ctx, b.BookingReference, "", "payment window expired"); err != nil {
			s.log.Error("failed to cancel expired booking",
				"booking_reference", b.BookingReference, "error", err)
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

func (s *BookingService) load(ctx context.Context, reference, userID string) (*domain.Booking, error) {
	booking, err := s.bookings.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if userID != "" && booking.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	return booking, nil
}

// compensation is one rollback action, gated on how far the saga got.
// Every action is safe to run even if a prior compensating action for the
// same saga already ran.
type compensation struct {
	name  string
	after domain.SagaStep
	run   func(ctx context.Context) error
}

// compensate unwinds the saga in reverse order and returns the original
// cause for the caller. If any compensating action itself fails the
// condition is fatal: a possibly-partial rollback must not be retried
// mechanically, so it is escalated through the operator-alert event and the
// returned error instead.
func (s *BookingService) compensate(ctx context.Context, state *domain.SagaState, booking *domain.Booking, cause error) error {
	s.log.Warn("booking saga failed, compensating",
		"booking_reference", state.SagaID,
		"last_step", state.CurrentStep,
		"error", cause)
	state.ErrorMessage = cause.Error()
	failedAt := state.CurrentStep
	state.Advance(domain.SagaStepCompensating)

	actions := []compensation{
		{
			name:  "release-flight-seats",
			after: domain.SagaStepFlightReserved,
			run: func(ctx context.Context) error {
				// A concurrent success path may have confirmed the booking
				// moments before a late failure signal; its seats belong to
				// the inventory now and must not be released.
				current, err := s.bookings.GetByReference(ctx, state.SagaID)
				if err == nil && current.Status == domain.BookingStatusBooked {
					s.log.Warn("skipping seat release: booking already confirmed",
						"booking_reference", state.SagaID)
					return nil
				}
				event, err := domain.NewOutboxEvent("flight", state.SagaID, domain.EventFlightReleaseSeats,
					domain.SeatEvent{
						FlightID:  booking.FlightID,
						BookingID: state.SagaID,
						SeatClass: booking.SeatClass,
						SeatCount: len(booking.SeatNumbers),
					}, state.SagaID)
				if err != nil {
					return err
				}
				return s.outbox.Append(ctx, event)
			},
		},
		{
			name:  "release-seat-lock",
			after: domain.SagaStepSeatsLocked,
			run: func(ctx context.Context) error {
				return s.locks.ReleaseSeats(ctx, booking.FlightID, state.SagaID)
			},
		},
		{
			name:  "mark-booking-cancelled",
			after: domain.SagaStepInitiated,
			run: func(ctx context.Context) error {
				current, err := s.bookings.GetByReference(ctx, state.SagaID)
				if err != nil {
					return err
				}
				if current.Status == domain.BookingStatusCancelled || current.Status == domain.BookingStatusBooked {
					return nil
				}
				now := time.Now()
				current.Status = domain.BookingStatusCancelled
				current.CancelledAt = &now
				current.CancellationReason = cause.Error()
				current.ExpiresAt = nil
				return s.bookings.Update(ctx, current)
			},
		},
	}

	restore := domain.SagaState{SagaID: state.SagaID, CurrentStep: failedAt}
	for _, action := range actions {
		if !restore.Reached(action.after) {
			continue
		}
		if err := action.run(ctx); err != nil {
			return s.escalate(ctx, state, action.name, cause, err)
		}
	}

	state.Advance(domain.SagaStepCompensated)
	s.log.Info("booking saga compensated",
		"booking_reference", state.SagaID, "cause", cause)
	return cause
}

// escalate handles a failed compensation: highest-severity log plus the
// booking.compensation-failed operator alert. No automatic retry; the
// system's invariants can no longer be guaranteed mechanically.
func (s *BookingService) escalate(ctx context.Context, state *domain.SagaState, action string, cause, compErr error) error {
	state.Advance(domain.SagaStepFailed)
	s.log.Error("compensation failed, manual intervention required",
		"booking_reference", state.SagaID,
		"failed_action", action,
		"original_error", cause,
		"compensation_error", compErr)

	alert, err := domain.NewOutboxEvent("booking", state.SagaID, domain.EventBookingCompensationFailed,
		domain.CompensationFailedEvent{
			BookingID:         state.SagaID,
			OriginalError:     cause.Error(),
			CompensationError: compErr.Error(),
		}, state.SagaID)
	if err == nil {
		if appendErr := s.outbox.Append(ctx, alert); appendErr != nil {
			s.log.Error("failed to emit compensation-failed alert",
				"booking_reference", state.SagaID, "error", appendErr)
		}
	}

	return domain.FatalError(fmt.Errorf("compensation for %s failed after %q: %v (original: %w)",
		state.SagaID, action, compErr, cause))
}

var _ BookingUseCase = (*BookingService)(nil)
