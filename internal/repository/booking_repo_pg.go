package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Domenick1991/bookingsaga/internal/domain"
)

type BookingRepository interface {
	// Create inserts the booking row together with any outbox events in one
	// transaction.
	Create(ctx context.Context, booking *domain.Booking, events ...*domain.OutboxEvent) error
	GetByReference(ctx context.Context, reference string) (*domain.Booking, error)
	// Update persists the booking with an optimistic version check and
	// writes the given outbox events in the same transaction. Returns
	// domain.ErrVersionConflict if the row changed underneath.
	Update(ctx context.Context, booking *domain.Booking, events ...*domain.OutboxEvent) error
	// ListExpired returns non-terminal bookings whose payment window has
	// lapsed. Read-only; the orchestrator cancels each through the normal
	// compensation path.
	ListExpired(ctx context.Context, deadline time.Time) ([]domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, booking_reference, user_id, flight_id, seat_numbers, seat_class, total_cost_cents,
	status, payment_status, payment_transaction_id, passenger_email, expires_at, cancelled_at,
	cancellation_reason, version, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.BookingReference, &b.UserID, &b.FlightID, &b.SeatNumbers, &b.SeatClass,
		&b.TotalCostCents, &b.Status, &b.PaymentStatus, &b.PaymentTransactionID, &b.PassengerEmail,
		&b.ExpiresAt, &b.CancelledAt, &b.CancellationReason, &b.Version, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking, events ...*domain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	booking.Version = 1
	if err := tx.QueryRow(ctx, `INSERT INTO bookings
		(booking_reference, user_id, flight_id, seat_numbers, seat_class, total_cost_cents,
		 status, payment_status, payment_transaction_id, passenger_email, expires_at, cancellation_reason, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`,
		booking.BookingReference, booking.UserID, booking.FlightID, booking.SeatNumbers, booking.SeatClass,
		booking.TotalCostCents, booking.Status, booking.PaymentStatus, booking.PaymentTransactionID,
		booking.PassengerEmail, booking.ExpiresAt, booking.CancellationReason, booking.Version).
		Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt); err != nil {
		return err
	}

	for _, event := range events {
		if err := InsertOutboxTx(ctx, tx, event); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PGBookingRepository) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_reference=$1`, reference)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *PGBookingRepository) Update(ctx context.Context, booking *domain.Booking, events ...*domain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `UPDATE bookings SET
		status=$1, payment_status=$2, payment_transaction_id=$3, expires_at=$4,
		cancelled_at=$5, cancellation_reason=$6, version=version+1, updated_at=now()
		WHERE booking_reference=$7 AND version=$8`,
		booking.Status, booking.PaymentStatus, booking.PaymentTransactionID, booking.ExpiresAt,
		booking.CancelledAt, booking.CancellationReason, booking.BookingReference, booking.Version)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	booking.Version++

	for _, event := range events {
		if err := InsertOutboxTx(ctx, tx, event); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PGBookingRepository) ListExpired(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status = ANY($1) AND expires_at IS NOT NULL AND expires_at <= $2`,
		[]string{string(domain.BookingStatusInitiated), string(domain.BookingStatusPending)}, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *b)
	}
	return expired, rows.Err()
}

var _ BookingRepository = (*PGBookingRepository)(nil)
