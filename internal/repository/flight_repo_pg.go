package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Domenick1991/bookingsaga/internal/domain"
)

// SeatChange is one inventory mutation derived from a flight.* event. The
// event id keys the dedup ledger.
type SeatChange struct {
	EventID    string
	EventType  string
	FlightID   int64
	BookingRef string
	SeatClass  domain.SeatClass
	SeatCount  int
}

type FlightRepository interface {
	List(ctx context.Context) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	GetInventory(ctx context.Context, flightID int64, class domain.SeatClass) (*domain.FlightInventory, error)
	// ApplySeatChange applies the seat-count delta exactly once. The row
	// lock, the availability check, the delta and the ledger insert commit
	// together; a duplicate event id returns domain.ErrEventAlreadyProcessed
	// without side effects.
	ApplySeatChange(ctx context.Context, change SeatChange) error
}

type PGFlightRepository struct {
	db *pgxpool.Pool
}

func NewFlightRepository(db *pgxpool.Pool) FlightRepository {
	return &PGFlightRepository{db: db}
}

func (r *PGFlightRepository) List(ctx context.Context) ([]domain.Flight, error) {
	rows, err := r.db.Query(ctx, `SELECT id, flight_number, from_airport, to_airport, departure_time, arrival_time, created_at, updated_at FROM flights ORDER BY departure_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		var f domain.Flight
		if err := rows.Scan(&f.ID, &f.FlightNumber, &f.FromAirport, &f.ToAirport, &f.DepartureTime, &f.ArrivalTime, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	row := r.db.QueryRow(ctx, `SELECT id, flight_number, from_airport, to_airport, departure_time, arrival_time, created_at, updated_at FROM flights WHERE id=$1`, id)
	var f domain.Flight
	if err := row.Scan(&f.ID, &f.FlightNumber, &f.FromAirport, &f.ToAirport, &f.DepartureTime, &f.ArrivalTime, &f.CreatedAt, &f.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFlightNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *PGFlightRepository) GetInventory(ctx context.Context, flightID int64, class domain.SeatClass) (*domain.FlightInventory, error) {
	row := r.db.QueryRow(ctx, `SELECT flight_id, seat_class, total_seats, available_seats, price_cents, updated_at
		FROM flight_inventory WHERE flight_id=$1 AND seat_class=$2`, flightID, class)
	var inv domain.FlightInventory
	if err := row.Scan(&inv.FlightID, &inv.SeatClass, &inv.TotalSeats, &inv.AvailableSeats, &inv.PriceCents, &inv.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFlightNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *PGFlightRepository) ApplySeatChange(ctx context.Context, change SeatChange) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// The ledger insert goes first: a conflict on event_id means a
	// concurrent or earlier delivery already applied this change.
	cmd, err := tx.Exec(ctx, `INSERT INTO processed_events (event_id, event_type, aggregate_id)
		VALUES ($1, $2, $3) ON CONFLICT (event_id) DO NOTHING`,
		change.EventID, change.EventType, change.BookingRef)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrEventAlreadyProcessed
	}

	var available int
	if err := tx.QueryRow(ctx, `SELECT available_seats FROM flight_inventory
		WHERE flight_id=$1 AND seat_class=$2 FOR UPDATE`,
		change.FlightID, change.SeatClass).Scan(&available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrFlightNotFound
		}
		return err
	}

	var delta int
	switch change.EventType {
	case domain.EventFlightReserveSeats:
		if available < change.SeatCount {
			return domain.ErrInsufficientSeats
		}
		delta = -change.SeatCount
	case domain.EventFlightReleaseSeats:
		delta = change.SeatCount
	case domain.EventFlightConfirmSeats:
		// Declarative only; the reservation already holds the seats.
		delta = 0
	default:
		return domain.BusinessError(errors.New("unknown seat event type: " + change.EventType))
	}

	if delta != 0 {
		if _, err := tx.Exec(ctx, `UPDATE flight_inventory
			SET available_seats = LEAST(total_seats, available_seats + $1), updated_at = now()
			WHERE flight_id=$2 AND seat_class=$3`,
			delta, change.FlightID, change.SeatClass); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

var _ FlightRepository = (*PGFlightRepository)(nil)
