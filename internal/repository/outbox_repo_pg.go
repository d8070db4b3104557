package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Domenick1991/bookingsaga/internal/domain"
)

type OutboxRepository interface {
	// Append writes an event outside of any business transaction. Used by
	// compensation paths where the event itself is the only effect.
	Append(ctx context.Context, event *domain.OutboxEvent) error
	// ClaimPending moves up to limit PENDING events to PROCESSING, oldest
	// first, and returns them. Rows already claimed by a concurrent sweep
	// are skipped, so overlapping sweeps never double-claim.
	ClaimPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64) error
	// MarkRetry returns the event to PENDING and increments its retry count.
	MarkRetry(ctx context.Context, id int64, lastError string) error
	// MarkFailed dead-letters the event; FAILED is terminal.
	MarkFailed(ctx context.Context, id int64, lastError string) error
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PGOutboxRepository struct {
	db *pgxpool.Pool
}

func NewOutboxRepository(db *pgxpool.Pool) *PGOutboxRepository {
	return &PGOutboxRepository{db: db}
}

// InsertOutboxTx writes an outbox row inside the caller's transaction. This
// is how business repositories attach events to their own commits.
func InsertOutboxTx(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	return tx.QueryRow(ctx, `INSERT INTO outbox_events
		(event_id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, max_retries, trace_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		event.EventID, event.AggregateType, event.AggregateID, event.EventType,
		event.Payload, domain.OutboxStatusPending, event.RetryCount, event.MaxRetries, event.TraceID).
		Scan(&event.ID, &event.CreatedAt)
}

func (r *PGOutboxRepository) Append(ctx context.Context, event *domain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := InsertOutboxTx(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGOutboxRepository) ClaimPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, `UPDATE outbox_events SET status=$1
		WHERE id IN (
			SELECT id FROM outbox_events WHERE status=$2
			ORDER BY created_at LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, max_retries, last_error, trace_id, published_at, created_at`,
		domain.OutboxStatusProcessing, domain.OutboxStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.Status, &e.RetryCount, &e.MaxRetries, &e.LastError, &e.TraceID, &e.PublishedAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *PGOutboxRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE outbox_events SET status=$1, published_at=now() WHERE id=$2`,
		domain.OutboxStatusPublished, id)
	return err
}

func (r *PGOutboxRepository) MarkRetry(ctx context.Context, id int64, lastError string) error {
	_, err := r.db.Exec(ctx, `UPDATE outbox_events SET status=$1, retry_count=retry_count+1, last_error=$2 WHERE id=$3`,
		domain.OutboxStatusPending, lastError, id)
	return err
}

func (r *PGOutboxRepository) MarkFailed(ctx context.Context, id int64, lastError string) error {
	_, err := r.db.Exec(ctx, `UPDATE outbox_events SET status=$1, retry_count=retry_count+1, last_error=$2 WHERE id=$3`,
		domain.OutboxStatusFailed, lastError, id)
	return err
}

func (r *PGOutboxRepository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM outbox_events WHERE status=$1 AND published_at < $2`,
		domain.OutboxStatusPublished, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

var _ OutboxRepository = (*PGOutboxRepository)(nil)
