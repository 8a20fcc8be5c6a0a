package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meetwindow/meetwindow/libs/db"
	otelx "github.com/meetwindow/meetwindow/libs/otel"
)

// Repository stores events in the outbox_events table. Inserts share the
// caller's transaction so an event exists iff the booking it describes does.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert assigns the event a fresh id, captures the ambient trace context,
// and writes the row. The id travels as a Kafka header so consumers can
// deduplicate redeliveries.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// PendingEvent is an outbox row awaiting publication.
type PendingEvent struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
}

// FetchPending locks up to limit unpublished rows for this transaction.
// SKIP LOCKED lets concurrent publishers drain disjoint batches.
func (r *Repository) FetchPending(ctx context.Context, tx pgx.Tx, limit int) ([]PendingEvent, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []PendingEvent
	for rows.Next() {
		var evt PendingEvent
		if err := rows.Scan(&evt.ID, &evt.EventID, &evt.AggregateID, &evt.EventType, &evt.Payload, &evt.Traceparent, &evt.Tracestate, &evt.CreatedAt); err != nil {
			return nil, err
		}
		pending = append(pending, evt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return pending, nil
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
