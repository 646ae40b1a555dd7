package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const paymentEventColumns = `id, event_id, event_type, order_id, payload, processed, processed_at, created_at`

// InsertPaymentEventParams records an inbound webhook delivery.
type InsertPaymentEventParams struct {
	EventID   string
	EventType string
	OrderID   pgtype.UUID
	Payload   []byte
}

const insertPaymentEvent = `
INSERT INTO payment_events (event_id, event_type, order_id, payload)
VALUES ($1, $2, $3, $4)
RETURNING ` + paymentEventColumns

// InsertPaymentEvent appends a webhook delivery to the audit log. The
// event_id unique constraint is the durable idempotency gate: a duplicate
// delivery fails here atomically instead of racing a read-then-write.
func (q *Queries) InsertPaymentEvent(ctx context.Context, arg InsertPaymentEventParams) (PaymentEvent, error) {
	row := q.db.QueryRow(ctx, insertPaymentEvent, arg.EventID, arg.EventType, arg.OrderID, arg.Payload)
	return scanPaymentEvent(row)
}

const getPaymentEventByEventID = `
SELECT ` + paymentEventColumns + `
FROM payment_events
WHERE event_id = $1
`

// GetPaymentEventByEventID fetches the audit row for a provider event id.
func (q *Queries) GetPaymentEventByEventID(ctx context.Context, eventID string) (PaymentEvent, error) {
	return scanPaymentEvent(q.db.QueryRow(ctx, getPaymentEventByEventID, eventID))
}

// MarkPaymentEventProcessedParams finalises a webhook audit row.
type MarkPaymentEventProcessedParams struct {
	ID          pgtype.UUID
	ProcessedAt pgtype.Timestamptz
}

const markPaymentEventProcessed = `
UPDATE payment_events
SET processed = TRUE, processed_at = $2
WHERE id = $1
`

// MarkPaymentEventProcessed flags the event as fully applied.
func (q *Queries) MarkPaymentEventProcessed(ctx context.Context, arg MarkPaymentEventProcessedParams) error {
	_, err := q.db.Exec(ctx, markPaymentEventProcessed, arg.ID, arg.ProcessedAt)
	return err
}

func scanPaymentEvent(row scannable) (PaymentEvent, error) {
	var e PaymentEvent
	err := row.Scan(
		&e.ID, &e.EventID, &e.EventType, &e.OrderID, &e.Payload,
		&e.Processed, &e.ProcessedAt, &e.CreatedAt,
	)
	return e, err
}
