package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// InsertDomainEventParams appends an event to the domain event log.
type InsertDomainEventParams struct {
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
}

const insertDomainEvent = `
INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING id, topic, aggregate_id, payload, occurred_at
`

// InsertDomainEvent persists a domain event emitted by the bus.
func (q *Queries) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	row := q.db.QueryRow(ctx, insertDomainEvent, arg.Topic, arg.AggregateID, arg.Payload)
	var e DomainEvent
	err := row.Scan(&e.ID, &e.Topic, &e.AggregateID, &e.Payload, &e.OccurredAt)
	return e, err
}
