package events

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ollync/backend-payments/internal/store"
)

type stubEventStore struct {
	inserted []store.InsertDomainEventParams
	err      error
}

func (s *stubEventStore) InsertDomainEvent(_ context.Context, arg store.InsertDomainEventParams) (store.DomainEvent, error) {
	if s.err != nil {
		return store.DomainEvent{}, s.err
	}
	s.inserted = append(s.inserted, arg)
	return store.DomainEvent{
		Topic:       arg.Topic,
		AggregateID: arg.AggregateID,
		Payload:     arg.Payload,
	}, nil
}

type stubNotifier struct {
	seen []store.DomainEvent
	err  error
}

func (n *stubNotifier) Notify(_ context.Context, event store.DomainEvent) error {
	n.seen = append(n.seen, event)
	return n.err
}

func testAggregateID(t *testing.T) pgtype.UUID {
	t.Helper()
	id, err := store.ToUUID("0b9f2f1e-3c65-4f68-bb24-94f631dbb1aa")
	require.NoError(t, err)
	return id
}

func TestBusEmitPersistsAndNotifies(t *testing.T) {
	es := &stubEventStore{}
	notifier := &stubNotifier{}
	bus := &Bus{Store: es, Notifiers: []Notifier{notifier}, Log: zerolog.Nop()}

	ev, err := bus.Emit(context.Background(), TopicOrderPaid, testAggregateID(t), map[string]any{"order_id": "o1"})
	require.NoError(t, err)
	require.Equal(t, TopicOrderPaid, ev.Topic)
	require.Len(t, es.inserted, 1)
	require.JSONEq(t, `{"order_id":"o1"}`, string(es.inserted[0].Payload))
	require.Len(t, notifier.seen, 1)
}

func TestBusEmitValidatesInput(t *testing.T) {
	bus := &Bus{Store: &stubEventStore{}, Log: zerolog.Nop()}

	_, err := bus.Emit(context.Background(), "  ", testAggregateID(t), nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), TopicOrderPaid, pgtype.UUID{}, nil)
	require.Error(t, err)
}

func TestBusEmitRejectsInvalidJSONPayload(t *testing.T) {
	bus := &Bus{Store: &stubEventStore{}, Log: zerolog.Nop()}

	_, err := bus.Emit(context.Background(), TopicOrderPaid, testAggregateID(t), []byte("{not json"))
	require.Error(t, err)
}

func TestBusEmitCollectsNotifierErrors(t *testing.T) {
	es := &stubEventStore{}
	failing := &stubNotifier{err: errors.New("boom")}
	ok := &stubNotifier{}
	bus := &Bus{Store: es, Notifiers: []Notifier{failing, ok}, Log: zerolog.Nop()}

	_, err := bus.Emit(context.Background(), TopicOrderPaid, testAggregateID(t), nil)
	require.Error(t, err)
	// The event is persisted and every notifier still runs.
	require.Len(t, es.inserted, 1)
	require.Len(t, ok.seen, 1)
}

func TestBusPublishSwallowsFailures(t *testing.T) {
	bus := &Bus{Store: &stubEventStore{err: errors.New("db down")}, Log: zerolog.Nop()}
	// Must not panic or propagate; request paths treat the log as best effort.
	bus.Publish(context.Background(), TopicOrderPaid, "0b9f2f1e-3c65-4f68-bb24-94f631dbb1aa", nil)
	bus.Publish(context.Background(), TopicOrderPaid, "not-a-uuid", nil)
}
