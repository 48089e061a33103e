package reconcile

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/integrahub/orderflow/internal/orders"
	"github.com/integrahub/orderflow/internal/rabbit"
)

type fakeAck struct {
	acks     int
	requeued int
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error { a.acks++; return nil }
func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	if requeue {
		a.requeued++
	}
	return nil
}
func (a *fakeAck) Reject(tag uint64, requeue bool) error { return nil }

type fakeStore struct {
	byID     map[int64]orders.Order
	stuck    []orders.Order
	statuses map[int64]orders.Status
}

func (s *fakeStore) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	o, ok := s.byID[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (s *fakeStore) SetStatus(ctx context.Context, id int64, st orders.Status) error {
	if s.statuses == nil {
		s.statuses = map[int64]orders.Status{}
	}
	s.statuses[id] = st
	return nil
}

func (s *fakeStore) ListStuck(ctx context.Context) ([]orders.Order, error) { return s.stuck, nil }

type pub struct {
	exchange, key string
	body          []byte
}

type fakeBroker struct {
	pubs     []pub
	failNext int // fail this many publishes before succeeding

	backlog  []amqp.Delivery
	getCalls int
}

func (b *fakeBroker) Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	if b.failNext > 0 {
		b.failNext--
		return errors.New("publish failed")
	}
	b.pubs = append(b.pubs, pub{exchange, key, body})
	return nil
}

func (b *fakeBroker) Get(queue string) (amqp.Delivery, bool, error) {
	b.getCalls++
	if len(b.backlog) == 0 {
		return amqp.Delivery{}, false, nil
	}
	d := b.backlog[0]
	b.backlog = b.backlog[1:]
	return d, true, nil
}

func backlogEntry(t *testing.T, orderID int64, ack *fakeAck) amqp.Delivery {
	t.Helper()
	body, err := orders.NewMessage(orders.Order{ID: orderID, ProductID: 1, Quantity: 1}).Encode()
	if err != nil {
		t.Fatal(err)
	}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: uint64(orderID), Body: body}
}

func newOps(store *fakeStore, broker *fakeBroker) *Ops {
	return &Ops{Store: store, Broker: broker, Log: zerolog.Nop()}
}

func TestReenqueueOneRejectsTerminalState(t *testing.T) {
	store := &fakeStore{byID: map[int64]orders.Order{
		9: {ID: 9, Status: orders.StatusProcessed},
	}}
	broker := &fakeBroker{}
	ops := newOps(store, broker)

	err := ops.ReenqueueOne(context.Background(), 9)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if len(broker.pubs) != 0 {
		t.Fatalf("publishes = %d, want none on rejected precondition", len(broker.pubs))
	}
	if len(store.statuses) != 0 {
		t.Fatalf("statuses mutated: %v", store.statuses)
	}
}

func TestReenqueueOneUnknownOrder(t *testing.T) {
	ops := newOps(&fakeStore{byID: map[int64]orders.Order{}}, &fakeBroker{})
	if err := ops.ReenqueueOne(context.Background(), 404); !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReenqueueOneFromFailedQueue(t *testing.T) {
	store := &fakeStore{byID: map[int64]orders.Order{
		3: {ID: 3, Status: orders.StatusFailedQueue, ProductID: 1, Quantity: 2},
	}}
	broker := &fakeBroker{}
	ops := newOps(store, broker)

	if err := ops.ReenqueueOne(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	if len(broker.pubs) != 1 || broker.pubs[0].key != rabbit.QueueOrders {
		t.Fatalf("expected one publish to orders, got %+v", broker.pubs)
	}
	if broker.getCalls != 0 {
		t.Fatalf("backlog scanned for a non-OUT_OF_STOCK order")
	}
	if store.statuses[3] != orders.StatusCreated {
		t.Fatalf("status = %s, want CREATED", store.statuses[3])
	}
}

func TestReenqueueOneOutOfStockRemovesBacklogEntry(t *testing.T) {
	store := &fakeStore{byID: map[int64]orders.Order{
		42: {ID: 42, Status: orders.StatusOutOfStock, ProductID: 1, Quantity: 20},
	}}
	otherAck := &fakeAck{}
	targetAck := &fakeAck{}
	broker := &fakeBroker{backlog: []amqp.Delivery{
		backlogEntry(t, 7, otherAck),
		backlogEntry(t, 42, targetAck),
	}}
	ops := newOps(store, broker)

	if err := ops.ReenqueueOne(context.Background(), 42); err != nil {
		t.Fatal(err)
	}
	if targetAck.acks != 1 {
		t.Fatal("matching backlog entry was not acked away")
	}
	if otherAck.requeued != 1 {
		t.Fatal("non-matching backlog entry was not requeued")
	}
	if len(broker.pubs) != 1 || broker.pubs[0].key != rabbit.QueueOrders {
		t.Fatalf("expected exactly one fresh message on orders, got %+v", broker.pubs)
	}
	if store.statuses[42] != orders.StatusCreated {
		t.Fatalf("status = %s, want CREATED", store.statuses[42])
	}
}

func TestRemovePendingRestockRespectsScanLimit(t *testing.T) {
	store := &fakeStore{byID: map[int64]orders.Order{
		42: {ID: 42, Status: orders.StatusOutOfStock},
	}}
	acks := make([]*fakeAck, 5)
	var backlog []amqp.Delivery
	for i := range acks {
		acks[i] = &fakeAck{}
		backlog = append(backlog, backlogEntry(t, int64(100+i), acks[i]))
	}
	broker := &fakeBroker{backlog: backlog}
	ops := newOps(store, broker)
	ops.ScanLimit = 2

	// Not found within the bound; the re-enqueue still proceeds.
	if err := ops.ReenqueueOne(context.Background(), 42); err != nil {
		t.Fatal(err)
	}
	if broker.getCalls != 2 {
		t.Fatalf("getCalls = %d, want scan bounded at 2", broker.getCalls)
	}
	if len(broker.pubs) != 1 {
		t.Fatalf("publishes = %d, want 1", len(broker.pubs))
	}
	if store.statuses[42] != orders.StatusCreated {
		t.Fatalf("status = %s, want CREATED", store.statuses[42])
	}
}

func TestReenqueueAllCountsPartialFailures(t *testing.T) {
	store := &fakeStore{stuck: []orders.Order{
		{ID: 1, Status: orders.StatusCreated},
		{ID: 2, Status: orders.StatusFailedQueue},
	}}
	broker := &fakeBroker{failNext: 1} // first publish fails
	ops := newOps(store, broker)

	republished, total, err := ops.ReenqueueAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || republished != 1 {
		t.Fatalf("republished=%d total=%d, want 1/2", republished, total)
	}
	if _, touched := store.statuses[1]; touched {
		t.Fatal("failed publish must leave the order untouched")
	}
	if store.statuses[2] != orders.StatusCreated {
		t.Fatalf("status[2] = %s, want CREATED", store.statuses[2])
	}
}
