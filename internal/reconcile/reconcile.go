package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/integrahub/orderflow/internal/orders"
	"github.com/integrahub/orderflow/internal/rabbit"
)

const defaultScanLimit = 1000

// ErrInvalidState rejects re-enqueue of orders whose current state does not
// allow it (notably PROCESSED, which would decrement stock twice).
var ErrInvalidState = errors.New("order state does not allow re-enqueue")

type Store interface {
	GetOrder(ctx context.Context, id int64) (orders.Order, error)
	SetStatus(ctx context.Context, id int64, st orders.Status) error
	ListStuck(ctx context.Context) ([]orders.Order, error)
}

type Broker interface {
	Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error
	Get(queue string) (amqp.Delivery, bool, error)
}

// Ops recovers orders that failed to enter or progress through the pipeline.
// Safe to invoke concurrently with the consumer: it only publishes and
// updates order status, never stock.
type Ops struct {
	Store  Store
	Broker Broker
	// Upper bound on pending-restock fetches per removal; beyond it the
	// entry is reported as not found rather than looping forever.
	ScanLimit int
	Log       zerolog.Logger
}

// Enqueue publishes a fresh order message rebuilt from the store record.
func (o *Ops) Enqueue(ctx context.Context, ord orders.Order) error {
	body, err := orders.NewMessage(ord).Encode()
	if err != nil {
		return err
	}
	return o.Broker.Publish(ctx, "", rabbit.QueueOrders, body, nil)
}

// ReenqueueOne puts a single stuck order back on the queue. Allowed only from
// CREATED, FAILED_QUEUE or OUT_OF_STOCK. An OUT_OF_STOCK order first has its
// pending-restock entry removed so the backlog holds no duplicate.
func (o *Ops) ReenqueueOne(ctx context.Context, orderID int64) error {
	ord, err := o.Store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !orders.CanReenqueue(ord.Status) {
		return fmt.Errorf("%w: order %d is %s", ErrInvalidState, orderID, ord.Status)
	}

	if ord.Status == orders.StatusOutOfStock {
		removed, err := o.removePendingRestock(orderID)
		switch {
		case err != nil:
			o.Log.Warn().Err(err).Int64("order_id", orderID).Msg("pending-restock removal failed")
		case !removed:
			// Correctness risk on large backlogs: the scan bound may leave a
			// duplicate entry behind.
			o.Log.Warn().Int64("order_id", orderID).Msg("pending-restock entry not found within scan limit")
		}
	}

	if err := o.Enqueue(ctx, ord); err != nil {
		return err
	}
	if err := o.Store.SetStatus(ctx, orderID, orders.StatusCreated); err != nil {
		return err
	}
	o.Log.Info().Int64("order_id", orderID).Str("was", string(ord.Status)).Msg("order re-enqueued")
	return nil
}

// ReenqueueAll republishes every order currently CREATED or FAILED_QUEUE.
// A failed publish leaves that order untouched; the batch keeps going.
func (o *Ops) ReenqueueAll(ctx context.Context) (republished, total int, err error) {
	stuck, err := o.Store.ListStuck(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, ord := range stuck {
		if err := o.Enqueue(ctx, ord); err != nil {
			o.Log.Warn().Err(err).Int64("order_id", ord.ID).Msg("republish failed, order left untouched")
			continue
		}
		if err := o.Store.SetStatus(ctx, ord.ID, orders.StatusCreated); err != nil {
			o.Log.Error().Err(err).Int64("order_id", ord.ID).Msg("republished but status update failed")
		}
		republished++
	}
	o.Log.Info().Int("republished", republished).Int("total", len(stuck)).Msg("stuck orders republished")
	return republished, len(stuck), nil
}

// removePendingRestock scans orders_pending_restock one basic.get at a time:
// the matching entry is acked away, everything else is nacked back. The scan
// is bounded so a large backlog degrades to "not found" instead of spinning.
func (o *Ops) removePendingRestock(orderID int64) (bool, error) {
	limit := o.ScanLimit
	if limit <= 0 {
		limit = defaultScanLimit
	}
	for i := 0; i < limit; i++ {
		d, ok, err := o.Broker.Get(rabbit.QueuePendingRestock)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		var msg orders.Message
		if err := json.Unmarshal(d.Body, &msg); err == nil && msg.OrderID == orderID {
			return true, d.Ack(false)
		}
		if err := d.Nack(false, true); err != nil {
			return false, err
		}
	}
	return false, nil
}
