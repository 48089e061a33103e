package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/integrahub/orderflow/internal/orders"
	"github.com/integrahub/orderflow/internal/rabbit"
)

const DefaultMaxRetries = 3

// Chaos hook: an order carrying this customer name always fails processing,
// exercising the retry and dead-letter paths end to end.
const faultCustomerName = "ERROR"

var errSimulatedFault = errors.New("simulated processing failure (payment gateway timeout)")

type Store interface {
	Reserve(ctx context.Context, productID int64, qty int) (orders.ReserveResult, error)
	SetStatus(ctx context.Context, orderID int64, st orders.Status) error
}

type Broker interface {
	Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error
}

type Source interface {
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)
}

type Notifier interface {
	Notify(title, message string)
}

// Cache mirrors order status for fast reads and remembers processed orders
// so an at-least-once redelivery cannot decrement stock twice.
type Cache interface {
	CacheStatus(ctx context.Context, orderID int64, status string)
	AlreadyProcessed(ctx context.Context, orderID int64) bool
	MarkProcessed(ctx context.Context, orderID int64)
}

// Consumer is the order fulfillment state machine. One instance processes
// one message to completion at a time (the source is prefetch-1); every
// fetched message is acked exactly once, after it has been resolved,
// requeued or dead-lettered.
type Consumer struct {
	Store    Store
	Broker   Broker
	Notifier Notifier
	Cache    Cache // optional; dedup + status cache

	MaxRetries int
	Backoff    func(retries int) time.Duration
	Log        zerolog.Logger
}

// DefaultBackoff grows exponentially from 2s, capped at 30s, with up to
// 500ms of jitter.
func DefaultBackoff(retries int) time.Duration {
	d := 2 * time.Second << retries
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d + time.Duration(rand.Int63n(int64(500*time.Millisecond)))
}

// Run consumes until ctx is cancelled, redialing whenever the deliveries
// channel closes underneath us.
func (c *Consumer) Run(ctx context.Context, src Source) error {
	for {
		deliveries, err := src.Consume(ctx)
		if err != nil {
			c.Log.Warn().Err(err).Msg("rabbitmq not ready, retrying in 5s")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}
		c.Log.Info().Msg("waiting for order messages")

	drain:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case d, ok := <-deliveries:
				if !ok {
					c.Log.Warn().Msg("delivery channel closed, reconnecting")
					break drain
				}
				c.Handle(ctx, d)
			}
		}
	}
}

// Handle resolves a single delivery. Outcomes:
//   - PROCESSED / OUT_OF_STOCK / FAILED_PRODUCT_NOT_FOUND: ack
//   - any processing error: requeue with incremented x-retries, or
//     dead-letter + FAILED once retries are exhausted
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	var msg orders.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.retryOrDeadLetter(ctx, d, 0, fmt.Errorf("unmarshal order message: %w", err))
		return
	}
	if err := c.process(ctx, d, msg); err != nil {
		c.retryOrDeadLetter(ctx, d, msg.OrderID, err)
		return
	}
	if err := d.Ack(false); err != nil {
		c.Log.Error().Err(err).Int64("order_id", msg.OrderID).Msg("ack failed")
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery, msg orders.Message) error {
	log := c.Log.With().Int64("order_id", msg.OrderID).Logger()
	log.Info().Str("customer", msg.CustomerName).Int64("product_id", msg.ProductID).
		Int("quantity", msg.Quantity).Msg("received order")

	if msg.CustomerName == faultCustomerName {
		return errSimulatedFault
	}

	if c.alreadyProcessed(ctx, msg.OrderID) {
		log.Info().Msg("already processed, skipping duplicate delivery")
		// The earlier delivery may have decremented stock but crashed before
		// the status write; finishing that write here keeps the order from
		// staying CREATED forever.
		return c.setStatus(ctx, msg.OrderID, orders.StatusProcessed)
	}

	// Payment authorization is simulated; there is no real gateway.
	log.Info().Float64("amount", msg.TotalAmount).Msg("payment authorized")

	res, err := c.Store.Reserve(ctx, msg.ProductID, msg.Quantity)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	switch res.Kind {
	case orders.ReserveNotFound:
		// Not transient; retrying will not make the product exist.
		if err := c.setStatus(ctx, msg.OrderID, orders.StatusProductNotFound); err != nil {
			return err
		}
		log.Warn().Int64("product_id", msg.ProductID).Msg("product not found")

	case orders.ReserveOK:
		// Dedup marker goes down the moment the decrement is committed: if the
		// status write fails and the message is retried, the redelivery must
		// not reserve again.
		c.markProcessed(ctx, msg.OrderID)
		if err := c.setStatus(ctx, msg.OrderID, orders.StatusProcessed); err != nil {
			return err
		}
		log.Info().Int("stock_left", res.Available).Msg("order processed")

	case orders.ReserveInsufficient:
		if err := c.setStatus(ctx, msg.OrderID, orders.StatusOutOfStock); err != nil {
			return err
		}
		log.Warn().Int("requested", msg.Quantity).Int("available", res.Available).Msg("insufficient stock")
		c.Notifier.Notify("Stock alert",
			fmt.Sprintf("Product: %s. Requested: %d, available: %d. Restock needed.",
				res.ProductName, msg.Quantity, res.Available))
		// The verbatim body goes onto the human-visible backlog; recovery is
		// via reconciliation, so a publish failure must not fail the message.
		if err := c.Broker.Publish(ctx, "", rabbit.QueuePendingRestock, d.Body, nil); err != nil {
			log.Error().Err(err).Msg("could not publish to pending-restock queue")
		}
	}
	return nil
}

func (c *Consumer) retryOrDeadLetter(ctx context.Context, d amqp.Delivery, orderID int64, cause error) {
	log := c.Log.With().Int64("order_id", orderID).Logger()
	retries := retryCount(d.Headers)
	max := c.MaxRetries
	if max <= 0 {
		max = DefaultMaxRetries
	}

	if retries < max {
		log.Warn().Err(cause).Int("retry", retries+1).Int("max", max).Msg("processing failed, requeueing")
		time.Sleep(c.backoff(retries))

		headers := amqp.Table{}
		for k, v := range d.Headers {
			headers[k] = v
		}
		headers[rabbit.HeaderRetries] = int32(retries + 1)

		// Explicit retry-by-requeue so the counter survives; a plain nack
		// would redeliver with the old headers.
		if err := c.Broker.Publish(ctx, "", rabbit.QueueOrders, d.Body, headers); err != nil {
			log.Error().Err(err).Msg("requeue publish failed, returning message to queue")
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}

	log.Error().Err(cause).Msg("max retries reached, dead-lettering")
	if err := c.Broker.Publish(ctx, rabbit.ExchangeDLX, rabbit.KeyDeadLetter, d.Body, nil); err != nil {
		log.Error().Err(err).Msg("dead-letter publish failed, returning message to queue")
		_ = d.Nack(false, true)
		return
	}
	if orderID != 0 {
		if err := c.setStatus(ctx, orderID, orders.StatusFailed); err != nil {
			log.Error().Err(err).Msg("could not mark order FAILED")
		}
	}
	_ = d.Ack(false)
}

func (c *Consumer) setStatus(ctx context.Context, orderID int64, st orders.Status) error {
	if err := c.Store.SetStatus(ctx, orderID, st); err != nil {
		return fmt.Errorf("set order %d to %s: %w", orderID, st, err)
	}
	if c.Cache != nil {
		c.Cache.CacheStatus(ctx, orderID, string(st))
	}
	return nil
}

func (c *Consumer) alreadyProcessed(ctx context.Context, orderID int64) bool {
	return c.Cache != nil && c.Cache.AlreadyProcessed(ctx, orderID)
}

func (c *Consumer) markProcessed(ctx context.Context, orderID int64) {
	if c.Cache != nil {
		c.Cache.MarkProcessed(ctx, orderID)
	}
}

func (c *Consumer) backoff(retries int) time.Duration {
	if c.Backoff != nil {
		return c.Backoff(retries)
	}
	return DefaultBackoff(retries)
}

// Header values arrive as whatever integer width the publisher used.
func retryCount(h amqp.Table) int {
	switch v := h[rabbit.HeaderRetries].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
