package rabbit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Client owns a single connection and channel to RabbitMQ and hides
// connection churn from callers. All methods are safe for concurrent use.
type Client struct {
	url string
	log zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func New(url string, log zerolog.Logger) *Client {
	return &Client{url: url, log: log.With().Str("component", "rabbit").Logger()}
}

// Channel returns a live channel, dialing and declaring topology if the
// connection is absent or closed. Declarations are no-ops once topology
// exists, so calling this repeatedly is safe.
func (c *Client) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLocked()
}

func (c *Client) ensureLocked() (*amqp.Channel, error) {
	if c.conn != nil && !c.conn.IsClosed() && c.ch != nil && !c.ch.IsClosed() {
		return c.ch, nil
	}
	c.teardownLocked()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	c.conn, c.ch = conn, ch
	c.log.Info().Msg("connected, topology declared")
	return ch, nil
}

func declareTopology(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(QueueOrders, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", QueueOrders, err)
	}
	if _, err := ch.QueueDeclare(QueuePendingRestock, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", QueuePendingRestock, err)
	}
	if err := ch.ExchangeDeclare(ExchangeDLX, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeDLX, err)
	}
	if _, err := ch.QueueDeclare(QueueDeadLetter, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", QueueDeadLetter, err)
	}
	if err := ch.QueueBind(QueueDeadLetter, KeyDeadLetter, ExchangeDLX, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", QueueDeadLetter, err)
	}
	return nil
}

// Publish sends a persistent message. On transport failure it tears down the
// stale connection and retries exactly once after reconnecting; the caller is
// always told whether the publish went through.
func (c *Client) Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ch, err := c.ensureLocked()
		if err != nil {
			lastErr = err
			continue
		}
		err = ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Headers:      headers,
			Body:         body,
		})
		if err == nil {
			return nil
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt+1).Str("routing_key", key).Msg("publish failed")
		c.teardownLocked()
	}
	return fmt.Errorf("publish to %s/%s: %w", exchange, key, lastErr)
}

// Consume registers a prefetch-1, manual-ack consumer on the orders queue.
// The returned channel closes when the underlying channel dies.
func (c *Client) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.ensureLocked()
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(QueueOrders, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", QueueOrders, err)
	}
	return deliveries, nil
}

// Get fetches a single message without auto-ack; ok is false when the queue
// is empty. Used by reconciliation to scan the pending-restock backlog.
func (c *Client) Get(queue string) (amqp.Delivery, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.ensureLocked()
	if err != nil {
		return amqp.Delivery{}, false, err
	}
	return ch.Get(queue, false)
}

// Ping verifies the broker is reachable and the orders queue exists.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.ensureLocked()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclarePassive(QueueOrders, true, false, false, false, nil); err != nil {
		c.teardownLocked()
		return err
	}
	return nil
}

// WaitReady blocks until the broker accepts a connection, retrying with a
// fixed delay. Covers container startup ordering.
func (c *Client) WaitReady(attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if _, err = c.Channel(); err == nil {
			return nil
		}
		c.log.Warn().Err(err).Int("attempt", i+1).Msg("rabbitmq not ready")
		time.Sleep(delay)
	}
	return err
}

// Close releases the channel and connection; tolerates either being closed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	return nil
}

func (c *Client) teardownLocked() {
	if c.ch != nil && !c.ch.IsClosed() {
		_ = c.ch.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		_ = c.conn.Close()
	}
	c.ch, c.conn = nil, nil
}
