package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// OrderCache is the consumer-side view of Redis: a short-lived status mirror
// plus the processed-order dedup set. Every operation is best-effort; a dead
// Redis degrades to plain at-least-once behavior.
type OrderCache struct{ R *redis.Client }

func (c *OrderCache) CacheStatus(ctx context.Context, orderID int64, status string) {
	_ = c.R.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), status, TTLStatusCache).Err()
}

func (c *OrderCache) AlreadyProcessed(ctx context.Context, orderID int64) bool {
	ok, _ := Exists(ctx, c.R, fmt.Sprintf(KeyOrderProcessed, orderID))
	return ok
}

func (c *OrderCache) MarkProcessed(ctx context.Context, orderID int64) {
	_ = c.R.Set(ctx, fmt.Sprintf(KeyOrderProcessed, orderID), "1", TTLProcessed).Err()
}
