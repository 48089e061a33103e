package redisx

import "time"

const (
	// Order status cache: order_status:{order_id} -> "PROCESSED"
	KeyOrderStatus = "order_status:%d"

	// Dedup for the consumer: dedup:consumer:order:{order_id}, set once an
	// order reaches PROCESSED so a redelivery cannot decrement stock twice.
	KeyOrderProcessed = "dedup:consumer:order:%d"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLProcessed   = 48 * time.Hour
)
