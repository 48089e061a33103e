package rabbit

// All queues are durable and survive a broker restart.
const (
	QueueOrders         = "orders"
	QueuePendingRestock = "orders_pending_restock"
	QueueDeadLetter     = "dead_letter_queue"

	ExchangeDLX   = "dlx"
	KeyDeadLetter = "orders_dlq"

	// Retry counter travels as message metadata, not in the body.
	HeaderRetries = "x-retries"
)
