package orders

type Status string

const (
	StatusCreated         Status = "CREATED"
	StatusFailedQueue     Status = "FAILED_QUEUE"
	StatusProcessed       Status = "PROCESSED"
	StatusOutOfStock      Status = "OUT_OF_STOCK"
	StatusProductNotFound Status = "FAILED_PRODUCT_NOT_FOUND"
	StatusFailed          Status = "FAILED"
)

// Orders in these states may be put back on the queue; everything else is a
// rejected precondition for re-enqueue.
var reenqueueable = map[Status]bool{
	StatusCreated:     true,
	StatusFailedQueue: true,
	StatusOutOfStock:  true,
}

func CanReenqueue(s Status) bool { return reenqueueable[s] }
