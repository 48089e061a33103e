package orders

import "encoding/json"

// Message is the queue-resident form of an order. It is derived entirely
// from the Order record, so reconciliation can rebuild it from storage
// byte-for-byte without the original delivery.
type Message struct {
	OrderID      int64   `json:"order_id"`
	CustomerName string  `json:"customer_name"`
	Cedula       string  `json:"cedula"`
	ProductID    int64   `json:"product_id"`
	Quantity     int     `json:"quantity"`
	TotalAmount  float64 `json:"total_amount"`
}

func NewMessage(o Order) Message {
	return Message{
		OrderID:      o.ID,
		CustomerName: o.CustomerName,
		Cedula:       o.Cedula,
		ProductID:    o.ProductID,
		Quantity:     o.Quantity,
		TotalAmount:  o.TotalAmount,
	}
}

func (m Message) Encode() ([]byte, error) { return json.Marshal(m) }
