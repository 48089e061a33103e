package orders

import "time"

type Product struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

type Order struct {
	ID           int64     `json:"id"`
	CustomerName string    `json:"customer_name"`
	Cedula       string    `json:"cedula"`
	ProductID    int64     `json:"product_id"`
	Quantity     int       `json:"quantity"`
	TotalAmount  float64   `json:"total_amount"` // unit price x quantity, fixed at creation
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
