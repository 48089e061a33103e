package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) CreateOrder(ctx context.Context, o *Order) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO orders(customer_name, cedula, product_id, quantity, total_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		o.CustomerName, o.Cedula, o.ProductID, o.Quantity, o.TotalAmount, o.Status,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

func (r *Repo) GetOrder(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, customer_name, cedula, product_id, quantity, total_amount, status, created_at, updated_at
		FROM orders WHERE id=$1`, id,
	).Scan(&o.ID, &o.CustomerName, &o.Cedula, &o.ProductID, &o.Quantity, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func (r *Repo) ListOrders(ctx context.Context, limit, offset int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, customer_name, cedula, product_id, quantity, total_amount, status, created_at, updated_at
		FROM orders ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.CustomerName, &o.Cedula, &o.ProductID, &o.Quantity, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) SetStatus(ctx context.Context, id int64, st Status) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, st)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStuck returns orders that never made it into the pipeline
// (CREATED or FAILED_QUEUE).
func (r *Repo) ListStuck(ctx context.Context) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, customer_name, cedula, product_id, quantity, total_amount, status, created_at, updated_at
		FROM orders WHERE status = ANY($1) ORDER BY id`,
		[]string{string(StatusCreated), string(StatusFailedQueue)})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.CustomerName, &o.Cedula, &o.ProductID, &o.Quantity, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type Analytics struct {
	TotalOrders     int            `json:"total_orders"`
	TotalRevenue    float64        `json:"total_revenue"`
	OrdersByStatus  map[string]int `json:"orders_by_status"`
	OrdersLast7Days int            `json:"orders_last_7_days"`
}

// Analytics aggregates operational metrics straight from the store.
func (r *Repo) Analytics(ctx context.Context) (Analytics, error) {
	a := Analytics{OrdersByStatus: map[string]int{}}

	rows, err := r.DB.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return a, err
	}
	defer rows.Close()
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return a, err
		}
		a.OrdersByStatus[st] = n
		a.TotalOrders += n
	}
	if err := rows.Err(); err != nil {
		return a, err
	}

	err = r.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount), 0) FROM orders WHERE status=$1`,
		StatusProcessed).Scan(&a.TotalRevenue)
	if err != nil {
		return a, err
	}

	since := time.Now().UTC().AddDate(0, 0, -7)
	err = r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE created_at >= $1`, since).Scan(&a.OrdersLast7Days)
	return a, err
}
