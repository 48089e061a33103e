package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type ReserveKind int

const (
	ReserveOK ReserveKind = iota
	ReserveInsufficient
	ReserveNotFound
)

// ReserveResult is the explicit outcome of a reservation attempt; the
// consumer branches on Kind rather than on raised errors.
type ReserveResult struct {
	Kind        ReserveKind
	ProductName string
	Available   int // remaining stock on OK, untouched stock on insufficient
}

type StockAdjustment struct {
	ProductID int64
	Qty       int
}

func (r *Repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `SELECT id, name, price, stock FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, price, stock FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) CreateProduct(ctx context.Context, p *Product) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO products(name, price, stock) VALUES ($1, $2, $3) RETURNING id`,
		p.Name, p.Price, p.Stock).Scan(&p.ID)
}

// Reserve locks the product row (FOR UPDATE), checks stock and decrements it
// in the same transaction. Insufficient stock commits nothing. Only
// unexpected failures come back as an error; missing product and short stock
// are outcomes, not errors.
func (r *Repo) Reserve(ctx context.Context, productID int64, qty int) (ReserveResult, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ReserveResult{}, err
	}
	defer tx.Rollback(ctx)

	var name string
	var stock int
	err = tx.QueryRow(ctx, `SELECT name, stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&name, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReserveResult{Kind: ReserveNotFound}, nil
	}
	if err != nil {
		return ReserveResult{}, err
	}

	if stock < qty {
		return ReserveResult{Kind: ReserveInsufficient, ProductName: name, Available: stock}, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2 WHERE id=$1`, productID, qty); err != nil {
		return ReserveResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ReserveResult{}, err
	}
	return ReserveResult{Kind: ReserveOK, ProductName: name, Available: stock - qty}, nil
}

// ApplyRestock increments stock for each adjustment inside one transaction;
// all increments for a batch commit together. Unknown product ids are
// reported back instead of aborting the batch.
func (r *Repo) ApplyRestock(ctx context.Context, adds []StockAdjustment) (unknown []int64, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for _, a := range adds {
		ct, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id=$1`, a.ProductID, a.Qty)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() == 0 {
			unknown = append(unknown, a.ProductID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return unknown, nil
}
