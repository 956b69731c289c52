package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcore/storefront/internal/orders"
)

// PGStore serializes reserve/release per product with row locks; the
// stock CHECK constraint is the last line of defense against going
// negative.
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Reserve(ctx context.Context, productID string, qty int) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var name string
	var stock int
	err = tx.QueryRow(ctx, `SELECT name, stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&name, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
	}
	if err != nil {
		return err
	}
	if stock < qty {
		return &orders.InsufficientStockError{Shortages: []orders.StockShortage{
			{ProductID: productID, Name: name, Required: qty, Available: stock},
		}}
	}
	if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`, productID, qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Release(ctx context.Context, productID string, qty int) error {
	ct, err := s.DB.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
	}
	return nil
}

func (s *PGStore) ReserveBySlug(ctx context.Context, slug string, qty int) (int, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id, name string
	var stock int
	err = tx.QueryRow(ctx, `SELECT id, name, stock FROM products WHERE slug=$1 FOR UPDATE`, slug).Scan(&id, &name, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: slug=%s", orders.ErrProductNotFound, slug)
	}
	if err != nil {
		return 0, err
	}
	if stock < qty {
		return 0, &orders.InsufficientStockError{Shortages: []orders.StockShortage{
			{ProductID: id, Name: name, Required: qty, Available: stock},
		}}
	}
	if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`, id, qty); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return stock - qty, nil
}

// ReserveForOrder locks each product row in ascending id order, collects
// every shortage instead of stopping at the first, and commits only when
// the whole order is covered.
func (s *PGStore) ReserveForOrder(ctx context.Context, orderID string, items []Item) ([]PricedItem, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var shortages []orders.StockShortage
	var priced []PricedItem

	for _, it := range mergeSorted(items) {
		var name string
		var price, stock int
		err := tx.QueryRow(ctx, `SELECT name, price_cents, stock FROM products WHERE id=$1 FOR UPDATE`, it.ProductID).
			Scan(&name, &price, &stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", orders.ErrProductNotFound, it.ProductID)
		}
		if err != nil {
			return nil, err
		}
		if stock < it.Qty {
			shortages = append(shortages, orders.StockShortage{
				ProductID: it.ProductID, Name: name, Required: it.Qty, Available: stock,
			})
			continue
		}

		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`, it.ProductID, it.Qty); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations(order_id, product_id, qty, status)
			VALUES ($1,$2,$3,'RESERVED')
			ON CONFLICT (order_id, product_id)
			DO UPDATE SET qty = EXCLUDED.qty, status = 'RESERVED'
		`, orderID, it.ProductID, it.Qty); err != nil {
			return nil, err
		}
		priced = append(priced, PricedItem{ProductID: it.ProductID, Name: name, UnitPriceCents: price, Qty: it.Qty})
	}

	if len(shortages) > 0 {
		return nil, &orders.InsufficientStockError{Shortages: shortages} // rollback via defer
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return priced, nil
}

func (s *PGStore) ReleaseOrder(ctx context.Context, orderID string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT product_id, qty FROM reservations WHERE order_id=$1 AND status='RESERVED'`, orderID)
	if err != nil {
		return err
	}
	type rec struct {
		pid string
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.qty); err != nil {
			rows.Close()
			return err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, x.pid, x.qty); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE reservations SET status='RELEASED' WHERE order_id=$1 AND status='RESERVED'`, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
