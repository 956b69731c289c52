package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger is the append-only order record. It never touches inventory;
// keeping the two consistent is the checkout service's job.
type Ledger interface {
	Append(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	// MarkCancelled flips a pending order to cancelled. Returns
	// ErrAlreadyCancelled on repeat calls, never deletes the row.
	MarkCancelled(ctx context.Context, orderID string) error
}

type PGLedger struct{ DB *pgxpool.Pool }

func (l *PGLedger) Append(ctx context.Context, o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}

	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var externalID any
	if o.ExternalID != "" {
		externalID = o.ExternalID
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, external_id, customer_name, customer_email, customer_phone,
		                   address, payment_method, card_last4, total_cents, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		o.ID, externalID, o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		o.Customer.Address, o.Payment.Method, o.Payment.CardLast4, o.TotalCents, string(o.Status),
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, unit_price_cents, qty)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, it.ProductID, it.ProductName, it.UnitPriceCents, it.Qty,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (l *PGLedger) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := l.scanOrder(ctx, `WHERE id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	items, err := l.itemsFor(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (l *PGLedger) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	o, err := l.scanOrder(ctx, `WHERE external_id=$1`, externalID)
	if err != nil {
		return nil, err
	}
	items, err := l.itemsFor(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (l *PGLedger) ListAll(ctx context.Context) ([]Order, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT id, COALESCE(external_id, ''), customer_name, customer_email, customer_phone,
		       address, payment_method, card_last4, total_cents, status, created_at, updated_at
		FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	var ids []string
	for rows.Next() {
		var o Order
		var status string
		if err := rows.Scan(&o.ID, &o.ExternalID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
			&o.Customer.Address, &o.Payment.Method, &o.Payment.CardLast4, &o.TotalCents, &status,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Status = Status(status)
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	items, err := l.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (l *PGLedger) MarkCancelled(ctx context.Context, orderID string) error {
	ct, err := l.DB.Exec(ctx, `
		UPDATE orders SET status=$2, updated_at=now()
		WHERE id=$1 AND status=$3`,
		orderID, string(StatusCancelled), string(StatusPending))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	// distinguish missing from already cancelled
	var status string
	err = l.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return err
	}
	if Status(status) == StatusCancelled {
		return ErrAlreadyCancelled
	}
	return fmt.Errorf("order %s in unexpected status %s", orderID, status)
}

func (l *PGLedger) scanOrder(ctx context.Context, where string, arg any) (*Order, error) {
	var o Order
	var status string
	err := l.DB.QueryRow(ctx, `
		SELECT id, COALESCE(external_id, ''), customer_name, customer_email, customer_phone,
		       address, payment_method, card_last4, total_cents, status, created_at, updated_at
		FROM orders `+where, arg,
	).Scan(&o.ID, &o.ExternalID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&o.Customer.Address, &o.Payment.Method, &o.Payment.CardLast4, &o.TotalCents, &status,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", ErrOrderNotFound, arg)
	}
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return &o, nil
}

func (l *PGLedger) itemsFor(ctx context.Context, orderIDs []string) (map[string][]LineItem, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT order_id, product_id, product_name, unit_price_cents, qty
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]LineItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var it LineItem
		if err := rows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.UnitPriceCents, &it.Qty); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}
