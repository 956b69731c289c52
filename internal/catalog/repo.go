package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcore/storefront/internal/orders"
)

// Reader is the read-only product view used by the HTTP layer.
type Reader interface {
	List(ctx context.Context) ([]orders.Product, error)
	GetBySlug(ctx context.Context, slug string) (orders.Product, error)
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) List(ctx context.Context) ([]orders.Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, slug, name, price_cents, stock, description, image_ref, created_at, updated_at
		FROM products ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		var p orders.Product
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.PriceCents, &p.Stock,
			&p.Description, &p.ImageRef, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) GetBySlug(ctx context.Context, slug string) (orders.Product, error) {
	var p orders.Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, slug, name, price_cents, stock, description, image_ref, created_at, updated_at
		FROM products WHERE slug=$1`, slug,
	).Scan(&p.ID, &p.Slug, &p.Name, &p.PriceCents, &p.Stock,
		&p.Description, &p.ImageRef, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, fmt.Errorf("%w: slug=%s", orders.ErrProductNotFound, slug)
	}
	if err != nil {
		return orders.Product{}, err
	}
	return p, nil
}
