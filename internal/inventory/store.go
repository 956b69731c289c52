package inventory

import (
	"context"
	"sort"
)

// Item is one reservation request line.
type Item struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// PricedItem is a reservation result line with the catalog name and unit
// price read under the same lock that reserved the stock, so client
// supplied prices are never trusted.
type PricedItem struct {
	ProductID      string
	Name           string
	UnitPriceCents int
	Qty            int
}

type Store interface {
	// Reserve atomically checks stock >= qty and decrements. Running out
	// of stock is a normal outcome, reported as *orders.InsufficientStockError
	// and distinguishable from an unknown product.
	Reserve(ctx context.Context, productID string, qty int) error

	// Release returns qty to the product's stock. Unconditionally
	// additive; there is no upper bound to validate against.
	Release(ctx context.Context, productID string, qty int) error

	// ReserveBySlug is Reserve keyed by slug with no order attached,
	// backing the direct stock-decrement route. Returns remaining stock.
	ReserveBySlug(ctx context.Context, slug string, qty int) (int, error)

	// ReserveForOrder reserves every item or nothing, recording a
	// reservation per product against orderID. Calling it again for the
	// same order re-reserves (released lines flip back to reserved).
	ReserveForOrder(ctx context.Context, orderID string, items []Item) ([]PricedItem, error)

	// ReleaseOrder restores stock for every live reservation of the
	// order. Idempotent: released lines are not released again.
	ReleaseOrder(ctx context.Context, orderID string) error
}

// mergeSorted folds duplicate product ids together and orders the result
// by ascending product id. Locks are always taken in this order, so two
// carts naming the same products in opposite order cannot deadlock.
func mergeSorted(items []Item) []Item {
	byID := make(map[string]int, len(items))
	for _, it := range items {
		byID[it.ProductID] += it.Qty
	}
	out := make([]Item, 0, len(byID))
	for id, qty := range byID {
		out = append(out, Item{ProductID: id, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
