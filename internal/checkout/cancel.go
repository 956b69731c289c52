package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopcore/storefront/internal/inventory"
	"github.com/shopcore/storefront/internal/orders"
)

// CancelOrder releases the order's reserved stock and marks it
// cancelled. Release-then-mark is compensated: if the mark fails the
// stock is re-reserved, so a pending order always holds its stock.
// Cancelling an already-cancelled order is an idempotent no-op.
func (s *Service) CancelOrder(ctx context.Context, orderID, traceID string) (*orders.Order, error) {
	o, err := s.Ledger.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == orders.StatusCancelled {
		return o, orders.ErrAlreadyCancelled
	}

	if err := s.Inventory.ReleaseOrder(ctx, orderID); err != nil {
		return nil, fmt.Errorf("release stock for order %s: %w", orderID, err)
	}

	if err := s.Ledger.MarkCancelled(ctx, orderID); err != nil {
		if errors.Is(err, orders.ErrAlreadyCancelled) || errors.Is(err, orders.ErrOrderNotFound) {
			// lost the race to a concurrent cancel; that cancel owns the
			// release, ours was a no-op
			return o, err
		}
		// storage fault after release: take the stock back so the order
		// stays consistently pending
		items := make([]inventory.Item, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, inventory.Item{ProductID: it.ProductID, Qty: it.Qty})
		}
		if _, rErr := s.Inventory.ReserveForOrder(ctx, orderID, items); rErr != nil {
			log.Printf("CONSISTENCY: order=%s mark cancelled failed (%v) and re-reserve failed (%v)", orderID, err, rErr)
			return nil, fmt.Errorf("%w: order %s released stock but is still pending", orders.ErrConsistency, orderID)
		}
		return nil, err
	}

	o.Status = orders.StatusCancelled
	s.publishCancelled(o, traceID)
	return o, nil
}
