package checkout

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/shopcore/storefront/internal/cache"
	"github.com/shopcore/storefront/internal/inventory"
	"github.com/shopcore/storefront/internal/orders"
)

// PlaceOrder reserves stock for every item, then appends the order. The
// two steps must look atomic: if the append fails the reservation is
// released before the error is returned. A single-item order is just a
// cart of one.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceRequest) (*PlaceResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.ExternalID != "" {
		if res, ok := s.lookupExisting(ctx, req.ExternalID); ok {
			return res, nil
		}
	}

	orderID := uuid.NewString()
	items := make([]inventory.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, inventory.Item{ProductID: it.ProductID, Qty: it.Qty})
	}

	priced, err := s.Inventory.ReserveForOrder(ctx, orderID, items)
	if err != nil {
		return nil, err
	}

	o := buildOrder(orderID, req, priced)
	if err := s.Ledger.Append(ctx, o); err != nil {
		// compensation: the reservation must not outlive the failed append
		if relErr := s.Inventory.ReleaseOrder(ctx, orderID); relErr != nil {
			log.Printf("CONSISTENCY: order=%s append failed (%v) and release failed (%v)", orderID, err, relErr)
			return nil, fmt.Errorf("%w: order %s holds stock without a ledger entry", orders.ErrConsistency, orderID)
		}
		return nil, err
	}

	if req.ExternalID != "" {
		key := fmt.Sprintf(cache.KeyIdemOrderPlace, req.ExternalID)
		if err := s.Cache.Set(ctx, key, orderID, cache.TTLIdempotency); err != nil {
			log.Printf("idempotency cache set: %v", err)
		}
	}

	s.publishPlaced(o, req.TraceID)
	return &PlaceResult{Order: o}, nil
}

// lookupExisting serves replays of a previously placed external id. The
// cache is a fast path; the ledger's unique external_id column is the
// source of truth.
func (s *Service) lookupExisting(ctx context.Context, externalID string) (*PlaceResult, bool) {
	key := fmt.Sprintf(cache.KeyIdemOrderPlace, externalID)
	if id, err := s.Cache.Get(ctx, key); err == nil && id != "" {
		if o, err := s.Ledger.Get(ctx, id); err == nil {
			return &PlaceResult{Order: o, Idempotent: true}, true
		}
	}
	o, err := s.Ledger.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, false
	}
	return &PlaceResult{Order: o, Idempotent: true}, true
}

func buildOrder(orderID string, req PlaceRequest, priced []inventory.PricedItem) *orders.Order {
	items := make([]orders.LineItem, 0, len(priced))
	total := 0
	for _, p := range priced {
		items = append(items, orders.LineItem{
			ProductID:      p.ProductID,
			ProductName:    p.Name,
			UnitPriceCents: p.UnitPriceCents,
			Qty:            p.Qty,
		})
		total += p.UnitPriceCents * p.Qty
	}
	return &orders.Order{
		ID:         orderID,
		ExternalID: req.ExternalID,
		Customer:   req.Customer,
		Payment:    req.Payment.sanitize(),
		Items:      items,
		TotalCents: total,
		Status:     orders.StatusPending,
	}
}
