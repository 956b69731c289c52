package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopcore/storefront/internal/orders"
)

type memReservation struct {
	productID string
	qty       int
	released  bool
}

// MemStore implements Store with in-memory storage. It also serves
// catalog reads, which makes it a full backend for handler and service
// tests without Postgres.
type MemStore struct {
	mu           sync.Mutex
	products     map[string]*orders.Product
	bySlug       map[string]string
	reservations map[string][]memReservation // orderID -> lines
}

func NewMemStore() *MemStore {
	return &MemStore{
		products:     make(map[string]*orders.Product),
		bySlug:       make(map[string]string),
		reservations: make(map[string][]memReservation),
	}
}

// SetProduct inserts or replaces a product.
func (s *MemStore) SetProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
	s.bySlug[p.Slug] = p.ID
}

func (s *MemStore) Reserve(ctx context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
	}
	if p.Stock < qty {
		return &orders.InsufficientStockError{Shortages: []orders.StockShortage{
			{ProductID: productID, Name: p.Name, Required: qty, Available: p.Stock},
		}}
	}
	p.Stock -= qty
	return nil
}

func (s *MemStore) Release(ctx context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
	}
	p.Stock += qty
	return nil
}

func (s *MemStore) ReserveBySlug(ctx context.Context, slug string, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySlug[slug]
	if !ok {
		return 0, fmt.Errorf("%w: slug=%s", orders.ErrProductNotFound, slug)
	}
	p := s.products[id]
	if p.Stock < qty {
		return 0, &orders.InsufficientStockError{Shortages: []orders.StockShortage{
			{ProductID: p.ID, Name: p.Name, Required: qty, Available: p.Stock},
		}}
	}
	p.Stock -= qty
	return p.Stock, nil
}

func (s *MemStore) ReserveForOrder(ctx context.Context, orderID string, items []Item) ([]PricedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := mergeSorted(items)

	// first pass: every item must be covered
	var shortages []orders.StockShortage
	for _, it := range merged {
		p, ok := s.products[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", orders.ErrProductNotFound, it.ProductID)
		}
		if p.Stock < it.Qty {
			shortages = append(shortages, orders.StockShortage{
				ProductID: it.ProductID, Name: p.Name, Required: it.Qty, Available: p.Stock,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &orders.InsufficientStockError{Shortages: shortages}
	}

	// second pass: apply
	priced := make([]PricedItem, 0, len(merged))
	recs := make([]memReservation, 0, len(merged))
	for _, it := range merged {
		p := s.products[it.ProductID]
		p.Stock -= it.Qty
		priced = append(priced, PricedItem{ProductID: p.ID, Name: p.Name, UnitPriceCents: p.PriceCents, Qty: it.Qty})
		recs = append(recs, memReservation{productID: it.ProductID, qty: it.Qty})
	}
	s.reservations[orderID] = recs
	return priced, nil
}

func (s *MemStore) ReleaseOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.reservations[orderID]
	for i := range recs {
		if recs[i].released {
			continue
		}
		if p, ok := s.products[recs[i].productID]; ok {
			p.Stock += recs[i].qty
		}
		recs[i].released = true
	}
	return nil
}

// List and GetBySlug satisfy the catalog read interface.

func (s *MemStore) List(ctx context.Context) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *MemStore) GetBySlug(ctx context.Context, slug string) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySlug[slug]
	if !ok {
		return orders.Product{}, fmt.Errorf("%w: slug=%s", orders.ErrProductNotFound, slug)
	}
	return *s.products[id], nil
}
