package checkout

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/shopcore/storefront/internal/cache"
	"github.com/shopcore/storefront/internal/inventory"
	"github.com/shopcore/storefront/internal/orders"
)

// memLedger implements orders.Ledger in memory with injectable faults.
type memLedger struct {
	mu sync.Mutex

	AppendErr error
	MarkErr   error

	byID    map[string]*orders.Order
	created []string // append order, oldest first
}

func newMemLedger() *memLedger {
	return &memLedger{byID: map[string]*orders.Order{}}
}

func (l *memLedger) Append(ctx context.Context, o *orders.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.AppendErr != nil {
		return l.AppendErr
	}
	cp := *o
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	l.byID[o.ID] = &cp
	l.created = append(l.created, o.ID)
	*o = cp
	return nil
}

func (l *memLedger) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byID[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, orderID)
	}
	cp := *o
	return &cp, nil
}

func (l *memLedger) GetByExternalID(ctx context.Context, externalID string) (*orders.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.byID {
		if o.ExternalID == externalID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: external_id=%s", orders.ErrOrderNotFound, externalID)
}

func (l *memLedger) ListAll(ctx context.Context) ([]orders.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]orders.Order, 0, len(l.byID))
	for i := len(l.created) - 1; i >= 0; i-- {
		out = append(out, *l.byID[l.created[i]])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (l *memLedger) MarkCancelled(ctx context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byID[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrOrderNotFound, orderID)
	}
	if o.Status == orders.StatusCancelled {
		return orders.ErrAlreadyCancelled
	}
	if l.MarkErr != nil {
		return l.MarkErr
	}
	o.Status = orders.StatusCancelled
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// memCache implements cache.Cache over a plain map.
type memCache struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemCache() *memCache { return &memCache{m: map[string]string{}} }

func (c *memCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *memCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[key]; ok {
		return false, nil
	}
	c.m[key] = value
	return true, nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

// capturePublisher records published event values.
type capturePublisher struct {
	mu       sync.Mutex
	messages [][]byte
	keys     []string
}

func (p *capturePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, string(key))
	p.messages = append(p.messages, value)
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// failingReleaseStore wraps a Store and fails every ReleaseOrder.
type failingReleaseStore struct {
	inventory.Store
	err error
}

func (s *failingReleaseStore) ReleaseOrder(ctx context.Context, orderID string) error {
	return s.err
}

// failingReserveStore wraps a Store and fails ReserveForOrder once armed.
type failingReserveStore struct {
	inventory.Store
	armed bool
	err   error
}

func (s *failingReserveStore) ReserveForOrder(ctx context.Context, orderID string, items []inventory.Item) ([]inventory.PricedItem, error) {
	if s.armed {
		return nil, s.err
	}
	return s.Store.ReserveForOrder(ctx, orderID, items)
}
