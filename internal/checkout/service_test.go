package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopcore/storefront/internal/inventory"
	"github.com/shopcore/storefront/internal/orders"
)

type fixture struct {
	svc       *Service
	store     *inventory.MemStore
	ledger    *memLedger
	cache     *memCache
	placed    *capturePublisher
	cancelled *capturePublisher
}

func setupService(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     inventory.NewMemStore(),
		ledger:    newMemLedger(),
		cache:     newMemCache(),
		placed:    &capturePublisher{},
		cancelled: &capturePublisher{},
	}
	f.store.SetProduct(orders.Product{ID: "p1", Slug: "iphone-15", Name: "iPhone 15", PriceCents: 10000, Stock: 10})
	f.store.SetProduct(orders.Product{ID: "p2", Slug: "iphone-15-pro", Name: "iPhone 15 Pro", PriceCents: 20000, Stock: 2})
	f.store.SetProduct(orders.Product{ID: "p3", Slug: "iphone-se", Name: "iPhone SE", PriceCents: 5000, Stock: 0})
	f.svc = &Service{
		Inventory:    f.store,
		Ledger:       f.ledger,
		Cache:        f.cache,
		PlacedEvents: f.placed,
		CancelEvents: f.cancelled,
		Name:         "test-api",
	}
	return f
}

func (f *fixture) stockOf(t *testing.T, slug string) int {
	t.Helper()
	p, err := f.store.GetBySlug(context.Background(), slug)
	require.NoError(t, err)
	return p.Stock
}

func validRequest(items ...CartItem) PlaceRequest {
	return PlaceRequest{
		Customer: orders.Customer{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "555-0100", Address: "1 Engine St"},
		Payment:  PaymentInput{Method: "card", CardNumber: "4111111111111111", Expiry: "12/27", CVV: "123"},
		Items:    items,
	}
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		mod  func(*PlaceRequest)
	}{
		{"missing name", func(r *PlaceRequest) { r.Customer.Name = "" }},
		{"missing email", func(r *PlaceRequest) { r.Customer.Email = "" }},
		{"no items", func(r *PlaceRequest) { r.Items = nil }},
		{"zero qty", func(r *PlaceRequest) { r.Items[0].Qty = 0 }},
		{"missing product id", func(r *PlaceRequest) { r.Items[0].ProductID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest(CartItem{ProductID: "p1", Qty: 1})
			tc.mod(&req)
			_, err := f.svc.PlaceOrder(ctx, req)
			assert.ErrorIs(t, err, orders.ErrValidation)
		})
	}

	// nothing was reserved or recorded
	assert.Equal(t, 10, f.stockOf(t, "iphone-15"))
	assert.Empty(t, f.ledger.byID)
	assert.Zero(t, f.placed.count())
}

func TestPlaceOrder_Single(t *testing.T) {
	f := setupService(t)

	res, err := f.svc.PlaceOrder(context.Background(), validRequest(CartItem{ProductID: "p1", Qty: 2}))
	require.NoError(t, err)
	require.False(t, res.Idempotent)

	o := res.Order
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, 20000, o.TotalCents)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "iPhone 15", o.Items[0].ProductName)
	assert.Equal(t, 10000, o.Items[0].UnitPriceCents)

	// card data is reduced to method + last4
	assert.Equal(t, "card", o.Payment.Method)
	assert.Equal(t, "1111", o.Payment.CardLast4)

	assert.Equal(t, 8, f.stockOf(t, "iphone-15"))

	require.Equal(t, 1, f.placed.count())
	assert.Equal(t, o.ID, f.placed.keys[0])
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(f.placed.messages[0], &env))
	assert.Equal(t, orders.EventOrderPlaced, env.EventType)
	assert.Equal(t, o.ID, env.CorrelationID)
	assert.Equal(t, "test-api", env.Producer)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.PlaceOrder(context.Background(), validRequest(CartItem{ProductID: "p3", Qty: 1}))
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)
	assert.Empty(t, f.ledger.byID)
	assert.Zero(t, f.placed.count())
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.PlaceOrder(context.Background(), validRequest(CartItem{ProductID: "ghost", Qty: 1}))
	assert.ErrorIs(t, err, orders.ErrProductNotFound)
	assert.Empty(t, f.ledger.byID)
}

func TestPlaceOrder_Cart_AllOrNothing(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.PlaceOrder(context.Background(), validRequest(
		CartItem{ProductID: "p1", Qty: 1},
		CartItem{ProductID: "p3", Qty: 1},
	))
	require.Error(t, err)

	var stockErr *orders.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Shortages, 1)
	assert.Equal(t, "p3", stockErr.Shortages[0].ProductID)

	// no partial reservation survives
	assert.Equal(t, 10, f.stockOf(t, "iphone-15"))
	assert.Empty(t, f.ledger.byID)
	assert.Zero(t, f.placed.count())
}

func TestPlaceOrder_Cart_Success(t *testing.T) {
	f := setupService(t)

	res, err := f.svc.PlaceOrder(context.Background(), validRequest(
		CartItem{ProductID: "p2", Qty: 1},
		CartItem{ProductID: "p1", Qty: 3},
	))
	require.NoError(t, err)
	assert.Equal(t, 3*10000+20000, res.Order.TotalCents)
	require.Len(t, res.Order.Items, 2)
	assert.Equal(t, 7, f.stockOf(t, "iphone-15"))
	assert.Equal(t, 1, f.stockOf(t, "iphone-15-pro"))
}

func TestPlaceOrder_CompensatesFailedAppend(t *testing.T) {
	f := setupService(t)
	boom := errors.New("disk on fire")
	f.ledger.AppendErr = boom

	_, err := f.svc.PlaceOrder(context.Background(), validRequest(CartItem{ProductID: "p1", Qty: 4}))
	require.ErrorIs(t, err, boom)

	// the reservation was released; stock is back to the pre-call value
	assert.Equal(t, 10, f.stockOf(t, "iphone-15"))
	assert.Empty(t, f.ledger.byID)
	assert.Zero(t, f.placed.count())
}

func TestPlaceOrder_ConsistencyViolationWhenReleaseAlsoFails(t *testing.T) {
	f := setupService(t)
	f.ledger.AppendErr = errors.New("append failed")
	f.svc.Inventory = &failingReleaseStore{Store: f.store, err: errors.New("release failed")}

	_, err := f.svc.PlaceOrder(context.Background(), validRequest(CartItem{ProductID: "p1", Qty: 1}))
	assert.ErrorIs(t, err, orders.ErrConsistency)
}

func TestPlaceOrder_IdempotentReplay(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	req := validRequest(CartItem{ProductID: "p1", Qty: 2})
	req.ExternalID = "ext-42"

	first, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Idempotent)
	assert.Equal(t, 8, f.stockOf(t, "iphone-15"))

	second, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Idempotent)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	// the replay reserved nothing and published nothing
	assert.Equal(t, 8, f.stockOf(t, "iphone-15"))
	assert.Equal(t, 1, f.placed.count())
}

func TestPlaceOrder_IdempotentReplaySurvivesCacheLoss(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	req := validRequest(CartItem{ProductID: "p1", Qty: 2})
	req.ExternalID = "ext-43"

	first, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)

	// cache expired: the ledger's external_id lookup still catches the replay
	f.svc.Cache = newMemCache()
	second, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Idempotent)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 8, f.stockOf(t, "iphone-15"))
}

func TestCancelOrder_RoundTrip(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, validRequest(CartItem{ProductID: "p1", Qty: 2}))
	require.NoError(t, err)
	require.Equal(t, 8, f.stockOf(t, "iphone-15"))
	require.Equal(t, 20000, res.Order.TotalCents)

	got, err := f.svc.CancelOrder(ctx, res.Order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, 10, f.stockOf(t, "iphone-15"))

	stored, err := f.ledger.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, stored.Status)

	require.Equal(t, 1, f.cancelled.count())
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(f.cancelled.messages[0], &env))
	assert.Equal(t, orders.EventOrderCancelled, env.EventType)
}

func TestCancelOrder_Idempotent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, validRequest(CartItem{ProductID: "p1", Qty: 2}))
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(ctx, res.Order.ID, "")
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(ctx, res.Order.ID, "")
	assert.ErrorIs(t, err, orders.ErrAlreadyCancelled)

	// stock restored exactly once
	assert.Equal(t, 10, f.stockOf(t, "iphone-15"))
	assert.Equal(t, 1, f.cancelled.count())
}

func TestCancelOrder_NotFound(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.CancelOrder(context.Background(), "ghost", "")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestCancelOrder_ReReservesOnMarkFailure(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, validRequest(CartItem{ProductID: "p1", Qty: 2}))
	require.NoError(t, err)
	require.Equal(t, 8, f.stockOf(t, "iphone-15"))

	boom := errors.New("ledger down")
	f.ledger.MarkErr = boom
	_, err = f.svc.CancelOrder(ctx, res.Order.ID, "")
	require.ErrorIs(t, err, boom)

	// the released stock was re-reserved; the pending order still holds it
	assert.Equal(t, 8, f.stockOf(t, "iphone-15"))
	stored, err := f.ledger.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, stored.Status)

	// retry succeeds once the fault clears
	f.ledger.MarkErr = nil
	_, err = f.svc.CancelOrder(ctx, res.Order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 10, f.stockOf(t, "iphone-15"))
}

func TestCancelOrder_ConsistencyViolationWhenReReserveFails(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	fs := &failingReserveStore{Store: f.store}
	f.svc.Inventory = fs

	res, err := f.svc.PlaceOrder(ctx, validRequest(CartItem{ProductID: "p1", Qty: 2}))
	require.NoError(t, err)

	f.ledger.MarkErr = errors.New("ledger down")
	fs.armed = true
	fs.err = errors.New("reserve down")

	_, err = f.svc.CancelOrder(ctx, res.Order.ID, "")
	assert.ErrorIs(t, err, orders.ErrConsistency)
}

func TestPlaceOrder_ConcurrentSingleWinner(t *testing.T) {
	f := setupService(t)
	f.store.SetProduct(orders.Product{ID: "last", Slug: "last-one", Name: "Last One", PriceCents: 100, Stock: 1})

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(context.Background(), validRequest(CartItem{ProductID: "last", Qty: 1}))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, orders.ErrInsufficientStock)
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
	assert.Equal(t, 0, f.stockOf(t, "last-one"))
	assert.Len(t, f.ledger.byID, 1)
}

func TestPlaceOrder_OppositeOrderCartsComplete(t *testing.T) {
	f := setupService(t)
	f.store.SetProduct(orders.Product{ID: "a", Slug: "prod-a", Name: "A", PriceCents: 100, Stock: 1000})
	f.store.SetProduct(orders.Product{ID: "b", Slug: "prod-b", Name: "B", PriceCents: 100, Stock: 1000})

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := f.svc.PlaceOrder(context.Background(), validRequest(
				CartItem{ProductID: "a", Qty: 1}, CartItem{ProductID: "b", Qty: 1}))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := f.svc.PlaceOrder(context.Background(), validRequest(
				CartItem{ProductID: "b", Qty: 1}, CartItem{ProductID: "a", Qty: 1}))
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	assert.Equal(t, 1000-2*rounds, f.stockOf(t, "prod-a"))
	assert.Equal(t, 1000-2*rounds, f.stockOf(t, "prod-b"))
	assert.Len(t, f.ledger.byID, 2*rounds)
}

func TestSanitizePayment(t *testing.T) {
	p := PaymentInput{Method: "card", CardNumber: "4111111111111111", Expiry: "12/27", CVV: "999"}
	got := p.sanitize()
	assert.Equal(t, orders.Payment{Method: "card", CardLast4: "1111"}, got)

	short := PaymentInput{Method: "cod", CardNumber: ""}
	assert.Equal(t, orders.Payment{Method: "cod"}, short.sanitize())
}

func TestValidRequestHelperIsValid(t *testing.T) {
	req := validRequest(CartItem{ProductID: "p1", Qty: 1})
	require.NoError(t, req.validate(), fmt.Sprintf("fixture request must be valid: %+v", req))
}
