package checkout

import (
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/shopcore/storefront/internal/cache"
	"github.com/shopcore/storefront/internal/inventory"
	"github.com/shopcore/storefront/internal/orders"
)

// EventPublisher is the post-commit event sink. Publishing happens after
// the ledger write and is fire-and-forget; order state never depends on
// it.
type EventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service orchestrates placement and cancellation across the inventory
// store and the order ledger, compensating whenever the second step
// fails so no caller can observe a half-applied state.
type Service struct {
	Inventory    inventory.Store
	Ledger       orders.Ledger
	Cache        cache.Cache
	PlacedEvents EventPublisher
	CancelEvents EventPublisher
	Name         string // producer name stamped on events
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"quantity"`
}

// PaymentInput carries whatever the client sends; everything beyond the
// method and the card's last four digits is discarded before storage.
type PaymentInput struct {
	Method     string `json:"method"`
	CardNumber string `json:"card_number,omitempty"`
	Expiry     string `json:"expiry,omitempty"`
	CVV        string `json:"cvv,omitempty"`
}

func (p PaymentInput) sanitize() orders.Payment {
	last4 := p.CardNumber
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	return orders.Payment{Method: p.Method, CardLast4: last4}
}

type PlaceRequest struct {
	ExternalID string          `json:"external_id,omitempty"`
	Customer   orders.Customer `json:"customer"`
	Payment    PaymentInput    `json:"payment"`
	Items      []CartItem      `json:"items"`
	TraceID    string          `json:"-"`
}

func (r *PlaceRequest) validate() error {
	if r.Customer.Name == "" {
		return fmt.Errorf("%w: customer name is required", orders.ErrValidation)
	}
	if r.Customer.Email == "" {
		return fmt.Errorf("%w: customer email is required", orders.ErrValidation)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", orders.ErrValidation)
	}
	for _, it := range r.Items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: item is missing a product id", orders.ErrValidation)
		}
		if it.Qty < 1 {
			return fmt.Errorf("%w: invalid quantity for product %s", orders.ErrValidation, it.ProductID)
		}
	}
	return nil
}

type PlaceResult struct {
	Order *orders.Order
	// Idempotent is true when the request replayed an earlier placement
	// and no stock was reserved by this call.
	Idempotent bool
}
