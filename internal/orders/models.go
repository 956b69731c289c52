package orders

import "time"

type Product struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	PriceCents  int       `json:"price_cents"`
	Stock       int       `json:"stock"`
	Description string    `json:"description,omitempty"`
	ImageRef    string    `json:"image_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Payment holds only what is safe to persist. Raw card numbers, expiry
// and cvv are dropped at the API boundary.
type Payment struct {
	Method    string `json:"method"`
	CardLast4 string `json:"card_last4,omitempty"`
}

// LineItem snapshots name and unit price at placement time so later
// catalog edits do not rewrite history.
type LineItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceCents int    `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
}

type Order struct {
	ID         string     `json:"id"`
	ExternalID string     `json:"external_id,omitempty"`
	Customer   Customer   `json:"customer"`
	Payment    Payment    `json:"payment"`
	Items      []LineItem `json:"items"`
	TotalCents int        `json:"total_cents"`
	Status     Status     `json:"status"` // see status.go
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Reservation struct {
	OrderID   string
	ProductID string
	Qty       int
	Status    string // RESERVED | RELEASED
	CreatedAt time.Time
}
