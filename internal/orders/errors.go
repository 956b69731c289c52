package orders

import (
	"errors"
	"strings"
)

var (
	ErrValidation        = errors.New("invalid request")
	ErrProductNotFound   = errors.New("product not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrAlreadyCancelled  = errors.New("order already cancelled")
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConsistency means a compensation step failed and inventory no
	// longer matches the ledger. Surfaced as a 500, never retried
	// automatically.
	ErrConsistency = errors.New("inventory/ledger consistency violation")
)

type StockShortage struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// InsufficientStockError names every product that could not be covered,
// so a cart response can list all failures at once.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	names := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		n := s.Name
		if n == "" {
			n = s.ProductID
		}
		names = append(names, n)
	}
	return "insufficient stock for: " + strings.Join(names, ", ")
}

// Is lets callers match with errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
