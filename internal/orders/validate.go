package orders

import "fmt"

// Validate checks the fields the ledger requires before an order may be
// appended.
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: order id is required", ErrValidation)
	}
	if o.Customer.Name == "" {
		return fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if o.Customer.Email == "" {
		return fmt.Errorf("%w: customer email is required", ErrValidation)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: at least one line item is required", ErrValidation)
	}
	for _, it := range o.Items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: line item is missing a product id", ErrValidation)
		}
		if it.Qty < 1 {
			return fmt.Errorf("%w: invalid qty for product %s", ErrValidation, it.ProductID)
		}
	}
	return nil
}
