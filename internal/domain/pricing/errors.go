package pricing

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/product"
)

// Sentinel errors for cart validation.
var (
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInvalidLineQuantity   = errors.New("invalid line quantity")
	ErrUnknownAddition       = errors.New("unknown addition")
	ErrInvalidDeliveryOption = errors.New("invalid delivery option")
	ErrUnsupportedMode       = errors.New("unsupported pricing mode")
)

// InvalidLineQuantityError indicates a line's quantity or weight is out of
// range for its product's pricing mode.
type InvalidLineQuantityError struct {
	ProductID string
	Mode      product.PricingMode
}

func (e *InvalidLineQuantityError) Error() string {
	if e.Mode == product.PricingWeighted {
		return fmt.Sprintf("weight must be between 1 and %d grams for product %s", MaxWeightGrams, e.ProductID)
	}
	return fmt.Sprintf("quantity must be between 1 and %d for product %s", MaxQuantity, e.ProductID)
}

func (e *InvalidLineQuantityError) Unwrap() error { return ErrInvalidLineQuantity }

// UnknownAdditionError indicates a requested addition is not offered by the product.
type UnknownAdditionError struct {
	ProductID string
	Name      string
}

func (e *UnknownAdditionError) Error() string {
	return fmt.Sprintf("addition %q is not available for product %s", e.Name, e.ProductID)
}

func (e *UnknownAdditionError) Unwrap() error { return ErrUnknownAddition }
