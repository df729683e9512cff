package market

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")
)

// StockShortageError names the first product that could not be reserved so
// the client can re-render the cart accurately.
type StockShortageError struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// ProductUnavailableError covers deactivated or missing-from-catalog
// products, as opposed to ones merely out of stock.
type ProductUnavailableError struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
}

func (e *ProductUnavailableError) Error() string {
	if e.ProductName != "" {
		return fmt.Sprintf("product %q is unavailable", e.ProductName)
	}
	return fmt.Sprintf("product %d is unavailable", e.ProductID)
}

type InvalidTransitionError struct {
	OrderID int64
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %d: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}

// InvalidStateError is returned when an operation requires the order to be
// in a specific state, e.g. initiating payment outside CREATED.
type InvalidStateError struct {
	OrderID int64
	State   Status
	Op      string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %d: cannot %s in state %s", e.OrderID, e.Op, e.State)
}

// GatewayError means the payment provider could not be reached or answered
// with garbage. The order stays PAYMENT_PENDING; the caller retries.
type GatewayError struct {
	Provider string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Provider, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IntegrityError flags a broken invariant (e.g. item totals not summing to
// the order amount). Never corrected silently.
type IntegrityError struct {
	Detail string
}

func (e *IntegrityError) Error() string {
	return "integrity violation: " + e.Detail
}
