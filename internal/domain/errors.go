package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
)

var (
	ErrOrderNotFound        = fmt.Errorf("order %w", ErrNotFound)
	ErrAddressNotFound      = fmt.Errorf("address %w", ErrNotFound)
	ErrProductNotFound      = fmt.Errorf("product %w", ErrNotFound)
	ErrVariantNotFound      = fmt.Errorf("variant %w", ErrNotFound)
	ErrRefundNotFound       = fmt.Errorf("refund %w", ErrNotFound)
	ErrProductUnavailable   = fmt.Errorf("%w: product unavailable", ErrInvalidInput)
	ErrEmptyOrder           = fmt.Errorf("%w: order has no items", ErrInvalidInput)
	ErrInvalidAmount        = fmt.Errorf("%w: refund amount must be positive and not exceed the order total", ErrInvalidInput)
	ErrDuplicateRefund      = fmt.Errorf("%w: order already has an active refund request", ErrInvalidInput)
	ErrRefundAlreadyHandled = fmt.Errorf("%w: refund already handled", ErrInvalidState)
)

// StateError reports a transition attempted from a status that does not
// allow it.
type StateError struct {
	Op       string
	Required []OrderStatus
	Actual   OrderStatus
}

func (e *StateError) Error() string {
	names := make([]string, len(e.Required))
	for i, s := range e.Required {
		names[i] = s.String()
	}
	return fmt.Sprintf("cannot %s order in status %s (requires %s)", e.Op, e.Actual, strings.Join(names, " or "))
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// StockError names the product whose stock could not cover a checkout line.
type StockError struct {
	ProductID   int64
	ProductName string
	Requested   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (product %d, requested %d)", e.ProductName, e.ProductID, e.Requested)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}
