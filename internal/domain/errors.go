package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuthRequired       = errors.New("authentication required")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrOutOfStock         = errors.New("not enough stock")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrGateway            = errors.New("payment gateway error")
	ErrPersistence        = errors.New("persistence error")
	ErrIllegalTransition  = errors.New("illegal transition of order status")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type OutOfStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s: requested %d, only %d in stock", e.ProductID, e.Requested, e.Available)
}

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

// ProductUnavailableError is returned when a product no longer exists or has no
// stock left at all.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is no longer available", e.ProductID)
}

func (e *ProductUnavailableError) Is(target error) bool { return target == ErrProductUnavailable }

// GatewayError carries the id of the order that stays pending so the caller can
// retry payment for it.
type GatewayError struct {
	OrderID string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("payment gateway: %v", e.Err)
	}
	return fmt.Sprintf("payment gateway (order %s): %v", e.OrderID, e.Err)
}

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }
func (e *GatewayError) Unwrap() error        { return e.Err }

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
func (e *PersistenceError) Unwrap() error        { return e.Err }

type IllegalTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }
