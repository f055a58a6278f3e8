package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrMissingContact       = errors.New("guest checkout requires a contact email")
	ErrMissingAddress       = errors.New("shipping address missing")
	ErrInvalidOwner         = errors.New("cart must belong to exactly one of user or session")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrPriceUnavailable     = errors.New("price unavailable for the selected dimensions")
	ErrLockTimeout          = errors.New("lock acquisition timed out")
	ErrSignatureMismatch    = errors.New("signature mismatch")
	ErrCODNotPayable        = errors.New("cash on delivery orders are not paid online")
	ErrInvalidPaymentMethod = errors.New("unknown payment method")
)

// InsufficientStockError is returned when a reservation cannot be satisfied.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductName, e.Available, e.Requested)
}

// IllegalTransitionError is returned when a status change is not in the transition table.
type IllegalTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition: %s -> %s", e.Entity, e.From, e.To)
}

// PromoRejectedError carries the customer-facing reason a code was refused.
type PromoRejectedError struct {
	Code   string
	Reason string
}

func (e *PromoRejectedError) Error() string {
	return fmt.Sprintf("promo %s rejected: %s", e.Code, e.Reason)
}

// GatewayErrorKind classifies gateway failures by retry safety.
type GatewayErrorKind int

const (
	// GatewayUnknown: outcome unknown, retryable with idempotency.
	GatewayUnknown GatewayErrorKind = iota
	// GatewayTimeout: no response in time; the remote side may have succeeded.
	GatewayTimeout
	// GatewayRejected: the provider refused the request. Terminal.
	GatewayRejected
)

func (k GatewayErrorKind) String() string {
	switch k {
	case GatewayTimeout:
		return "timeout"
	case GatewayRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// GatewayError wraps a payment provider failure.
type GatewayError struct {
	Kind GatewayErrorKind
	Op   string
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the operation.
func (e *GatewayError) Retryable() bool {
	return e.Kind != GatewayRejected
}
