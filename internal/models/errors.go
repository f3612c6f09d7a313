package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for absent aggregates
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrVariantNotFound  = errors.New("variant not found")
	ErrProducerNotFound = errors.New("producer not found")
	ErrCouponNotFound   = errors.New("coupon not found")
	ErrReviewNotFound   = errors.New("review not found")
	ErrPaymentNotFound  = errors.New("payment not found")
)

// ErrForbidden signals an ownership or role mismatch
var ErrForbidden = errors.New("forbidden")

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrVariantNotFound) ||
		errors.Is(err, ErrProducerNotFound) ||
		errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrReviewNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// ValidationError signals malformed or missing input
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError signals a stock check or decrement failure
// for a named product.
type InsufficientStockError struct {
	ProductName string
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (requested %d)", e.ProductName, e.Requested)
}

// PaymentStateError signals an illegal payment-state operation, such as
// paying an already paid order or a webhook signature mismatch.
type PaymentStateError struct {
	Reason string
}

func (e *PaymentStateError) Error() string {
	return "payment state error: " + e.Reason
}

// CouponError signals a coupon that exists but cannot be applied.
type CouponError struct {
	Code   string
	Reason string
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("coupon %s: %s", e.Code, e.Reason)
}
