package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrEmptyItems is returned when a draft contains no line items.
var ErrEmptyItems = errors.New("items required")

// InvalidDraftError indicates the submitted order draft is missing required
// fields or contains values that can never be reconciled. Not retryable.
type InvalidDraftError struct {
	Reason string
}

func (e *InvalidDraftError) Error() string {
	return fmt.Sprintf("invalid order draft: %s", e.Reason)
}

// UnsupportedModeError indicates a payment mode outside full/half/cod.
type UnsupportedModeError struct {
	Mode PaymentMode
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("unsupported payment mode %q", e.Mode)
}
