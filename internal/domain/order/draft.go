package order

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Draft is the client-submitted order payload accompanying a completed
// payment. It carries everything needed to materialize an Order; prices are
// recomputed server-side from the line items, never trusted as a total.
type Draft struct {
	UserID     string       `json:"userId" validate:"required"`
	Items      []DraftItem  `json:"items" validate:"required,min=1,dive"`
	Address    DraftAddress `json:"address" validate:"required"`
	CouponCode string       `json:"couponCode,omitempty"`
}

// DraftItem is a single requested line item.
type DraftItem struct {
	ProductID string          `json:"productId" validate:"required"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// DraftAddress is the shipping address as submitted by the client.
type DraftAddress struct {
	Name    string `json:"name" validate:"required"`
	Line1   string `json:"line1" validate:"required"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Pincode string `json:"pincode" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
}

// validateDraft checks structural validity of a draft. It returns
// ErrEmptyItems for a missing item list and InvalidDraftError for everything
// else, so handlers can map both to a 400 without inspecting validator
// internals.
func validateDraft(v *validator.Validate, d *Draft) error {
	if len(d.Items) == 0 {
		return ErrEmptyItems
	}
	if err := v.Struct(d); err != nil {
		return &InvalidDraftError{Reason: err.Error()}
	}
	for _, item := range d.Items {
		if item.UnitPrice.IsNegative() {
			return &InvalidDraftError{Reason: "unit price must not be negative"}
		}
	}
	return nil
}
