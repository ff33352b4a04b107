package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount for the given rule and order lines.
// It returns ErrInvalidCoupon when the draft does not satisfy the rule's
// minimum item count requirement.
func Apply(rule *Rule, items []Item) (Discount, error) {
	qty := 0
	subtotal := decimal.Zero
	for _, item := range items {
		qty += item.Quantity
		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if rule.MinItems > 0 && qty < rule.MinItems {
		return Discount{}, ErrInvalidCoupon
	}

	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred)
	case DiscountFixed:
		amount = decimal.Min(rule.Value, subtotal)
	case DiscountFreeLowest:
		amount = lowestUnitPrice(items)
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return Discount{
		Amount:      amount.Round(2),
		Description: rule.Description,
	}, nil
}

// lowestUnitPrice returns the lowest unit price among the given items, or
// zero for an empty slice.
func lowestUnitPrice(items []Item) decimal.Decimal {
	if len(items) == 0 {
		return decimal.Zero
	}
	lowest := items[0].Price
	for _, item := range items[1:] {
		if item.Price.LessThan(lowest) {
			lowest = item.Price
		}
	}
	return lowest
}
