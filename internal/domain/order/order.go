package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus tracks how much of the order total has been collected.
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
)

// PaymentMode is the payment option the customer chose at checkout.
type PaymentMode string

const (
	// ModeFull collects the entire total upfront.
	ModeFull PaymentMode = "full"
	// ModeHalf collects half upfront; the remainder is owed on the wallet
	// until verified before delivery.
	ModeHalf PaymentMode = "half"
	// ModeCOD collects nothing upfront.
	ModeCOD PaymentMode = "cod"
)

// FulfillmentStatus is the order's position in the fulfillment pipeline.
type FulfillmentStatus string

const (
	FulfillmentPlaced     FulfillmentStatus = "placed"
	FulfillmentProcessing FulfillmentStatus = "processing"
	FulfillmentShipped    FulfillmentStatus = "shipped"
	FulfillmentDelivered  FulfillmentStatus = "delivered"
	FulfillmentCancelled  FulfillmentStatus = "cancelled"
)

// Item is a single order line: a product in a chosen size/color.
type Item struct {
	ProductID string          `json:"product_id"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Address is the shipping address captured with the draft.
type Address struct {
	Name    string `json:"name"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone"`
}

// Order is a reconciled customer order. Invariant after every successful
// mutation: AmountPaid + RemainingAmount == TotalAmount, and
// PaymentStatus == PaymentPaid iff RemainingAmount is zero.
type Order struct {
	ID                  string
	OrderNumber         int64
	PaymentReference    string
	UserID              string
	Items               []Item
	Address             Address
	CouponCode          string
	TotalAmount         decimal.Decimal
	AmountPaid          decimal.Decimal
	RemainingAmount     decimal.Decimal
	PaymentStatus       PaymentStatus
	PaymentMode         PaymentMode
	FulfillmentStatus   FulfillmentStatus
	RemainingPaymentRef string
	EmailSent           bool
	CreatedAt           time.Time
}

// Repository defines persistence operations for orders. CreateIfAbsent is the
// idempotency guard: a single atomic write against the unique
// payment-reference constraint, never a check-then-insert.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByPaymentReference(ctx context.Context, ref string) (*Order, error)
	// CreateIfAbsent persists o unless an order with the same payment
	// reference already exists, in which case the existing order is returned
	// with created=false.
	CreateIfAbsent(ctx context.Context, o *Order) (persisted *Order, created bool, err error)
	// UpdateRemainingPayment marks the order fully paid and records the
	// verified remaining-payment reference. Calling it again once the order
	// is paid is a no-op.
	UpdateRemainingPayment(ctx context.Context, orderID, verifiedRef string) error
	// SetRemainingPaymentRef pins the gateway intent id the remaining payment
	// must be verified against.
	SetRemainingPaymentRef(ctx context.Context, orderID, ref string) error
	SetFulfillmentStatus(ctx context.Context, orderID string, status FulfillmentStatus) error
	MarkEmailSent(ctx context.Context, orderID string) error
}

// Dispatcher delivers best-effort post-creation notifications. Implementations
// must never block order completion on delivery failures.
type Dispatcher interface {
	OrderCreated(o *Order)
}
