package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stitchline/checkout-api/internal/domain/coupon"
	"github.com/stitchline/checkout-api/internal/domain/payment"
	"github.com/stitchline/checkout-api/internal/domain/wallet"
)

var two = decimal.NewFromInt(2)

// Ledger is the wallet surface the reconciliation flow needs.
type Ledger interface {
	RecordDue(ctx context.Context, userID, orderID string, amount decimal.Decimal, typ wallet.TransactionType) (*wallet.Transaction, error)
	Settle(ctx context.Context, userID, orderID string) error
}

// SignatureVerifier authorizes a completed gateway payment.
type SignatureVerifier interface {
	Verify(intentID, transactionID, signature string) error
}

// Service is the reconciliation orchestrator: it ties a verified payment to a
// durable order and fires all dependent updates. CompleteOrder is idempotent
// by payment reference; the repository's atomic create-if-absent is the only
// cross-request ordering guarantee the flow relies on.
type Service struct {
	orders   Repository
	coupons  coupon.Validator
	ledger   Ledger
	verifier SignatureVerifier
	gateway  payment.Client
	dispatch Dispatcher

	validate  *validator.Validate
	tracer    trace.Tracer
	completed metric.Int64Counter
}

// NewService creates the orchestrator with its collaborators. dispatch may be
// a no-op implementation in tests; all other dependencies are required.
func NewService(
	orders Repository,
	coupons coupon.Validator,
	ledger Ledger,
	verifier SignatureVerifier,
	gateway payment.Client,
	dispatch Dispatcher,
) *Service {
	meter := otel.Meter("checkout.order")
	completed, err := meter.Int64Counter("orders_completed_total",
		metric.WithDescription("Orders durably created by the reconciliation flow"))
	if err != nil {
		// The noop meter never errors; a misconfigured SDK should not take
		// down order processing.
		completed = nil
	}

	return &Service{
		orders:    orders,
		coupons:   coupons,
		ledger:    ledger,
		verifier:  verifier,
		gateway:   gateway,
		dispatch:  dispatch,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		tracer:    otel.Tracer("checkout.order"),
		completed: completed,
	}
}

// CompleteOrder reconciles a completed payment into a durable order.
//
// The operation is idempotent by paymentReference: retried or concurrent
// duplicate submissions converge on the winner's order and trigger no second
// round of side effects. The wallet due and the notification dispatch run only
// on the call that actually created the order.
func (s *Service) CompleteOrder(ctx context.Context, paymentReference string, draft *Draft, mode PaymentMode) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "CompleteOrder",
		trace.WithAttributes(attribute.String("payment.reference", paymentReference)))
	defer span.End()

	if paymentReference == "" {
		return nil, &InvalidDraftError{Reason: "payment reference required"}
	}
	if err := validateDraft(s.validate, draft); err != nil {
		return nil, err
	}

	items, subtotal := materializeItems(draft.Items)

	total, err := s.applyCoupon(ctx, draft, subtotal)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:                uuid.New().String(),
		PaymentReference:  paymentReference,
		UserID:            draft.UserID,
		Items:             items,
		Address:           Address(draft.Address),
		CouponCode:        draft.CouponCode,
		TotalAmount:       total,
		FulfillmentStatus: FulfillmentPlaced,
		PaymentMode:       mode,
	}
	if err := splitAmounts(o, mode); err != nil {
		return nil, err
	}

	persisted, created, err := s.orders.CreateIfAbsent(ctx, o)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	if !created {
		// Duplicate submission: network retry, double click, or a lost race
		// against a concurrent request. Resolved locally, never an error.
		zctx.From(ctx).Info("Duplicate payment reference resolved to existing order",
			zap.String("payment_reference", paymentReference),
			zap.String("order_id", persisted.ID),
		)
		return persisted, nil
	}

	// Half payments put the unpaid remainder on the customer's wallet. The
	// order is already durable at this point, so a ledger failure is surfaced
	// for a retry rather than rolled back; the retry resolves idempotently.
	if mode == ModeHalf && persisted.RemainingAmount.IsPositive() {
		_, err := s.ledger.RecordDue(ctx, persisted.UserID, persisted.ID, persisted.RemainingAmount, wallet.TypeHalfPayment)
		if err != nil {
			return nil, errors.Wrap(err, "record wallet due")
		}
	}

	// Best effort, outside the critical path.
	s.dispatch.OrderCreated(persisted)

	if s.completed != nil {
		s.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(mode))))
	}
	return persisted, nil
}

// StartRemainingPayment creates a gateway intent for the order's outstanding
// amount and records the intent id so the later verification can pin the
// signature to this order.
func (s *Service) StartRemainingPayment(ctx context.Context, orderID string) (*payment.Intent, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.RemainingAmount.IsPositive() {
		return nil, &InvalidDraftError{Reason: "order has no outstanding amount"}
	}

	intent, err := s.gateway.CreateIntent(ctx, o.RemainingAmount, "INR")
	if err != nil {
		return nil, errors.Wrap(err, "create remaining-payment intent")
	}

	if err := s.orders.SetRemainingPaymentRef(ctx, o.ID, intent.IntentID); err != nil {
		return nil, errors.Wrap(err, "store remaining-payment ref")
	}
	return intent, nil
}

// VerifyRemainingPayment authorizes a remaining-payment completion and settles
// all dependent records. The signature check is a hard precondition: nothing
// downstream runs on a mismatch. Both the order update and the wallet
// settlement are idempotent, so the whole call is safe to retry.
func (s *Service) VerifyRemainingPayment(ctx context.Context, orderID, gatewayOrderID, gatewayTxnID, signature string) error {
	ctx, span := s.tracer.Start(ctx, "VerifyRemainingPayment",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if err := s.verifier.Verify(gatewayOrderID, gatewayTxnID, signature); err != nil {
		return err
	}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	// When an intent was registered for this order, the signed intent must be
	// that one; a valid signature over some other payment does not settle
	// this order.
	if o.RemainingPaymentRef != "" && o.RemainingPaymentRef != gatewayOrderID {
		return payment.ErrSignatureMismatch
	}

	if err := s.orders.UpdateRemainingPayment(ctx, o.ID, gatewayTxnID); err != nil {
		return errors.Wrap(err, "update remaining payment")
	}
	if err := s.ledger.Settle(ctx, o.UserID, o.ID); err != nil {
		return errors.Wrap(err, "settle wallet")
	}
	return nil
}

// materializeItems converts draft lines into order items and returns the
// decimal subtotal.
func materializeItems(draftItems []DraftItem) ([]Item, decimal.Decimal) {
	items := make([]Item, len(draftItems))
	subtotal := decimal.Zero
	for i, di := range draftItems {
		items[i] = Item{
			ProductID: di.ProductID,
			Size:      di.Size,
			Color:     di.Color,
			Quantity:  di.Quantity,
			UnitPrice: di.UnitPrice,
		}
		subtotal = subtotal.Add(di.UnitPrice.Mul(decimal.NewFromInt(int64(di.Quantity))))
	}
	return items, subtotal
}

// applyCoupon reduces the subtotal by the draft's coupon discount, floored at
// zero and rounded to 2 decimal places.
func (s *Service) applyCoupon(ctx context.Context, draft *Draft, subtotal decimal.Decimal) (decimal.Decimal, error) {
	total := subtotal
	if draft.CouponCode != "" {
		couponItems := make([]coupon.Item, len(draft.Items))
		for i, di := range draft.Items {
			couponItems[i] = coupon.Item{
				ProductID: di.ProductID,
				Price:     di.UnitPrice,
				Quantity:  di.Quantity,
			}
		}
		discount, err := s.coupons.Validate(ctx, draft.CouponCode, couponItems)
		if err != nil {
			if errors.Is(err, coupon.ErrInvalidCoupon) {
				return decimal.Zero, &InvalidDraftError{Reason: "invalid coupon code"}
			}
			return decimal.Zero, errors.Wrap(err, "validate coupon")
		}
		total = total.Sub(discount.Amount)
	}
	if total.IsNegative() {
		total = decimal.Zero
	}
	return total.Round(2), nil
}

// splitAmounts derives paid/remaining amounts and the payment status from the
// payment mode. Half payments owe the rounded-up half of the total.
func splitAmounts(o *Order, mode PaymentMode) error {
	switch mode {
	case ModeFull:
		o.AmountPaid = o.TotalAmount
		o.RemainingAmount = decimal.Zero
		o.PaymentStatus = PaymentPaid
	case ModeHalf:
		o.RemainingAmount = o.TotalAmount.Div(two).Ceil()
		o.AmountPaid = o.TotalAmount.Sub(o.RemainingAmount)
		o.PaymentStatus = PaymentPartiallyPaid
		if o.RemainingAmount.IsZero() {
			o.PaymentStatus = PaymentPaid
		}
	case ModeCOD:
		o.AmountPaid = decimal.Zero
		o.RemainingAmount = o.TotalAmount
		o.PaymentStatus = PaymentUnpaid
		if o.TotalAmount.IsZero() {
			o.PaymentStatus = PaymentPaid
		}
	default:
		return &UnsupportedModeError{Mode: mode}
	}
	return nil
}
