package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/checkout-api/internal/domain/coupon"
	"github.com/stitchline/checkout-api/internal/domain/payment"
	"github.com/stitchline/checkout-api/internal/domain/wallet"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	byID      map[string]*Order
	byRef     map[string]*Order
	createErr error

	lastCreated  *Order
	settledRefs  []string
	intentRefs   map[string]string
	createCalled int
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		byID:       make(map[string]*Order),
		byRef:      make(map[string]*Order),
		intentRefs: make(map[string]string),
	}
}

func (m *mockOrderRepo) FindByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) FindByPaymentReference(_ context.Context, ref string) (*Order, error) {
	o, ok := m.byRef[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) CreateIfAbsent(_ context.Context, o *Order) (*Order, bool, error) {
	m.createCalled++
	if m.createErr != nil {
		return nil, false, m.createErr
	}
	if existing, ok := m.byRef[o.PaymentReference]; ok {
		return existing, false, nil
	}
	m.byID[o.ID] = o
	m.byRef[o.PaymentReference] = o
	m.lastCreated = o
	return o, true, nil
}

func (m *mockOrderRepo) UpdateRemainingPayment(_ context.Context, orderID, verifiedRef string) error {
	o, ok := m.byID[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.PaymentStatus == PaymentPaid {
		return nil
	}
	o.AmountPaid = o.TotalAmount
	o.RemainingAmount = decimal.Zero
	o.PaymentStatus = PaymentPaid
	m.settledRefs = append(m.settledRefs, verifiedRef)
	return nil
}

func (m *mockOrderRepo) SetRemainingPaymentRef(_ context.Context, orderID, ref string) error {
	o, ok := m.byID[orderID]
	if !ok {
		return ErrNotFound
	}
	o.RemainingPaymentRef = ref
	m.intentRefs[orderID] = ref
	return nil
}

func (m *mockOrderRepo) SetFulfillmentStatus(_ context.Context, orderID string, status FulfillmentStatus) error {
	o, ok := m.byID[orderID]
	if !ok {
		return ErrNotFound
	}
	o.FulfillmentStatus = status
	return nil
}

func (m *mockOrderRepo) MarkEmailSent(_ context.Context, orderID string) error {
	o, ok := m.byID[orderID]
	if !ok {
		return ErrNotFound
	}
	o.EmailSent = true
	return nil
}

type mockCouponValidator struct {
	discount *coupon.Discount
	err      error
}

func (m *mockCouponValidator) Validate(_ context.Context, _ string, _ []coupon.Item) (*coupon.Discount, error) {
	return m.discount, m.err
}

type mockLedger struct {
	dueErr    error
	settleErr error

	dues    []wallet.Transaction
	settled [][2]string
}

func (m *mockLedger) RecordDue(_ context.Context, userID, orderID string, amount decimal.Decimal, typ wallet.TransactionType) (*wallet.Transaction, error) {
	if m.dueErr != nil {
		return nil, m.dueErr
	}
	tx := wallet.Transaction{ID: "tx-" + orderID, OrderID: orderID, Amount: amount, Type: typ, Status: wallet.StatusPending}
	m.dues = append(m.dues, tx)
	return &tx, nil
}

func (m *mockLedger) Settle(_ context.Context, userID, orderID string) error {
	if m.settleErr != nil {
		return m.settleErr
	}
	m.settled = append(m.settled, [2]string{userID, orderID})
	return nil
}

type mockVerifier struct {
	err error
}

func (m *mockVerifier) Verify(_, _, _ string) error { return m.err }

type mockGateway struct {
	intent *payment.Intent
	err    error
}

func (m *mockGateway) CreateIntent(_ context.Context, amount decimal.Decimal, currency string) (*payment.Intent, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.intent != nil {
		return m.intent, nil
	}
	return &payment.Intent{IntentID: "intent_1", Amount: amount, Currency: currency}, nil
}

type mockDispatcher struct {
	orders []*Order
}

func (m *mockDispatcher) OrderCreated(o *Order) { m.orders = append(m.orders, o) }

// --- Helpers ---

func newTestDraft() *Draft {
	return &Draft{
		UserID: "user-1",
		Items: []DraftItem{
			{ProductID: "tee-black", Size: "M", Quantity: 2, UnitPrice: decimal.RequireFromString("400.00")},
			{ProductID: "tee-white", Size: "L", Quantity: 1, UnitPrice: decimal.RequireFromString("200.00")},
		},
		Address: DraftAddress{
			Name:    "Asha Rao",
			Line1:   "12 MG Road",
			City:    "Bengaluru",
			State:   "KA",
			Pincode: "560001",
			Phone:   "+919800000000",
		},
	}
}

type testEnv struct {
	repo     *mockOrderRepo
	coupons  *mockCouponValidator
	ledger   *mockLedger
	verifier *mockVerifier
	gateway  *mockGateway
	dispatch *mockDispatcher
	svc      *Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:     newMockOrderRepo(),
		coupons:  &mockCouponValidator{},
		ledger:   &mockLedger{},
		verifier: &mockVerifier{},
		gateway:  &mockGateway{},
		dispatch: &mockDispatcher{},
	}
	env.svc = NewService(env.repo, env.coupons, env.ledger, env.verifier, env.gateway, env.dispatch)
	return env
}

// --- Tests ---

func TestCompleteOrder_MissingReference(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.CompleteOrder(context.Background(), "", newTestDraft(), ModeFull)

	var idErr *InvalidDraftError
	require.ErrorAs(t, err, &idErr)
	assert.Contains(t, idErr.Reason, "payment reference")
}

func TestCompleteOrder_EmptyItems(t *testing.T) {
	env := newTestEnv()
	draft := newTestDraft()
	draft.Items = nil

	_, err := env.svc.CompleteOrder(context.Background(), "pay_1", draft, ModeFull)
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCompleteOrder_InvalidQuantity(t *testing.T) {
	env := newTestEnv()
	draft := newTestDraft()
	draft.Items[0].Quantity = 0

	_, err := env.svc.CompleteOrder(context.Background(), "pay_1", draft, ModeFull)

	var idErr *InvalidDraftError
	require.ErrorAs(t, err, &idErr)
}

func TestCompleteOrder_NegativeUnitPrice(t *testing.T) {
	env := newTestEnv()
	draft := newTestDraft()
	draft.Items[0].UnitPrice = decimal.RequireFromString("-1.00")

	_, err := env.svc.CompleteOrder(context.Background(), "pay_1", draft, ModeFull)

	var idErr *InvalidDraftError
	require.ErrorAs(t, err, &idErr)
	assert.Contains(t, idErr.Reason, "unit price")
}

func TestCompleteOrder_UnsupportedMode(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), PaymentMode("emi"))

	var umErr *UnsupportedModeError
	require.ErrorAs(t, err, &umErr)
	assert.Equal(t, PaymentMode("emi"), umErr.Mode)
}

func TestCompleteOrder_FullPayment(t *testing.T) {
	env := newTestEnv()

	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), ModeFull)

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1000.00").Equal(o.TotalAmount))
	assert.True(t, o.AmountPaid.Equal(o.TotalAmount))
	assert.True(t, o.RemainingAmount.IsZero())
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, FulfillmentPlaced, o.FulfillmentStatus)
	assert.Empty(t, env.ledger.dues, "full payment must not create a wallet due")
	assert.Len(t, env.dispatch.orders, 1)
}

func TestCompleteOrder_HalfPaymentSplitsAmounts(t *testing.T) {
	env := newTestEnv()

	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), ModeHalf)

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("500").Equal(o.RemainingAmount))
	assert.True(t, decimal.RequireFromString("500.00").Equal(o.AmountPaid))
	assert.Equal(t, PaymentPartiallyPaid, o.PaymentStatus)

	require.Len(t, env.ledger.dues, 1)
	due := env.ledger.dues[0]
	assert.Equal(t, o.ID, due.OrderID)
	assert.True(t, o.RemainingAmount.Equal(due.Amount))
	assert.Equal(t, wallet.TypeHalfPayment, due.Type)
}

func TestCompleteOrder_HalfPaymentOddTotalRoundsUp(t *testing.T) {
	env := newTestEnv()
	draft := newTestDraft()
	draft.Items = []DraftItem{
		{ProductID: "tee-black", Quantity: 1, UnitPrice: decimal.RequireFromString("999.00")},
	}

	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", draft, ModeHalf)

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("500").Equal(o.RemainingAmount))
	assert.True(t, decimal.RequireFromString("499.00").Equal(o.AmountPaid))
	assert.True(t, o.AmountPaid.Add(o.RemainingAmount).Equal(o.TotalAmount))
}

func TestCompleteOrder_CODCollectsNothing(t *testing.T) {
	env := newTestEnv()

	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), ModeCOD)

	require.NoError(t, err)
	assert.True(t, o.AmountPaid.IsZero())
	assert.True(t, o.RemainingAmount.Equal(o.TotalAmount))
	assert.Equal(t, PaymentUnpaid, o.PaymentStatus)
	assert.Empty(t, env.ledger.dues, "cod balance is collected on delivery, not owed on the wallet")
}

func TestCompleteOrder_WithCoupon(t *testing.T) {
	env := newTestEnv()
	env.coupons.discount = &coupon.Discount{
		Amount:      decimal.RequireFromString("100.00"),
		Description: "Flat ₹100 off",
	}
	draft := newTestDraft()
	draft.CouponCode = "FLAT100"

	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", draft, ModeFull)

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("900.00").Equal(o.TotalAmount))
	assert.Equal(t, "FLAT100", o.CouponCode)
}

func TestCompleteOrder_InvalidCoupon(t *testing.T) {
	env := newTestEnv()
	env.coupons.err = coupon.ErrInvalidCoupon
	draft := newTestDraft()
	draft.CouponCode = "BOGUS"

	_, err := env.svc.CompleteOrder(context.Background(), "pay_1", draft, ModeFull)

	var idErr *InvalidDraftError
	require.ErrorAs(t, err, &idErr)
	assert.Contains(t, idErr.Reason, "coupon")
}

func TestCompleteOrder_DiscountFlooredAtZero(t *testing.T) {
	env := newTestEnv()
	env.coupons.discount = &coupon.Discount{Amount: decimal.RequireFromString("99999.00")}
	draft := newTestDraft()
	draft.CouponCode = "HUGE"

	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", draft, ModeFull)

	require.NoError(t, err)
	assert.True(t, o.TotalAmount.IsZero())
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
}

func TestCompleteOrder_DuplicateReferenceReturnsExisting(t *testing.T) {
	env := newTestEnv()

	first, err := env.svc.CompleteOrder(context.Background(), "pay_dup", newTestDraft(), ModeHalf)
	require.NoError(t, err)

	second, err := env.svc.CompleteOrder(context.Background(), "pay_dup", newTestDraft(), ModeHalf)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, env.ledger.dues, 1, "duplicate must not record a second wallet due")
	assert.Len(t, env.dispatch.orders, 1, "duplicate must not dispatch notifications again")
}

func TestCompleteOrder_LostRaceReturnsWinner(t *testing.T) {
	env := newTestEnv()
	winner := &Order{
		ID:               "winner-id",
		PaymentReference: "pay_race",
		UserID:           "user-1",
		TotalAmount:      decimal.RequireFromString("1000.00"),
	}
	env.repo.byRef["pay_race"] = winner
	env.repo.byID[winner.ID] = winner

	o, err := env.svc.CompleteOrder(context.Background(), "pay_race", newTestDraft(), ModeFull)

	require.NoError(t, err)
	assert.Equal(t, "winner-id", o.ID)
	assert.Empty(t, env.dispatch.orders)
}

func TestCompleteOrder_RepoError(t *testing.T) {
	env := newTestEnv()
	env.repo.createErr = errors.New("db write failed")

	_, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), ModeFull)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}

func TestCompleteOrder_LedgerErrorSurfaced(t *testing.T) {
	env := newTestEnv()
	env.ledger.dueErr = errors.New("wallet unavailable")

	_, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), ModeHalf)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "record wallet due")
	assert.Empty(t, env.dispatch.orders, "notifications must not fire when the due was not recorded")
}

func TestStartRemainingPayment(t *testing.T) {
	env := newTestEnv()
	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), ModeHalf)
	require.NoError(t, err)

	intent, err := env.svc.StartRemainingPayment(context.Background(), o.ID)

	require.NoError(t, err)
	assert.Equal(t, "intent_1", intent.IntentID)
	assert.True(t, o.RemainingAmount.Equal(intent.Amount))
	assert.Equal(t, "intent_1", env.repo.intentRefs[o.ID])
}

func TestStartRemainingPayment_NothingOutstanding(t *testing.T) {
	env := newTestEnv()
	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), ModeFull)
	require.NoError(t, err)

	_, err = env.svc.StartRemainingPayment(context.Background(), o.ID)

	var idErr *InvalidDraftError
	require.ErrorAs(t, err, &idErr)
}

func TestStartRemainingPayment_GatewayDown(t *testing.T) {
	env := newTestEnv()
	env.gateway.err = &payment.TransientError{Err: errors.New("connection refused")}
	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), ModeHalf)
	require.NoError(t, err)

	_, err = env.svc.StartRemainingPayment(context.Background(), o.ID)

	var tErr *payment.TransientError
	require.ErrorAs(t, err, &tErr)
}

func TestVerifyRemainingPayment_InvalidSignature(t *testing.T) {
	env := newTestEnv()
	env.verifier.err = payment.ErrSignatureMismatch
	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), ModeHalf)
	require.NoError(t, err)

	err = env.svc.VerifyRemainingPayment(context.Background(), o.ID, "intent_1", "txn_1", "deadbeef")

	require.ErrorIs(t, err, payment.ErrSignatureMismatch)
	assert.Equal(t, PaymentPartiallyPaid, o.PaymentStatus, "mismatch must leave order state untouched")
	assert.Empty(t, env.ledger.settled)
}

func TestVerifyRemainingPayment_WrongIntent(t *testing.T) {
	env := newTestEnv()
	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), ModeHalf)
	require.NoError(t, err)
	_, err = env.svc.StartRemainingPayment(context.Background(), o.ID)
	require.NoError(t, err)

	err = env.svc.VerifyRemainingPayment(context.Background(), o.ID, "intent_other", "txn_1", "sig")

	require.ErrorIs(t, err, payment.ErrSignatureMismatch)
	assert.Equal(t, PaymentPartiallyPaid, o.PaymentStatus)
}

func TestVerifyRemainingPayment_Settles(t *testing.T) {
	env := newTestEnv()
	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), ModeHalf)
	require.NoError(t, err)
	_, err = env.svc.StartRemainingPayment(context.Background(), o.ID)
	require.NoError(t, err)

	err = env.svc.VerifyRemainingPayment(context.Background(), o.ID, "intent_1", "txn_1", "sig")

	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.True(t, o.RemainingAmount.IsZero())
	require.Len(t, env.ledger.settled, 1)
	assert.Equal(t, [2]string{"user-1", o.ID}, env.ledger.settled[0])
	assert.Equal(t, []string{"txn_1"}, env.repo.settledRefs)
}

func TestVerifyRemainingPayment_Retry(t *testing.T) {
	env := newTestEnv()
	o, err := env.svc.CompleteOrder(context.Background(), "pay_1", newTestDraft(), ModeHalf)
	require.NoError(t, err)

	require.NoError(t, env.svc.VerifyRemainingPayment(context.Background(), o.ID, "intent_1", "txn_1", "sig"))
	require.NoError(t, env.svc.VerifyRemainingPayment(context.Background(), o.ID, "intent_1", "txn_1", "sig"))

	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Len(t, env.repo.settledRefs, 1, "second verification is a no-op on an already-paid order")
}

func TestVerifyRemainingPayment_OrderNotFound(t *testing.T) {
	env := newTestEnv()

	err := env.svc.VerifyRemainingPayment(context.Background(), "missing", "intent_1", "txn_1", "sig")
	require.ErrorIs(t, err, ErrNotFound)
}
