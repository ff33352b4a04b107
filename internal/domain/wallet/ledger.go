package wallet

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger exposes the wallet operations used by the reconciliation flow.
type Ledger struct {
	wallets Repository
}

// NewLedger creates a Ledger backed by the given repository.
func NewLedger(wallets Repository) *Ledger {
	return &Ledger{wallets: wallets}
}

// RecordDue appends a pending transaction of the given type to the user's
// wallet and increases the balance by amount. The wallet is created lazily on
// first use. Amounts must be positive; types outside the supported set are
// rejected with ErrUnsupportedType.
func (l *Ledger) RecordDue(ctx context.Context, userID, orderID string, amount decimal.Decimal, typ TransactionType) (*Transaction, error) {
	switch typ {
	case TypeHalfPayment, TypeFullPayment, TypeMisc:
	default:
		return nil, ErrUnsupportedType
	}
	if !amount.IsPositive() {
		return nil, errors.Errorf("due amount must be positive, got %s", amount)
	}

	tx := &Transaction{
		ID:      uuid.New().String(),
		OrderID: orderID,
		Amount:  amount,
		Type:    typ,
		Status:  StatusPending,
		Note:    "remaining amount due for order",
	}
	if err := l.wallets.AppendDue(ctx, userID, tx); err != nil {
		return nil, errors.Wrap(err, "append due")
	}
	return tx, nil
}

// Settle marks the pending transaction for (userID, orderID) as paid in full
// and decrements the wallet balance by its amount, floored at zero. A missing
// pending transaction is a no-op, never an error: the order was already
// settled or was never a partial-payment order, and retried settlements must
// converge on the same end state.
func (l *Ledger) Settle(ctx context.Context, userID, orderID string) error {
	amount, settled, err := l.wallets.SettlePending(ctx, userID, orderID)
	if err != nil {
		return errors.Wrap(err, "settle pending")
	}
	if !settled {
		zctx.From(ctx).Debug("No pending wallet transaction to settle",
			zap.String("user_id", userID),
			zap.String("order_id", orderID),
		)
		return nil
	}

	zctx.From(ctx).Info("Wallet due settled",
		zap.String("user_id", userID),
		zap.String("order_id", orderID),
		zap.String("amount", amount.String()),
	)
	return nil
}
