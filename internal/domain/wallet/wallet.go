package wallet

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// TransactionType categorizes a ledger entry.
type TransactionType string

const (
	// TypeHalfPayment records the unpaid half of a partial-payment order.
	TypeHalfPayment TransactionType = "half_payment"
	// TypeFullPayment records a fully collected payment for bookkeeping.
	TypeFullPayment TransactionType = "full_payment"
	// TypeMisc records manual adjustments.
	TypeMisc TransactionType = "misc"
)

// TransactionStatus tracks the settlement state of a ledger entry.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusPaidFully TransactionStatus = "paid_fully"
	StatusCompleted TransactionStatus = "completed"
)

// ErrUnsupportedType is returned for transaction types outside the known set.
var ErrUnsupportedType = errors.New("unsupported transaction type")

// ErrNotFound is returned when a user has no wallet yet.
var ErrNotFound = errors.New("wallet not found")

// Transaction is a single append-only ledger entry referencing an order.
type Transaction struct {
	ID        string
	OrderID   string
	Amount    decimal.Decimal
	Type      TransactionType
	Status    TransactionStatus
	Note      string
	CreatedAt time.Time
}

// Wallet is a per-user ledger of amounts owed from partial payments. Balance
// is the sum the customer currently owes, never a stored-value balance.
type Wallet struct {
	ID           string
	UserID       string
	Balance      decimal.Decimal
	Transactions []Transaction
}

// Repository defines the persistence operations backing the ledger. All
// mutations must keep the ledger append-only: transactions are inserted and
// have their status flipped in place, never deleted.
type Repository interface {
	// AppendDue creates the user's wallet if absent, appends tx, and
	// increments the wallet balance by tx.Amount, atomically.
	AppendDue(ctx context.Context, userID string, tx *Transaction) error
	// SettlePending flips the pending transaction for (userID, orderID) to
	// paid_fully and decrements the balance by its amount, floored at zero.
	// It reports settled=false without error when no pending entry matches.
	SettlePending(ctx context.Context, userID, orderID string) (amount decimal.Decimal, settled bool, err error)
	FindByUserID(ctx context.Context, userID string) (*Wallet, error)
}
