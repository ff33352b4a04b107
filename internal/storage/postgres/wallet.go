package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stitchline/checkout-api/internal/domain/wallet"
)

const (
	upsertWalletSQL = `INSERT INTO wallets (id, user_id, balance)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id) DO UPDATE
	SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()
	RETURNING id`

	insertTransactionSQL = `INSERT INTO wallet_transactions (id, wallet_id, order_id, amount, type, status, note)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	settleTransactionSQL = `UPDATE wallet_transactions
	SET status = $1
	WHERE wallet_id = (SELECT id FROM wallets WHERE user_id = $2)
	  AND order_id = $3 AND status = $4
	RETURNING amount`

	decrementBalanceSQL = `UPDATE wallets
	SET balance = GREATEST(balance - $2, 0), updated_at = now()
	WHERE user_id = $1`

	findWalletSQL = `SELECT id, user_id, balance FROM wallets WHERE user_id = $1`

	listTransactionsSQL = `SELECT id, order_id, amount, type, status, note, created_at
	FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at`
)

var _ wallet.Repository = (*WalletRepository)(nil)

// WalletRepository implements wallet.Repository backed by PostgreSQL. The
// wallet row is created lazily through the upsert in AppendDue.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository returns a WalletRepository that uses the given pool.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

// AppendDue upserts the user's wallet, adds tx.Amount to the balance, and
// appends the transaction, all within one database transaction.
func (r *WalletRepository) AppendDue(ctx context.Context, userID string, tx *wallet.Transaction) error {
	return pgx.BeginFunc(ctx, r.pool, func(dbtx pgx.Tx) error {
		var walletID string
		err := dbtx.QueryRow(ctx, upsertWalletSQL, uuid.New().String(), userID, tx.Amount).Scan(&walletID)
		if err != nil {
			return errors.Wrapf(err, "upsert wallet for user %q", userID)
		}

		_, err = dbtx.Exec(ctx, insertTransactionSQL,
			tx.ID, walletID, tx.OrderID, tx.Amount, string(tx.Type), string(tx.Status), tx.Note,
		)
		if err != nil {
			return errors.Wrapf(err, "append transaction for order %q", tx.OrderID)
		}
		return nil
	})
}

// SettlePending flips the pending transaction for (userID, orderID) to
// paid_fully and decrements the balance by its amount, floored at zero. A
// second settlement finds no pending row and reports settled=false.
func (r *WalletRepository) SettlePending(ctx context.Context, userID, orderID string) (decimal.Decimal, bool, error) {
	var (
		amount  decimal.Decimal
		settled bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(dbtx pgx.Tx) error {
		err := dbtx.QueryRow(ctx, settleTransactionSQL,
			string(wallet.StatusPaidFully), userID, orderID, string(wallet.StatusPending),
		).Scan(&amount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return errors.Wrapf(err, "settle transaction for order %q", orderID)
		}
		settled = true

		if _, err := dbtx.Exec(ctx, decrementBalanceSQL, userID, amount); err != nil {
			return errors.Wrapf(err, "decrement balance for user %q", userID)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, false, err
	}
	return amount, settled, nil
}

// FindByUserID fetches a wallet with its full transaction history.
func (r *WalletRepository) FindByUserID(ctx context.Context, userID string) (*wallet.Wallet, error) {
	var w wallet.Wallet
	err := r.pool.QueryRow(ctx, findWalletSQL, userID).Scan(&w.ID, &w.UserID, &w.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrNotFound
		}
		return nil, errors.Wrap(err, "find wallet")
	}

	rows, err := r.pool.Query(ctx, listTransactionsSQL, w.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}
	defer rows.Close()

	for rows.Next() {
		var tx wallet.Transaction
		if err := rows.Scan(&tx.ID, &tx.OrderID, &tx.Amount, &tx.Type, &tx.Status, &tx.Note, &tx.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}
		w.Transactions = append(w.Transactions, tx)
	}
	return &w, rows.Err()
}
