package handler

import (
	"net/http"
	"time"

	"github.com/stitchline/checkout-api/internal/domain/wallet"
)

// walletResponse is the wire representation of a user's due ledger.
type walletResponse struct {
	UserID       string          `json:"userId"`
	Balance      string          `json:"balance"`
	Transactions []walletTxnResp `json:"transactions"`
}

type walletTxnResp struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	Amount    string    `json:"amount"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toWalletResponse(w *wallet.Wallet) walletResponse {
	txns := make([]walletTxnResp, len(w.Transactions))
	for i, tx := range w.Transactions {
		txns[i] = walletTxnResp{
			ID:        tx.ID,
			OrderID:   tx.OrderID,
			Amount:    tx.Amount.StringFixed(2),
			Type:      string(tx.Type),
			Status:    string(tx.Status),
			Note:      tx.Note,
			CreatedAt: tx.CreatedAt,
		}
	}
	return walletResponse{
		UserID:       w.UserID,
		Balance:      w.Balance.StringFixed(2),
		Transactions: txns,
	}
}

// getWallet returns a user's due balance with its transaction history.
// Admin only (API key).
func (h *Handler) getWallet(w http.ResponseWriter, r *http.Request) {
	wal, err := h.wallets.FindByUserID(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletResponse(wal))
}
