//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestWallet_DueAndSettlement(t *testing.T) {
	const userID = "user-wallet-ledger"
	order := completeHalfOrder(t, userID)

	// The unpaid half is booked as a pending due.
	resp := doGetWithKey(t, "/api/wallet/"+userID, testAPIKey)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get wallet: expected 200, got %d", resp.StatusCode)
	}
	w := decodeJSON[walletResponse](t, resp)
	if w.Balance != order.RemainingAmount {
		t.Errorf("balance: got %s, want %s", w.Balance, order.RemainingAmount)
	}
	if len(w.Transactions) != 1 {
		t.Fatalf("transactions: got %d, want 1", len(w.Transactions))
	}
	if tx := w.Transactions[0]; tx.OrderID != order.ID || tx.Type != "half_payment" || tx.Status != "pending" {
		t.Errorf("unexpected transaction: %+v", tx)
	}

	// Settling the remaining payment clears the due.
	intentID := "order_gw_" + order.ID
	txnID := "pay_gw_" + order.ID
	verify := doPost(t, "/api/payments/remaining/verify", verifyRequest{
		OrderID:              order.ID,
		GatewayOrderID:       intentID,
		GatewayTransactionID: txnID,
		Signature:            signRemaining(intentID, txnID),
	})
	verify.Body.Close()
	if verify.StatusCode != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", verify.StatusCode)
	}

	resp = doGetWithKey(t, "/api/wallet/"+userID, testAPIKey)
	defer resp.Body.Close()
	w = decodeJSON[walletResponse](t, resp)
	if w.Balance != "0.00" {
		t.Errorf("balance after settlement: got %s, want 0.00", w.Balance)
	}
	if tx := w.Transactions[0]; tx.Status != "paid_fully" {
		t.Errorf("transaction status after settlement: got %s, want paid_fully", tx.Status)
	}
}

func TestWallet_RequiresAPIKey(t *testing.T) {
	resp := doGet(t, "/api/wallet/anyone")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWallet_UnknownUser(t *testing.T) {
	resp := doGetWithKey(t, "/api/wallet/user-with-no-wallet", testAPIKey)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
