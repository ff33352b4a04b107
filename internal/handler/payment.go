package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/stitchline/checkout-api/internal/domain/order"
)

type createIntentRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type intentResponse struct {
	IntentID string `json:"intentId"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// createIntent registers a payment intent with the gateway for the checkout
// page to complete against.
func (h *Handler) createIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, &order.InvalidDraftError{Reason: "malformed request body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, r, &order.InvalidDraftError{Reason: "amount must be a positive decimal string"})
		return
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}

	intent, err := h.gateway.CreateIntent(r.Context(), amount, req.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intentResponse{
		IntentID: intent.IntentID,
		Amount:   intent.Amount.StringFixed(2),
		Currency: intent.Currency,
	})
}

type remainingIntentRequest struct {
	OrderID string `json:"orderId"`
}

// startRemainingPayment creates a gateway intent for the order's outstanding
// amount and pins it to the order for later verification.
func (h *Handler) startRemainingPayment(w http.ResponseWriter, r *http.Request) {
	var req remainingIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, &order.InvalidDraftError{Reason: "malformed request body"})
		return
	}

	intent, err := h.orders.StartRemainingPayment(r.Context(), req.OrderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intentResponse{
		IntentID: intent.IntentID,
		Amount:   intent.Amount.StringFixed(2),
		Currency: intent.Currency,
	})
}

type verifyRemainingRequest struct {
	OrderID              string `json:"orderId"`
	GatewayOrderID       string `json:"gatewayOrderId"`
	GatewayTransactionID string `json:"gatewayTransactionId"`
	Signature            string `json:"signature"`
}

// verifyRemainingPayment verifies the remaining-payment signature, marks the
// order paid, and settles the wallet due. Safe to retry.
func (h *Handler) verifyRemainingPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRemainingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, &order.InvalidDraftError{Reason: "malformed request body"})
		return
	}

	err := h.orders.VerifyRemainingPayment(r.Context(),
		req.OrderID, req.GatewayOrderID, req.GatewayTransactionID, req.Signature)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
