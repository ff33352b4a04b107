// Package handler exposes the checkout HTTP API. Handlers decode requests,
// delegate to domain services, and hand every failure to a single
// error-taxonomy-to-status mapping; they never format error bodies themselves.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/stitchline/checkout-api/internal/domain/order"
	"github.com/stitchline/checkout-api/internal/domain/payment"
	"github.com/stitchline/checkout-api/internal/domain/wallet"
)

// Handler wires the checkout endpoints to the reconciliation service.
type Handler struct {
	orders   *order.Service
	repo     order.Repository
	wallets  wallet.Repository
	gateway  payment.Client
	security *SecurityHandler
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders *order.Service, repo order.Repository, wallets wallet.Repository, gateway payment.Client, security *SecurityHandler) *Handler {
	return &Handler{
		orders:   orders,
		repo:     repo,
		wallets:  wallets,
		gateway:  gateway,
		security: security,
	}
}

// Register mounts all API routes on mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders/complete", h.completeOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("PATCH /api/orders/{id}/status", h.security.Require(h.setFulfillmentStatus))
	mux.HandleFunc("GET /api/wallet/{userId}", h.security.Require(h.getWallet))
	mux.HandleFunc("POST /api/payments/intent", h.createIntent)
	mux.HandleFunc("POST /api/payments/remaining/intent", h.startRemainingPayment)
	mux.HandleFunc("POST /api/payments/remaining/verify", h.verifyRemainingPayment)
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
