package handler

import (
	"net/http"
	"time"

	"github.com/stitchline/checkout-api/internal/domain/order"
)

// completeOrderRequest is the body of POST /api/orders/complete.
type completeOrderRequest struct {
	PaymentReference string       `json:"paymentReference"`
	PaymentMode      string       `json:"paymentMode"`
	OrderDraft       *order.Draft `json:"orderDraft"`
}

// orderResponse is the wire representation of a reconciled order.
type orderResponse struct {
	ID                string          `json:"id"`
	OrderNumber       int64           `json:"orderNumber"`
	PaymentReference  string          `json:"paymentReference"`
	UserID            string          `json:"userId"`
	Items             []orderItemResp `json:"items"`
	CouponCode        string          `json:"couponCode,omitempty"`
	TotalAmount       string          `json:"totalAmount"`
	AmountPaid        string          `json:"amountPaid"`
	RemainingAmount   string          `json:"remainingAmount"`
	PaymentStatus     string          `json:"paymentStatus"`
	PaymentMode       string          `json:"paymentMode"`
	FulfillmentStatus string          `json:"fulfillmentStatus"`
	CreatedAt         time.Time       `json:"createdAt"`
}

type orderItemResp struct {
	ProductID string `json:"productId"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResp, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResp{
			ProductID: item.ProductID,
			Size:      item.Size,
			Color:     item.Color,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		}
	}
	return orderResponse{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		PaymentReference:  o.PaymentReference,
		UserID:            o.UserID,
		Items:             items,
		CouponCode:        o.CouponCode,
		TotalAmount:       o.TotalAmount.StringFixed(2),
		AmountPaid:        o.AmountPaid.StringFixed(2),
		RemainingAmount:   o.RemainingAmount.StringFixed(2),
		PaymentStatus:     string(o.PaymentStatus),
		PaymentMode:       string(o.PaymentMode),
		FulfillmentStatus: string(o.FulfillmentStatus),
		CreatedAt:         o.CreatedAt,
	}
}

// completeOrder reconciles a completed payment into an order. Duplicate
// submissions return the already-created order with a first-time-success
// response shape.
func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	var req completeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, &order.InvalidDraftError{Reason: "malformed request body"})
		return
	}
	if req.OrderDraft == nil {
		writeError(w, r, &order.InvalidDraftError{Reason: "orderDraft required"})
		return
	}

	o, err := h.orders.CompleteOrder(r.Context(), req.PaymentReference, req.OrderDraft, order.PaymentMode(req.PaymentMode))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// getOrder fetches a single order by id.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.repo.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type statusRequest struct {
	Status string `json:"status"`
}

// validTransitions encodes the fulfillment pipeline. Cancellation is allowed
// from every non-terminal state.
var validTransitions = map[order.FulfillmentStatus]order.FulfillmentStatus{
	order.FulfillmentPlaced:     order.FulfillmentProcessing,
	order.FulfillmentProcessing: order.FulfillmentShipped,
	order.FulfillmentShipped:    order.FulfillmentDelivered,
}

// setFulfillmentStatus moves an order through the fulfillment pipeline.
// Admin only (API key).
func (h *Handler) setFulfillmentStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, &order.InvalidDraftError{Reason: "malformed request body"})
		return
	}
	next := order.FulfillmentStatus(req.Status)

	o, err := h.repo.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	allowed := next == order.FulfillmentCancelled && o.FulfillmentStatus != order.FulfillmentDelivered
	if validTransitions[o.FulfillmentStatus] == next {
		allowed = true
	}
	if !allowed {
		writeError(w, r, &order.InvalidDraftError{
			Reason: "invalid fulfillment transition " + string(o.FulfillmentStatus) + " -> " + string(next),
		})
		return
	}

	if err := h.repo.SetFulfillmentStatus(r.Context(), o.ID, next); err != nil {
		writeError(w, r, err)
		return
	}
	o.FulfillmentStatus = next
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
