package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/stitchline/checkout-api/internal/domain/coupon"
	"github.com/stitchline/checkout-api/internal/domain/order"
	"github.com/stitchline/checkout-api/internal/domain/payment"
	"github.com/stitchline/checkout-api/internal/domain/wallet"
)

// errorBody is the uniform JSON error response.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError maps a domain error onto an HTTP status and a uniform body.
// Internal persistence details never leak to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status >= 500 {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		// Do not echo internals on server-side failures.
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Code: status, Message: message})
}

// classify implements the error taxonomy: invalid drafts and signature
// mismatches are 4xx and not retryable, missing orders are 404, transient
// gateway trouble is 503 and safe to retry, everything else is 500. Duplicate
// submissions never reach here; they resolve to the existing order upstream.
func classify(err error) (int, string) {
	var (
		draftErr *order.InvalidDraftError
		modeErr  *order.UnsupportedModeError
		transErr *payment.TransientError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.As(err, &draftErr),
		errors.As(err, &modeErr),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, wallet.ErrUnsupportedType):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, payment.ErrSignatureMismatch):
		return http.StatusBadRequest, "payment verification failed"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, wallet.ErrNotFound):
		return http.StatusNotFound, "wallet not found"
	case errors.As(err, &transErr):
		return http.StatusServiceUnavailable, "payment gateway unavailable, retry later"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
