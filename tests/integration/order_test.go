//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"regexp"
	"testing"
	"time"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// uniqueRef generates a payment reference that is unique per test run, so the
// suite can be re-run against the same database.
func uniqueRef(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestCompleteOrder_Full(t *testing.T) {
	ref := uniqueRef("pay_full")
	resp := doPost(t, "/api/orders/complete", completeOrderRequest{
		PaymentReference: ref,
		PaymentMode:      "full",
		OrderDraft:       newDraft("user-full"),
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if !uuidPattern.MatchString(order.ID) {
		t.Errorf("order ID %q is not a valid UUID", order.ID)
	}
	if order.OrderNumber == 0 {
		t.Error("order number not assigned")
	}
	if order.TotalAmount != "1000.00" {
		t.Errorf("total: got %s, want 1000.00", order.TotalAmount)
	}
	if order.AmountPaid != "1000.00" || order.RemainingAmount != "0.00" {
		t.Errorf("split: paid %s remaining %s", order.AmountPaid, order.RemainingAmount)
	}
	if order.PaymentStatus != "paid" {
		t.Errorf("payment status: got %s, want paid", order.PaymentStatus)
	}
	if order.FulfillmentStatus != "placed" {
		t.Errorf("fulfillment status: got %s, want placed", order.FulfillmentStatus)
	}
}

func TestCompleteOrder_Half(t *testing.T) {
	ref := uniqueRef("pay_half")
	resp := doPost(t, "/api/orders/complete", completeOrderRequest{
		PaymentReference: ref,
		PaymentMode:      "half",
		OrderDraft:       newDraft("user-half"),
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if order.AmountPaid != "500.00" || order.RemainingAmount != "500.00" {
		t.Errorf("split: paid %s remaining %s, want 500.00 each", order.AmountPaid, order.RemainingAmount)
	}
	if order.PaymentStatus != "partially_paid" {
		t.Errorf("payment status: got %s, want partially_paid", order.PaymentStatus)
	}
}

func TestCompleteOrder_Idempotent(t *testing.T) {
	ref := uniqueRef("pay_idem")
	req := completeOrderRequest{
		PaymentReference: ref,
		PaymentMode:      "half",
		OrderDraft:       newDraft("user-idem"),
	}

	resp1 := doPost(t, "/api/orders/complete", req)
	defer resp1.Body.Close()
	if resp1.StatusCode != http.StatusOK {
		t.Fatalf("first submit: expected 200, got %d", resp1.StatusCode)
	}
	first := decodeJSON[orderResponse](t, resp1)

	// Retried submission must return the same order, not a second one.
	resp2 := doPost(t, "/api/orders/complete", req)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("retry: expected 200, got %d", resp2.StatusCode)
	}
	second := decodeJSON[orderResponse](t, resp2)

	if first.ID != second.ID {
		t.Errorf("retry created a new order: %s vs %s", first.ID, second.ID)
	}
	if first.OrderNumber != second.OrderNumber {
		t.Errorf("order numbers differ: %d vs %d", first.OrderNumber, second.OrderNumber)
	}
}

func TestCompleteOrder_ConcurrentDuplicates(t *testing.T) {
	ref := uniqueRef("pay_race")
	req := completeOrderRequest{
		PaymentReference: ref,
		PaymentMode:      "full",
		OrderDraft:       newDraft("user-race"),
	}

	const n = 8
	ids := make(chan string, n)
	for range n {
		go func() {
			resp := doPost(t, "/api/orders/complete", req)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				ids <- fmt.Sprintf("status %d", resp.StatusCode)
				return
			}
			ids <- decodeJSON[orderResponse](t, resp).ID
		}()
	}

	first := <-ids
	for range n - 1 {
		if got := <-ids; got != first {
			t.Errorf("concurrent submissions diverged: %s vs %s", first, got)
		}
	}
}

func TestCompleteOrder_WithCoupon(t *testing.T) {
	draft := newDraft("user-coupon")
	draft.CouponCode = "FLAT100"

	resp := doPost(t, "/api/orders/complete", completeOrderRequest{
		PaymentReference: uniqueRef("pay_coupon"),
		PaymentMode:      "full",
		OrderDraft:       draft,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if order.TotalAmount != "900.00" {
		t.Errorf("total after FLAT100: got %s, want 900.00", order.TotalAmount)
	}
}

func TestCompleteOrder_InvalidCoupon(t *testing.T) {
	draft := newDraft("user-bad-coupon")
	draft.CouponCode = "NONEXISTENT"

	resp := doPost(t, "/api/orders/complete", completeOrderRequest{
		PaymentReference: uniqueRef("pay_bad_coupon"),
		PaymentMode:      "full",
		OrderDraft:       draft,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCompleteOrder_EmptyItems(t *testing.T) {
	draft := newDraft("user-empty")
	draft.Items = nil

	resp := doPost(t, "/api/orders/complete", completeOrderRequest{
		PaymentReference: uniqueRef("pay_empty"),
		PaymentMode:      "full",
		OrderDraft:       draft,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCompleteOrder_MissingReference(t *testing.T) {
	resp := doPost(t, "/api/orders/complete", completeOrderRequest{
		PaymentMode: "full",
		OrderDraft:  newDraft("user-noref"),
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	resp := doGet(t, "/api/orders/00000000-0000-0000-0000-000000000000")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if body.Code != 404 {
		t.Errorf("error code: got %d, want 404", body.Code)
	}
}

func TestFulfillmentStatus_RequiresAPIKey(t *testing.T) {
	resp := doPatchWithKey(t, "/api/orders/any-id/status", map[string]string{"status": "processing"}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no key: expected 401, got %d", resp.StatusCode)
	}

	resp2 := doPatchWithKey(t, "/api/orders/any-id/status", map[string]string{"status": "processing"}, "wrong-key")
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key: expected 401, got %d", resp2.StatusCode)
	}
}

func TestFulfillmentStatus_Pipeline(t *testing.T) {
	resp := doPost(t, "/api/orders/complete", completeOrderRequest{
		PaymentReference: uniqueRef("pay_fulfill"),
		PaymentMode:      "full",
		OrderDraft:       newDraft("user-fulfill"),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: expected 200, got %d", resp.StatusCode)
	}
	id := decodeJSON[orderResponse](t, resp).ID

	// Skipping a stage is rejected.
	bad := doPatchWithKey(t, "/api/orders/"+id+"/status", map[string]string{"status": "shipped"}, testAPIKey)
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("skip stage: expected 400, got %d", bad.StatusCode)
	}

	for _, status := range []string{"processing", "shipped", "delivered"} {
		r := doPatchWithKey(t, "/api/orders/"+id+"/status", map[string]string{"status": status}, testAPIKey)
		if r.StatusCode != http.StatusOK {
			t.Fatalf("transition to %s: expected 200, got %d", status, r.StatusCode)
		}
		got := decodeJSON[orderResponse](t, r).FulfillmentStatus
		r.Body.Close()
		if got != status {
			t.Errorf("fulfillment status: got %s, want %s", got, status)
		}
	}

	// Delivered orders cannot be cancelled.
	cancel := doPatchWithKey(t, "/api/orders/"+id+"/status", map[string]string{"status": "cancelled"}, testAPIKey)
	defer cancel.Body.Close()
	if cancel.StatusCode != http.StatusBadRequest {
		t.Fatalf("cancel delivered: expected 400, got %d", cancel.StatusCode)
	}
}
