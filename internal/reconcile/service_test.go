package reconcile

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adega-digital/vinicola-backend/pkg/enums"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
	"github.com/adega-digital/vinicola-backend/pkg/mercadopago"
	"github.com/adega-digital/vinicola-backend/pkg/nuvemshop"
)

type stubGateway struct {
	payment *mercadopago.Payment
	err     error
	calls   int
}

func (s *stubGateway) GetPayment(_ context.Context, _ string) (*mercadopago.Payment, error) {
	s.calls++
	return s.payment, s.err
}

type stubOrders struct {
	err     error
	updates []int64
}

func (s *stubOrders) UpdateOrderPaymentStatus(_ context.Context, orderID int64, status enums.PaymentStatus) (*nuvemshop.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.updates = append(s.updates, orderID)
	return &nuvemshop.Order{ID: orderID, PaymentStatus: status}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.Disabled, Output: io.Discard})
}

func approvedPayment(ref string) *mercadopago.Payment {
	return &mercadopago.Payment{ID: 999, Status: "approved", ExternalReference: ref}
}

func newTestService(gateway Gateway, orders Orders) *Service {
	return NewService(gateway, orders, NewMemoryGuard(time.Hour), testLogger(), nil)
}

func queryDelivery(id string) Delivery {
	return Delivery{Query: url.Values{"id": []string{id}}}
}

func TestHandleApprovedPaymentUpdatesOrder(t *testing.T) {
	gateway := &stubGateway{payment: approvedPayment("5001")}
	orders := &stubOrders{}
	svc := newTestService(gateway, orders)

	outcome := svc.HandlePaymentNotification(context.Background(), Delivery{
		Body: []byte(`{"data":{"id":"999"}}`),
	})
	if outcome.Status != StatusOrderUpdated {
		t.Fatalf("status = %s, want %s", outcome.Status, StatusOrderUpdated)
	}
	if outcome.PaymentID != "999" || outcome.OrderID != 5001 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(orders.updates) != 1 || orders.updates[0] != 5001 {
		t.Fatalf("unexpected updates %v", orders.updates)
	}
	if outcome.ProcessedAt.IsZero() {
		t.Fatal("outcome missing timestamp")
	}
}

func TestHandleNoPaymentID(t *testing.T) {
	gateway := &stubGateway{}
	svc := newTestService(gateway, &stubOrders{})

	outcome := svc.HandlePaymentNotification(context.Background(), Delivery{Body: []byte(`{"action":"ping"}`)})
	if outcome.Status != StatusIgnoredNoID {
		t.Fatalf("status = %s, want %s", outcome.Status, StatusIgnoredNoID)
	}
	if gateway.calls != 0 {
		t.Fatal("no gateway call expected without a payment id")
	}
}

func TestHandleDuplicateDelivery(t *testing.T) {
	gateway := &stubGateway{payment: approvedPayment("5001")}
	orders := &stubOrders{}
	svc := newTestService(gateway, orders)

	first := svc.HandlePaymentNotification(context.Background(), queryDelivery("999"))
	if first.Status != StatusOrderUpdated {
		t.Fatalf("first delivery: %s", first.Status)
	}
	second := svc.HandlePaymentNotification(context.Background(), queryDelivery("999"))
	if second.Status != StatusAlreadyProcessed {
		t.Fatalf("second delivery: %s, want %s", second.Status, StatusAlreadyProcessed)
	}
	if len(orders.updates) != 1 {
		t.Fatalf("order updated %d times, want 1", len(orders.updates))
	}
}

func TestHandleFetchError(t *testing.T) {
	gateway := &stubGateway{err: errors.New("gateway timeout")}
	orders := &stubOrders{}
	svc := newTestService(gateway, orders)

	outcome := svc.HandlePaymentNotification(context.Background(), queryDelivery("999"))
	if outcome.Status != StatusFetchError {
		t.Fatalf("status = %s, want %s", outcome.Status, StatusFetchError)
	}
	if len(orders.updates) != 0 {
		t.Fatal("no update expected on fetch failure")
	}

	// fetch failure must not burn the dedup slot
	gateway.err = nil
	gateway.payment = approvedPayment("5001")
	retry := svc.HandlePaymentNotification(context.Background(), queryDelivery("999"))
	if retry.Status != StatusOrderUpdated {
		t.Fatalf("retry after fetch error: %s", retry.Status)
	}
}

func TestHandleNotApprovedStatuses(t *testing.T) {
	for _, status := range []string{"pending", "in_process", "rejected", "cancelled", "refunded"} {
		gateway := &stubGateway{payment: &mercadopago.Payment{ID: 999, Status: status, ExternalReference: "5001"}}
		orders := &stubOrders{}
		svc := newTestService(gateway, orders)

		outcome := svc.HandlePaymentNotification(context.Background(), queryDelivery("999"))
		if outcome.Status != StatusIgnoredNotApproved {
			t.Fatalf("%s: status = %s, want %s", status, outcome.Status, StatusIgnoredNotApproved)
		}
		if len(orders.updates) != 0 {
			t.Fatalf("%s: order update must not happen", status)
		}
	}
}

func TestHandleMissingExternalReference(t *testing.T) {
	gateway := &stubGateway{payment: &mercadopago.Payment{ID: 999, Status: "approved"}}
	svc := newTestService(gateway, &stubOrders{})

	outcome := svc.HandlePaymentNotification(context.Background(), queryDelivery("999"))
	if outcome.Status != StatusIgnoredNoExternalRef {
		t.Fatalf("status = %s, want %s", outcome.Status, StatusIgnoredNoExternalRef)
	}
}

func TestHandleMetadataFallback(t *testing.T) {
	gateway := &stubGateway{payment: &mercadopago.Payment{
		ID:       999,
		Status:   "approved",
		Metadata: map[string]any{"nuvem_order_id": float64(5001)},
	}}
	orders := &stubOrders{}
	svc := newTestService(gateway, orders)

	outcome := svc.HandlePaymentNotification(context.Background(), queryDelivery("999"))
	if outcome.Status != StatusOrderUpdated || outcome.OrderID != 5001 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestHandleUpdateErrorReleasesClaim(t *testing.T) {
	gateway := &stubGateway{payment: approvedPayment("5001")}
	orders := &stubOrders{err: errors.New("storefront down")}
	svc := newTestService(gateway, orders)

	outcome := svc.HandlePaymentNotification(context.Background(), queryDelivery("999"))
	if outcome.Status != StatusUpdateError {
		t.Fatalf("status = %s, want %s", outcome.Status, StatusUpdateError)
	}

	// failed entries are evicted so a redelivery can retry
	orders.err = nil
	retry := svc.HandlePaymentNotification(context.Background(), queryDelivery("999"))
	if retry.Status != StatusOrderUpdated {
		t.Fatalf("retry after update error: %s", retry.Status)
	}
}

func TestExtractPaymentID(t *testing.T) {
	cases := []struct {
		name     string
		delivery Delivery
		want     string
	}{
		{name: "query id", delivery: Delivery{Query: url.Values{"id": []string{"111"}}}, want: "111"},
		{name: "query data.id", delivery: Delivery{Query: url.Values{"data.id": []string{"222"}}}, want: "222"},
		{name: "body nested", delivery: Delivery{Body: []byte(`{"data":{"id":"333"}}`)}, want: "333"},
		{name: "body numeric", delivery: Delivery{Body: []byte(`{"data":{"id":444}}`)}, want: "444"},
		{name: "body top id", delivery: Delivery{Body: []byte(`{"id":"555"}`)}, want: "555"},
		{name: "body payment_id", delivery: Delivery{Body: []byte(`{"payment_id":"666"}`)}, want: "666"},
		{name: "query wins over body", delivery: Delivery{
			Query: url.Values{"id": []string{"111"}},
			Body:  []byte(`{"id":"555"}`),
		}, want: "111"},
		{name: "nothing", delivery: Delivery{Body: []byte(`{"type":"test"}`)}, want: ""},
		{name: "malformed body", delivery: Delivery{Body: []byte(`{{`)}, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractPaymentID(tc.delivery); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveOrderID(t *testing.T) {
	if got := resolveOrderID(&mercadopago.Payment{ExternalReference: "5001"}); got != 5001 {
		t.Fatalf("external reference: got %d", got)
	}
	if got := resolveOrderID(&mercadopago.Payment{Metadata: map[string]any{"nuvem_order_id": "5002"}}); got != 5002 {
		t.Fatalf("string metadata: got %d", got)
	}
	if got := resolveOrderID(&mercadopago.Payment{ExternalReference: "not-a-number"}); got != 0 {
		t.Fatalf("bad reference: got %d", got)
	}
	if got := resolveOrderID(&mercadopago.Payment{}); got != 0 {
		t.Fatalf("empty payment: got %d", got)
	}
}
