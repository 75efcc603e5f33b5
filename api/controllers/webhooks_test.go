package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	reconcilesvc "github.com/adega-digital/vinicola-backend/internal/reconcile"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
)

type stubReconcile struct {
	delivery reconcilesvc.Delivery
	outcome  reconcilesvc.Outcome
}

func (s *stubReconcile) HandlePaymentNotification(_ context.Context, delivery reconcilesvc.Delivery) reconcilesvc.Outcome {
	s.delivery = delivery
	return s.outcome
}

type stubLGPD struct {
	err    error
	calls  int
	body   []byte
	sig    string
	method string
}

func (s *stubLGPD) HandleStoreRedact(_ context.Context, body []byte, sig string) error {
	s.calls++
	s.body, s.sig, s.method = body, sig, "store-redact"
	return s.err
}

func (s *stubLGPD) HandleCustomersRedact(_ context.Context, body []byte, sig string) error {
	s.calls++
	s.body, s.sig, s.method = body, sig, "customers-redact"
	return s.err
}

func (s *stubLGPD) HandleCustomersDataRequest(_ context.Context, body []byte, sig string) error {
	s.calls++
	s.body, s.sig, s.method = body, sig, "customers-data-request"
	return s.err
}

func TestOrderPaidLiveness(t *testing.T) {
	w := httptest.NewRecorder()
	OrderPaidLiveness()(w, httptest.NewRequest(http.MethodGet, "/webhooks/order-paid", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Fatalf("expected OK body, got %q", w.Body.String())
	}
}

func TestOrderPaidWebhookForwardsQueryAndBody(t *testing.T) {
	svc := &stubReconcile{outcome: reconcilesvc.Outcome{Status: reconcilesvc.StatusOrderUpdated, PaymentID: "999", OrderID: 5001}}
	handler := OrderPaidWebhook(svc, nil)

	r := httptest.NewRequest(http.MethodPost, "/webhooks/order-paid?id=999", strings.NewReader(`{"data":{"id":"999"}}`))
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.delivery.Query.Get("id") != "999" {
		t.Fatalf("query not forwarded: %v", svc.delivery.Query)
	}
	if string(svc.delivery.Body) != `{"data":{"id":"999"}}` {
		t.Fatalf("body not forwarded: %s", svc.delivery.Body)
	}

	var outcome reconcilesvc.Outcome
	if err := json.NewDecoder(w.Body).Decode(&outcome); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if outcome.Status != reconcilesvc.StatusOrderUpdated || outcome.OrderID != 5001 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestOrderPaidWebhookAlwaysRespondsOK(t *testing.T) {
	svc := &stubReconcile{outcome: reconcilesvc.Outcome{Status: reconcilesvc.StatusIgnoredNoID}}
	handler := OrderPaidWebhook(svc, nil)

	r := httptest.NewRequest(http.MethodPost, "/webhooks/order-paid", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("ignored delivery must still get 200, got %d", w.Code)
	}

	var outcome reconcilesvc.Outcome
	if err := json.NewDecoder(w.Body).Decode(&outcome); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if outcome.Status != reconcilesvc.StatusIgnoredNoID {
		t.Fatalf("unexpected status %q", outcome.Status)
	}
}

func TestLGPDWebhooksAcknowledge(t *testing.T) {
	cases := []struct {
		name    string
		build   func(LGPDService) http.HandlerFunc
		handler string
	}{
		{"store redact", func(s LGPDService) http.HandlerFunc { return StoreRedact(s, nil) }, "store-redact"},
		{"customers redact", func(s LGPDService) http.HandlerFunc { return CustomersRedact(s, nil) }, "customers-redact"},
		{"customers data request", func(s LGPDService) http.HandlerFunc { return CustomersDataRequest(s, nil) }, "customers-data-request"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubLGPD{}
			r := httptest.NewRequest(http.MethodPost, "/webhooks/"+tc.handler, strings.NewReader(`{"store_id":1}`))
			r.Header.Set(signatureHeader, "sig-value")
			w := httptest.NewRecorder()
			tc.build(svc)(w, r)

			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			if svc.calls != 1 || svc.method != tc.handler {
				t.Fatalf("wrong dispatch: calls=%d method=%s", svc.calls, svc.method)
			}
			if svc.sig != "sig-value" {
				t.Fatalf("signature header not forwarded: %q", svc.sig)
			}
			if string(svc.body) != `{"store_id":1}` {
				t.Fatalf("raw body not forwarded: %s", svc.body)
			}
		})
	}
}

func TestLGPDWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubLGPD{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")}
	r := httptest.NewRequest(http.MethodPost, "/webhooks/store-redact", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	StoreRedact(svc, nil)(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
