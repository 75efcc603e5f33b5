package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	checkoutsvc "github.com/adega-digital/vinicola-backend/internal/checkout"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/types"
)

type stubCheckout struct {
	req    checkoutsvc.Request
	result *checkoutsvc.Result
	err    error
	calls  int
}

func (s *stubCheckout) CreateCheckout(_ context.Context, req checkoutsvc.Request) (*checkoutsvc.Result, error) {
	s.calls++
	s.req = req
	return s.result, s.err
}

func TestCheckoutCreatesOrder(t *testing.T) {
	svc := &stubCheckout{result: &checkoutsvc.Result{
		RedirectURL:  "https://mp.example/init",
		PreferenceID: "pref-1",
		OrderID:      5001,
		Total:        90,
	}}
	handler := Checkout(svc, nil)

	body := `{"items":[{"product_id":11,"variant_id":22,"quantity":2}],"customer":{"name":"Maria","email":"maria@example.com"},"coupon_code":"SAVE10"}`
	r := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if svc.req.CouponCode != "SAVE10" || len(svc.req.Items) != 1 || svc.req.Items[0].VariantID != 22 {
		t.Fatalf("payload not forwarded: %+v", svc.req)
	}

	var envelope struct {
		Data checkoutsvc.Result `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.OrderID != 5001 || envelope.Data.RedirectURL != "https://mp.example/init" {
		t.Fatalf("unexpected response %+v", envelope.Data)
	}
}

func TestCheckoutRejectsMalformedBody(t *testing.T) {
	svc := &stubCheckout{}
	handler := Checkout(svc, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"items":[]}`))
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service called despite invalid payload")
	}
}

func TestCheckoutMapsBusinessErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid coupon", pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon invalid"), http.StatusBadRequest},
		{"invalid product", pkgerrors.New(pkgerrors.CodeInvalidProduct, "unknown product"), http.StatusBadRequest},
		{"preference failure", pkgerrors.New(pkgerrors.CodePreferenceCreateFailed, "mp down"), http.StatusBadGateway},
	}

	body := `{"items":[{"product_id":11,"variant_id":22,"quantity":1}],"customer":{}}`
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := Checkout(&stubCheckout{err: tc.err}, nil)
			r := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
			w := httptest.NewRecorder()
			handler(w, r)

			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			var envelope types.ErrorEnvelope
			if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
				t.Fatalf("decode error envelope: %v", err)
			}
			if envelope.Error.Code == "" {
				t.Fatalf("error code missing in %s", w.Body.String())
			}
		})
	}
}

func TestCheckoutNilService(t *testing.T) {
	handler := Checkout(nil, nil)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
