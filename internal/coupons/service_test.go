package coupons

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/nuvemshop"
)

type stubCatalog struct {
	coupons  []nuvemshop.Coupon
	err      error
	gotQuery nuvemshop.CouponQuery
}

func (s *stubCatalog) FetchCoupons(_ context.Context, query nuvemshop.CouponQuery) ([]nuvemshop.Coupon, error) {
	s.gotQuery = query
	return s.coupons, s.err
}

func TestValidate(t *testing.T) {
	catalog := &stubCatalog{coupons: []nuvemshop.Coupon{
		{ID: 7, Code: "SAVE10", Type: "percentage", Value: "10.00", Valid: true},
	}}
	svc := NewService(catalog)

	coupon, err := svc.Validate(context.Background(), " SAVE10 ")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if coupon.ID != 7 {
		t.Fatalf("unexpected coupon %+v", coupon)
	}
	if catalog.gotQuery.Code != "SAVE10" || !catalog.gotQuery.Valid {
		t.Fatalf("unexpected query %+v", catalog.gotQuery)
	}
}

func TestValidateEmptyCode(t *testing.T) {
	svc := NewService(&stubCatalog{})
	_, err := svc.Validate(context.Background(), "  ")
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateUnknownCoupon(t *testing.T) {
	svc := NewService(&stubCatalog{})
	_, err := svc.Validate(context.Background(), "NOPE")
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidCoupon) {
		t.Fatalf("expected invalid-coupon, got %v", err)
	}
}

func TestValidateExhaustedCoupon(t *testing.T) {
	maxUses := 3
	svc := NewService(&stubCatalog{coupons: []nuvemshop.Coupon{
		{ID: 1, Code: "OLD", Valid: true, Used: 3, MaxUses: &maxUses},
	}})
	_, err := svc.Validate(context.Background(), "OLD")
	if !pkgerrors.HasCode(err, pkgerrors.CodeCouponExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}

func TestValidateLookupFailure(t *testing.T) {
	svc := NewService(&stubCatalog{err: errors.New("storefront down")})
	_, err := svc.Validate(context.Background(), "SAVE10")
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidCoupon) {
		t.Fatalf("expected invalid-coupon wrap, got %v", err)
	}
}
