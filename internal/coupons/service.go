// Package coupons exposes the standalone coupon validation used by the
// storefront before checkout.
package coupons

import (
	"context"
	"strings"

	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/nuvemshop"
)

// Catalog is the slice of the storefront client this service needs.
type Catalog interface {
	FetchCoupons(ctx context.Context, query nuvemshop.CouponQuery) ([]nuvemshop.Coupon, error)
}

type Service struct {
	catalog Catalog
}

func NewService(catalog Catalog) *Service {
	return &Service{catalog: catalog}
}

// Validate looks the code up among valid coupons and checks the usage limit.
// The subtotal-minimum rule is enforced at checkout, where the cart is known.
func (s *Service) Validate(ctx context.Context, code string) (*nuvemshop.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	coupons, err := s.catalog.FetchCoupons(ctx, nuvemshop.CouponQuery{Code: code, Valid: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidCoupon, err, "look up coupon")
	}
	if len(coupons) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon not found or expired")
	}

	coupon := coupons[0]
	if coupon.Exhausted() {
		return nil, pkgerrors.New(pkgerrors.CodeCouponExhausted, "coupon reached its usage limit")
	}
	return &coupon, nil
}
