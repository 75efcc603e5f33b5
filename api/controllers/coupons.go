package controllers

import (
	"context"
	"net/http"

	"github.com/adega-digital/vinicola-backend/api/responses"
	"github.com/adega-digital/vinicola-backend/api/validators"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
	"github.com/adega-digital/vinicola-backend/pkg/nuvemshop"
)

type CouponsService interface {
	Validate(ctx context.Context, code string) (*nuvemshop.Coupon, error)
}

type validateCouponRequest struct {
	Code string `json:"code" validate:"required"`
}

type validateCouponResponse struct {
	Valid  bool              `json:"valid"`
	Coupon *nuvemshop.Coupon `json:"coupon,omitempty"`
}

// ValidateCoupon checks a code against the storefront before checkout. The
// minimum-purchase rule is enforced at checkout time, when the cart total is
// known.
func ValidateCoupon(svc CouponsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		var payload validateCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Validate(r.Context(), payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, validateCouponResponse{Valid: true, Coupon: coupon})
	}
}
