package controllers

import (
	"context"
	"net/http"

	"github.com/adega-digital/vinicola-backend/api/responses"
	"github.com/adega-digital/vinicola-backend/api/validators"
	checkoutsvc "github.com/adega-digital/vinicola-backend/internal/checkout"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
)

// CheckoutService is the slice of the checkout orchestrator the handler needs.
type CheckoutService interface {
	CreateCheckout(ctx context.Context, req checkoutsvc.Request) (*checkoutsvc.Result, error)
}

// Checkout turns a cart submission into a pending order plus a payment
// redirect. Prices in the payload are ignored, the catalog is authoritative.
func Checkout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutsvc.Request
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateCheckout(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
