package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adega-digital/vinicola-backend/api/responses"
	"github.com/adega-digital/vinicola-backend/api/validators"
	ordersvc "github.com/adega-digital/vinicola-backend/internal/orders"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
)

type OrdersService interface {
	GetOrderSummary(ctx context.Context, orderID int64) (*ordersvc.Summary, error)
}

// GetOrderSummary serves the confirmation page the buyer lands on after
// paying.
func GetOrderSummary(svc OrdersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParsePathInt64(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.GetOrderSummary(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}
