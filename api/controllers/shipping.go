package controllers

import (
	"context"
	"net/http"

	"github.com/adega-digital/vinicola-backend/api/responses"
	"github.com/adega-digital/vinicola-backend/api/validators"
	shippingsvc "github.com/adega-digital/vinicola-backend/internal/shipping"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
	"github.com/adega-digital/vinicola-backend/pkg/melhorenvio"
)

// ShippingService quotes freight for a destination postal code.
type ShippingService interface {
	Calculate(ctx context.Context, req shippingsvc.QuoteRequest) ([]melhorenvio.Quote, error)
	Cheapest(ctx context.Context, req shippingsvc.QuoteRequest) (*melhorenvio.Quote, error)
	MostExpensive(ctx context.Context, req shippingsvc.QuoteRequest) (*melhorenvio.Quote, error)
}

func CalculateShipping(svc ShippingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeShippingRequest(svc, logg, w, r)
		if !ok {
			return
		}
		quotes, err := svc.Calculate(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quotes)
	}
}

func CheapestShipping(svc ShippingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeShippingRequest(svc, logg, w, r)
		if !ok {
			return
		}
		quote, err := svc.Cheapest(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

func MostExpensiveShipping(svc ShippingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeShippingRequest(svc, logg, w, r)
		if !ok {
			return
		}
		quote, err := svc.MostExpensive(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

func decodeShippingRequest(svc ShippingService, logg *logger.Logger, w http.ResponseWriter, r *http.Request) (shippingsvc.QuoteRequest, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
		return shippingsvc.QuoteRequest{}, false
	}
	var payload shippingsvc.QuoteRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return shippingsvc.QuoteRequest{}, false
	}
	return payload, true
}
