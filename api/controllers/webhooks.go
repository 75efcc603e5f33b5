package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/adega-digital/vinicola-backend/api/responses"
	reconcilesvc "github.com/adega-digital/vinicola-backend/internal/reconcile"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
)

// signatureHeader carries the storefront's HMAC over the raw body.
const signatureHeader = "x-linkedstore-hmac-sha256"

type ReconcileService interface {
	HandlePaymentNotification(ctx context.Context, delivery reconcilesvc.Delivery) reconcilesvc.Outcome
}

type LGPDService interface {
	HandleStoreRedact(ctx context.Context, rawBody []byte, signature string) error
	HandleCustomersRedact(ctx context.Context, rawBody []byte, signature string) error
	HandleCustomersDataRequest(ctx context.Context, rawBody []byte, signature string) error
}

// OrderPaidLiveness answers the gateway's endpoint probe.
func OrderPaidLiveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// OrderPaidWebhook reconciles a payment notification. The response is always
// 200 so the gateway never retries deliveries we have already classified.
func OrderPaidWebhook(svc ReconcileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			body = nil
		}

		outcome := svc.HandlePaymentNotification(r.Context(), reconcilesvc.Delivery{
			Query: r.URL.Query(),
			Body:  body,
		})

		responses.WriteRaw(w, http.StatusOK, outcome)
	}
}

// StoreRedact handles the storefront's store-redact compliance webhook.
func StoreRedact(svc LGPDService, logg *logger.Logger) http.HandlerFunc {
	return lgpdHandler(svc, logg, func(ctx context.Context, body []byte, sig string) error {
		return svc.HandleStoreRedact(ctx, body, sig)
	})
}

func CustomersRedact(svc LGPDService, logg *logger.Logger) http.HandlerFunc {
	return lgpdHandler(svc, logg, func(ctx context.Context, body []byte, sig string) error {
		return svc.HandleCustomersRedact(ctx, body, sig)
	})
}

func CustomersDataRequest(svc LGPDService, logg *logger.Logger) http.HandlerFunc {
	return lgpdHandler(svc, logg, func(ctx context.Context, body []byte, sig string) error {
		return svc.HandleCustomersDataRequest(ctx, body, sig)
	})
}

func lgpdHandler(svc LGPDService, logg *logger.Logger, handle func(context.Context, []byte, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lgpd service unavailable"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "failed to read body"))
			return
		}

		if err := handle(r.Context(), body, r.Header.Get(signatureHeader)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "acknowledged"})
	}
}
