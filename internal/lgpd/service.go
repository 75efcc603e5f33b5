// Package lgpd handles the storefront's mandatory data-privacy webhooks:
// store-redact, customers-redact and customers-data-request. Deliveries are
// authenticated with an HMAC over the raw body keyed by the app secret,
// then acknowledged and logged; this service holds no customer data.
package lgpd

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
)

type Service struct {
	secret []byte
	log    *logger.Logger
}

func NewService(clientSecret string, log *logger.Logger) *Service {
	return &Service{secret: []byte(clientSecret), log: log}
}

// VerifySignature checks the base64 HMAC-SHA256 the storefront sends in the
// x-linkedstore-hmac-sha256 header against the raw body.
func (s *Service) VerifySignature(rawBody []byte, signature string) error {
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing webhook signature")
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return nil
}

type redactPayload struct {
	StoreID  json.Number `json:"store_id"`
	Customer *struct {
		ID json.Number `json:"id"`
	} `json:"customer"`
	OrdersToRedact []json.Number `json:"orders_to_redact"`
}

// HandleStoreRedact acknowledges a store data-deletion request.
func (s *Service) HandleStoreRedact(ctx context.Context, rawBody []byte, signature string) error {
	payload, err := s.verifyAndParse(rawBody, signature)
	if err != nil {
		return err
	}
	s.log.Info(s.log.WithField(ctx, "store_id", payload.StoreID.String()), "store redact request acknowledged")
	return nil
}

// HandleCustomersRedact acknowledges a customer data-deletion request.
func (s *Service) HandleCustomersRedact(ctx context.Context, rawBody []byte, signature string) error {
	payload, err := s.verifyAndParse(rawBody, signature)
	if err != nil {
		return err
	}
	fields := map[string]any{"store_id": payload.StoreID.String()}
	if payload.Customer != nil {
		fields["customer_id"] = payload.Customer.ID.String()
	}
	fields["orders_to_redact"] = len(payload.OrdersToRedact)
	s.log.Info(s.log.WithFields(ctx, fields), "customer redact request acknowledged")
	return nil
}

// HandleCustomersDataRequest acknowledges a customer data-access request.
func (s *Service) HandleCustomersDataRequest(ctx context.Context, rawBody []byte, signature string) error {
	payload, err := s.verifyAndParse(rawBody, signature)
	if err != nil {
		return err
	}
	fields := map[string]any{"store_id": payload.StoreID.String()}
	if payload.Customer != nil {
		fields["customer_id"] = payload.Customer.ID.String()
	}
	s.log.Info(s.log.WithFields(ctx, fields), "customer data request acknowledged")
	return nil
}

func (s *Service) verifyAndParse(rawBody []byte, signature string) (*redactPayload, error) {
	if err := s.VerifySignature(rawBody, signature); err != nil {
		return nil, err
	}
	var payload redactPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode privacy webhook body")
	}
	return &payload, nil
}
