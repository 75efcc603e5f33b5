package reconcile

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adega-digital/vinicola-backend/pkg/enums"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
	"github.com/adega-digital/vinicola-backend/pkg/mercadopago"
	"github.com/adega-digital/vinicola-backend/pkg/metrics"
	"github.com/adega-digital/vinicola-backend/pkg/nuvemshop"
)

// Outcome statuses. The webhook transport always answers 200; these tell the
// operator what actually happened.
const (
	StatusIgnoredNoID          = "ignored-no-id"
	StatusAlreadyProcessed     = "already-processed"
	StatusFetchError           = "mp-fetch-error"
	StatusIgnoredNotApproved   = "ignored-not-approved"
	StatusIgnoredNoExternalRef = "ignored-no-external-ref"
	StatusOrderUpdated         = "order-updated"
	StatusUpdateError          = "nuvem-update-error"
)

// Delivery is one raw webhook delivery: the query string and the body as
// received. Neither is trusted beyond the payment id.
type Delivery struct {
	Query url.Values
	Body  []byte
}

// Outcome is the structured result returned to the webhook transport.
type Outcome struct {
	Status        string    `json:"status"`
	PaymentID     string    `json:"payment_id,omitempty"`
	OrderID       int64     `json:"order_id,omitempty"`
	PaymentStatus string    `json:"payment_status,omitempty"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// Gateway fetches the authoritative payment record.
type Gateway interface {
	GetPayment(ctx context.Context, paymentID string) (*mercadopago.Payment, error)
}

// Orders updates the storefront order. The update is idempotent at the
// target: an already-paid order is a no-op success.
type Orders interface {
	UpdateOrderPaymentStatus(ctx context.Context, orderID int64, status enums.PaymentStatus) (*nuvemshop.Order, error)
}

type Service struct {
	gateway Gateway
	orders  Orders
	guard   Guard
	log     *logger.Logger
	metrics *metrics.WebhookMetrics
	now     func() time.Time
}

func NewService(gateway Gateway, orders Orders, guard Guard, log *logger.Logger, m *metrics.WebhookMetrics) *Service {
	return &Service{
		gateway: gateway,
		orders:  orders,
		guard:   guard,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// HandlePaymentNotification processes one delivery. Safe for concurrent use
// and for gateway redeliveries of the same payment. All failures are
// absorbed into the outcome; nothing propagates to the transport.
func (s *Service) HandlePaymentNotification(ctx context.Context, delivery Delivery) Outcome {
	outcome := s.handle(ctx, delivery)
	s.metrics.IncOutcome(outcome.Status)
	return outcome
}

func (s *Service) handle(ctx context.Context, delivery Delivery) Outcome {
	paymentID := ExtractPaymentID(delivery)
	if paymentID == "" {
		s.log.Info(ctx, "webhook delivery without payment id ignored")
		return s.outcome(StatusIgnoredNoID, "", 0, "")
	}
	ctx = s.log.WithPaymentID(ctx, paymentID)

	seen, err := s.guard.Seen(ctx, paymentID)
	if err != nil {
		s.log.Error(ctx, "dedup lookup failed, continuing without the early check", err)
	} else if seen {
		return s.outcome(StatusAlreadyProcessed, paymentID, 0, "")
	}

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		s.log.Error(ctx, "payment fetch failed", err)
		return s.outcome(StatusFetchError, paymentID, 0, "")
	}

	status := enums.GatewayPaymentStatus(payment.Status)
	if !status.IsApproved() {
		s.log.Info(s.log.WithField(ctx, "payment_status", payment.Status), "payment not approved yet")
		return s.outcome(StatusIgnoredNotApproved, paymentID, 0, payment.Status)
	}

	orderID := resolveOrderID(payment)
	if orderID == 0 {
		s.log.Warn(ctx, "approved payment carries no order reference")
		return s.outcome(StatusIgnoredNoExternalRef, paymentID, 0, payment.Status)
	}
	ctx = s.log.WithOrderID(ctx, orderID)

	claimed, err := s.guard.TryClaim(ctx, paymentID)
	if err != nil {
		s.log.Error(ctx, "dedup claim failed, proceeding on the idempotent order update", err)
	} else if !claimed {
		return s.outcome(StatusAlreadyProcessed, paymentID, orderID, payment.Status)
	}

	if _, err := s.orders.UpdateOrderPaymentStatus(ctx, orderID, enums.PaymentStatusPaid); err != nil {
		if releaseErr := s.guard.Release(ctx, paymentID); releaseErr != nil {
			s.log.Error(ctx, "dedup release after update failure also failed", releaseErr)
		}
		s.log.Error(ctx, "order update failed", err)
		return s.outcome(StatusUpdateError, paymentID, orderID, payment.Status)
	}

	s.log.Info(ctx, "order marked as paid")
	return s.outcome(StatusOrderUpdated, paymentID, orderID, payment.Status)
}

func (s *Service) outcome(status, paymentID string, orderID int64, paymentStatus string) Outcome {
	return Outcome{
		Status:        status,
		PaymentID:     paymentID,
		OrderID:       orderID,
		PaymentStatus: paymentStatus,
		ProcessedAt:   s.now().UTC(),
	}
}

// ExtractPaymentID digs the payment id out of the shapes gateway deliveries
// take: query parameters first ("id", "data.id"), then body fields
// ("data.id", "id", "payment_id").
func ExtractPaymentID(delivery Delivery) string {
	for _, key := range []string{"id", "data.id"} {
		if value := strings.TrimSpace(delivery.Query.Get(key)); value != "" {
			return value
		}
	}

	if len(delivery.Body) == 0 {
		return ""
	}
	var body struct {
		Data struct {
			ID any `json:"id"`
		} `json:"data"`
		ID        any `json:"id"`
		PaymentID any `json:"payment_id"`
	}
	if err := json.Unmarshal(delivery.Body, &body); err != nil {
		return ""
	}
	for _, candidate := range []any{body.Data.ID, body.ID, body.PaymentID} {
		if id := stringifyID(candidate); id != "" {
			return id
		}
	}
	return ""
}

func stringifyID(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// resolveOrderID prefers the external reference; the metadata blob written
// at preference creation is the fallback when the reference is missing.
func resolveOrderID(payment *mercadopago.Payment) int64 {
	if ref := strings.TrimSpace(payment.ExternalReference); ref != "" {
		if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	if raw, ok := payment.Metadata["nuvem_order_id"]; ok {
		switch v := raw.(type) {
		case float64:
			return int64(v)
		case string:
			if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return id
			}
		case json.Number:
			if id, err := v.Int64(); err == nil {
				return id
			}
		case int64:
			return v
		case int:
			return int64(v)
		}
	}
	return 0
}
