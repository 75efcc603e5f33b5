// Package checkout orchestrates cart validation, price resolution, discount
// and shipping math, and the two-phase order plus payment-preference creation
// against the storefront and the payment gateway.
package checkout

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/adega-digital/vinicola-backend/internal/shipping"
	"github.com/adega-digital/vinicola-backend/pkg/enums"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
	"github.com/adega-digital/vinicola-backend/pkg/melhorenvio"
	"github.com/adega-digital/vinicola-backend/pkg/mercadopago"
	"github.com/adega-digital/vinicola-backend/pkg/metrics"
	"github.com/adega-digital/vinicola-backend/pkg/nuvemshop"
)

// Catalog is the slice of the storefront client the orchestrator needs.
// CancelOrder is a required capability: it is the compensation path when
// preference creation fails after the order exists.
type Catalog interface {
	FetchProduct(ctx context.Context, productID int64) (*nuvemshop.Product, error)
	FetchCoupons(ctx context.Context, query nuvemshop.CouponQuery) ([]nuvemshop.Coupon, error)
	CreateOrder(ctx context.Context, payload nuvemshop.CreateOrderPayload) (*nuvemshop.Order, error)
	CancelOrder(ctx context.Context, orderID int64, reason string) error
}

// Gateway creates payment preferences and resolves the mode-aware redirect.
type Gateway interface {
	CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error)
	RedirectURL(pref *mercadopago.Preference) string
}

// RateSelector yields the shipping option the configured strategy picks.
type RateSelector interface {
	Selected(ctx context.Context, req shipping.QuoteRequest) (*melhorenvio.Quote, error)
}

// Config carries the checkout wiring that is not a collaborator.
type Config struct {
	FrontURL string
	BackURL  string
	// ProdPayer attaches the payer identity (with CPF identification for
	// 11-digit documents) to the preference. Off in test mode.
	ProdPayer bool
	// ShippingRequired aborts checkout when no quote can be obtained
	// instead of falling back to zero shipping cost.
	ShippingRequired bool
}

type Service struct {
	catalog Catalog
	gateway Gateway
	rates   RateSelector
	cfg     Config
	log     *logger.Logger
	metrics *metrics.CheckoutMetrics
}

// NewService wires the orchestrator. rates may be nil when no shipping
// aggregator is configured; metrics may be nil.
func NewService(catalog Catalog, gateway Gateway, rates RateSelector, cfg Config, log *logger.Logger, m *metrics.CheckoutMetrics) *Service {
	return &Service{
		catalog: catalog,
		gateway: gateway,
		rates:   rates,
		cfg:     cfg,
		log:     log,
		metrics: m,
	}
}

// CreateCheckout validates the cart, resolves canonical prices, applies the
// coupon and shipping quote, creates the pending storefront order and then
// the gateway preference referencing it. Preference failure triggers a
// best-effort order cancel; the failure is surfaced either way.
func (s *Service) CreateCheckout(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result, err := s.createCheckout(ctx, req)
	if err != nil {
		s.metrics.ObserveDuration("failure", time.Since(start))
		s.metrics.IncFailure(string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	s.metrics.ObserveDuration("success", time.Since(start))
	s.metrics.IncSuccess()
	return result, nil
}

func (s *Service) createCheckout(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	lines, err := s.resolveLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	subtotal := subtotalOf(lines)

	shippingCost := decimal.Zero
	var quote *melhorenvio.Quote
	if req.ShippingPostalCode != "" {
		quote, shippingCost, err = s.quoteShipping(ctx, req.ShippingPostalCode, lines)
		if err != nil {
			return nil, err
		}
	}

	discount := decimal.Zero
	var coupon *nuvemshop.Coupon
	if req.CouponCode != "" {
		coupon, err = s.lookupCoupon(ctx, req.CouponCode, subtotal)
		if err != nil {
			return nil, err
		}
		discount, shippingCost = couponDiscount(*coupon, subtotal, shippingCost)
		// The items must be able to express subtotal minus discount on
		// their own: shipping never absorbs a coupon that exceeds the
		// cart, so a discount covering the whole subtotal is rejected
		// before shipping enters the total.
		if discount.GreaterThanOrEqual(subtotal) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTotal, "discount consumes the entire subtotal")
		}
	}

	total := round2(subtotal.Sub(discount).Add(shippingCost))
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTotal, "total is not positive after discounts")
	}

	order, err := s.createOrder(ctx, req, lines, coupon, quote, shippingCost)
	if err != nil {
		return nil, err
	}
	ctx = s.log.WithOrderID(ctx, order.ID)
	s.log.Info(ctx, "pending order created")

	pref, err := s.gateway.CreatePreference(ctx, s.preferenceRequest(req, lines, order, discount, shippingCost, total, quote))
	if err != nil {
		s.compensate(ctx, order.ID, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodePreferenceCreateFailed, err, "create payment preference")
	}

	redirect := s.gateway.RedirectURL(pref)
	if redirect == "" {
		err := pkgerrors.New(pkgerrors.CodePreferenceCreateFailed, "gateway returned no redirect url")
		s.compensate(ctx, order.ID, err)
		return nil, err
	}

	s.log.Info(s.log.WithField(ctx, "preference_id", pref.ID), "checkout preference created")
	return &Result{
		RedirectURL:  redirect,
		PreferenceID: pref.ID,
		OrderID:      order.ID,
		Total:        total.InexactFloat64(),
	}, nil
}

func validateRequest(req Request) error {
	if len(req.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for i, line := range req.Items {
		if line.ProductID <= 0 || line.VariantID <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: product and variant are required", i))
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: quantity must be positive", i))
		}
	}
	return nil
}

// resolveLines fetches each distinct product once, concurrently, then reads
// the canonical variant price for every cart line.
func (s *Service) resolveLines(ctx context.Context, items []Line) ([]pricedLine, error) {
	distinct := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			distinct = append(distinct, item.ProductID)
		}
	}

	var mu sync.Mutex
	products := make(map[int64]*nuvemshop.Product, len(distinct))

	group, groupCtx := errgroup.WithContext(ctx)
	for _, productID := range distinct {
		productID := productID
		group.Go(func() error {
			product, err := s.catalog.FetchProduct(groupCtx, productID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInvalidProduct, err, fmt.Sprintf("product %d", productID))
			}
			mu.Lock()
			products[productID] = product
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	lines := make([]pricedLine, 0, len(items))
	for _, item := range items {
		product := products[item.ProductID]
		variant, ok := product.FindVariant(item.VariantID)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidVariant,
				fmt.Sprintf("variant %d not found on product %d", item.VariantID, item.ProductID))
		}
		price, err := decimal.NewFromString(variant.Price)
		if err != nil || price.LessThanOrEqual(decimal.Zero) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidPrice,
				fmt.Sprintf("variant %d of product %d has no valid price", item.VariantID, item.ProductID))
		}
		lines = append(lines, pricedLine{
			productID: item.ProductID,
			variantID: item.VariantID,
			title:     product.DisplayName(),
			quantity:  item.Quantity,
			unitPrice: round2(price),
			weightKg:  parseDimension(variant.Weight),
			widthCm:   parseDimension(variant.Width),
			heightCm:  parseDimension(variant.Height),
			lengthCm:  parseDimension(variant.Depth),
		})
	}
	return lines, nil
}

// quoteShipping asks the rate oracle for the strategy-selected option.
// Oracle failure is non-fatal unless shipping is configured mandatory.
func (s *Service) quoteShipping(ctx context.Context, postalCode string, lines []pricedLine) (*melhorenvio.Quote, decimal.Decimal, error) {
	if s.rates == nil {
		if s.cfg.ShippingRequired {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "shipping is required but no rate oracle is configured")
		}
		return nil, decimal.Zero, nil
	}

	quoteReq := shipping.QuoteRequest{PostalCode: postalCode}
	for _, line := range lines {
		quoteReq.Items = append(quoteReq.Items, shipping.QuoteItem{
			ID:       strconv.FormatInt(line.variantID, 10),
			Quantity: line.quantity,
			Price:    line.unitPrice.InexactFloat64(),
			WeightKg: line.weightKg,
		})
	}

	quote, err := s.rates.Selected(ctx, quoteReq)
	if err != nil {
		if s.cfg.ShippingRequired {
			return nil, decimal.Zero, err
		}
		s.log.Error(ctx, "shipping quote failed, proceeding without shipping cost", err)
		return nil, decimal.Zero, nil
	}

	price, err := decimal.NewFromString(quote.Price)
	if err != nil {
		if s.cfg.ShippingRequired {
			return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse shipping price")
		}
		s.log.Error(ctx, "unparseable shipping price, proceeding without shipping cost", err)
		return nil, decimal.Zero, nil
	}
	return quote, round2(price), nil
}

func (s *Service) lookupCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*nuvemshop.Coupon, error) {
	coupons, err := s.catalog.FetchCoupons(ctx, nuvemshop.CouponQuery{Code: code, Valid: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidCoupon, err, "look up coupon")
	}
	if len(coupons) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon not found or expired")
	}
	coupon := coupons[0]

	if coupon.MinPrice != nil {
		minPrice, err := decimal.NewFromString(*coupon.MinPrice)
		if err == nil && subtotal.LessThan(minPrice) {
			return nil, pkgerrors.New(pkgerrors.CodeCouponBelowMinimum,
				fmt.Sprintf("subtotal below the coupon minimum of R$ %s", *coupon.MinPrice))
		}
	}
	if coupon.Exhausted() {
		return nil, pkgerrors.New(pkgerrors.CodeCouponExhausted, "coupon reached its usage limit")
	}
	return &coupon, nil
}

// couponDiscount computes the discount for the subtotal. Shipping coupons
// zero the shipping cost instead of discounting items.
func couponDiscount(coupon nuvemshop.Coupon, subtotal, shippingCost decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	value, err := decimal.NewFromString(coupon.Value)
	if err != nil {
		value = decimal.Zero
	}
	switch enums.CouponKind(coupon.Type) {
	case enums.CouponKindPercentage:
		return round2(subtotal.Mul(value).Div(decimal.NewFromInt(100))), shippingCost
	case enums.CouponKindAbsolute:
		return round2(value), shippingCost
	case enums.CouponKindShipping:
		return decimal.Zero, decimal.Zero
	default:
		return decimal.Zero, shippingCost
	}
}

func (s *Service) createOrder(ctx context.Context, req Request, lines []pricedLine, coupon *nuvemshop.Coupon, quote *melhorenvio.Quote, shippingCost decimal.Decimal) (*nuvemshop.Order, error) {
	address := addressFrom(req.Customer)

	payload := nuvemshop.CreateOrderPayload{
		Customer: nuvemshop.OrderCustomer{
			Name:     req.Customer.Name,
			Email:    req.Customer.Email,
			Document: sanitizeDocument(req.Customer.Document),
		},
		BillingAddress:       address,
		ShippingAddress:      address,
		Gateway:              "mercadopago",
		ShippingCostCustomer: shippingCost.InexactFloat64(),
		PaymentStatus:        enums.PaymentStatusPending,
	}
	for _, line := range lines {
		payload.Products = append(payload.Products, nuvemshop.OrderLine{
			VariantID: line.variantID,
			Quantity:  line.quantity,
			Price:     line.unitPrice.InexactFloat64(),
		})
	}
	if quote != nil {
		payload.ShippingPickupType = "ship"
		payload.Shipping = "melhorenvio"
		payload.ShippingOption = quote.Name
	}
	if coupon != nil {
		payload.Note = fmt.Sprintf("Cupom aplicado: %s (ID: %d)", coupon.Code, coupon.ID)
	}

	order, err := s.catalog.CreateOrder(ctx, payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeOrderCreateFailed, err, "create pending order")
	}
	return order, nil
}

func (s *Service) preferenceRequest(req Request, lines []pricedLine, order *nuvemshop.Order, discount, shippingCost, total decimal.Decimal, quote *melhorenvio.Quote) mercadopago.PreferenceRequest {
	metaLines := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		metaLines = append(metaLines, map[string]any{
			"variant_id": line.variantID,
			"quantity":   line.quantity,
			"price":      line.unitPrice.InexactFloat64(),
			"name":       line.title,
		})
	}
	metadata := map[string]any{
		"items": metaLines,
		"customer": map[string]any{
			"name":     req.Customer.Name,
			"email":    req.Customer.Email,
			"document": sanitizeDocument(req.Customer.Document),
			"zipcode":  req.Customer.Zipcode,
		},
		"total":          total.InexactFloat64(),
		"nuvem_order_id": order.ID,
	}
	if quote != nil {
		metadata["shipping"] = map[string]any{
			"carrier": quote.Company.Name,
			"option":  quote.Name,
			"price":   shippingCost.InexactFloat64(),
		}
	}

	return mercadopago.PreferenceRequest{
		Items: paymentItems(lines, discount, shippingCost),
		Payer: s.payerFrom(req.Customer),
		BackURLs: mercadopago.BackURLs{
			Success: fmt.Sprintf("%s/sucesso/%d", strings.TrimRight(s.cfg.FrontURL, "/"), order.ID),
			Pending: strings.TrimRight(s.cfg.FrontURL, "/") + "/pendente",
			Failure: strings.TrimRight(s.cfg.FrontURL, "/") + "/falha",
		},
		AutoReturn:        "approved",
		NotificationURL:   strings.TrimRight(s.cfg.BackURL, "/") + "/webhooks/order-paid",
		ExternalReference: strconv.FormatInt(order.ID, 10),
		Metadata:          metadata,
	}
}

// payerFrom builds the payer identity for live mode. The CPF identification
// is attached only when the sanitized document has the expected 11 digits.
func (s *Service) payerFrom(customer Customer) *mercadopago.Payer {
	if !s.cfg.ProdPayer {
		return nil
	}
	payer := &mercadopago.Payer{Name: customer.Name, Email: customer.Email}
	if doc := sanitizeDocument(customer.Document); len(doc) == 11 {
		payer.Identification = &mercadopago.Identification{Type: "CPF", Number: doc}
	}
	return payer
}

func (s *Service) compensate(ctx context.Context, orderID int64, cause error) {
	if cancelErr := s.catalog.CancelOrder(ctx, orderID, "preference_failed"); cancelErr != nil {
		s.log.Error(ctx, "order cancel after preference failure also failed",
			multierr.Append(cause, cancelErr))
		return
	}
	s.log.Info(ctx, "pending order cancelled after preference failure")
}

func addressFrom(customer Customer) *nuvemshop.Address {
	if customer.Street == "" && customer.City == "" && customer.Zipcode == "" {
		return nil
	}
	return &nuvemshop.Address{
		Address:  customer.Street,
		Number:   customer.Number,
		Floor:    customer.Complement,
		City:     customer.City,
		Province: customer.Province,
		Zipcode:  customer.Zipcode,
		Phone:    customer.Phone,
	}
}

func sanitizeDocument(doc string) string {
	var digits strings.Builder
	for _, r := range doc {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}
