package checkout

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/adega-digital/vinicola-backend/internal/shipping"
	"github.com/adega-digital/vinicola-backend/pkg/enums"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
	"github.com/adega-digital/vinicola-backend/pkg/melhorenvio"
	"github.com/adega-digital/vinicola-backend/pkg/mercadopago"
	"github.com/adega-digital/vinicola-backend/pkg/nuvemshop"
)

type stubCatalog struct {
	products map[int64]*nuvemshop.Product
	coupons  []nuvemshop.Coupon

	fetchErr     error
	couponErr    error
	createErr    error
	cancelErr    error
	fetchCalls   int
	createdOrder *nuvemshop.CreateOrderPayload
	cancelled    []int64
}

func (s *stubCatalog) FetchProduct(_ context.Context, id int64) (*nuvemshop.Product, error) {
	s.fetchCalls++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	product, ok := s.products[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func (s *stubCatalog) FetchCoupons(_ context.Context, _ nuvemshop.CouponQuery) ([]nuvemshop.Coupon, error) {
	return s.coupons, s.couponErr
}

func (s *stubCatalog) CreateOrder(_ context.Context, payload nuvemshop.CreateOrderPayload) (*nuvemshop.Order, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.createdOrder = &payload
	return &nuvemshop.Order{ID: 5001, PaymentStatus: enums.PaymentStatusPending}, nil
}

func (s *stubCatalog) CancelOrder(_ context.Context, orderID int64, _ string) error {
	s.cancelled = append(s.cancelled, orderID)
	return s.cancelErr
}

type stubGateway struct {
	pref      *mercadopago.Preference
	createErr error
	gotReq    *mercadopago.PreferenceRequest
}

func (s *stubGateway) CreatePreference(_ context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error) {
	s.gotReq = &req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.pref, nil
}

func (s *stubGateway) RedirectURL(pref *mercadopago.Preference) string {
	return pref.SandboxInitPoint
}

type stubRates struct {
	quote *melhorenvio.Quote
	err   error
}

func (s *stubRates) Selected(_ context.Context, _ shipping.QuoteRequest) (*melhorenvio.Quote, error) {
	return s.quote, s.err
}

func wineProduct(id int64, variantID int64, price string) *nuvemshop.Product {
	return &nuvemshop.Product{
		ID:       id,
		Name:     map[string]string{"pt": "Vinho Tinto Reserva"},
		Variants: []nuvemshop.Variant{{ID: variantID, Price: price, Weight: "1.50"}},
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.Disabled, Output: io.Discard})
}

func newTestService(catalog *stubCatalog, gateway *stubGateway, rates RateSelector, cfg Config) *Service {
	if cfg.FrontURL == "" {
		cfg.FrontURL = "https://loja.example.com"
	}
	if cfg.BackURL == "" {
		cfg.BackURL = "https://api.example.com"
	}
	return NewService(catalog, gateway, rates, cfg, testLogger(), nil)
}

func okGateway() *stubGateway {
	return &stubGateway{pref: &mercadopago.Preference{
		ID:               "pref-1",
		InitPoint:        "https://mp/init",
		SandboxInitPoint: "https://mp/sandbox",
	}}
}

func TestCreateCheckoutWithPercentageCoupon(t *testing.T) {
	catalog := &stubCatalog{
		products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")},
		coupons: []nuvemshop.Coupon{{
			ID: 7, Code: "SAVE10", Type: "percentage", Value: "10.00", Valid: true,
		}},
	}
	gateway := okGateway()
	svc := newTestService(catalog, gateway, nil, Config{})

	result, err := svc.CreateCheckout(context.Background(), Request{
		Items:      []Line{{ProductID: 1, VariantID: 11, Quantity: 2}},
		Customer:   Customer{Name: "Maria Silva", Email: "maria@example.com"},
		CouponCode: "SAVE10",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}

	if result.OrderID != 5001 || result.PreferenceID != "pref-1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.RedirectURL != "https://mp/sandbox" {
		t.Fatalf("unexpected redirect %q", result.RedirectURL)
	}
	if result.Total != 90.00 {
		t.Fatalf("total = %v, want 90.00", result.Total)
	}

	// order carries the resolved prices and the coupon note
	if got := catalog.createdOrder.Products[0].Price; got != 50.00 {
		t.Fatalf("order line price = %v, want the canonical 50.00", got)
	}
	if !strings.Contains(catalog.createdOrder.Note, "Cupom aplicado: SAVE10 (ID: 7)") {
		t.Fatalf("unexpected note %q", catalog.createdOrder.Note)
	}

	// preference items carry the discounted unit price and link the order
	if gateway.gotReq.Items[0].UnitPrice != 45.00 {
		t.Fatalf("preference unit price = %v, want 45.00", gateway.gotReq.Items[0].UnitPrice)
	}
	if gateway.gotReq.ExternalReference != "5001" {
		t.Fatalf("external reference = %q", gateway.gotReq.ExternalReference)
	}
	if gateway.gotReq.Metadata["nuvem_order_id"] != int64(5001) {
		t.Fatalf("metadata order id = %v", gateway.gotReq.Metadata["nuvem_order_id"])
	}
	if gateway.gotReq.BackURLs.Success != "https://loja.example.com/sucesso/5001" {
		t.Fatalf("success url = %q", gateway.gotReq.BackURLs.Success)
	}
	if gateway.gotReq.NotificationURL != "https://api.example.com/webhooks/order-paid" {
		t.Fatalf("notification url = %q", gateway.gotReq.NotificationURL)
	}
	if gateway.gotReq.AutoReturn != "approved" {
		t.Fatalf("auto_return = %q", gateway.gotReq.AutoReturn)
	}
}

func TestCreateCheckoutIgnoresClientPrices(t *testing.T) {
	catalog := &stubCatalog{products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "89.90")}}
	gateway := okGateway()
	svc := newTestService(catalog, gateway, nil, Config{})

	result, err := svc.CreateCheckout(context.Background(), Request{
		Items:    []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
		Customer: Customer{Name: "X"},
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if result.Total != 89.90 {
		t.Fatalf("total = %v, want the catalog price 89.90", result.Total)
	}
}

func TestCreateCheckoutDeduplicatesProductFetches(t *testing.T) {
	product := wineProduct(1, 11, "50.00")
	product.Variants = append(product.Variants, nuvemshop.Variant{ID: 12, Price: "60.00"})
	catalog := &stubCatalog{products: map[int64]*nuvemshop.Product{1: product}}
	svc := newTestService(catalog, okGateway(), nil, Config{})

	_, err := svc.CreateCheckout(context.Background(), Request{
		Items: []Line{
			{ProductID: 1, VariantID: 11, Quantity: 1},
			{ProductID: 1, VariantID: 12, Quantity: 1},
		},
		Customer: Customer{Name: "X"},
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if catalog.fetchCalls != 1 {
		t.Fatalf("fetched product %d times, want 1", catalog.fetchCalls)
	}
}

func TestCreateCheckoutValidation(t *testing.T) {
	svc := newTestService(&stubCatalog{}, okGateway(), nil, Config{})

	cases := []Request{
		{},
		{Items: []Line{{ProductID: 1, VariantID: 11, Quantity: 0}}},
		{Items: []Line{{ProductID: 0, VariantID: 11, Quantity: 1}}},
		{Items: []Line{{ProductID: 1, VariantID: 0, Quantity: 1}}},
	}
	for i, req := range cases {
		_, err := svc.CreateCheckout(context.Background(), req)
		if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestCreateCheckoutInvalidProduct(t *testing.T) {
	catalog := &stubCatalog{products: map[int64]*nuvemshop.Product{}}
	svc := newTestService(catalog, okGateway(), nil, Config{})

	_, err := svc.CreateCheckout(context.Background(), Request{
		Items: []Line{{ProductID: 99, VariantID: 11, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidProduct) {
		t.Fatalf("expected invalid-product, got %v", err)
	}
}

func TestCreateCheckoutInvalidVariant(t *testing.T) {
	catalog := &stubCatalog{products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")}}
	svc := newTestService(catalog, okGateway(), nil, Config{})

	_, err := svc.CreateCheckout(context.Background(), Request{
		Items: []Line{{ProductID: 1, VariantID: 99, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidVariant) {
		t.Fatalf("expected invalid-variant, got %v", err)
	}
}

func TestCreateCheckoutInvalidPrice(t *testing.T) {
	catalog := &stubCatalog{products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "0.00")}}
	svc := newTestService(catalog, okGateway(), nil, Config{})

	_, err := svc.CreateCheckout(context.Background(), Request{
		Items: []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidPrice) {
		t.Fatalf("expected invalid-price, got %v", err)
	}
}

func TestCreateCheckoutCouponRules(t *testing.T) {
	maxUses := 5
	minPrice := "200.00"

	cases := []struct {
		name    string
		coupons []nuvemshop.Coupon
		want    pkgerrors.Code
	}{
		{name: "unknown", coupons: nil, want: pkgerrors.CodeInvalidCoupon},
		{
			name: "below minimum",
			coupons: []nuvemshop.Coupon{
				{ID: 1, Code: "BIG", Type: "percentage", Value: "10", Valid: true, MinPrice: &minPrice},
			},
			want: pkgerrors.CodeCouponBelowMinimum,
		},
		{
			name: "exhausted",
			coupons: []nuvemshop.Coupon{
				{ID: 2, Code: "OLD", Type: "percentage", Value: "10", Valid: true, Used: 5, MaxUses: &maxUses},
			},
			want: pkgerrors.CodeCouponExhausted,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			catalog := &stubCatalog{
				products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")},
				coupons:  tc.coupons,
			}
			svc := newTestService(catalog, okGateway(), nil, Config{})

			_, err := svc.CreateCheckout(context.Background(), Request{
				Items:      []Line{{ProductID: 1, VariantID: 11, Quantity: 2}},
				CouponCode: "ANY",
			})
			if !pkgerrors.HasCode(err, tc.want) {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateCheckoutInvalidTotal(t *testing.T) {
	catalog := &stubCatalog{
		products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")},
		coupons: []nuvemshop.Coupon{{
			ID: 3, Code: "FULL", Type: "absolute", Value: "100.00", Valid: true,
		}},
	}
	svc := newTestService(catalog, okGateway(), nil, Config{})

	_, err := svc.CreateCheckout(context.Background(), Request{
		Items:      []Line{{ProductID: 1, VariantID: 11, Quantity: 2}},
		CouponCode: "FULL",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTotal) {
		t.Fatalf("expected invalid-total, got %v", err)
	}
}

func TestCreateCheckoutRejectsCouponExceedingSubtotalDespiteShipping(t *testing.T) {
	// Shipping would keep the total positive, but the item lines can no
	// longer express subtotal minus discount once every unit clamps to
	// zero. The checkout must abort instead of overcharging.
	catalog := &stubCatalog{
		products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "10.00")},
		coupons: []nuvemshop.Coupon{{
			ID: 4, Code: "OVER", Type: "absolute", Value: "15.00", Valid: true,
		}},
	}
	rates := &stubRates{quote: &melhorenvio.Quote{Name: "PAC", Price: "10.00", Company: melhorenvio.Company{ID: 1}}}
	svc := newTestService(catalog, okGateway(), rates, Config{})

	_, err := svc.CreateCheckout(context.Background(), Request{
		Items:              []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
		CouponCode:         "OVER",
		ShippingPostalCode: "01310-100",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTotal) {
		t.Fatalf("expected invalid-total, got %v", err)
	}
	if catalog.createdOrder != nil {
		t.Fatalf("order must not be created for an inexpressible total")
	}
}

func TestCreateCheckoutOrderCreateFailure(t *testing.T) {
	catalog := &stubCatalog{
		products:  map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")},
		createErr: errors.New("storefront down"),
	}
	svc := newTestService(catalog, okGateway(), nil, Config{})

	_, err := svc.CreateCheckout(context.Background(), Request{
		Items: []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeOrderCreateFailed) {
		t.Fatalf("expected order-create failure, got %v", err)
	}
	if len(catalog.cancelled) != 0 {
		t.Fatal("nothing to compensate before the order exists")
	}
}

func TestCreateCheckoutCompensatesOnPreferenceFailure(t *testing.T) {
	catalog := &stubCatalog{products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")}}
	gateway := &stubGateway{createErr: errors.New("gateway down")}
	svc := newTestService(catalog, gateway, nil, Config{})

	_, err := svc.CreateCheckout(context.Background(), Request{
		Items: []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodePreferenceCreateFailed) {
		t.Fatalf("expected preference failure, got %v", err)
	}
	if len(catalog.cancelled) != 1 || catalog.cancelled[0] != 5001 {
		t.Fatalf("expected order 5001 cancelled, got %v", catalog.cancelled)
	}
}

func TestCreateCheckoutCompensationFailureDoesNotMaskError(t *testing.T) {
	catalog := &stubCatalog{
		products:  map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")},
		cancelErr: errors.New("cancel failed too"),
	}
	gateway := &stubGateway{createErr: errors.New("gateway down")}
	svc := newTestService(catalog, gateway, nil, Config{})

	_, err := svc.CreateCheckout(context.Background(), Request{
		Items: []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodePreferenceCreateFailed) {
		t.Fatalf("expected preference failure, got %v", err)
	}
}

func TestCreateCheckoutEmptyRedirectTriggersCompensation(t *testing.T) {
	catalog := &stubCatalog{products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")}}
	gateway := &stubGateway{pref: &mercadopago.Preference{ID: "pref-1"}}
	svc := newTestService(catalog, gateway, nil, Config{})

	_, err := svc.CreateCheckout(context.Background(), Request{
		Items: []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodePreferenceCreateFailed) {
		t.Fatalf("expected preference failure, got %v", err)
	}
	if len(catalog.cancelled) != 1 {
		t.Fatalf("expected compensation, got %v", catalog.cancelled)
	}
}

func TestCreateCheckoutShippingQuote(t *testing.T) {
	catalog := &stubCatalog{products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")}}
	gateway := okGateway()
	rates := &stubRates{quote: &melhorenvio.Quote{
		Name: ".Package", Price: "25.90",
		Company: melhorenvio.Company{ID: 2, Name: "Jadlog"},
	}}
	svc := newTestService(catalog, gateway, rates, Config{})

	result, err := svc.CreateCheckout(context.Background(), Request{
		Items:              []Line{{ProductID: 1, VariantID: 11, Quantity: 2}},
		Customer:           Customer{Name: "X", Zipcode: "04538-132"},
		ShippingPostalCode: "04538-132",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if result.Total != 125.90 {
		t.Fatalf("total = %v, want 125.90", result.Total)
	}
	if catalog.createdOrder.ShippingCostCustomer != 25.90 {
		t.Fatalf("order shipping cost = %v", catalog.createdOrder.ShippingCostCustomer)
	}
	if catalog.createdOrder.ShippingOption != ".Package" || catalog.createdOrder.ShippingPickupType != "ship" {
		t.Fatalf("order shipping fields %+v", catalog.createdOrder)
	}

	last := gateway.gotReq.Items[len(gateway.gotReq.Items)-1]
	if last.ID != "shipping" || last.UnitPrice != 25.90 {
		t.Fatalf("expected shipping preference line, got %+v", last)
	}
}

func TestCreateCheckoutShippingFailureNonFatal(t *testing.T) {
	catalog := &stubCatalog{products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")}}
	rates := &stubRates{err: errors.New("oracle down")}
	svc := newTestService(catalog, okGateway(), rates, Config{})

	result, err := svc.CreateCheckout(context.Background(), Request{
		Items:              []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
		ShippingPostalCode: "04538132",
	})
	if err != nil {
		t.Fatalf("oracle failure should not abort checkout: %v", err)
	}
	if result.Total != 50.00 {
		t.Fatalf("total = %v, want 50.00 with zero shipping", result.Total)
	}
}

func TestCreateCheckoutShippingFailureFatalWhenRequired(t *testing.T) {
	catalog := &stubCatalog{products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")}}
	rates := &stubRates{err: pkgerrors.New(pkgerrors.CodeDependency, "oracle down")}
	svc := newTestService(catalog, okGateway(), rates, Config{ShippingRequired: true})

	_, err := svc.CreateCheckout(context.Background(), Request{
		Items:              []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
		ShippingPostalCode: "04538132",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCreateCheckoutShippingCouponZeroesShippingCost(t *testing.T) {
	catalog := &stubCatalog{
		products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")},
		coupons:  []nuvemshop.Coupon{{ID: 9, Code: "FRETEGRATIS", Type: "shipping", Value: "0", Valid: true}},
	}
	rates := &stubRates{quote: &melhorenvio.Quote{Name: "PAC", Price: "20.00", Company: melhorenvio.Company{ID: 1}}}
	svc := newTestService(catalog, okGateway(), rates, Config{})

	result, err := svc.CreateCheckout(context.Background(), Request{
		Items:              []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
		CouponCode:         "FRETEGRATIS",
		ShippingPostalCode: "04538132",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if result.Total != 50.00 {
		t.Fatalf("total = %v, want 50.00 with free shipping", result.Total)
	}
}

func TestPayerOnlyInProdWithFullDocument(t *testing.T) {
	catalog := &stubCatalog{products: map[int64]*nuvemshop.Product{1: wineProduct(1, 11, "50.00")}}

	gateway := okGateway()
	svc := newTestService(catalog, gateway, nil, Config{ProdPayer: true})
	_, err := svc.CreateCheckout(context.Background(), Request{
		Items:    []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
		Customer: Customer{Name: "Maria", Email: "m@x.com", Document: "123.456.789-01"},
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	payer := gateway.gotReq.Payer
	if payer == nil || payer.Identification == nil {
		t.Fatalf("expected payer with identification, got %+v", payer)
	}
	if payer.Identification.Type != "CPF" || payer.Identification.Number != "12345678901" {
		t.Fatalf("unexpected identification %+v", payer.Identification)
	}

	// short document: payer without identification
	gateway2 := okGateway()
	svc2 := newTestService(catalog, gateway2, nil, Config{ProdPayer: true})
	_, err = svc2.CreateCheckout(context.Background(), Request{
		Items:    []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
		Customer: Customer{Name: "Maria", Document: "123"},
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if gateway2.gotReq.Payer == nil || gateway2.gotReq.Payer.Identification != nil {
		t.Fatalf("expected payer without identification, got %+v", gateway2.gotReq.Payer)
	}

	// test mode: no payer at all
	gateway3 := okGateway()
	svc3 := newTestService(catalog, gateway3, nil, Config{})
	_, err = svc3.CreateCheckout(context.Background(), Request{
		Items:    []Line{{ProductID: 1, VariantID: 11, Quantity: 1}},
		Customer: Customer{Name: "Maria", Document: "12345678901"},
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if gateway3.gotReq.Payer != nil {
		t.Fatalf("test mode should omit the payer, got %+v", gateway3.gotReq.Payer)
	}
}
