package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adega-digital/vinicola-backend/api/controllers"
	"github.com/adega-digital/vinicola-backend/api/middleware"
	"github.com/adega-digital/vinicola-backend/pkg/config"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
)

// Services bundles everything the router mounts. Nil entries degrade to 500s
// on their routes instead of panicking at startup.
type Services struct {
	Checkout  controllers.CheckoutService
	Reconcile controllers.ReconcileService
	LGPD      controllers.LGPDService
	Products  controllers.ProductsService
	Orders    controllers.OrdersService
	Coupons   controllers.CouponsService
	Shipping  controllers.ShippingService
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisP controllers.Pinger,
	registry *prometheus.Registry,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.FrontURL),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, redisP))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/webhooks", func(r chi.Router) {
		r.Get("/order-paid", controllers.OrderPaidLiveness())
		r.Post("/order-paid", controllers.OrderPaidWebhook(svcs.Reconcile, logg))
		r.Post("/store-redact", controllers.StoreRedact(svcs.LGPD, logg))
		r.Post("/customers-redact", controllers.CustomersRedact(svcs.LGPD, logg))
		r.Post("/customers-data-request", controllers.CustomersDataRequest(svcs.LGPD, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", controllers.Checkout(svcs.Checkout, logg))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(svcs.Products, logg))
			r.Get("/{productId}", controllers.GetProduct(svcs.Products, logg))
			r.Get("/{productId}/similar", controllers.SimilarProducts(svcs.Products, logg))
		})

		r.Get("/orders/{orderId}", controllers.GetOrderSummary(svcs.Orders, logg))
		r.Post("/coupons/validate", controllers.ValidateCoupon(svcs.Coupons, logg))

		r.Route("/shipping", func(r chi.Router) {
			r.Post("/calculate", controllers.CalculateShipping(svcs.Shipping, logg))
			r.Post("/cheapest", controllers.CheapestShipping(svcs.Shipping, logg))
			r.Post("/most-expensive", controllers.MostExpensiveShipping(svcs.Shipping, logg))
		})
	})

	return r
}
