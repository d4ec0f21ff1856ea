package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/furnique/furnique-backend/api/controllers"
	cartcontrollers "github.com/furnique/furnique-backend/api/controllers/cart"
	ordercontrollers "github.com/furnique/furnique-backend/api/controllers/orders"
	webhookcontrollers "github.com/furnique/furnique-backend/api/controllers/webhooks"
	"github.com/furnique/furnique-backend/api/middleware"
	"github.com/furnique/furnique-backend/internal/cart"
	checkoutsvc "github.com/furnique/furnique-backend/internal/checkout"
	"github.com/furnique/furnique-backend/internal/orders"
	"github.com/furnique/furnique-backend/pkg/config"
	"github.com/furnique/furnique-backend/pkg/enums"
	"github.com/furnique/furnique-backend/pkg/logger"
)

// Deps is everything the HTTP surface is wired to. Nil stores disable the
// middleware that needs them.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB    controllers.Pinger
	Redis controllers.Pinger

	Idempotency middleware.ResponseStore
	RateLimits  middleware.RateLimitStore
	Metrics     http.Handler

	Carts    cart.Service
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Payments controllers.PaymentsService
	Credits  controllers.CreditsService
	Webhooks webhookcontrollers.Dispatcher
}

const webhookIPLimit = 600

// NewRouter builds the API. Routes that use idempotency keys are registered
// with full paths inside groups so the middleware sees the complete pattern.
func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Checkout.WebURL),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", time.Minute, 0, cfg.FeatureFlags.CheckoutRateLimit)
	webhookPolicy := middleware.NewRateLimitPolicy("webhooks", time.Minute, webhookIPLimit, 0)

	checkoutLimit := middleware.RateLimit(checkoutPolicy, deps.RateLimits, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.With(middleware.RateLimit(webhookPolicy, deps.RateLimits, logg)).
		Post("/api/v1/webhooks/{gateway}", webhookcontrollers.GatewayWebhook(deps.Webhooks, logg))
	r.Get("/api/v1/credits/plans", controllers.CreditPlans())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleCustomer, logg))

			r.Get("/api/v1/cart", cartcontrollers.CartFetch(deps.Carts, logg))
			r.Delete("/api/v1/cart", cartcontrollers.CartClear(deps.Carts, logg))
			r.Post("/api/v1/cart/items", cartcontrollers.CartAddItem(deps.Carts, logg))
			r.Delete("/api/v1/cart/items/{productId}", cartcontrollers.CartRemoveItem(deps.Carts, logg))

			r.With(checkoutLimit).Post("/api/v1/checkout", controllers.Checkout(deps.Checkout, logg))
			r.With(checkoutLimit).Post("/api/v1/credits/purchase", controllers.CreditPurchase(deps.Credits, logg))
			r.Get("/api/v1/credits/balance", controllers.CreditBalance(deps.Credits, logg))
			r.Get("/api/v1/payments", controllers.PaymentList(deps.Payments, logg))

			r.Get("/api/v1/orders", ordercontrollers.List(deps.Orders, logg))
			r.Get("/api/v1/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Get("/api/v1/orders/{orderId}/history", ordercontrollers.History(deps.Orders, logg))
			r.Post("/api/v1/orders/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireStaff(logg))

			r.Get("/api/v1/staff/orders", ordercontrollers.List(deps.Orders, logg))
			r.Get("/api/v1/staff/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Get("/api/v1/staff/orders/{orderId}/history", ordercontrollers.History(deps.Orders, logg))
			if deps.Orders != nil {
				r.Post("/api/v1/staff/orders/{orderId}/confirm", ordercontrollers.Transition(deps.Orders.Confirm, logg))
				r.Post("/api/v1/staff/orders/{orderId}/assign-delivery", ordercontrollers.Transition(deps.Orders.AssignDelivery, logg))
				r.Post("/api/v1/staff/orders/{orderId}/deliver", ordercontrollers.Transition(deps.Orders.Deliver, logg))
				r.Post("/api/v1/staff/orders/{orderId}/complete", ordercontrollers.Transition(deps.Orders.Complete, logg))
			}
			r.Post("/api/v1/staff/orders/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.Post("/api/v1/staff/payments/{paymentId}/refund", controllers.StaffRefundPayment(deps.Payments, logg))
		})
	})

	return r
}
