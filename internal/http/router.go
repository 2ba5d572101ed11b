package http

import (
	"net/http"
	"time"

	"github.com/fjod/agrostore/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Products *ProductHandler
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Webhook  *WebhookHandler
	Orders   *OrdersHandler
	Auth     *AuthHandler
}

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	// Authenticate attaches the signed-in user, if any, to the request.
	Authenticate func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig, hs Handlers, log *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware(log))
	r.Use(RequestLogger(log))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// the processor signs the raw body, so the webhook stays outside the
		// body limit and compression used by the rest of the API
		r.Post("/payments/webhook", hs.Webhook.Handle)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
			r.Use(middleware.Compress(5))
			r.Use(cfg.Authenticate)

			r.Get("/products", hs.Products.List)
			r.Get("/products/{product_id}", hs.Products.Get)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", hs.Cart.GetCart)
				r.Delete("/", hs.Cart.ClearCart)
				r.Post("/items", hs.Cart.AddItem)
				r.Put("/items/{line_id}", hs.Cart.UpdateQuantity)
				r.Delete("/items/{line_id}", hs.Cart.RemoveItem)
			})

			r.Post("/checkout", hs.Checkout.Checkout)
			r.Get("/payments/success", hs.Checkout.PaymentSuccess)
			r.Get("/payments/cancel", hs.Checkout.PaymentCancel)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", hs.Orders.ListOrders)
				r.Get("/{order_id}", hs.Orders.GetOrder)
				r.Post("/{order_id}/payment", hs.Checkout.RetryPayment)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(domain.RoleAdmin))
				r.Get("/orders", hs.Orders.AdminListOrders)
				r.Patch("/orders/{order_id}/status", hs.Orders.AdminUpdateStatus)
			})

			r.Post("/auth/logout", hs.Auth.Logout)
		})
	})

	return r
}
