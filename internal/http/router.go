package http

import (
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Auth       auth.Provider
	Carts      Carts
	Products   Products
	Orders     Orders
	Workflow   Submitter
	Reconciler Reconciler
	Pricing    pricing.Calculator
	Health     http.HandlerFunc
}

// NewRouter mounts the storefront API under /api/v1 and the health check
// at /health.
func NewRouter(d Deps, logger *zap.Logger, timeout time.Duration) http.Handler {
	authHandler := NewAuthHandler(d.Auth, d.Carts, logger)
	productHandler := NewProductHandler(d.Products, logger)
	cartHandler := NewCartHandler(d.Carts, d.Products, d.Pricing, logger)
	checkoutHandler := NewCheckoutHandler(d.Carts, d.Workflow, logger)
	ordersHandler := NewOrdersHandler(d.Orders, logger)
	adminHandler := NewAdminHandler(d.Orders, d.Products, d.Reconciler, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	if d.Health != nil {
		r.Get("/health", d.Health)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(d.Auth, logger))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.SignUp)
			r.Post("/signin", authHandler.SignIn)
			r.With(RequireUser).Post("/signout", authHandler.SignOut)
			r.With(RequireUser).Get("/session", authHandler.Session)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Get("/categories", productHandler.Categories)
			r.Get("/{id}", productHandler.GetProduct)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Get("/quote", cartHandler.Quote)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
		})

		r.With(RequireUser).Post("/checkout", checkoutHandler.Submit)

		r.Route("/orders", func(r chi.Router) {
			r.Use(RequireUser)
			r.Get("/", ordersHandler.ListMine)
			r.Get("/{id}", ordersHandler.GetMine)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin(d.Auth, logger))
			r.Get("/dashboard", adminHandler.Dashboard)
			r.Get("/orders", ordersHandler.ListAll)
			r.Patch("/orders/{id}/status", ordersHandler.UpdateStatus)
			r.Get("/reconcile", adminHandler.Audit)
			r.Post("/reconcile", adminHandler.Apply)
			r.Post("/products", productHandler.CreateProduct)
		})
	})

	return r
}
