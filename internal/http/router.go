package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"market/internal/auth"
)

// RouterDeps bundles the wired handlers and the shared middleware inputs.
type RouterDeps struct {
	Orders    *OrderHandler
	Payments  *PaymentHandler
	Users     *UserHandler
	Admin     *AdminHandler
	JWTSecret string
	Logger    *zap.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", deps.Users.Register)
		r.Post("/auth/login", deps.Users.Login)

		// Provider callback authenticates with its own signature, not a JWT.
		r.Get("/payments/callback", deps.Payments.Callback)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(deps.JWTSecret))

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", deps.Orders.Create)
				r.Get("/", deps.Orders.ListMine)
				r.Get("/{orderId}", deps.Orders.Get)
				r.Post("/{orderId}/cancel", deps.Orders.Cancel)
				r.Post("/{orderId}/payment", deps.Payments.Process)
			})

			r.Get("/payments/key", deps.Payments.SecretKey)

			r.Route("/users/me", func(r chi.Router) {
				r.Get("/", deps.Users.Profile)
				r.Put("/", deps.Users.UpdateProfile)
				r.Put("/password", deps.Users.ChangePassword)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)

				r.Get("/orders", deps.Admin.ListOrders)
				r.Put("/orders/{orderId}/status", deps.Admin.UpdateOrderStatus)
				r.Put("/payments/{orderId}", deps.Admin.ReconcilePayment)
				r.Get("/dashboard", deps.Admin.Dashboard)
				r.Get("/users", deps.Admin.ListUsers)
				r.Get("/users/{userId}", deps.Admin.GetUser)
				r.Put("/users/{userId}/status", deps.Admin.UpdateUserStatus)
			})
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "market-backend",
	})
}
