package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/shopcart-system/internal/middleware"
	"github.com/mmeshcher/shopcart-system/web"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса магазина.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Все маршруты, обращающиеся к данным, закрыты проверкой готовности хранилища.
		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.Readiness(h.readiness))

			r.Route("/users", func(r chi.Router) {
				r.Post("/", h.Register)
				r.Get("/", h.ListUsers)
				r.Post("/login", h.Login)

				r.Group(func(r chi.Router) {
					r.Use(h.authMiddleware.Middleware)
					r.Post("/logout", h.Logout)
				})
			})

			r.Route("/items", func(r chi.Router) {
				r.Post("/", h.AddItem)
				r.Get("/", h.ListItems)
			})

			r.Route("/carts", func(r chi.Router) {
				r.Get("/", h.ListCarts)

				r.Group(func(r chi.Router) {
					r.Use(h.authMiddleware.Middleware)
					r.Post("/", h.AddToCart)
					r.Get("/user/cart", h.GetUserCart)
				})
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrders)

				r.Group(func(r chi.Router) {
					r.Use(h.authMiddleware.Middleware)
					r.Post("/", h.CreateOrder)
					r.Get("/user/orders", h.GetUserOrders)
				})
			})
		})
	})

	// Встроенный браузерный клиент.
	r.Handle("/*", http.FileServer(web.Static()))

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
