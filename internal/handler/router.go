package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/kavara-app/kavara-backend/internal/middleware"
)

func pathParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// SetupRouter настраивает HTTP-маршруты и middleware магазина KAVARA.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.tgAuth.Middleware)

			r.Get("/profile", h.GetProfile)
			r.Get("/transactions", h.GetTransactions)

			r.Get("/boxes", h.ListBoxes)
			r.Get("/boxes/{id}", h.GetBox)
			r.Get("/products", h.ListProducts)

			r.Post("/favorites/toggle", h.ToggleFavorite)
			r.Get("/favorites", h.ListFavorites)

			r.Post("/referral/code", h.GenerateReferralCode)
			r.Post("/promo/validate", h.ValidatePromoCode)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.GetOrders)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", h.AdminLogin)

			r.Group(func(r chi.Router) {
				r.Use(h.adminAuth.Middleware)

				r.Post("/promo", h.CreatePromoCode)
				r.Get("/promo", h.ListPromoCodes)
				r.Put("/promo/{id}", h.UpdatePromoCode)
				r.Delete("/promo/{id}", h.DeactivatePromoCode)

				r.Post("/trainers", h.CreateTrainer)
				r.Get("/trainers", h.ListTrainers)
				r.Put("/trainers/{id}", h.UpdateTrainer)

				r.Put("/orders/{id}/status", h.SetOrderStatus)

				r.Delete("/users/{id}", h.DeactivateUser)

				r.Post("/loyalty/award", h.AwardPoints)
				r.Post("/loyalty/{id}/recalculate", h.RecalculateBalance)

				r.Post("/broadcasts", h.CreateBroadcast)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
