package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/membercore/coupon-service/internal/api/handlers"
	"github.com/membercore/coupon-service/internal/api/middleware"
)

// NewRouter builds the HTTP router for the coupon service.
func NewRouter(h *handlers.CouponHandler, log *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(log))

	// Public endpoints used by checkout flows
	r.Route("/coupons", func(r chi.Router) {
		r.Post("/validate", h.ValidateCoupon)
		r.Post("/redeem", h.RedeemCoupon)
		r.Get("/applicable", h.GetApplicableCoupons)
	})

	// Admin endpoints
	r.Route("/admin", func(r chi.Router) {
		r.Route("/coupons", func(r chi.Router) {
			r.Get("/", h.ListCoupons)
			r.Post("/", h.CreateCoupon)
			r.Put("/{id}", h.UpdateCoupon)
			r.Delete("/{id}", h.DeleteCoupon)
			r.Post("/{id}/apply", h.ApplyCoupon)
		})
		r.Route("/coupon-settings", func(r chi.Router) {
			r.Get("/", h.GetSettings)
			r.Put("/", h.UpdateSettings)
		})
	})

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
