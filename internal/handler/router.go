package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/courseshop-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса продажи курсов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/set-password", h.SetPassword)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/points", h.GetPoints)
				r.Get("/points/history", h.GetPointsHistory)
				r.Get("/enrollments", h.GetEnrollments)
			})
		})

		r.Get("/courses", h.GetCourses)
		r.Get("/courses/{id}", h.GetCourse)

		// Оформление покупки доступно и гостю, и вошедшему пользователю.
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.OptionalMiddleware)

			r.Post("/checkout/preview", h.PreviewCheckout)
			r.Post("/checkout", h.CreateCheckout)
		})

		r.Post("/webhooks/payment", h.PaymentWebhook)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(h.adminOnly)

			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)

			r.Get("/coupons", h.GetCoupons)
			r.Post("/coupons", h.CreateCoupon)
			r.Patch("/coupons/{id}", h.UpdateCoupon)
			r.Delete("/coupons/{id}", h.DeleteCoupon)
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
