package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(checkoutRL, searchRL *RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// Guest surface
	r.With(checkoutRL.Middleware).Post("/checkout", h.CheckoutCreate)
	r.Post("/webhooks/payment", h.PaymentWebhook)
	r.Get("/sessions/{sessionID}", h.SessionExchange)

	r.Get("/purchases/{purchaseID}/download/photo/{photoID}", h.DownloadPhoto)
	r.Get("/purchases/{purchaseID}/download/all", h.DownloadAll)

	r.Route("/events/{eventID}", func(r chi.Router) {
		r.With(searchRL.Middleware).Post("/find-me", h.FindMe)
		r.Get("/stream", h.EventStream)
		r.Get("/photos", h.EventGallery)

		// Photographer surface
		r.Group(func(r chi.Router) {
			r.Use(h.RequirePublishKey)
			r.Get("/analytics", h.EventAnalytics)
			r.Route("/photos/{photoID}", func(r chi.Router) {
				r.Post("/upload-url", h.PhotoUploadURL)
				r.Post("/uploaded", h.PhotoUploaded)
				r.Post("/publish", h.PhotoPublish)
				r.Post("/unpublish", h.PhotoUnpublish)
			})
		})
	})

	return r
}
