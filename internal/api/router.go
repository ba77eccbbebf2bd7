/**
 * @description
 * This file sets up the HTTP router for the subscription-service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, authentication and rate limiting, and maps the routes to
 * their corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the subscription-service routes.
func NewRouter(h *Handler, jwksURL string, limiter *RedisRateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Subscription service is healthy"))
	})

	// Protected routes that require authentication
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Get("/subscriptions", h.handleListSubscriptions)
		r.Get("/forecast", h.handleGetForecast)
		r.Get("/preferences", h.handleGetPreferences)

		// Mutations additionally sit behind the rate limiter.
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware("mutations", 60, time.Minute))

			r.Post("/subscriptions", h.handleAddSubscription)
			r.Patch("/subscriptions/{id}/status", h.handleSetStatus)
			r.Post("/subscriptions/{id}/convert", h.handleConvert)
			r.Delete("/subscriptions/{id}", h.handleDeleteSubscription)
			r.Put("/preferences", h.handleUpdatePreferences)
		})
	})

	return r
}
