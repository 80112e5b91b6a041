package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const corsMaxAgeSeconds = 300

// CORS admits the storefront origins. Cart session, request id and replay
// headers are exposed so the browser client can read them back.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", IdempotencyKeyHeader, CartSessionHeader},
		ExposedHeaders:   []string{CartSessionHeader, requestIDHeader, ReplayedHeader},
		AllowCredentials: true,
		MaxAge:           corsMaxAgeSeconds,
	}
	return cors.New(opts).Handler
}
