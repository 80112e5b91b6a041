package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/identitywear/storefront-backend/pkg/logger"
)

// Logging emits request.complete after the handler returns. Server errors
// log at warn so they stand out from normal traffic.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ctx := logg.WithFields(r.Context(), map[string]any{"method": r.Method, "path": r.URL.Path})
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			done := logg.WithFields(ctx, map[string]any{
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(started).Milliseconds(),
				"route":       routePattern(r),
			})
			if status >= http.StatusInternalServerError {
				logg.Warn(done, "request.complete")
				return
			}
			logg.Info(done, "request.complete")
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
