package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/pkg/logger"
)

// CartSessionHeader carries the shopper's cart session between requests.
const CartSessionHeader = "X-Cart-Session"

// CartSession resolves the shopper's cart session from the request header,
// minting a fresh one for first-time visitors. The id is echoed back so the
// client can keep it.
func CartSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := strings.TrimSpace(r.Header.Get(CartSessionHeader))
			if _, err := uuid.Parse(sessionID); err != nil {
				sessionID = uuid.NewString()
			}
			w.Header().Set(CartSessionHeader, sessionID)

			ctx := WithCartSession(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithCartSession(ctx, sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
