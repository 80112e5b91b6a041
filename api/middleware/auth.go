package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/identitywear/storefront-backend/api/responses"
	pkgAuth "github.com/identitywear/storefront-backend/pkg/auth"
	"github.com/identitywear/storefront-backend/pkg/auth/session"
	"github.com/identitywear/storefront-backend/pkg/config"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

// Auth requires a valid bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, revocations session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			ctx, err := authenticate(r.Context(), cfg, revocations, logg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth lets guests through. A token that is present must still be valid,
// so a stale session fails loudly instead of silently shopping as a guest.
func OptionalAuth(cfg config.JWTConfig, revocations session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx, err := authenticate(r.Context(), cfg, revocations, logg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(ctx context.Context, cfg config.JWTConfig, revocations session.AccessSessionChecker, logg *logger.Logger, token string) (context.Context, error) {
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}

	if revocations != nil && claims.SessionID != "" {
		revoked, err := revocations.IsRevoked(ctx, claims.SessionID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if revoked {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session signed out")
		}
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	ctx = WithUserID(ctx, userID.String())
	ctx = WithAccessSession(ctx, token, claims.SessionID, expiresAt)
	if logg != nil {
		ctx = logg.WithUserID(ctx, userID.String())
	}
	return ctx, nil
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
