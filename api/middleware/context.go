package middleware

import (
	"context"
	"time"
)

type contextKey string

const (
	ctxUserID      contextKey = "user_id"
	ctxAuthSession contextKey = "auth_session"
	ctxAccessToken contextKey = "access_token"
	ctxTokenExpiry contextKey = "token_expiry"
	ctxCartSession contextKey = "cart_session"
)

// fromContext returns the zero value when ctx is nil or the key is unset.
func fromContext[T any](ctx context.Context, key contextKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	if v, ok := ctx.Value(key).(T); ok {
		return v
	}
	return zero
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func UserIDFromContext(ctx context.Context) string {
	return fromContext[string](ctx, ctxUserID)
}

// AuthSessionFromContext returns the auth backend session id of the bearer token.
func AuthSessionFromContext(ctx context.Context) string {
	return fromContext[string](ctx, ctxAuthSession)
}

func AccessTokenFromContext(ctx context.Context) string {
	return fromContext[string](ctx, ctxAccessToken)
}

// TokenExpiryFromContext returns when the bearer token stops being valid.
func TokenExpiryFromContext(ctx context.Context) time.Time {
	return fromContext[time.Time](ctx, ctxTokenExpiry)
}

func CartSessionFromContext(ctx context.Context) string {
	return fromContext[string](ctx, ctxCartSession)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(orBackground(ctx), ctxUserID, userID)
}

func WithCartSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(orBackground(ctx), ctxCartSession, sessionID)
}

// WithAccessSession records the bearer token and the auth session it belongs to.
// A zero expiry is not stored.
func WithAccessSession(ctx context.Context, token, sessionID string, expiresAt time.Time) context.Context {
	ctx = context.WithValue(orBackground(ctx), ctxAuthSession, sessionID)
	ctx = context.WithValue(ctx, ctxAccessToken, token)
	if !expiresAt.IsZero() {
		ctx = context.WithValue(ctx, ctxTokenExpiry, expiresAt)
	}
	return ctx
}
