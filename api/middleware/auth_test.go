package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/pkg/auth"
	"github.com/identitywear/storefront-backend/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Audience: "authenticated"}

type stubRevocations struct {
	revoked map[string]bool
	err     error
}

func (s stubRevocations) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.revoked[sessionID], nil
}

func mintTestToken(t *testing.T, userID uuid.UUID, sessionID string) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID:    userID,
		Email:     "kari@example.no",
		SessionID: sessionID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(handler http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, stubRevocations{}, nil)(okHandler())
	if rec := serve(handler, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, stubRevocations{}, nil)(okHandler())
	if rec := serve(handler, "invalid"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAuthSeedsContext(t *testing.T) {
	userID := uuid.New()
	token := mintTestToken(t, userID, "sess-1")

	var gotUser, gotSession, gotToken string
	var gotExpiry time.Time
	handler := Auth(testJWT, stubRevocations{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotSession = AuthSessionFromContext(r.Context())
		gotToken = AccessTokenFromContext(r.Context())
		gotExpiry = TokenExpiryFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	if rec := serve(handler, token); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if gotUser != userID.String() || gotSession != "sess-1" || gotToken != token {
		t.Fatalf("unexpected context user=%q session=%q", gotUser, gotSession)
	}
	if gotExpiry.Before(time.Now()) {
		t.Fatalf("expected future expiry, got %v", gotExpiry)
	}
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	token := mintTestToken(t, uuid.New(), "signed-out")
	handler := Auth(testJWT, stubRevocations{revoked: map[string]bool{"signed-out": true}}, nil)(okHandler())
	if rec := serve(handler, token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAuthRevocationOutageIsDependencyError(t *testing.T) {
	token := mintTestToken(t, uuid.New(), "sess-1")
	handler := Auth(testJWT, stubRevocations{err: errors.New("redis down")}, nil)(okHandler())
	if rec := serve(handler, token); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestOptionalAuthLetsGuestsThrough(t *testing.T) {
	var gotUser string
	handler := OptionalAuth(testJWT, stubRevocations{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	if rec := serve(handler, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected guest to pass, got %d", rec.Code)
	}
	if gotUser != "" {
		t.Fatalf("guest must not carry a user id")
	}
}

func TestOptionalAuthRejectsBadToken(t *testing.T) {
	handler := OptionalAuth(testJWT, stubRevocations{}, nil)(okHandler())
	if rec := serve(handler, "garbage"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestCartSessionMintsAndEchoes(t *testing.T) {
	var seen string
	handler := CartSession(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CartSessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected minted uuid, got %q", seen)
	}
	if rec.Header().Get(CartSessionHeader) != seen {
		t.Fatalf("expected header echo")
	}

	existing := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CartSessionHeader, existing)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != existing {
		t.Fatalf("expected existing session %s, got %s", existing, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CartSessionHeader, "../../etc")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "../../etc" {
		t.Fatalf("malformed session ids must be replaced")
	}
}
