package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/identitywear/storefront-backend/api/responses"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"

	maxIdempotencyKeyLen   = 255
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

// guardedRoutes lists the writes that require an Idempotency-Key. Checkout
// writes keep their record for a week since they create orders and payment
// sessions.
var guardedRoutes = map[string]time.Duration{
	"POST /api/v1/auth/signup":     defaultIdempotencyTTL,
	"POST /api/v1/wishlist":        defaultIdempotencyTTL,
	"POST /api/v1/checkout/submit": criticalIdempotencyTTL,
	"POST /api/v1/checkout/quick":  criticalIdempotencyTTL,
}

type idempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// storedResponse is what a retry gets back. Body is base64 in JSON.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the stored response when a client retries a guarded
// route with the same Idempotency-Key and body. A reused key with a different
// body is rejected.
func Idempotency(store idempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, guarded := idempotencyTTL(r.Method, requestPath(r))
			if !guarded || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			switch {
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(requestScope(r), clientKey)
			fingerprint := digest(body)

			previous, err := loadStoredResponse(ctx, store, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if previous != nil {
				if previous.RequestHash != fingerprint {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				previous.replay(w)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// server failures stay retryable under the same key
			if capture.statusCode() >= http.StatusInternalServerError {
				return
			}
			saveStoredResponse(ctx, logg, store, key, ttl, storedResponse{
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				RequestHash: fingerprint,
			})
		})
	}
}

func loadStoredResponse(ctx context.Context, store idempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &stored, nil
}

// saveStoredResponse is best effort. A lost record only means the next retry
// runs the handler again.
func saveStoredResponse(ctx context.Context, logg *logger.Logger, store idempotencyStore, key string, ttl time.Duration, resp storedResponse) {
	payload, err := json.Marshal(resp)
	if err == nil {
		_, err = store.SetNX(ctx, key, string(payload), ttl)
	}
	if err != nil && logg != nil {
		logg.Error(ctx, "persist idempotency record", err)
	}
}

func (s *storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// requestScope keeps keys from colliding across shoppers and routes.
func requestScope(r *http.Request) string {
	ctx := r.Context()
	return strings.Join([]string{
		UserIDFromContext(ctx),
		CartSessionFromContext(ctx),
		r.Method,
		requestPath(r),
	}, "|")
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// requestPath is matched instead of the chi pattern, which is still partial
// while group middleware runs.
func requestPath(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	path := strings.TrimRight(r.URL.Path, "/")
	if path == "" {
		return "/"
	}
	return path
}

func idempotencyTTL(method, path string) (time.Duration, bool) {
	ttl, ok := guardedRoutes[method+" "+path]
	return ttl, ok
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
