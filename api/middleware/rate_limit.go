package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/identitywear/storefront-backend/api/responses"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

// maxLimitedBody bounds how much of a request body is buffered to find the
// email being throttled.
const maxLimitedBody = 1 << 20

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// RateLimitPolicy counts requests in fixed windows per client IP and per
// email found in the JSON body. A zero limit turns its dimension off.
type RateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return RateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// counter is one throttled dimension of a request.
type counter struct {
	scope string
	value string
	limit int
}

// RateLimit answers 429 with Retry-After once any counter passes its limit.
// A Redis failure is reported as a dependency error rather than let through.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			counters, err := policy.counters(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			for _, c := range counters {
				key := store.RateLimitKey(policy.name + ":" + c.scope + ":" + c.value)
				count, err := store.IncrWithTTL(ctx, key, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(c.limit) {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":   policy.name,
						"scope":    c.scope,
						"attempts": count,
						"limit":    c.limit,
					}), "rate_limit.blocked")
					w.Header().Set("Retry-After", strconv.Itoa(int(policy.window.Seconds())))
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// counters lists the dimensions that apply to r. Reading the email restores
// the body for the next handler. Emails are hashed before they reach Redis.
func (p RateLimitPolicy) counters(r *http.Request) ([]counter, error) {
	var out []counter
	if p.ipLimit > 0 {
		if ip := clientIP(r); ip != "" {
			out = append(out, counter{scope: "ip", value: ip, limit: p.ipLimit})
		}
	}
	if p.emailLimit > 0 && r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxLimitedBody))
		if err != nil {
			return nil, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		if email := emailFrom(body); email != "" {
			sum := sha256.Sum256([]byte(email))
			out = append(out, counter{scope: "email", value: hex.EncodeToString(sum[:]), limit: p.emailLimit})
		}
	}
	return out, nil
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func emailFrom(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(payload, &body) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}
