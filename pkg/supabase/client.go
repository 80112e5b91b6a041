// Package supabase talks to the storefront's backend-as-a-service: the auth
// REST API and invokable edge functions. Every call goes through one circuit
// breaker so a failing backend is not hammered from checkout retries.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/identitywear/storefront-backend/pkg/config"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

const (
	functionsPath              = "/functions/v1/"
	authPath                   = "/auth/v1/"
	responseBodyReadLimit int64 = 1 << 20
	errorBodyReadLimit    int64 = 1024
)

var (
	errURLRequired     = errors.New("supabase url is required")
	errAnonKeyRequired = errors.New("supabase anon key is required")
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Target string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Target, e.Status, e.Body)
}

// ClientError reports a 4xx answer, which does not count against the breaker.
func (e *StatusError) ClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	anonKey    string
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logg       *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger reports breaker state changes.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logg = logg
	}
}

// NewClient builds a client from config.
func NewClient(cfg config.SupabaseConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errURLRequired
	}
	anonKey := strings.TrimSpace(cfg.AnonKey)
	if anonKey == "" {
		return nil, errAnonKeyRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		anonKey:    anonKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	maxFailures := cfg.BreakerMaxFail
	if maxFailures == 0 {
		maxFailures = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "supabase",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.ClientError()
			}
			return err == nil
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if c.logg == nil {
				return
			}
			ctx := c.logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			c.logg.Warn(ctx, "supabase.breaker.state_change")
		},
	})
	return c, nil
}

// BreakerState exposes the breaker state for readiness checks.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

type tokenKey struct{}

// WithAccessToken makes calls on ctx authenticate as the signed-in user
// instead of the anonymous key.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func accessToken(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Invoke calls the named edge function with a JSON body and decodes the JSON
// answer into out (when out is non-nil).
func (c *Client) Invoke(ctx context.Context, name string, body any, out any) error {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return errors.New("function name is required")
	}
	raw, err := c.do(ctx, http.MethodPost, functionsPath+name, body, accessToken(ctx))
	if err != nil {
		return err
	}
	return decodeInto(name, raw, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, bearer string) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", path, err)
		}
	}
	if bearer == "" {
		bearer = c.anonKey
	}

	return c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", path, err)
		}
		req.Header.Set("apikey", c.anonKey)
		req.Header.Set("Authorization", "Bearer "+bearer)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute %s request: %w", path, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
			return nil, &StatusError{Target: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", path, err)
		}
		return raw, nil
	})
}

func decodeInto(target string, raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", target, err)
	}
	return nil
}
