package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/identitywear/storefront-backend/pkg/config"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

var errNotInitialized = errors.New("redis client not initialized")

// Nil is returned by reads of a missing key.
const Nil = redis.Nil

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client is the storefront's view of Redis: carts, revoked sessions,
// idempotency markers and rate-limit counters.
type Client struct {
	store cmdable
	raw   *redis.Client
	keys  Keyspace
}

// New dials Redis and fails fast when the server does not answer PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connection established")
	}
	return &Client{store: raw, raw: raw, keys: DefaultKeyspace}, nil
}

// optionsFromConfig prefers the URL form. Pool and timeout settings from cfg
// only fill what the URL left unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	opts.DB = firstNonZero(opts.DB, cfg.DB)
	opts.PoolSize = firstNonZero(opts.PoolSize, cfg.PoolSize)
	opts.MinIdleConns = firstNonZero(opts.MinIdleConns, cfg.MinIdleConns)
	opts.DialTimeout = firstNonZero(opts.DialTimeout, cfg.DialTimeout)
	opts.ReadTimeout = firstNonZero(opts.ReadTimeout, cfg.ReadTimeout)
	opts.WriteTimeout = firstNonZero(opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func firstNonZero[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

func (c *Client) cmd() (cmdable, error) {
	if c == nil || c.store == nil {
		return nil, errNotInitialized
	}
	return c.store, nil
}

func (c *Client) keyspace() Keyspace {
	if c == nil || c.keys == "" {
		return DefaultKeyspace
	}
	return c.keys
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	store, err := c.cmd()
	if err != nil {
		return err
	}
	return store.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	store, err := c.cmd()
	if err != nil {
		return "", err
	}
	return store.Get(ctx, key).Result()
}

// GetBytes returns the raw value at key. A missing key yields Nil.
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, error) {
	store, err := c.cmd()
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, key).Bytes()
}

// SetNX reports whether the key was newly written.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	store, err := c.cmd()
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, value, ttl).Result()
}

// IncrWithTTL bumps a counter and arms its expiry on the first hit, which
// gives fixed-window semantics to callers that compare the count to a limit.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	store, err := c.cmd()
	if err != nil {
		return 0, err
	}
	count, err := store.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 && ttl > 0 {
		if err := store.Expire(ctx, key, ttl).Err(); err != nil {
			return count, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count, nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	store, err := c.cmd()
	if err != nil {
		return err
	}
	return store.Del(ctx, keys...).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	store, err := c.cmd()
	if err != nil {
		return err
	}
	return store.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return c.keyspace().Key(idempotencyPrefix, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return c.keyspace().Key(rateLimitPrefix, scope)
}

// CartKey holds the serialized line items of one shopper session.
func (c *Client) CartKey(sessionID string) string {
	return c.keyspace().Key(cartPrefix, sessionID)
}

// RevokedSessionKey marks an auth session that signed out before its token expired.
func (c *Client) RevokedSessionKey(sessionID string) string {
	return c.keyspace().Key(revokedPrefix, sessionID)
}
