package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identitywear/storefront-backend/pkg/config"
)

func TestIncrWithTTLArmsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.RateLimitKey("auth:ip:1.2.3.4")

	for want := int64(1); want <= 3; want++ {
		count, err := client.IncrWithTTL(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}
	require.Len(t, mock.expireCalls, 1)
	assert.Equal(t, time.Minute, mock.expireCalls[0].ttl)
}

func TestIncrWithTTLSurfacesExpireFailure(t *testing.T) {
	mock := newMockCmdable()
	mock.expireErr = errors.New("READONLY")
	client := &Client{store: mock}

	count, err := client.IncrWithTTL(context.Background(), "k", time.Second)
	require.ErrorContains(t, err, "READONLY")
	assert.Equal(t, int64(1), count)
}

func TestCartValueLifecycle(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	key := client.CartKey("sess-1")
	require.NoError(t, client.Set(ctx, key, `[{"quantity":2}]`, time.Hour))

	raw, err := client.GetBytes(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `[{"quantity":2}]`, string(raw))

	require.NoError(t, client.Del(ctx, key))
	_, err = client.GetBytes(ctx, key)
	assert.ErrorIs(t, err, Nil)
}

func TestSetNXOnlyWritesOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.IdempotencyKey("stripe_webhook", "evt_1")

	first, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	second, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
}

func TestUninitializedClientErrors(t *testing.T) {
	var nilClient *Client
	for _, client := range []*Client{{}, nilClient} {
		_, err := client.GetBytes(context.Background(), "k")
		assert.ErrorIs(t, err, errNotInitialized)
		assert.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
		assert.NoError(t, client.Close())
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sf:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "sf:rate_limit:scope", client.RateLimitKey("scope"))
	assert.Equal(t, "sf:cart:abc", client.CartKey("abc"))
	assert.Equal(t, "sf:revoked:s1", client.RevokedSessionKey("s1"))
	assert.Equal(t, "sf:cart", client.CartKey(""), "empty parts are skipped")
	assert.Equal(t, "staging:cart:abc", (&Client{keys: "staging"}).CartKey(" abc "))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:secret@cache:6380/3",
		DB:          1,
		PoolSize:    7,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB, "url db wins over config")
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

type mockCmdable struct {
	data        map[string]string
	counters    map[string]int64
	expireCalls []expireCall
	expireErr   error
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: map[string]string{}, counters: map[string]int64{}}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	m.counters[key]++
	return redis.NewIntResult(m.counters[key], nil)
}

func (m *mockCmdable) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if m.expireErr != nil {
		return redis.NewBoolResult(false, m.expireErr)
	}
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: ttl})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
