package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Persister stores the serialized line items of one cart under a key.
// Load returns (nil, nil) when nothing was stored yet.
type Persister interface {
	Key(sessionID string) string
	Load(ctx context.Context, key string) ([]LineItem, error)
	Save(ctx context.Context, key string, items []LineItem) error
	Delete(ctx context.Context, key string) error
}

type redisStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
	CartKey(sessionID string) string
}

// RedisPersister keeps carts in Redis as a JSON array.
type RedisPersister struct {
	store redisStore
	ttl   time.Duration
}

// NewRedisPersister wraps the redis client. A zero ttl keeps carts forever.
func NewRedisPersister(store redisStore, ttl time.Duration) (*RedisPersister, error) {
	if store == nil {
		return nil, errors.New("redis store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &RedisPersister{store: store, ttl: ttl}, nil
}

func (p *RedisPersister) Key(sessionID string) string {
	return p.store.CartKey(sessionID)
}

func (p *RedisPersister) Load(ctx context.Context, key string) ([]LineItem, error) {
	raw, err := p.store.GetBytes(ctx, key)
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cart %s: %w", key, err)
	}
	return decodeItems(raw)
}

func (p *RedisPersister) Save(ctx context.Context, key string, items []LineItem) error {
	raw, err := encodeItems(items)
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, key, raw, p.ttl); err != nil {
		return fmt.Errorf("write cart %s: %w", key, err)
	}
	return nil
}

func (p *RedisPersister) Delete(ctx context.Context, key string) error {
	if err := p.store.Del(ctx, key); err != nil {
		return fmt.Errorf("delete cart %s: %w", key, err)
	}
	return nil
}

// MemoryPersister keeps serialized carts in process memory.
type MemoryPersister struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{data: map[string][]byte{}}
}

func (p *MemoryPersister) Key(sessionID string) string {
	return "cart:" + sessionID
}

func (p *MemoryPersister) Load(_ context.Context, key string) ([]LineItem, error) {
	p.mu.Lock()
	raw, ok := p.data[key]
	p.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decodeItems(raw)
}

func (p *MemoryPersister) Save(_ context.Context, key string, items []LineItem) error {
	raw, err := encodeItems(items)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.data[key] = raw
	p.mu.Unlock()
	return nil
}

func (p *MemoryPersister) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.data, key)
	p.mu.Unlock()
	return nil
}

// Raw exposes the stored bytes for a key.
func (p *MemoryPersister) Raw(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw, ok := p.data[key]
	return raw, ok
}

func encodeItems(items []LineItem) ([]byte, error) {
	if items == nil {
		items = []LineItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode cart: %w", err)
	}
	return raw, nil
}

func decodeItems(raw []byte) ([]LineItem, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return items, nil
}
