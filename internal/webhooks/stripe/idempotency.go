package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errMissingEventID = errors.New("stripe event id is required")

type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// IdempotencyGuard claims Stripe event ids in Redis. Stripe retries a
// delivery until it gets a 2xx, so the same event can arrive many times.
type IdempotencyGuard struct {
	store claimStore
	ttl   time.Duration
	scope string
	now   func() time.Time
}

func NewIdempotencyGuard(store claimStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope, now: time.Now}, nil
}

// Claim reports whether this call is the first to see eventID. A false
// result means another delivery already handled or is handling it.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errMissingEventID
	}
	claimedAt := g.now().UTC().Format(time.RFC3339)
	ok, err := g.store.SetNX(ctx, g.key(eventID), claimedAt, g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim stripe event %s: %w", eventID, err)
	}
	return ok, nil
}

// Release forgets a claim after a failed handling so Stripe's retry runs.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errMissingEventID
	}
	return g.store.Del(ctx, g.key(eventID))
}

func (g *IdempotencyGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}
