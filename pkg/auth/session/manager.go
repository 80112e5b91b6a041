// Package session tracks access-token sessions the shopper signed out of.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/identitywear/storefront-backend/pkg/redis"
)

// A sign-out right before expiry still blocks the token briefly.
const minRevocationTTL = time.Minute

var errNoSession = errors.New("session id is required")

type revocationStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	RevokedSessionKey(sessionID string) string
}

// AccessSessionChecker is what the auth middleware needs.
type AccessSessionChecker interface {
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Manager parks signed-out session ids in Redis. A JWT cannot be recalled,
// so the id stays blocked until the token would have expired.
type Manager struct {
	store revocationStore
	now   func() time.Time
}

func NewManager(store revocationStore) (*Manager, error) {
	if store == nil {
		return nil, errors.New("redis client is required")
	}
	return &Manager{store: store, now: time.Now}, nil
}

func (m *Manager) Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errNoSession
	}
	now := m.now()
	ttl := max(expiresAt.Sub(now), minRevocationTTL)
	return m.store.Set(ctx, m.store.RevokedSessionKey(sessionID), now.UTC().Format(time.RFC3339), ttl)
}

// IsRevoked treats a blank id as live; the token parser already rejected
// anything malformed.
func (m *Manager) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, nil
	}
	_, err := m.store.Get(ctx, m.store.RevokedSessionKey(sessionID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}
