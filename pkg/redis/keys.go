package redis

import "strings"

// Keyspace prefixes every storefront key so one Redis can host several
// environments side by side.
type Keyspace string

const DefaultKeyspace Keyspace = "sf"

const (
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	cartPrefix        = "cart"
	revokedPrefix     = "revoked"
)

// Key joins the namespace with the non-empty parts using ':'.
func (k Keyspace) Key(parts ...string) string {
	var b strings.Builder
	b.WriteString(string(k))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
