package redis

import "strings"

const keyNamespace = "mk"

const (
	kindIdempotency = "idempotency"
	kindRateLimit   = "rate_limit"
	kindRevoked     = "revoked"
	kindLock        = "lock"
)

// IdempotencyKey namespaces a replay or de-duplication entry.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(kindIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return buildKey(kindRateLimit, scope)
}

// LockKey names the key guarding a singleton job.
func (c *Client) LockKey(name string) string {
	return buildKey(kindLock, name)
}

func (c *Client) RevokedTokenKey(jti string) string {
	return buildKey(kindRevoked, jti)
}

// buildKey joins parts under the namespace, skipping blank ones.
func buildKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
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
