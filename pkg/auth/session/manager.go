// Package session keeps the shared token revocation list. Entries live in
// Redis so every API worker sees a logout immediately and the list survives
// restarts.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	redisclient "github.com/angelmondragon/marketplace-checkout/pkg/redis"
)

const revokedMarker = "1"

type revocationStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

type revocationKeyer interface {
	RevokedTokenKey(jti string) string
}

// RevocationChecker exposes the read-only surface needed by middleware.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Manager writes and reads revoked token ids.
type Manager struct {
	store revocationStore
	keyer revocationKeyer
}

// NewManager constructs a revocation manager backed by Redis.
func NewManager(client *redisclient.Client) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Manager{store: client, keyer: client}, nil
}

// Revoke blacklists jti until the token would have expired anyway. A token
// with no remaining lifetime needs no entry.
func (m *Manager) Revoke(ctx context.Context, jti string, remaining time.Duration) error {
	if strings.TrimSpace(jti) == "" {
		return fmt.Errorf("token id is required")
	}
	if remaining <= 0 {
		return nil
	}
	return m.store.Set(ctx, m.keyer.RevokedTokenKey(jti), revokedMarker, remaining)
}

// IsRevoked reports whether jti has been revoked.
func (m *Manager) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if strings.TrimSpace(jti) == "" {
		return false, fmt.Errorf("token id is required")
	}
	return m.store.Exists(ctx, m.keyer.RevokedTokenKey(jti))
}
